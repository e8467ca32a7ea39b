package chainclient

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/shadowswap-labs/shadowswap-solver/pkg/blockchain"
	"github.com/shadowswap-labs/shadowswap-solver/pkg/contracts"
	"github.com/shadowswap-labs/shadowswap-solver/pkg/logger"
	"github.com/shadowswap-labs/shadowswap-solver/pkg/metrics"
)

const (
	DefaultGasMultiplier       = 1.1
	DefaultConfirmationTimeout = 2 * time.Minute

	rpcTimeout = 10 * time.Second
)

var (
	// ErrAuditDisabled is returned when no resolver address is configured.
	ErrAuditDisabled = errors.New("audit resolver not configured")
	// ErrGasPriceTooHigh is returned when the network gas price exceeds the configured cap.
	ErrGasPriceTooHigh = errors.New("gas price exceeds configured maximum")
	// ErrConfirmationTimeout is returned when a receipt does not arrive in time.
	ErrConfirmationTimeout = errors.New("timed out waiting for confirmation")
)

// Backend is the part of an Ethereum RPC client the solver needs.
// *ethclient.Client and the simulated backend client both satisfy it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Config describes the chain, signing key and contracts.
type Config struct {
	RPCURL              string
	PrivateKey          string
	RouterAddress       string
	HookAddress         string
	TokenAddress        string
	ResolverAddress     string
	PoolFee             int64
	TickSpacing         int64
	GasMultiplier       float64
	MaxGasPrice         *big.Int
	ConfirmationTimeout time.Duration
}

// MatchRequest is one executeMatch call.
type MatchRequest struct {
	User       common.Address
	ZeroForOne bool
	AmountIn   *big.Int
}

// Value returns the native value attached to the call: amountIn when selling native, otherwise zero.
func (m MatchRequest) Value() *big.Int {
	if m.ZeroForOne {
		return new(big.Int).Set(m.AmountIn)
	}
	return big.NewInt(0)
}

// Client contains client and config information for the settlement chain
type Client struct {
	cfg         Config
	ChainID     *big.Int
	Client      Backend
	Auth        *bind.TransactOpts
	Router      *contracts.ShadowRouter
	Resolver    *contracts.TextResolver
	PoolKey     contracts.PoolKey
	routerABI   abi.ABI
	resolverABI abi.ABI
	nonces      *blockchain.NonceManager
	logger      logger.Logger

	// serialises nonce reservation and broadcast for the solver account
	sendMu sync.Mutex
	gasMu  sync.Mutex
}

// New dials cfg.RPCURL and creates a client
func New(ctx context.Context, cfg Config, log logger.Logger) (*Client, error) {
	ethClient, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to client: %w", err)
	}
	c, err := NewWithBackend(ctx, ethClient, cfg, log)
	if err != nil {
		ethClient.Close()
		return nil, err
	}
	return c, nil
}

// NewWithBackend creates a client on an existing backend
func NewWithBackend(ctx context.Context, backend Backend, cfg Config, log logger.Logger) (*Client, error) {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	if cfg.GasMultiplier <= 0 {
		cfg.GasMultiplier = DefaultGasMultiplier
	}
	if cfg.ConfirmationTimeout <= 0 {
		cfg.ConfirmationTimeout = DefaultConfirmationTimeout
	}

	c := &Client{
		cfg:    cfg,
		Client: backend,
		logger: log,
		PoolKey: contracts.PoolKey{
			Currency0:   common.Address{},
			Currency1:   common.HexToAddress(cfg.TokenAddress),
			Fee:         big.NewInt(cfg.PoolFee),
			TickSpacing: big.NewInt(cfg.TickSpacing),
			Hooks:       common.HexToAddress(cfg.HookAddress),
		},
	}
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// connect sets up the signer and contract bindings
func (c *Client) connect(ctx context.Context) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()

	chainID, err := c.Client.ChainID(timeoutCtx)
	if err != nil {
		return fmt.Errorf("failed to get chain ID: %w", err)
	}
	c.ChainID = chainID

	auth, err := createAuthenticator(c.cfg.PrivateKey, chainID)
	if err != nil {
		return fmt.Errorf("failed to create authenticator: %w", err)
	}
	c.Auth = auth
	c.nonces = blockchain.NewNonceManager(c.Client, auth.From, c.logger)

	routerAddress := common.HexToAddress(c.cfg.RouterAddress)
	router, err := contracts.NewShadowRouter(routerAddress, c.Client)
	if err != nil {
		return fmt.Errorf("failed to initialize router contract: %w", err)
	}
	c.Router = router
	if c.routerABI, err = abi.JSON(strings.NewReader(contracts.ShadowRouterABI)); err != nil {
		return fmt.Errorf("failed to parse router ABI: %w", err)
	}

	if c.cfg.ResolverAddress != "" {
		resolver, err := contracts.NewTextResolver(common.HexToAddress(c.cfg.ResolverAddress), c.Client)
		if err != nil {
			return fmt.Errorf("failed to initialize resolver contract: %w", err)
		}
		c.Resolver = resolver
		if c.resolverABI, err = abi.JSON(strings.NewReader(contracts.TextResolverABI)); err != nil {
			return fmt.Errorf("failed to parse resolver ABI: %w", err)
		}
	}

	c.logger.Info("Connected to chain %s as solver %s (router %s)", chainID, auth.From.Hex(), routerAddress.Hex())
	return nil
}

// createAuthenticator builds a keyed transactor from a hex private key, with or without 0x prefix
func createAuthenticator(privateKeyHex string, chainID *big.Int) (*bind.TransactOpts, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	auth, err := bind.NewKeyedTransactorWithChainID(privateKey, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	return auth, nil
}

// SolverAddress returns the signing account
func (c *Client) SolverAddress() common.Address {
	return c.Auth.From
}

// AuditEnabled reports whether a resolver is configured
func (c *Client) AuditEnabled() bool {
	return c.Resolver != nil
}

// AuthorizedSolver reads the router's configured solver
func (c *Client) AuthorizedSolver(ctx context.Context) (common.Address, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()
	return c.Router.Solver(&bind.CallOpts{Context: timeoutCtx, From: c.Auth.From})
}

// Balance returns the solver's native balance
func (c *Client) Balance(ctx context.Context) (*big.Int, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()
	return c.Client.BalanceAt(timeoutCtx, c.Auth.From, nil)
}

// GetLatestBlockNumber gets the latest block number from the chain
func (c *Client) GetLatestBlockNumber(ctx context.Context) (uint64, error) {
	return c.Client.BlockNumber(ctx)
}

// UpdateGasPrice reads the network gas price and applies the configured multiplier
func (c *Client) UpdateGasPrice(ctx context.Context) (*big.Int, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, rpcTimeout)
	defer cancel()

	gasPrice, err := c.Client.SuggestGasPrice(timeoutCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	multiplied := new(big.Float).Mul(new(big.Float).SetInt(gasPrice), big.NewFloat(c.cfg.GasMultiplier))
	finalGasPrice, _ := multiplied.Int(nil)

	gwei, _ := new(big.Float).Quo(new(big.Float).SetInt(finalGasPrice), big.NewFloat(1e9)).Float64()
	metrics.GasPrice.Set(gwei)

	c.gasMu.Lock()
	c.Auth.GasPrice = finalGasPrice
	c.gasMu.Unlock()

	return finalGasPrice, nil
}

// IsWithinMax reports whether gasPrice respects MaxGasPrice. A nil or zero cap disables the check.
func (c *Client) IsWithinMax(gasPrice *big.Int) bool {
	if c.cfg.MaxGasPrice == nil || c.cfg.MaxGasPrice.Sign() == 0 {
		return true
	}
	return gasPrice.Cmp(c.cfg.MaxGasPrice) <= 0
}

// SimulateMatch dry-runs executeMatch from the solver account and returns the quoted amountOut
func (c *Client) SimulateMatch(ctx context.Context, req MatchRequest) (*big.Int, error) {
	data, err := c.routerABI.Pack("executeMatch", req.User, c.PoolKey, req.ZeroForOne, req.AmountIn)
	if err != nil {
		return nil, fmt.Errorf("failed to pack executeMatch: %w", err)
	}

	router := common.HexToAddress(c.cfg.RouterAddress)
	out, err := c.Client.CallContract(ctx, ethereum.CallMsg{
		From:  c.Auth.From,
		To:    &router,
		Value: req.Value(),
		Data:  data,
	}, nil)
	if err != nil {
		return nil, err
	}

	values, err := c.routerABI.Unpack("executeMatch", out)
	if err != nil || len(values) == 0 {
		return nil, fmt.Errorf("failed to decode executeMatch result: %v", err)
	}
	amountOut, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected executeMatch result type %T", values[0])
	}
	return amountOut, nil
}

// SubmitMatch signs and broadcasts executeMatch
func (c *Client) SubmitMatch(ctx context.Context, req MatchRequest) (*types.Transaction, error) {
	return c.transact(ctx, req.Value(), func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return c.Router.ExecuteMatch(opts, req.User, c.PoolKey, req.ZeroForOne, req.AmountIn)
	})
}

// SubmitAudit simulates and broadcasts setText(node(name), key, value) on the resolver
func (c *Client) SubmitAudit(ctx context.Context, name, key, value string) (*types.Transaction, error) {
	if c.Resolver == nil {
		return nil, ErrAuditDisabled
	}

	node := contracts.Namehash(name)
	data, err := c.resolverABI.Pack("setText", node, key, value)
	if err != nil {
		return nil, fmt.Errorf("failed to pack setText: %w", err)
	}
	resolver := common.HexToAddress(c.cfg.ResolverAddress)
	if _, err := c.Client.CallContract(ctx, ethereum.CallMsg{From: c.Auth.From, To: &resolver, Data: data}, nil); err != nil {
		return nil, fmt.Errorf("setText simulation failed: %w", err)
	}

	return c.transact(ctx, big.NewInt(0), func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return c.Resolver.SetText(opts, node, key, value)
	})
}

// transact reserves a nonce, prices gas and sends one transaction from the solver account
func (c *Client) transact(ctx context.Context, value *big.Int, send func(*bind.TransactOpts) (*types.Transaction, error)) (*types.Transaction, error) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	gasPrice, err := c.UpdateGasPrice(ctx)
	if err != nil {
		return nil, err
	}
	if !c.IsWithinMax(gasPrice) {
		return nil, fmt.Errorf("%w: %s > %s", ErrGasPriceTooHigh, gasPrice, c.cfg.MaxGasPrice)
	}

	nonce, err := c.nonces.GetNonce(ctx)
	if err != nil {
		return nil, err
	}

	opts := &bind.TransactOpts{
		From:     c.Auth.From,
		Signer:   c.Auth.Signer,
		Nonce:    new(big.Int).SetUint64(nonce),
		Value:    value,
		GasPrice: gasPrice,
		Context:  ctx,
	}
	tx, err := send(opts)
	if err != nil {
		c.nonces.ReleaseNonce(nonce)
		return nil, err
	}

	c.nonces.TrackTransaction(tx.Hash(), nonce)
	c.logger.Debug("Broadcast tx %s with nonce %d", tx.Hash().Hex(), nonce)
	return tx, nil
}

// WaitMined waits for tx to be included, bounded by the confirmation timeout
func (c *Client) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, c.cfg.ConfirmationTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(waitCtx, c.Client, tx)
	if err != nil {
		c.nonces.MarkTransactionDropped(tx.Nonce())
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s: %s", ErrConfirmationTimeout, c.cfg.ConfirmationTimeout, tx.Hash().Hex())
		}
		return nil, fmt.Errorf("failed to wait for transaction: %w", err)
	}

	c.nonces.MarkTransactionMined(tx.Nonce())
	metrics.GasUsed.Observe(float64(receipt.GasUsed))
	return receipt, nil
}

// MatchAmountOut extracts amountOut from the router's MatchExecuted log in receipt
func (c *Client) MatchAmountOut(receipt *types.Receipt) (*big.Int, bool) {
	if receipt == nil {
		return nil, false
	}
	router := common.HexToAddress(c.cfg.RouterAddress)
	eventID := c.routerABI.Events["MatchExecuted"].ID
	for _, l := range receipt.Logs {
		if l == nil || l.Address != router || len(l.Topics) == 0 || l.Topics[0] != eventID {
			continue
		}
		ev, err := c.Router.ParseMatchExecuted(*l)
		if err != nil {
			c.logger.Debug("Cannot decode MatchExecuted in %s: %v", receipt.TxHash.Hex(), err)
			continue
		}
		return ev.AmountOut, true
	}
	return nil, false
}

// Close releases the underlying RPC connection when it owns one
func (c *Client) Close() {
	if closer, ok := c.Client.(interface{ Close() }); ok {
		closer.Close()
	}
}
