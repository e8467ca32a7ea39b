package chainclient

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shadowswap-labs/shadowswap-solver/pkg/metrics"
	"github.com/shadowswap-labs/shadowswap-solver/pkg/testutil"
)

const (
	testRouter = "0x00000000000000000000000000000000000000a1"
	testHook   = "0x00000000000000000000000000000000000000c0"
	testToken  = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
)

func newSimClient(t *testing.T) (*Client, *simulated.Backend, testutil.SimAccount) {
	t.Helper()
	sim, account := testutil.SetupSimulation(t)

	c, err := NewWithBackend(testutil.ContextWithTimeout(t), sim.Client(), Config{
		PrivateKey:    "0x" + account.PrivateKeyHex,
		RouterAddress: testRouter,
		HookAddress:   testHook,
		TokenAddress:  testToken,
		PoolFee:       3000,
		TickSpacing:   60,
	}, nil)
	require.NoError(t, err)
	return c, sim, account
}

func TestClient_IdentityAndBalance(t *testing.T) {
	c, _, account := newSimClient(t)
	ctx := testutil.ContextWithTimeout(t)

	assert.Equal(t, account.Address, c.SolverAddress())
	assert.NotNil(t, c.ChainID)
	assert.False(t, c.AuditEnabled())

	balance, err := c.Balance(ctx)
	require.NoError(t, err)
	testutil.AssertBigIntEqual(t, testutil.CreateBigInt("10000000000000000000"), balance)

	assert.Equal(t, common.Address{}, c.PoolKey.Currency0)
	assert.Equal(t, common.HexToAddress(testToken), c.PoolKey.Currency1)
	assert.Equal(t, int64(3000), c.PoolKey.Fee.Int64())
	assert.Equal(t, int64(60), c.PoolKey.TickSpacing.Int64())
}

func TestClient_RejectsBadPrivateKey(t *testing.T) {
	sim, _ := testutil.SetupSimulation(t)
	_, err := NewWithBackend(context.Background(), sim.Client(), Config{PrivateKey: "not-hex", RouterAddress: testRouter}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse private key")
}

func TestClient_SimulateAgainstMissingRouterFails(t *testing.T) {
	c, _, _ := newSimClient(t)

	_, err := c.SimulateMatch(testutil.ContextWithTimeout(t), MatchRequest{
		User:       testutil.GenerateAddress(),
		ZeroForOne: false,
		AmountIn:   big.NewInt(1000),
	})
	assert.Error(t, err, "a router without code cannot quote a swap")
}

func TestClient_SubmitAuditDisabled(t *testing.T) {
	c, _, _ := newSimClient(t)
	_, err := c.SubmitAudit(context.Background(), "shadowswap.eth", "latest_settlement", "0x01")
	assert.True(t, errors.Is(err, ErrAuditDisabled))
}

func gasUsedSamples(t *testing.T) uint64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, metrics.GasUsed.Write(&m))
	return m.GetHistogram().GetSampleCount()
}

func TestClient_TransactAndWaitMined(t *testing.T) {
	c, sim, _ := newSimClient(t)
	ctx := testutil.ContextWithTimeout(t)
	recipient := testutil.GenerateAddress()

	tx, err := c.transact(ctx, big.NewInt(1), func(opts *bind.TransactOpts) (*types.Transaction, error) {
		raw := types.NewTransaction(opts.Nonce.Uint64(), recipient, opts.Value, 21000, opts.GasPrice, nil)
		signed, err := opts.Signer(opts.From, raw)
		if err != nil {
			return nil, err
		}
		return signed, c.Client.SendTransaction(ctx, signed)
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), tx.Nonce())
	assert.Equal(t, 1, c.nonces.GetPendingTransactionsCount())

	sim.Commit()
	gasBefore := gasUsedSamples(t)

	receipt, err := c.WaitMined(ctx, tx)
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusSuccessful, receipt.Status)
	assert.Equal(t, gasBefore+1, gasUsedSamples(t))
	assert.Equal(t, 0, c.nonces.GetPendingTransactionsCount())

	balance, err := c.Client.BalanceAt(ctx, recipient, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), balance.Int64())
}

func TestClient_TransactReleasesNonceOnSendError(t *testing.T) {
	c, _, _ := newSimClient(t)
	ctx := testutil.ContextWithTimeout(t)

	_, err := c.transact(ctx, big.NewInt(0), func(*bind.TransactOpts) (*types.Transaction, error) {
		return nil, errors.New("429 Too Many Requests")
	})
	require.Error(t, err)

	nonce, err := c.nonces.GetNonce(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), nonce, "unused nonce is handed out again")
}

func TestClient_GasCap(t *testing.T) {
	c, _, _ := newSimClient(t)
	assert.True(t, c.IsWithinMax(big.NewInt(1_000_000_000_000)))

	c.cfg.MaxGasPrice = big.NewInt(1)
	assert.False(t, c.IsWithinMax(big.NewInt(2)))

	_, err := c.transact(testutil.ContextWithTimeout(t), big.NewInt(0), func(*bind.TransactOpts) (*types.Transaction, error) {
		t.Fatal("must not send above the cap")
		return nil, nil
	})
	assert.True(t, errors.Is(err, ErrGasPriceTooHigh))
}

func TestMatchRequest_Value(t *testing.T) {
	amount := big.NewInt(5)
	assert.Equal(t, int64(5), MatchRequest{ZeroForOne: true, AmountIn: amount}.Value().Int64())
	assert.Equal(t, int64(0), MatchRequest{ZeroForOne: false, AmountIn: amount}.Value().Int64())
}

func TestClient_MatchAmountOut(t *testing.T) {
	c, _, _ := newSimClient(t)

	event := c.routerABI.Events["MatchExecuted"]
	data, err := event.Inputs.NonIndexed().Pack(big.NewInt(1000), big.NewInt(42))
	require.NoError(t, err)

	routerLog := &types.Log{
		Address: common.HexToAddress(testRouter),
		Topics:  []common.Hash{event.ID, {}, {}, {}},
		Data:    data,
	}
	foreignLog := &types.Log{
		Address: common.HexToAddress("0x00000000000000000000000000000000000000ff"),
		Topics:  []common.Hash{event.ID, {}, {}, {}},
		Data:    data,
	}

	amount, ok := c.MatchAmountOut(&types.Receipt{Logs: []*types.Log{foreignLog, routerLog}})
	require.True(t, ok)
	assert.Equal(t, int64(42), amount.Int64())

	_, ok = c.MatchAmountOut(&types.Receipt{Logs: []*types.Log{foreignLog}})
	assert.False(t, ok)
}

func TestMonitorRoutine_Refresh(t *testing.T) {
	c, _, _ := newSimClient(t)
	m := NewMonitorRoutine(c, 0, testutil.CreateBigInt("100000000000000000000"), nil)

	m.Refresh(testutil.ContextWithTimeout(t))
	assert.NoError(t, m.LastError())
	assert.False(t, m.IsRunning())
}
