package settlement

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/shadowswap-labs/shadowswap-solver/pkg/chainclient"
	"github.com/shadowswap-labs/shadowswap-solver/pkg/circuitbreaker"
	"github.com/shadowswap-labs/shadowswap-solver/pkg/logger"
	"github.com/shadowswap-labs/shadowswap-solver/pkg/metrics"
	"github.com/shadowswap-labs/shadowswap-solver/pkg/models"
)

const (
	DefaultInterLegDelay = 5 * time.Second
	DefaultAuditDelay    = 2 * time.Second
	DefaultMaxRetries    = 3
	DefaultRetryBackoff  = 2 * time.Second
	DefaultMaxBackoff    = 30 * time.Second
	DefaultAuditName     = "shadowswap.eth"
	DefaultAuditKey      = "latest_settlement"
)

// Ledger is the chain access the engine needs. *chainclient.Client implements it.
type Ledger interface {
	SolverAddress() common.Address
	AuthorizedSolver(ctx context.Context) (common.Address, error)
	Balance(ctx context.Context) (*big.Int, error)
	SimulateMatch(ctx context.Context, req chainclient.MatchRequest) (*big.Int, error)
	SubmitMatch(ctx context.Context, req chainclient.MatchRequest) (*types.Transaction, error)
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
	MatchAmountOut(receipt *types.Receipt) (*big.Int, bool)
	AuditEnabled() bool
	SubmitAudit(ctx context.Context, name, key, value string) (*types.Transaction, error)
}

// Notifier publishes lifecycle events.
type Notifier interface {
	Publish(eventType models.EventType, intentID string, data *models.EventData) models.SettlementEvent
}

// Config controls pacing and the audit write.
type Config struct {
	// InterLegDelay is the fixed pause between the two legs of a pair.
	InterLegDelay time.Duration
	// AuditDelay is the pause after a confirmed audit write.
	AuditDelay time.Duration
	AuditName  string
	AuditKey   string
	// MaxRetries bounds simulation retries on RPC rate limiting.
	MaxRetries   int
	RetryBackoff time.Duration
	MaxBackoff   time.Duration
}

// DefaultConfig returns the production pacing.
func DefaultConfig() Config {
	return Config{
		InterLegDelay: DefaultInterLegDelay,
		AuditDelay:    DefaultAuditDelay,
		AuditName:     DefaultAuditName,
		AuditKey:      DefaultAuditKey,
		MaxRetries:    DefaultMaxRetries,
		RetryBackoff:  DefaultRetryBackoff,
		MaxBackoff:    DefaultMaxBackoff,
	}
}

// Engine settles matched intents on-chain through the router, one transaction at a time.
type Engine struct {
	cfg      Config
	ledger   Ledger
	notifier Notifier
	breaker  *circuitbreaker.CircuitBreaker
	logger   logger.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewEngine creates an Engine. notifier, breaker and log may be nil.
func NewEngine(cfg Config, ledger Ledger, notifier Notifier, breaker *circuitbreaker.CircuitBreaker, log logger.Logger) *Engine {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}
	return &Engine{
		cfg:      cfg,
		ledger:   ledger,
		notifier: notifier,
		breaker:  breaker,
		logger:   log,
		sleep:    sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ExecutePair settles a, waits the inter-leg delay, then settles b. A failure of a does not skip b.
func (e *Engine) ExecutePair(ctx context.Context, a, b models.Intent) [2]models.SettlementResult {
	e.logger.Info("Executing matched pair %s (%s) <> %s (%s)", a.ID, a.UserAddress, b.ID, b.UserAddress)

	first := e.executeOrFail(ctx, a)

	if e.cfg.InterLegDelay > 0 {
		e.logger.InfoWithIntent(b.ID, "Waiting %s before second settlement", e.cfg.InterLegDelay)
		e.waitRateLimit(ctx, b.ID, e.cfg.InterLegDelay, "inter_leg", "pausing between settlements for RPC limits")
	}

	second := e.executeOrFail(ctx, b)

	e.logger.Info("Pair %s/%s complete: %t/%t", a.ID, b.ID, first.Success, second.Success)
	return [2]models.SettlementResult{first, second}
}

func (e *Engine) executeOrFail(ctx context.Context, intent models.Intent) models.SettlementResult {
	res, err := e.ExecuteOne(ctx, intent)
	if err != nil {
		return models.SettlementResult{IntentID: intent.ID, Error: err.Error(), ErrorType: ErrorTypeInvalidIntent}
	}
	return res
}

// ExecuteOne settles a single SETTLING intent. The only returned error is ErrNotSettleable;
// every chain-side problem is reported as a failed result.
func (e *Engine) ExecuteOne(ctx context.Context, intent models.Intent) (models.SettlementResult, error) {
	if intent.Status != models.StatusSettling {
		return models.SettlementResult{}, fmt.Errorf("%w: %s is %s, expected %s", ErrNotSettleable, intent.ID, intent.Status, models.StatusSettling)
	}

	start := time.Now()
	res := e.settle(ctx, intent)
	metrics.SettlementDuration.Observe(time.Since(start).Seconds())
	if res.Success {
		e.logger.InfoWithIntent(intent.ID, "Settlement succeeded: %s", res.TxHash)
	} else {
		metrics.SettlementErrors.WithLabelValues(res.ErrorType).Inc()
		e.logger.ErrorWithIntent(intent.ID, "Settlement failed (%s): %s", res.ErrorType, res.Error)
	}
	return res, nil
}

func (e *Engine) settle(ctx context.Context, intent models.Intent) models.SettlementResult {
	e.publish(models.EventSettlingStarted, intent.ID, &models.EventData{
		Message: fmt.Sprintf("settling %s of %s for %s", intent.AmountIn, intent.TokenIn, intent.UserAddress),
	})

	req, err := buildRequest(intent)
	if err != nil {
		return failed(intent.ID, "", ErrorTypeInvalidIntent, err.Error())
	}

	e.waitForBreaker(ctx, intent.ID)

	quoted, err := e.simulate(ctx, intent.ID, req)
	if err != nil {
		errType := classifyError(err)
		return failed(intent.ID, "", errType, fmt.Sprintf("simulation failed: %v", err))
	}
	e.logger.DebugWithIntent(intent.ID, "Simulation ok, quoted amountOut %s", quoted)

	tx, err := e.ledger.SubmitMatch(ctx, req)
	if err != nil {
		errType := e.recordFailure(err)
		return failed(intent.ID, "", errType, fmt.Sprintf("submission failed: %v", err))
	}
	txHash := tx.Hash().Hex()
	e.publish(models.EventTxSubmitted, intent.ID, &models.EventData{TxHash: txHash})
	e.publish(models.EventTxConfirming, intent.ID, &models.EventData{TxHash: txHash, Message: "waiting for 1 confirmation"})

	receipt, err := e.ledger.WaitMined(ctx, tx)
	if err != nil {
		errType := e.recordFailure(err)
		return failed(intent.ID, txHash, errType, fmt.Sprintf("confirmation failed: %v", err))
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return failed(intent.ID, txHash, ErrorTypeReverted, fmt.Sprintf("transaction reverted in block %s", receipt.BlockNumber))
	}
	e.publish(models.EventTxConfirmed, intent.ID, &models.EventData{TxHash: txHash, Confirmations: 1})

	amountOut := quoted
	if fromLog, ok := e.ledger.MatchAmountOut(receipt); ok {
		amountOut = fromLog
	}

	e.audit(ctx, intent.ID, txHash)

	res := models.SettlementResult{IntentID: intent.ID, Success: true, TxHash: txHash}
	if amountOut != nil {
		res.AmountOut = amountOut.String()
	}
	return res
}

// simulate dry-runs the swap, backing off while the provider reports rate limiting.
func (e *Engine) simulate(ctx context.Context, intentID string, req chainclient.MatchRequest) (*big.Int, error) {
	delay := e.cfg.RetryBackoff
	for attempt := 0; ; attempt++ {
		quoted, err := e.ledger.SimulateMatch(ctx, req)
		if err == nil {
			return quoted, nil
		}

		errType := e.recordFailure(err)
		if errType != ErrorTypeRateLimit || attempt >= e.cfg.MaxRetries {
			return nil, err
		}

		e.logger.NoticeWithIntent(intentID, "Rate limited during simulation (attempt %d), backing off %s", attempt+1, delay)
		if werr := e.waitRateLimit(ctx, intentID, delay, "backoff", "RPC provider rate limit, retrying simulation"); werr != nil {
			return nil, err
		}
		delay *= 2
		if delay > e.cfg.MaxBackoff {
			delay = e.cfg.MaxBackoff
		}
	}
}

// waitForBreaker pauses until the RPC circuit breaker closes.
func (e *Engine) waitForBreaker(ctx context.Context, intentID string) {
	if e.breaker == nil {
		return
	}
	if cooldown := e.breaker.RemainingCooldown(); cooldown > 0 {
		e.logger.NoticeWithIntent(intentID, "RPC circuit open, waiting %s", cooldown)
		_ = e.waitRateLimit(ctx, intentID, cooldown, "circuit_open", "RPC circuit breaker open")
	}
}

func (e *Engine) waitRateLimit(ctx context.Context, intentID string, d time.Duration, reason, message string) error {
	metrics.RateLimitWaits.WithLabelValues(reason).Inc()
	e.publish(models.EventWaitingRateLimit, intentID, &models.EventData{
		Message:    message,
		WaitTimeMs: d.Milliseconds(),
	})
	return e.sleep(ctx, d)
}

func (e *Engine) recordFailure(err error) string {
	errType := classifyError(err)
	if e.breaker != nil && tripsBreaker(errType) {
		e.breaker.RecordFailure()
	}
	return errType
}

// audit records txHash in the naming service. Failures are logged only.
func (e *Engine) audit(ctx context.Context, intentID, txHash string) {
	if !e.ledger.AuditEnabled() {
		return
	}

	e.publish(models.EventENSUpdating, intentID, &models.EventData{
		TxHash:  txHash,
		Message: fmt.Sprintf("recording settlement in %s", e.cfg.AuditName),
	})

	tx, err := e.ledger.SubmitAudit(ctx, e.cfg.AuditName, e.cfg.AuditKey, txHash)
	if err != nil {
		metrics.AuditWrites.WithLabelValues("failed").Inc()
		e.logger.NoticeWithIntent(intentID, "Audit write failed (non-critical): %v", err)
		return
	}

	receipt, err := e.ledger.WaitMined(ctx, tx)
	if err != nil || receipt.Status != types.ReceiptStatusSuccessful {
		metrics.AuditWrites.WithLabelValues("failed").Inc()
		e.logger.NoticeWithIntent(intentID, "Audit transaction %s not confirmed (non-critical): %v", tx.Hash().Hex(), err)
		return
	}

	metrics.AuditWrites.WithLabelValues("confirmed").Inc()
	e.publish(models.EventENSConfirmed, intentID, &models.EventData{TxHash: tx.Hash().Hex()})

	if e.cfg.AuditDelay > 0 {
		_ = e.sleep(ctx, e.cfg.AuditDelay)
	}
}

// VerifyAuthorization reports whether the router's solver is this engine's signer. Errors are logged and count as unauthorized.
func (e *Engine) VerifyAuthorization(ctx context.Context) bool {
	authorized, err := e.ledger.AuthorizedSolver(ctx)
	if err != nil {
		e.logger.Error("Failed to read authorized solver: %v", err)
		metrics.SolverAuthorized.Set(0)
		return false
	}

	self := e.ledger.SolverAddress()
	if authorized != self {
		e.logger.Error("Solver %s is NOT authorized; router expects %s", self.Hex(), authorized.Hex())
		metrics.SolverAuthorized.Set(0)
		return false
	}

	e.logger.Info("Solver %s is authorized on the router", self.Hex())
	metrics.SolverAuthorized.Set(1)
	return true
}

// GetBalance returns the solver's native balance.
func (e *Engine) GetBalance(ctx context.Context) (*big.Int, error) {
	balance, err := e.ledger.Balance(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get solver balance: %w", err)
	}
	f, _ := new(big.Float).SetInt(balance).Float64()
	metrics.SolverBalance.Set(f)
	return balance, nil
}

// SolverAddress returns the signing identity.
func (e *Engine) SolverAddress() common.Address {
	return e.ledger.SolverAddress()
}

func (e *Engine) publish(eventType models.EventType, intentID string, data *models.EventData) {
	if e.notifier == nil {
		return
	}
	e.notifier.Publish(eventType, intentID, data)
}

func buildRequest(intent models.Intent) (chainclient.MatchRequest, error) {
	if !common.IsHexAddress(intent.UserAddress) {
		return chainclient.MatchRequest{}, fmt.Errorf("invalid user address %q", intent.UserAddress)
	}
	amountIn, ok := models.ParseAmount(intent.AmountIn)
	if !ok {
		return chainclient.MatchRequest{}, fmt.Errorf("invalid amountIn %q", intent.AmountIn)
	}
	return chainclient.MatchRequest{
		User:       common.HexToAddress(intent.UserAddress),
		ZeroForOne: intent.IsNativeIn(),
		AmountIn:   amountIn,
	}, nil
}

func failed(intentID, txHash, errType, msg string) models.SettlementResult {
	return models.SettlementResult{
		IntentID:  intentID,
		TxHash:    txHash,
		Error:     msg,
		ErrorType: errType,
	}
}
