package solver

import (
	"context"
	"errors"
	"math/big"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shadowswap-labs/shadowswap-solver/pkg/chainclient"
	"github.com/shadowswap-labs/shadowswap-solver/pkg/config"
	"github.com/shadowswap-labs/shadowswap-solver/pkg/journal"
	"github.com/shadowswap-labs/shadowswap-solver/pkg/models"
	"github.com/shadowswap-labs/shadowswap-solver/pkg/orderbook"
)

var solverAddr = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

// stubLedger settles everything and hands out distinct transaction hashes.
type stubLedger struct {
	mu         sync.Mutex
	nonce      uint64
	authorized common.Address
	balance    *big.Int
	failUser   common.Address
}

func (l *stubLedger) SolverAddress() common.Address { return solverAddr }

func (l *stubLedger) AuthorizedSolver(context.Context) (common.Address, error) {
	return l.authorized, nil
}

func (l *stubLedger) Balance(context.Context) (*big.Int, error) { return l.balance, nil }

func (l *stubLedger) SimulateMatch(ctx context.Context, req chainclient.MatchRequest) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.User == l.failUser {
		return nil, errors.New("execution reverted: slippage")
	}
	return new(big.Int).Div(req.AmountIn, big.NewInt(2)), nil
}

func (l *stubLedger) SubmitMatch(context.Context, chainclient.MatchRequest) (*types.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nonce++
	return types.NewTransaction(l.nonce, common.Address{}, big.NewInt(0), 21000, big.NewInt(1), nil), nil
}

func (l *stubLedger) WaitMined(context.Context, *types.Transaction) (*types.Receipt, error) {
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(1)}, nil
}

func (l *stubLedger) MatchAmountOut(*types.Receipt) (*big.Int, bool) { return nil, false }
func (l *stubLedger) AuditEnabled() bool                             { return false }

func (l *stubLedger) SubmitAudit(context.Context, string, string, string) (*types.Transaction, error) {
	return nil, errors.New("disabled")
}

func testConfig() *config.Config {
	return &config.Config{
		TokenAddress:          testToken,
		ExchangeRate:          big.NewInt(1000),
		PriceToleranceDivisor: big.NewInt(20),
		RateLimitMaxRetries:   1,
		RateLimitBackoff:      time.Millisecond,
		MinSolverBalance:      big.NewInt(1e16),
		Events: config.EventsConfig{
			HistoryLimit:  50,
			TTL:           time.Minute,
			SweepInterval: time.Minute,
		},
		CircuitBreaker: config.CircuitBreakerConfig{
			Enabled:        true,
			Threshold:      5,
			WindowDuration: time.Minute,
			ResetTimeout:   time.Minute,
		},
	}
}

func newTestService(t *testing.T, ledger *stubLedger, j journal.Journal) *Service {
	t.Helper()
	if ledger.balance == nil {
		ledger.balance = big.NewInt(1e18)
	}
	s := newService(testConfig(), ledger, j, nil)
	t.Cleanup(s.Close)
	return s
}

func nativeRequest(id string) models.SubmitIntentRequest {
	return models.SubmitIntentRequest{
		ID:           id,
		UserAddress:  "0x70997970C51812dc3A010C7d01b50e0d17dc79C8",
		TokenIn:      models.NativeToken,
		TokenOut:     testToken,
		AmountIn:     "1000000000000000000",
		MinAmountOut: "0",
	}
}

func tokenRequest(id string) models.SubmitIntentRequest {
	return models.SubmitIntentRequest{
		ID:           id,
		UserAddress:  "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC",
		TokenIn:      testToken,
		TokenOut:     models.NativeToken,
		AmountIn:     "1000000000000000000000",
		MinAmountOut: "0",
	}
}

func TestService_QueueThenMatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	s := newTestService(t, &stubLedger{}, journal.NewJSONL(path))
	ctx := context.Background()

	first, err := s.SubmitIntent(ctx, nativeRequest("a"))
	require.NoError(t, err)
	assert.True(t, first.Accepted)
	assert.False(t, first.Matched)
	assert.Equal(t, models.StatusPending, first.Status)
	require.Len(t, s.ListPendingIntents(), 1)

	second, err := s.SubmitIntent(ctx, tokenRequest("b"))
	require.NoError(t, err)
	assert.True(t, second.Matched)
	assert.Equal(t, "a", second.MatchID)
	assert.Equal(t, models.StatusSettled, second.Status)
	assert.Equal(t, "Matched and settled", second.Message)
	require.Len(t, second.Settlements, 2)
	assert.NotEqual(t, second.Settlements[0].TxHash, second.Settlements[1].TxHash)
	assert.Empty(t, s.ListPendingIntents())

	a, ok := s.GetIntent("a")
	require.True(t, ok)
	assert.Equal(t, models.StatusSettled, a.Status)
	assert.Equal(t, "b", a.MatchID)

	entries, err := journal.ReadJSONL(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.ElementsMatch(t, []string{"a", "b"}, []string{entries[0].IntentID, entries[1].IntentID})

	history := s.Broadcaster().GetHistory("a")
	require.NotEmpty(t, history)
	assert.Equal(t, models.EventMatched, history[0].Type)
	assert.Equal(t, models.EventSettlementComplete, history[len(history)-1].Type)
}

func TestService_PartialFailureMessage(t *testing.T) {
	ledger := &stubLedger{failUser: common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")}
	s := newTestService(t, ledger, nil)
	ctx := context.Background()

	_, err := s.SubmitIntent(ctx, nativeRequest("a"))
	require.NoError(t, err)
	resp, err := s.SubmitIntent(ctx, tokenRequest("b"))
	require.NoError(t, err)

	assert.Equal(t, models.StatusFailed, resp.Status)
	assert.Equal(t, "Matched, settlement failed for 1 of 2 legs", resp.Message)

	a, _ := s.GetIntent("a")
	assert.Equal(t, models.StatusSettled, a.Status)
}

func TestService_RejectsInvalidAndDuplicate(t *testing.T) {
	s := newTestService(t, &stubLedger{}, nil)
	ctx := context.Background()

	bad := nativeRequest("x")
	bad.UserAddress = "0x1234"
	_, err := s.SubmitIntent(ctx, bad)
	require.ErrorIs(t, err, ErrValidation)
	_, found := s.GetIntent("x")
	assert.False(t, found, "rejected intents leave no state")

	_, err = s.SubmitIntent(ctx, nativeRequest("a"))
	require.NoError(t, err)
	_, err = s.SubmitIntent(ctx, nativeRequest("a"))
	require.ErrorIs(t, err, orderbook.ErrDuplicateIntent)
	assert.Equal(t, 1, s.PendingCount())
}

func TestService_SettlementSurvivesCancelledRequest(t *testing.T) {
	s := newTestService(t, &stubLedger{}, nil)

	_, err := s.SubmitIntent(context.Background(), nativeRequest("a"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	resp, err := s.SubmitIntent(ctx, tokenRequest("b"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusSettled, resp.Status)
}

func TestService_StartupChecks(t *testing.T) {
	ledger := &stubLedger{authorized: solverAddr, balance: big.NewInt(1e15)}
	s := newTestService(t, ledger, nil)

	report := s.StartupChecks(context.Background())
	assert.Equal(t, solverAddr.Hex(), report.Solver)
	assert.True(t, report.Authorized)
	assert.True(t, report.LowBalance)
	assert.Equal(t, big.NewInt(1e15), report.Balance)

	status, ok := s.Status(context.Background()).(StatusReport)
	require.True(t, ok)
	assert.True(t, status.Authorized)
	assert.Equal(t, "1000000000000000", status.Balance)
	assert.NoError(t, s.Ready(context.Background()))
}

func TestService_StartupChecksUnauthorized(t *testing.T) {
	ledger := &stubLedger{authorized: common.HexToAddress("0x01"), balance: big.NewInt(1e18)}
	s := newTestService(t, ledger, nil)

	report := s.StartupChecks(context.Background())
	assert.False(t, report.Authorized)
	assert.False(t, report.LowBalance)
}

func TestService_StreamEvents(t *testing.T) {
	s := newTestService(t, &stubLedger{}, nil)
	_, err := s.SubmitIntent(context.Background(), nativeRequest("a"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream := s.StreamEvents(ctx, "a")

	select {
	case ev := <-stream:
		assert.Equal(t, models.EventConnected, ev.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("no CONNECTED event")
	}
}

// holdingLedger parks every receipt wait until released.
type holdingLedger struct {
	*stubLedger
	waiting chan struct{}
	release chan struct{}
}

func (l *holdingLedger) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	select {
	case l.waiting <- struct{}{}:
	default:
	}
	<-l.release
	return l.stubLedger.WaitMined(ctx, tx)
}

func TestService_CloseWaitsForInFlightSettlement(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	ledger := &holdingLedger{
		stubLedger: &stubLedger{balance: big.NewInt(1e18)},
		waiting:    make(chan struct{}, 1),
		release:    make(chan struct{}),
	}
	s := newService(testConfig(), ledger, journal.NewJSONL(path), nil)
	ctx := context.Background()

	_, err := s.SubmitIntent(ctx, nativeRequest("a"))
	require.NoError(t, err)

	submitted := make(chan models.SubmitIntentResponse, 1)
	go func() {
		resp, err := s.SubmitIntent(ctx, tokenRequest("b"))
		assert.NoError(t, err)
		submitted <- resp
	}()
	select {
	case <-ledger.waiting:
	case <-time.After(5 * time.Second):
		t.Fatal("settlement never reached the receipt wait")
	}

	closed := make(chan struct{})
	go func() {
		s.Close()
		close(closed)
	}()

	require.Eventually(t, func() bool {
		_, err := s.SubmitIntent(ctx, nativeRequest("late"))
		return errors.Is(err, ErrShuttingDown)
	}, 5*time.Second, time.Millisecond)

	select {
	case <-closed:
		t.Fatal("Close returned while a settlement was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(ledger.release)
	resp := <-submitted
	assert.Equal(t, "Matched and settled", resp.Message)

	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return after settlement finished")
	}

	entries, err := journal.ReadJSONL(path)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
