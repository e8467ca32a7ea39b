package solver

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shadowswap-labs/shadowswap-solver/pkg/chainclient"
	"github.com/shadowswap-labs/shadowswap-solver/pkg/circuitbreaker"
	"github.com/shadowswap-labs/shadowswap-solver/pkg/config"
	"github.com/shadowswap-labs/shadowswap-solver/pkg/events"
	"github.com/shadowswap-labs/shadowswap-solver/pkg/journal"
	"github.com/shadowswap-labs/shadowswap-solver/pkg/journal/postgres"
	"github.com/shadowswap-labs/shadowswap-solver/pkg/logger"
	"github.com/shadowswap-labs/shadowswap-solver/pkg/metrics"
	"github.com/shadowswap-labs/shadowswap-solver/pkg/models"
	"github.com/shadowswap-labs/shadowswap-solver/pkg/orderbook"
	"github.com/shadowswap-labs/shadowswap-solver/pkg/settlement"
)

// ErrShuttingDown is returned for submissions that arrive after Close has begun.
var ErrShuttingDown = errors.New("solver is shutting down")

// MonitorInterval is how often gas price and balance metrics are refreshed.
const MonitorInterval = time.Minute

// Service owns the order book, settlement engine and broadcaster for one solver account.
type Service struct {
	cfg         *config.Config
	logger      logger.Logger
	client      *chainclient.Client
	monitor     *chainclient.MonitorRoutine
	breaker     *circuitbreaker.CircuitBreaker
	broadcaster *events.Broadcaster
	engine      *settlement.Engine
	book        *orderbook.OrderBook
	journal     journal.Journal
	validator   Validator
	authorized  atomic.Bool
	now         func() time.Time

	mu        sync.Mutex
	closing   bool
	inflight  sync.WaitGroup
	closeOnce sync.Once
}

// StartupReport is the outcome of the non-fatal startup checks.
type StartupReport struct {
	Solver     string
	Authorized bool
	Balance    *big.Int
	LowBalance bool
}

// StatusReport is served by the operator /status endpoint.
type StatusReport struct {
	Solver         string               `json:"solver"`
	Authorized     bool                 `json:"authorized"`
	Balance        string               `json:"balance,omitempty"`
	LatestBlock    uint64               `json:"latest_block,omitempty"`
	PendingIntents int                  `json:"pending_intents"`
	Circuit        circuitbreaker.State `json:"circuit"`
	MonitorError   string               `json:"monitor_error,omitempty"`
}

// NewService connects to the chain, opens the journal and builds the pipeline.
func NewService(ctx context.Context, cfg *config.Config, log logger.Logger) (*Service, error) {
	if log == nil {
		log = &logger.EmptyLogger{}
	}

	client, err := chainclient.New(ctx, chainclient.Config{
		RPCURL:              cfg.RPCURL,
		PrivateKey:          cfg.PrivateKey,
		RouterAddress:       cfg.RouterAddress,
		HookAddress:         cfg.HookAddress,
		TokenAddress:        cfg.TokenAddress,
		ResolverAddress:     cfg.ResolverAddress,
		PoolFee:             cfg.PoolFee,
		TickSpacing:         cfg.PoolTickSpacing,
		GasMultiplier:       cfg.GasMultiplier,
		MaxGasPrice:         cfg.MaxGasPrice,
		ConfirmationTimeout: cfg.ConfirmationTimeout,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to chain: %w", err)
	}

	j, err := openJournal(ctx, cfg, log)
	if err != nil {
		client.Close()
		return nil, err
	}

	s := newService(cfg, client, j, log)
	s.client = client
	s.monitor = chainclient.NewMonitorRoutine(client, MonitorInterval, cfg.MinSolverBalance, log)
	return s, nil
}

// newService wires the pipeline around an arbitrary ledger.
func newService(cfg *config.Config, ledger settlement.Ledger, j journal.Journal, log logger.Logger) *Service {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	if j == nil {
		j = journal.Nop{}
	}

	breaker := circuitbreaker.NewCircuitBreaker(circuitbreaker.Config{
		Enabled:      cfg.CircuitBreaker.Enabled,
		Threshold:    cfg.CircuitBreaker.Threshold,
		Window:       cfg.CircuitBreaker.WindowDuration,
		ResetTimeout: cfg.CircuitBreaker.ResetTimeout,
	}, log)

	broadcaster := events.NewBroadcaster(events.Config{
		HistoryLimit:  cfg.Events.HistoryLimit,
		TTL:           cfg.Events.TTL,
		SweepInterval: cfg.Events.SweepInterval,
	}, log)

	engine := settlement.NewEngine(settlement.Config{
		InterLegDelay: cfg.SettlementDelay,
		AuditDelay:    cfg.AuditSettleDelay,
		AuditName:     cfg.ENSName,
		AuditKey:      cfg.ENSAuditKey,
		MaxRetries:    cfg.RateLimitMaxRetries,
		RetryBackoff:  cfg.RateLimitBackoff,
	}, ledger, broadcaster, breaker, log)

	rule := orderbook.PriceRule{Rate: cfg.ExchangeRate, Divisor: cfg.PriceToleranceDivisor}
	book := orderbook.New(rule, engine, broadcaster, log)

	return &Service{
		cfg:         cfg,
		logger:      log,
		breaker:     breaker,
		broadcaster: broadcaster,
		engine:      engine,
		book:        book,
		journal:     j,
		validator:   NewValidator(cfg.TokenAddress),
		now:         time.Now,
	}
}

func openJournal(ctx context.Context, cfg *config.Config, log logger.Logger) (journal.Journal, error) {
	switch {
	case cfg.JournalDatabaseURL != "":
		store, err := postgres.NewStore(ctx, cfg.JournalDatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open journal database: %w", err)
		}
		log.Info("Recording settlements to Postgres")
		return store, nil
	case cfg.JournalPath != "":
		log.Info("Recording settlements to %s", cfg.JournalPath)
		return journal.NewJSONL(cfg.JournalPath), nil
	default:
		return journal.Nop{}, nil
	}
}

// SubmitIntent validates req and hands it to the order book. A match settles both
// legs before this returns. Settlement runs detached from ctx cancellation so a
// disconnecting client cannot abandon a submitted transaction.
func (s *Service) SubmitIntent(ctx context.Context, req models.SubmitIntentRequest) (models.SubmitIntentResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		metrics.IntentsRejected.WithLabelValues("validation").Inc()
		s.logger.Notice("Rejected intent %q: %v", req.ID, err)
		return models.SubmitIntentResponse{}, err
	}

	if !s.acquire() {
		return models.SubmitIntentResponse{}, ErrShuttingDown
	}
	defer s.inflight.Done()

	intent := req.ToIntent(s.now())
	outcome, err := s.book.Submit(context.WithoutCancel(ctx), intent)
	if err != nil {
		if errors.Is(err, orderbook.ErrDuplicateIntent) {
			metrics.IntentsRejected.WithLabelValues("duplicate").Inc()
		}
		return models.SubmitIntentResponse{}, err
	}

	if !outcome.Matched {
		return models.SubmitIntentResponse{
			Accepted: true,
			IntentID: intent.ID,
			Status:   models.StatusPending,
			Message:  "Intent queued, waiting for a counterparty",
		}, nil
	}

	s.record(ctx, outcome.Intents)
	return matchedResponse(intent.ID, outcome), nil
}

// acquire registers an in-flight submission unless Close has started.
func (s *Service) acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.inflight.Add(1)
	return true
}

func matchedResponse(intentID string, outcome models.MatchOutcome) models.SubmitIntentResponse {
	resp := models.SubmitIntentResponse{
		Accepted:    true,
		IntentID:    intentID,
		Status:      models.StatusSettling,
		Matched:     true,
		Intents:     outcome.Intents,
		Settlements: outcome.Settlements,
	}
	for _, in := range outcome.Intents {
		if in.ID == intentID {
			resp.Status = in.Status
			resp.MatchID = in.MatchID
		}
	}

	failed := 0
	for _, res := range outcome.Settlements {
		if !res.Success {
			failed++
		}
	}
	switch failed {
	case 0:
		resp.Message = "Matched and settled"
	case len(outcome.Settlements):
		resp.Message = "Matched, settlement failed for both legs"
	default:
		resp.Message = fmt.Sprintf("Matched, settlement failed for %d of %d legs", failed, len(outcome.Settlements))
	}
	return resp
}

func (s *Service) record(ctx context.Context, intents []models.Intent) {
	entries := journal.FromIntents(intents)
	if err := s.journal.Record(context.WithoutCancel(ctx), entries); err != nil {
		metrics.JournalErrors.Inc()
		s.logger.Error("Failed to journal %d settlement(s): %v", len(entries), err)
	}
}

// GetIntent returns a snapshot from pending or settled storage.
func (s *Service) GetIntent(id string) (models.Intent, bool) {
	return s.book.GetIntent(id)
}

// ListPendingIntents returns summaries of the pending set.
func (s *Service) ListPendingIntents() []models.IntentSummary {
	pending := s.book.GetPendingIntents()
	out := make([]models.IntentSummary, 0, len(pending))
	for _, in := range pending {
		out = append(out, in.Summary())
	}
	return out
}

// PendingCount returns the number of queued intents.
func (s *Service) PendingCount() int {
	return s.book.PendingCount()
}

// StreamEvents delivers CONNECTED, the retained history, then live events until ctx ends.
func (s *Service) StreamEvents(ctx context.Context, intentID string) <-chan models.SettlementEvent {
	return s.broadcaster.Stream(ctx, intentID)
}

// Broadcaster exposes the event broadcaster.
func (s *Service) Broadcaster() *events.Broadcaster {
	return s.broadcaster
}

// Breaker exposes the RPC circuit breaker.
func (s *Service) Breaker() *circuitbreaker.CircuitBreaker {
	return s.breaker
}

// SolverAddress returns the signing identity as hex.
func (s *Service) SolverAddress() string {
	return s.engine.SolverAddress().Hex()
}

// StartupChecks verifies router authorization and warns on low balance. Nothing here is fatal.
func (s *Service) StartupChecks(ctx context.Context) StartupReport {
	report := StartupReport{Solver: s.SolverAddress()}

	report.Authorized = s.engine.VerifyAuthorization(ctx)
	s.authorized.Store(report.Authorized)

	balance, err := s.engine.GetBalance(ctx)
	if err != nil {
		s.logger.Error("Startup balance check failed: %v", err)
		return report
	}
	report.Balance = balance
	if s.cfg.MinSolverBalance != nil && balance.Cmp(s.cfg.MinSolverBalance) < 0 {
		report.LowBalance = true
		s.logger.Notice("Solver balance %s wei is below %s wei; settlements may fail for gas", balance, s.cfg.MinSolverBalance)
	} else {
		s.logger.Info("Solver balance: %s wei", balance)
	}
	return report
}

// Ready reports whether the chain RPC answers.
func (s *Service) Ready(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	if _, err := s.client.GetLatestBlockNumber(ctx); err != nil {
		return fmt.Errorf("chain RPC unavailable: %w", err)
	}
	return nil
}

// Status collects the operator view. Individual lookup failures leave fields empty.
func (s *Service) Status(ctx context.Context) interface{} {
	report := StatusReport{
		Solver:         s.SolverAddress(),
		Authorized:     s.authorized.Load(),
		PendingIntents: s.book.PendingCount(),
		Circuit:        s.breaker.GetState(),
	}
	if balance, err := s.engine.GetBalance(ctx); err == nil {
		report.Balance = balance.String()
	}
	if s.client != nil {
		if block, err := s.client.GetLatestBlockNumber(ctx); err == nil {
			report.LatestBlock = block
		}
	}
	if s.monitor != nil {
		if err := s.monitor.LastError(); err != nil {
			report.MonitorError = err.Error()
		}
	}
	return report
}

// Start runs the background routines and blocks until ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	go s.broadcaster.Run(ctx)
	if s.monitor != nil {
		s.monitor.Start(ctx)
	}

	s.logger.Info("Solver %s running", s.SolverAddress())
	<-ctx.Done()
	s.logger.Info("Context cancelled, shutting down service")
	s.Close()
}

// Close refuses new submissions, waits for in-flight settlements to resolve, then
// releases background routines and connections. It is safe to call more than once.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closing = true
		s.mu.Unlock()

		s.logger.Info("Waiting for in-flight settlements")
		s.inflight.Wait()

		if s.monitor != nil {
			s.monitor.Stop()
		}
		s.broadcaster.Close()
		s.journal.Close()
		if s.client != nil {
			s.client.Close()
		}
	})
}
