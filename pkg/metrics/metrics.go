package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for monitoring
var (
	IntentsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solver_intents_submitted_total",
		Help: "The total number of intents accepted by the order book",
	}, []string{"direction"})

	IntentsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solver_intents_rejected_total",
		Help: "Submissions rejected before reaching the order book",
	}, []string{"reason"})

	MatchesFound = promauto.NewCounter(prometheus.CounterOpts{
		Name: "solver_matches_total",
		Help: "The total number of matched intent pairs",
	})

	PendingIntents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "solver_pending_intents",
		Help: "The number of intents waiting for a counterparty",
	})

	Settlements = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solver_settlements_total",
		Help: "Settlement legs by outcome",
	}, []string{"status"})

	SettlementErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solver_settlement_errors_total",
		Help: "Total number of settlement errors by type",
	}, []string{"error_type"})

	SettlementDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "solver_settlement_seconds",
		Help:    "Time taken to settle one leg",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // Start at 0.5s with 10 buckets doubling in size
	})

	GasUsed = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "solver_gas_used",
		Help:    "Gas used by settlement transactions",
		Buckets: prometheus.ExponentialBuckets(21000, 2, 10), // Start at 21000 with 10 buckets doubling in size
	})

	GasPrice = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "solver_gas_price_gwei",
		Help: "Current gas price in gwei",
	})

	RateLimitWaits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solver_rate_limit_waits_total",
		Help: "Pauses taken to stay under RPC provider limits",
	}, []string{"reason"})

	AuditWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solver_audit_writes_total",
		Help: "Naming-service audit writes by outcome",
	}, []string{"status"})

	SolverBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "solver_balance_wei",
		Help: "Native balance of the solver account",
	})

	SolverAuthorized = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "solver_authorized",
		Help: "1 if the router reports this solver as authorized",
	})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "solver_events_published_total",
		Help: "Lifecycle events published by type",
	}, []string{"type"})

	EventSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "solver_event_subscribers",
		Help: "Active event subscriptions",
	})

	EventHistoryIntents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "solver_event_history_intents",
		Help: "Intents with retained event history",
	})

	EventsSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "solver_events_swept_total",
		Help: "Events removed by the TTL sweep",
	})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "solver_events_dropped_total",
		Help: "Queued events discarded because a subscriber fell behind",
	})

	CircuitBreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "solver_circuit_breaker_open",
		Help: "1 if the RPC circuit breaker is open",
	})

	JournalErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "solver_journal_errors_total",
		Help: "Failed settlement journal writes",
	})
)
