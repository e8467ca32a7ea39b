package circuitbreaker

import (
	"sync"
	"time"

	"github.com/shadowswap-labs/shadowswap-solver/pkg/logger"
	"github.com/shadowswap-labs/shadowswap-solver/pkg/metrics"
)

// Config holds the breaker thresholds.
type Config struct {
	Enabled      bool
	Threshold    int
	Window       time.Duration
	ResetTimeout time.Duration
}

// State is a point-in-time view of the breaker, served by the status endpoint.
type State struct {
	Enabled       bool          `json:"enabled"`
	Open          bool          `json:"open"`
	FailureCount  int           `json:"failure_count"`
	FailThreshold int           `json:"fail_threshold"`
	FailureWindow time.Duration `json:"failure_window"`
	LastFailure   time.Time     `json:"last_failure"`
	TripTime      time.Time     `json:"trip_time"`
	Cooldown      time.Duration `json:"cooldown"`
}

// CircuitBreaker opens after Threshold RPC failures inside Window and stays open for ResetTimeout.
type CircuitBreaker struct {
	cfg          Config
	failureCount int
	lastFailure  time.Time
	tripped      bool
	tripTime     time.Time
	now          func() time.Time
	logger       logger.Logger
	mu           sync.Mutex
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(cfg Config, log logger.Logger) *CircuitBreaker {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &CircuitBreaker{
		cfg:    cfg,
		now:    time.Now,
		logger: log,
	}
}

// expireLocked closes the breaker once the reset timeout has elapsed.
func (cb *CircuitBreaker) expireLocked(now time.Time) {
	if cb.tripped && now.Sub(cb.tripTime) >= cb.cfg.ResetTimeout {
		cb.logger.Info("Circuit breaker: closing after %s cooldown", cb.cfg.ResetTimeout)
		cb.tripped = false
		cb.failureCount = 0
		metrics.CircuitBreakerState.Set(0)
	}
}

// RecordFailure records a failure and trips the circuit if threshold is reached. Returns whether the circuit is open.
func (cb *CircuitBreaker) RecordFailure() bool {
	if !cb.cfg.Enabled {
		return false
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	cb.expireLocked(now)
	if cb.tripped {
		return true
	}

	if now.Sub(cb.lastFailure) > cb.cfg.Window {
		cb.failureCount = 0
	}
	cb.failureCount++
	cb.lastFailure = now

	if cb.failureCount >= cb.cfg.Threshold {
		cb.tripped = true
		cb.tripTime = now
		metrics.CircuitBreakerState.Set(1)
		cb.logger.Notice("Circuit breaker tripped: %d RPC failures within %s", cb.failureCount, cb.cfg.Window)
		return true
	}

	return false
}

// IsOpen returns true if the circuit is open (tripped)
func (cb *CircuitBreaker) IsOpen() bool {
	if !cb.cfg.Enabled {
		return false
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.expireLocked(cb.now())
	return cb.tripped
}

// RemainingCooldown returns how long until an open circuit closes, or zero when closed.
func (cb *CircuitBreaker) RemainingCooldown() time.Duration {
	if !cb.cfg.Enabled {
		return 0
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	cb.expireLocked(now)
	if !cb.tripped {
		return 0
	}
	return cb.cfg.ResetTimeout - now.Sub(cb.tripTime)
}

// Reset manually resets the circuit breaker
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.tripped = false
	cb.failureCount = 0
	metrics.CircuitBreakerState.Set(0)
}

// GetState returns the current state of the circuit breaker
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	cb.expireLocked(now)

	st := State{
		Enabled:       cb.cfg.Enabled,
		Open:          cb.cfg.Enabled && cb.tripped,
		FailureCount:  cb.failureCount,
		FailThreshold: cb.cfg.Threshold,
		FailureWindow: cb.cfg.Window,
		LastFailure:   cb.lastFailure,
		TripTime:      cb.tripTime,
	}
	if st.Open {
		st.Cooldown = cb.cfg.ResetTimeout - now.Sub(cb.tripTime)
	}
	return st
}

// IsEnabled returns true if the circuit breaker is enabled
func (cb *CircuitBreaker) IsEnabled() bool {
	return cb.cfg.Enabled
}
