package chainclient

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/shadowswap-labs/shadowswap-solver/pkg/logger"
	"github.com/shadowswap-labs/shadowswap-solver/pkg/metrics"
)

// MonitorRoutine periodically refreshes gas price and solver balance metrics
// and warns when the balance drops below a threshold.
type MonitorRoutine struct {
	client     *Client
	interval   time.Duration
	minBalance *big.Int
	stopChan   chan struct{}
	mu         sync.RWMutex
	running    bool
	lastErr    error
	logger     logger.Logger
}

// NewMonitorRoutine creates a new monitor routine
func NewMonitorRoutine(client *Client, interval time.Duration, minBalance *big.Int, log logger.Logger) *MonitorRoutine {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &MonitorRoutine{
		client:     client,
		interval:   interval,
		minBalance: minBalance,
		logger:     log,
	}
}

// Start begins the periodic refresh
func (r *MonitorRoutine) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return
	}
	r.stopChan = make(chan struct{})
	r.running = true

	go r.run(ctx, r.stopChan)
}

// Stop halts the periodic refresh
func (r *MonitorRoutine) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}
	close(r.stopChan)
	r.stopChan = nil
	r.running = false
}

// IsRunning returns whether the routine is currently running
func (r *MonitorRoutine) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// LastError returns the error from the most recent refresh, if any
func (r *MonitorRoutine) LastError() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastErr
}

func (r *MonitorRoutine) run(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			r.Refresh(ctx)
		}
	}
}

// Refresh performs one gas price and balance update
func (r *MonitorRoutine) Refresh(ctx context.Context) {
	var lastErr error

	if _, err := r.client.UpdateGasPrice(ctx); err != nil {
		r.logger.Debug("Gas price refresh failed: %v", err)
		lastErr = err
	}

	balance, err := r.client.Balance(ctx)
	if err != nil {
		r.logger.Debug("Balance refresh failed: %v", err)
		lastErr = err
	} else {
		f, _ := new(big.Float).SetInt(balance).Float64()
		metrics.SolverBalance.Set(f)
		if r.minBalance != nil && balance.Cmp(r.minBalance) < 0 {
			r.logger.Notice("Solver balance %s wei is below %s wei; settlements may fail for gas", balance, r.minBalance)
		}
	}

	r.mu.Lock()
	r.lastErr = lastErr
	r.mu.Unlock()
}
