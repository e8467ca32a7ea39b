package orderbook

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shadowswap-labs/shadowswap-solver/pkg/logger"
	"github.com/shadowswap-labs/shadowswap-solver/pkg/metrics"
	"github.com/shadowswap-labs/shadowswap-solver/pkg/models"
)

var (
	// ErrDuplicateIntent is returned when an intent id has already been submitted.
	ErrDuplicateIntent = errors.New("intent already exists")
	// ErrInvalidStatus is returned when a submitted intent is not PENDING.
	ErrInvalidStatus = errors.New("intent must be PENDING")
	// ErrMissingID is returned for intents without an id.
	ErrMissingID = errors.New("intent id is required")
	// ErrIntentCleared is returned when the book is cleared between matching and settlement.
	ErrIntentCleared = errors.New("intent cleared before settlement")
)

// Settler executes both legs of a matched pair. Results are returned in argument order.
type Settler interface {
	ExecutePair(ctx context.Context, a, b models.Intent) [2]models.SettlementResult
}

// Notifier publishes lifecycle events.
type Notifier interface {
	Publish(eventType models.EventType, intentID string, data *models.EventData) models.SettlementEvent
}

// OrderBook holds pending intents and settles pairs as soon as a counterparty arrives.
//
// Matching takes the first pending intent, in insertion order, that satisfies the
// price rule. There is no best-price or time-priority guarantee beyond that scan.
type OrderBook struct {
	rule     PriceRule
	settler  Settler
	notifier Notifier
	logger   logger.Logger
	now      func() time.Time

	mu      sync.Mutex
	pending []*models.Intent
	settled map[string]*models.Intent
}

// New creates an OrderBook. notifier and log may be nil.
func New(rule PriceRule, settler Settler, notifier Notifier, log logger.Logger) *OrderBook {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &OrderBook{
		rule:     rule,
		settler:  settler,
		notifier: notifier,
		logger:   log,
		now:      time.Now,
		settled:  make(map[string]*models.Intent),
	}
}

// Submit queues intent or, if a counterparty is pending, settles the pair before returning.
// Settlement can take several seconds.
func (ob *OrderBook) Submit(ctx context.Context, intent models.Intent) (models.MatchOutcome, error) {
	if intent.ID == "" {
		return models.MatchOutcome{}, ErrMissingID
	}
	if intent.Status != models.StatusPending {
		return models.MatchOutcome{}, fmt.Errorf("%w: got %s", ErrInvalidStatus, intent.Status)
	}
	if intent.CreatedAt.IsZero() {
		intent.CreatedAt = ob.now()
	}

	incoming := &intent
	counterparty, err := ob.matchOrQueue(incoming)
	if err != nil {
		return models.MatchOutcome{}, err
	}
	if counterparty == nil {
		ob.logger.InfoWithIntent(intent.ID, "No match for %s %s -> %s, queued", intent.AmountIn, intent.TokenIn, intent.TokenOut)
		return models.MatchOutcome{Matched: false}, nil
	}

	ob.logger.InfoWithIntent(intent.ID, "Matched with %s", counterparty.ID)
	metrics.MatchesFound.Inc()
	ob.publish(models.EventMatched, incoming.ID, &models.EventData{CounterpartyIntentID: counterparty.ID})
	ob.publish(models.EventMatched, counterparty.ID, &models.EventData{CounterpartyIntentID: incoming.ID})

	a, b, err := ob.beginSettling(incoming.ID, counterparty.ID)
	if err != nil {
		return models.MatchOutcome{}, err
	}

	results := ob.settler.ExecutePair(ctx, a, b)
	results[0].IntentID, results[1].IntentID = a.ID, b.ID

	final := ob.finalize(results)
	for _, res := range results {
		if res.Success {
			ob.logger.InfoWithIntent(res.IntentID, "Settled in %s", res.TxHash)
			ob.publish(models.EventSettlementComplete, res.IntentID, &models.EventData{TxHash: res.TxHash})
		} else {
			ob.logger.ErrorWithIntent(res.IntentID, "Settlement failed: %s", res.Error)
			ob.publish(models.EventSettlementFailed, res.IntentID, &models.EventData{TxHash: res.TxHash, Error: res.Error})
		}
	}

	return models.MatchOutcome{
		Matched:     true,
		Intents:     final,
		Settlements: results[:],
	}, nil
}

// matchOrQueue is the critical section: scan pending, claim a counterparty, or queue incoming.
func (ob *OrderBook) matchOrQueue(incoming *models.Intent) (*models.Intent, error) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	if ob.existsLocked(incoming.ID) {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateIntent, incoming.ID)
	}
	metrics.IntentsSubmitted.WithLabelValues(direction(incoming)).Inc()

	for i, candidate := range ob.pending {
		if !ob.rule.Matches(incoming, candidate) {
			continue
		}

		ob.pending = append(ob.pending[:i:i], ob.pending[i+1:]...)

		incoming.MatchID, incoming.Counterparty = candidate.ID, candidate.UserAddress
		candidate.MatchID, candidate.Counterparty = incoming.ID, incoming.UserAddress
		if err := incoming.Advance(models.StatusMatched); err != nil {
			return nil, err
		}
		if err := candidate.Advance(models.StatusMatched); err != nil {
			return nil, err
		}

		ob.settled[incoming.ID] = incoming
		ob.settled[candidate.ID] = candidate
		metrics.PendingIntents.Set(float64(len(ob.pending)))
		return candidate, nil
	}

	ob.pending = append(ob.pending, incoming)
	metrics.PendingIntents.Set(float64(len(ob.pending)))
	return nil, nil
}

// beginSettling moves both legs to SETTLING and returns snapshots for the settler.
func (ob *OrderBook) beginSettling(aID, bID string) (models.Intent, models.Intent, error) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	a, okA := ob.settled[aID]
	b, okB := ob.settled[bID]
	if !okA || !okB {
		return models.Intent{}, models.Intent{}, fmt.Errorf("%w: %s/%s", ErrIntentCleared, aID, bID)
	}
	if err := a.Advance(models.StatusSettling); err != nil {
		return models.Intent{}, models.Intent{}, err
	}
	if err := b.Advance(models.StatusSettling); err != nil {
		return models.Intent{}, models.Intent{}, err
	}
	return *a, *b, nil
}

// finalize applies each leg's result independently and returns the final snapshots.
func (ob *OrderBook) finalize(results [2]models.SettlementResult) []models.Intent {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	now := ob.now()
	out := make([]models.Intent, 0, len(results))
	for _, res := range results {
		intent, ok := ob.settled[res.IntentID]
		if !ok {
			// cleared while settling
			continue
		}

		next := models.StatusFailed
		if res.Success {
			next = models.StatusSettled
		}
		if err := intent.Advance(next); err != nil {
			ob.logger.ErrorWithIntent(intent.ID, "Cannot apply settlement result: %v", err)
			out = append(out, *intent)
			continue
		}

		intent.TxnHash = res.TxHash
		intent.AmountOut = res.AmountOut
		intent.SettlementError = res.Error
		settledAt := now
		intent.SettledAt = &settledAt
		metrics.Settlements.WithLabelValues(string(next)).Inc()
		out = append(out, *intent)
	}
	return out
}

func (ob *OrderBook) existsLocked(id string) bool {
	if _, ok := ob.settled[id]; ok {
		return true
	}
	for _, p := range ob.pending {
		if p.ID == id {
			return true
		}
	}
	return false
}

func (ob *OrderBook) publish(eventType models.EventType, intentID string, data *models.EventData) {
	if ob.notifier == nil {
		return
	}
	ob.notifier.Publish(eventType, intentID, data)
}

// GetIntent returns a snapshot of the intent from either pending or settled storage.
func (ob *OrderBook) GetIntent(id string) (models.Intent, bool) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	if intent, ok := ob.settled[id]; ok {
		return *intent, true
	}
	for _, p := range ob.pending {
		if p.ID == id {
			return *p, true
		}
	}
	return models.Intent{}, false
}

// GetPendingIntents returns a snapshot of the pending set in insertion order.
func (ob *OrderBook) GetPendingIntents() []models.Intent {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	out := make([]models.Intent, 0, len(ob.pending))
	for _, p := range ob.pending {
		out = append(out, *p)
	}
	return out
}

// PendingCount returns the number of queued intents.
func (ob *OrderBook) PendingCount() int {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return len(ob.pending)
}

// Clear empties both stores.
func (ob *OrderBook) Clear() {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	ob.pending = nil
	ob.settled = make(map[string]*models.Intent)
	metrics.PendingIntents.Set(0)
}

func direction(intent *models.Intent) string {
	if intent.IsNativeIn() {
		return "native_in"
	}
	return "token_in"
}
