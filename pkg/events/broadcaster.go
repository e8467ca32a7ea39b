package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shadowswap-labs/shadowswap-solver/pkg/logger"
	"github.com/shadowswap-labs/shadowswap-solver/pkg/metrics"
	"github.com/shadowswap-labs/shadowswap-solver/pkg/models"
)

const (
	DefaultHistoryLimit  = 50
	DefaultTTL           = 5 * time.Minute
	DefaultSweepInterval = time.Minute

	streamBuffer = 64
)

// Config controls history retention.
type Config struct {
	HistoryLimit  int
	TTL           time.Duration
	SweepInterval time.Duration
}

// Handler receives events for a subscription. It runs on the subscription's own goroutine.
type Handler func(models.SettlementEvent)

// Broadcaster is a publish/subscribe hub keyed by intent id with bounded per-intent replay history.
type Broadcaster struct {
	cfg    Config
	logger logger.Logger
	now    func() time.Time

	mu      sync.Mutex
	history map[string][]models.SettlementEvent
	subs    []*Subscription
}

// NewBroadcaster creates a Broadcaster. Zero config fields fall back to defaults.
func NewBroadcaster(cfg Config, log logger.Logger) *Broadcaster {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Broadcaster{
		cfg:     cfg,
		logger:  log,
		now:     time.Now,
		history: make(map[string][]models.SettlementEvent),
	}
}

// Publish records an event in the intent's history and queues it for every matching subscriber.
// It never waits on subscriber handlers.
func (b *Broadcaster) Publish(eventType models.EventType, intentID string, data *models.EventData) models.SettlementEvent {
	ev := models.SettlementEvent{
		Type:      eventType,
		IntentID:  intentID,
		Timestamp: b.now().UnixMilli(),
		Data:      data,
	}

	b.mu.Lock()
	h := append(b.history[intentID], ev)
	if len(h) > b.cfg.HistoryLimit {
		h = append([]models.SettlementEvent(nil), h[len(h)-b.cfg.HistoryLimit:]...)
	}
	b.history[intentID] = h
	for _, sub := range b.subs {
		if sub.matches(intentID) {
			sub.enqueue(ev)
		}
	}
	historyIntents := len(b.history)
	b.mu.Unlock()

	metrics.EventsPublished.WithLabelValues(string(eventType)).Inc()
	metrics.EventHistoryIntents.Set(float64(historyIntents))
	b.logger.DebugWithIntent(intentID, "Published %s", eventType)
	return ev
}

// Subscribe registers handler for future events of intentID. An empty intentID receives every event.
func (b *Broadcaster) Subscribe(intentID string, handler Handler) *Subscription {
	return b.subscribe(intentID, handler, false)
}

// SubscribeWithReplay is Subscribe, but the handler first receives the retained history for intentID.
// History snapshot and registration happen atomically so no event is duplicated or lost in between.
func (b *Broadcaster) SubscribeWithReplay(intentID string, handler Handler) *Subscription {
	return b.subscribe(intentID, handler, true)
}

func (b *Broadcaster) subscribe(intentID string, handler Handler, replay bool) *Subscription {
	sub := newSubscription(intentID, handler, b.cfg.HistoryLimit, b.logger)

	b.mu.Lock()
	if replay && intentID != "" {
		for _, ev := range b.history[intentID] {
			sub.enqueue(ev)
		}
	}
	b.subs = append(b.subs, sub)
	count := len(b.subs)
	b.mu.Unlock()

	metrics.EventSubscribers.Set(float64(count))
	go sub.run()
	return sub
}

// Unsubscribe removes sub. Events still queued for it are dropped.
func (b *Broadcaster) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	for i, s := range b.subs {
		if s == sub {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			break
		}
	}
	count := len(b.subs)
	b.mu.Unlock()

	metrics.EventSubscribers.Set(float64(count))
	sub.close()
}

// GetHistory returns a copy of the retained events for intentID in publish order.
func (b *Broadcaster) GetHistory(intentID string) []models.SettlementEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.SettlementEvent(nil), b.history[intentID]...)
}

// Stream delivers a CONNECTED event, the retained history, then live events for intentID
// until ctx is done. The returned channel is closed afterwards.
func (b *Broadcaster) Stream(ctx context.Context, intentID string) <-chan models.SettlementEvent {
	ch := make(chan models.SettlementEvent, streamBuffer)
	ch <- models.SettlementEvent{
		Type:      models.EventConnected,
		IntentID:  intentID,
		Timestamp: b.now().UnixMilli(),
	}

	sub := b.SubscribeWithReplay(intentID, func(ev models.SettlementEvent) {
		select {
		case ch <- ev:
		case <-ctx.Done():
		}
	})

	go func() {
		<-ctx.Done()
		b.Unsubscribe(sub)
		<-sub.Done()
		close(ch)
	}()
	return ch
}

// Sweep removes events older than the TTL and drops empty histories. Returns the number removed.
func (b *Broadcaster) Sweep(now time.Time) int {
	cutoff := now.Add(-b.cfg.TTL).UnixMilli()
	removed := 0

	b.mu.Lock()
	for id, h := range b.history {
		keep := 0
		for keep < len(h) && h[keep].Timestamp <= cutoff {
			keep++
		}
		if keep == 0 {
			continue
		}
		removed += keep
		if keep == len(h) {
			delete(b.history, id)
			continue
		}
		b.history[id] = append([]models.SettlementEvent(nil), h[keep:]...)
	}
	historyIntents := len(b.history)
	b.mu.Unlock()

	if removed > 0 {
		metrics.EventsSwept.Add(float64(removed))
		b.logger.Debug("Swept %d expired events, %d intents retain history", removed, historyIntents)
	}
	metrics.EventHistoryIntents.Set(float64(historyIntents))
	return removed
}

// Run sweeps expired history every SweepInterval until ctx is done.
func (b *Broadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.Sweep(b.now())
		}
	}
}

// Close unsubscribes everyone.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
	metrics.EventSubscribers.Set(0)
}

// Subscription is a registered handler with its own queue and delivery goroutine.
// The queue holds at most limit events; when the handler falls behind the oldest
// queued events are dropped.
type Subscription struct {
	ID       string
	intentID string
	handler  Handler
	limit    int
	logger   logger.Logger

	mu      sync.Mutex
	queue   []models.SettlementEvent
	closed  bool
	notify  chan struct{}
	quit    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

func newSubscription(intentID string, handler Handler, limit int, log logger.Logger) *Subscription {
	return &Subscription{
		ID:       uuid.NewString(),
		intentID: intentID,
		handler:  handler,
		limit:    limit,
		logger:   log,
		notify:   make(chan struct{}, 1),
		quit:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// IntentID returns the filter this subscription was registered with.
func (s *Subscription) IntentID() string {
	return s.intentID
}

// Done is closed once the delivery goroutine has exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.stopped
}

func (s *Subscription) matches(intentID string) bool {
	return s.intentID == "" || s.intentID == intentID
}

func (s *Subscription) enqueue(ev models.SettlementEvent) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	dropped := 0
	if s.limit > 0 && len(s.queue) >= s.limit {
		dropped = len(s.queue) - s.limit + 1
		s.queue = append(s.queue[:0:0], s.queue[dropped:]...)
	}
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	if dropped > 0 {
		metrics.EventsDropped.Add(float64(dropped))
		s.logger.DebugWithIntent(ev.IntentID, "Subscriber %s fell behind, dropped %d queued event(s)", s.ID, dropped)
	}

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscription) close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.queue = nil
		s.mu.Unlock()
		close(s.quit)
	})
}

func (s *Subscription) run() {
	defer close(s.stopped)

	for {
		select {
		case <-s.quit:
			return
		case <-s.notify:
		}

		for {
			s.mu.Lock()
			if s.closed || len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			batch := s.queue
			s.queue = nil
			s.mu.Unlock()

			for _, ev := range batch {
				select {
				case <-s.quit:
					return
				default:
				}
				s.deliver(ev)
			}
		}
	}
}

func (s *Subscription) deliver(ev models.SettlementEvent) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorWithIntent(ev.IntentID, "Event subscriber %s panicked on %s: %v", s.ID, ev.Type, r)
		}
	}()
	s.handler(ev)
}
