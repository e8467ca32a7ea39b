package events

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shadowswap-labs/shadowswap-solver/pkg/models"
)

// collector gathers delivered events for assertions.
type collector struct {
	mu     sync.Mutex
	events []models.SettlementEvent
}

func (c *collector) handle(ev models.SettlementEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *collector) snapshot() []models.SettlementEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.SettlementEvent(nil), c.events...)
}

func (c *collector) waitFor(t *testing.T, n int) []models.SettlementEvent {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(c.snapshot()) >= n
	}, 2*time.Second, 5*time.Millisecond)
	return c.snapshot()
}

func types(evs []models.SettlementEvent) []models.EventType {
	out := make([]models.EventType, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.Type)
	}
	return out
}

func TestBroadcaster_ReplayThenLive(t *testing.T) {
	b := NewBroadcaster(Config{}, nil)
	defer b.Close()

	b.Publish(models.EventMatched, "intent-1", &models.EventData{CounterpartyIntentID: "intent-2"})
	b.Publish(models.EventSettlingStarted, "intent-1", nil)
	b.Publish(models.EventTxSubmitted, "intent-1", &models.EventData{TxHash: "0xabc"})
	b.Publish(models.EventMatched, "intent-2", nil)

	c := &collector{}
	b.SubscribeWithReplay("intent-1", c.handle)

	b.Publish(models.EventTxConfirmed, "intent-1", &models.EventData{TxHash: "0xabc", Confirmations: 1})

	got := c.waitFor(t, 4)
	assert.Equal(t, []models.EventType{
		models.EventMatched,
		models.EventSettlingStarted,
		models.EventTxSubmitted,
		models.EventTxConfirmed,
	}, types(got))

	time.Sleep(20 * time.Millisecond)
	assert.Len(t, c.snapshot(), 4, "no duplicates or foreign events")
}

func TestBroadcaster_SubscribeWithoutReplay(t *testing.T) {
	b := NewBroadcaster(Config{}, nil)
	defer b.Close()

	b.Publish(models.EventMatched, "intent-1", nil)

	c := &collector{}
	b.Subscribe("intent-1", c.handle)
	b.Publish(models.EventSettlementComplete, "intent-1", nil)

	got := c.waitFor(t, 1)
	assert.Equal(t, []models.EventType{models.EventSettlementComplete}, types(got))
}

func TestBroadcaster_HistoryBounded(t *testing.T) {
	b := NewBroadcaster(Config{HistoryLimit: 50}, nil)

	for i := 0; i < 60; i++ {
		b.Publish(models.EventWaitingRateLimit, "intent-1", &models.EventData{Message: fmt.Sprintf("%d", i)})
	}

	h := b.GetHistory("intent-1")
	require.Len(t, h, 50)
	assert.Equal(t, "10", h[0].Data.Message)
	assert.Equal(t, "59", h[49].Data.Message)
}

func TestBroadcaster_GetHistoryUnknownIntent(t *testing.T) {
	b := NewBroadcaster(Config{}, nil)
	assert.Empty(t, b.GetHistory("missing"))
}

func TestBroadcaster_SweepRemovesExpired(t *testing.T) {
	b := NewBroadcaster(Config{TTL: 5 * time.Minute}, nil)
	base := time.Unix(1_700_000_000, 0)

	b.now = func() time.Time { return base }
	b.Publish(models.EventMatched, "old", nil)
	b.Publish(models.EventMatched, "mixed", nil)

	b.now = func() time.Time { return base.Add(4 * time.Minute) }
	b.Publish(models.EventSettlementComplete, "mixed", nil)

	removed := b.Sweep(base.Add(6 * time.Minute))
	assert.Equal(t, 2, removed)
	assert.Empty(t, b.GetHistory("old"))

	mixed := b.GetHistory("mixed")
	require.Len(t, mixed, 1)
	assert.Equal(t, models.EventSettlementComplete, mixed[0].Type)

	b.mu.Lock()
	_, exists := b.history["old"]
	b.mu.Unlock()
	assert.False(t, exists)
}

func TestBroadcaster_SweepEvictsAtExactTTL(t *testing.T) {
	b := NewBroadcaster(Config{TTL: 5 * time.Minute}, nil)
	base := time.Unix(1_700_000_000, 0)

	b.now = func() time.Time { return base }
	b.Publish(models.EventMatched, "edge", nil)

	assert.Equal(t, 0, b.Sweep(base.Add(5*time.Minute-time.Millisecond)))
	require.Len(t, b.GetHistory("edge"), 1)

	assert.Equal(t, 1, b.Sweep(base.Add(5*time.Minute)))
	assert.Empty(t, b.GetHistory("edge"))
}

func TestBroadcaster_StalledSubscriberQueueIsBounded(t *testing.T) {
	const limit = 5
	b := NewBroadcaster(Config{HistoryLimit: limit}, nil)
	defer b.Close()

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	var mu sync.Mutex
	var got []string
	sub := b.Subscribe("intent-1", func(ev models.SettlementEvent) {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
		mu.Lock()
		got = append(got, ev.Data.Error)
		mu.Unlock()
	})

	b.Publish(models.EventWaitingRateLimit, "intent-1", &models.EventData{Error: "e0"})
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never received the first event")
	}

	for i := 1; i <= 20; i++ {
		b.Publish(models.EventWaitingRateLimit, "intent-1", &models.EventData{Error: fmt.Sprintf("e%d", i)})
	}
	sub.mu.Lock()
	queued := len(sub.queue)
	sub.mu.Unlock()
	assert.Equal(t, limit, queued)

	close(release)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == limit+1
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"e0", "e16", "e17", "e18", "e19", "e20"}, got)
}

func TestBroadcaster_SlowSubscriberDoesNotBlockPublisher(t *testing.T) {
	b := NewBroadcaster(Config{HistoryLimit: 200}, nil)
	defer b.Close()

	release := make(chan struct{})
	b.Subscribe("intent-1", func(models.SettlementEvent) {
		<-release
	})
	fast := &collector{}
	b.Subscribe("intent-1", fast.handle)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(models.EventWaitingRateLimit, "intent-1", nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	fast.waitFor(t, 100)
	close(release)
}

func TestBroadcaster_PanickingSubscriberIsIsolated(t *testing.T) {
	b := NewBroadcaster(Config{}, nil)
	defer b.Close()

	b.Subscribe("intent-1", func(models.SettlementEvent) {
		panic("boom")
	})
	c := &collector{}
	b.Subscribe("intent-1", c.handle)

	b.Publish(models.EventMatched, "intent-1", nil)
	b.Publish(models.EventSettlementFailed, "intent-1", &models.EventData{Error: "reverted"})

	got := c.waitFor(t, 2)
	assert.Equal(t, []models.EventType{models.EventMatched, models.EventSettlementFailed}, types(got))
}

func TestBroadcaster_EmptyFilterReceivesAll(t *testing.T) {
	b := NewBroadcaster(Config{}, nil)
	defer b.Close()

	c := &collector{}
	b.Subscribe("", c.handle)
	b.Publish(models.EventMatched, "a", nil)
	b.Publish(models.EventMatched, "b", nil)

	got := c.waitFor(t, 2)
	assert.Equal(t, "a", got[0].IntentID)
	assert.Equal(t, "b", got[1].IntentID)
}

func TestBroadcaster_Unsubscribe(t *testing.T) {
	b := NewBroadcaster(Config{}, nil)
	defer b.Close()

	c := &collector{}
	sub := b.Subscribe("intent-1", c.handle)
	b.Publish(models.EventMatched, "intent-1", nil)
	c.waitFor(t, 1)

	b.Unsubscribe(sub)
	<-sub.Done()
	b.Publish(models.EventSettlementComplete, "intent-1", nil)

	time.Sleep(20 * time.Millisecond)
	assert.Len(t, c.snapshot(), 1)
}

func TestBroadcaster_Stream(t *testing.T) {
	b := NewBroadcaster(Config{}, nil)
	defer b.Close()

	b.Publish(models.EventMatched, "intent-1", nil)
	b.Publish(models.EventSettlingStarted, "intent-1", nil)

	ctx, cancel := context.WithCancel(context.Background())
	stream := b.Stream(ctx, "intent-1")

	b.Publish(models.EventSettlementComplete, "intent-1", &models.EventData{TxHash: "0x1"})

	var got []models.SettlementEvent
	for len(got) < 4 {
		select {
		case ev := <-stream:
			got = append(got, ev)
		case <-time.After(2 * time.Second):
			t.Fatalf("stream stalled after %d events", len(got))
		}
	}
	assert.Equal(t, []models.EventType{
		models.EventConnected,
		models.EventMatched,
		models.EventSettlingStarted,
		models.EventSettlementComplete,
	}, types(got))
	assert.Len(t, b.GetHistory("intent-1"), 3, "CONNECTED is not retained")

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-stream:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)
}

func TestBroadcaster_RunStopsOnCancel(t *testing.T) {
	b := NewBroadcaster(Config{SweepInterval: 5 * time.Millisecond, TTL: time.Millisecond}, nil)
	b.Publish(models.EventMatched, "intent-1", nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return len(b.GetHistory("intent-1")) == 0
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
