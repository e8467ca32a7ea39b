package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"github.com/shadowswap-labs/shadowswap-solver/pkg/models"
	"github.com/shadowswap-labs/shadowswap-solver/pkg/orderbook"
	"github.com/shadowswap-labs/shadowswap-solver/pkg/solver"
)

type fakeService struct {
	mu        sync.Mutex
	submitErr error
	submitted []models.SubmitIntentRequest
	intents   map[string]models.Intent
	events    []models.SettlementEvent
	live      chan models.SettlementEvent
}

func newFakeService() *fakeService {
	return &fakeService{intents: make(map[string]models.Intent)}
}

func (f *fakeService) SubmitIntent(_ context.Context, req models.SubmitIntentRequest) (models.SubmitIntentResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return models.SubmitIntentResponse{}, f.submitErr
	}
	f.submitted = append(f.submitted, req)
	return models.SubmitIntentResponse{Accepted: true, IntentID: req.ID, Status: models.StatusPending, Message: "queued"}, nil
}

func (f *fakeService) GetIntent(id string) (models.Intent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	in, ok := f.intents[id]
	return in, ok
}

func (f *fakeService) ListPendingIntents() []models.IntentSummary {
	return []models.IntentSummary{{ID: "p-1", Status: models.StatusPending}}
}

func (f *fakeService) StreamEvents(ctx context.Context, intentID string) <-chan models.SettlementEvent {
	out := make(chan models.SettlementEvent)
	go func() {
		defer close(out)
		send := func(ev models.SettlementEvent) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}
		if !send(models.SettlementEvent{Type: models.EventConnected, IntentID: intentID}) {
			return
		}
		for _, ev := range f.events {
			if !send(ev) {
				return
			}
		}
		for {
			select {
			case ev := <-f.live:
				if !send(ev) {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (f *fakeService) SolverAddress() string { return "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266" }
func (f *fakeService) PendingCount() int     { return 1 }

func newTestServer(svc Service, cfg Config) *httptest.Server {
	return httptest.NewServer(NewServer(cfg, svc, nil).Handler())
}

const validBody = `{"id":"i-1","userAddress":"0x70997970C51812dc3A010C7d01b50e0d17dc79C8","tokenIn":"0x0000000000000000000000000000000000000000","tokenOut":"0x9fE46736679d2D9a65F0992F2272dE9f3c7fa6e0","amountIn":"1","minAmountOut":"0"}`

func TestSubmitIntent_StatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		body   string
		status int
	}{
		{"ok", nil, validBody, http.StatusOK},
		{"bad json", nil, `{"id":`, http.StatusBadRequest},
		{"validation", fmt.Errorf("%w: userAddress", solver.ErrValidation), validBody, http.StatusBadRequest},
		{"duplicate", fmt.Errorf("%w: i-1", orderbook.ErrDuplicateIntent), validBody, http.StatusConflict},
		{"internal", fmt.Errorf("boom"), validBody, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newFakeService()
			svc.submitErr = tt.err
			srv := newTestServer(svc, Config{SubmitPerMinute: 600, SubmitBurst: 10})
			defer srv.Close()

			resp, err := http.Post(srv.URL+"/submit-intent", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.status, resp.StatusCode)
			assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))
			if tt.status == http.StatusOK {
				var body models.SubmitIntentResponse
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
				assert.True(t, body.Accepted)
				assert.Equal(t, "i-1", body.IntentID)
				return
			}
			var body errorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.NotEmpty(t, body.Error)
			assert.Equal(t, resp.Header.Get(RequestIDHeader), body.RequestID)
		})
	}
}

func TestSubmitIntent_RateLimited(t *testing.T) {
	srv := newTestServer(newFakeService(), Config{SubmitPerMinute: 1, SubmitBurst: 2})
	defer srv.Close()

	var codes []int
	for i := 0; i < 3; i++ {
		resp, err := http.Post(srv.URL+"/submit-intent", "application/json", strings.NewReader(validBody))
		require.NoError(t, err)
		codes = append(codes, resp.StatusCode)
		resp.Body.Close()
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode, "queries are not limited")
}

func TestRateLimiter_PerClient(t *testing.T) {
	rl := NewRateLimiter(60, 1)
	now := time.Unix(1_700_000_000, 0)
	rl.clockNow = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("a"))

	now = now.Add(visitorTTL + time.Second)
	rl.Allow("c")
	rl.mu.Lock()
	_, kept := rl.visitors["b"]
	rl.mu.Unlock()
	assert.False(t, kept, "idle visitors are pruned")
}

func TestClientID(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", clientID(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", clientID(r))

	r.Header.Set("X-Real-IP", "198.51.100.2")
	assert.Equal(t, "198.51.100.2", clientID(r))
}

func TestGetIntent(t *testing.T) {
	svc := newFakeService()
	svc.intents["i-1"] = models.Intent{ID: "i-1", Status: models.StatusSettled, TxnHash: "0xabc"}
	srv := newTestServer(svc, Config{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/intents/i-1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var in models.Intent
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&in))
	assert.Equal(t, models.StatusSettled, in.Status)
	assert.Equal(t, "0xabc", in.TxnHash)

	missing, err := http.Get(srv.URL + "/intents/nope")
	require.NoError(t, err)
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestListIntentsAndHealth(t *testing.T) {
	srv := newTestServer(newFakeService(), Config{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/intents")
	require.NoError(t, err)
	var list []models.IntentSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	resp.Body.Close()
	require.Len(t, list, 1)
	assert.Equal(t, "p-1", list[0].ID)

	resp, err = http.Get(srv.URL + "/health")
	require.NoError(t, err)
	var health healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, 1, health.PendingIntents)
	assert.NotZero(t, health.Timestamp)
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(newFakeService(), Config{CORSOrigin: "https://app.example"})
	defer srv.Close()

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/submit-intent", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://app.example", resp.Header.Get("Access-Control-Allow-Origin"))
}

func readSSE(t *testing.T, scanner *bufio.Scanner) models.SettlementEvent {
	t.Helper()
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev models.SettlementEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		return ev
	}
	t.Fatalf("stream ended: %v", scanner.Err())
	return models.SettlementEvent{}
}

func TestEventsSSE(t *testing.T) {
	svc := newFakeService()
	svc.events = []models.SettlementEvent{{Type: models.EventMatched, IntentID: "i-1"}}
	svc.live = make(chan models.SettlementEvent, 1)
	srv := newTestServer(svc, Config{KeepAlive: time.Hour})
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events/i-1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	scanner := bufio.NewScanner(resp.Body)

	assert.Equal(t, models.EventConnected, readSSE(t, scanner).Type)
	assert.Equal(t, models.EventMatched, readSSE(t, scanner).Type)

	svc.live <- models.SettlementEvent{Type: models.EventSettlementComplete, IntentID: "i-1"}
	assert.Equal(t, models.EventSettlementComplete, readSSE(t, scanner).Type)
}

func TestEventsSSE_KeepAlive(t *testing.T) {
	svc := newFakeService()
	srv := newTestServer(svc, Config{KeepAlive: 10 * time.Millisecond})
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/events/i-1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if scanner.Text() == ": keepalive" {
			return
		}
	}
	t.Fatal("no keep-alive frame")
}

func TestEventsWebsocket(t *testing.T) {
	svc := newFakeService()
	svc.events = []models.SettlementEvent{{Type: models.EventTxSubmitted, IntentID: "i-1"}}
	srv := newTestServer(svc, Config{})
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/events/i-1"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	var got []models.EventType
	for i := 0; i < 2; i++ {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		var ev models.SettlementEvent
		require.NoError(t, json.Unmarshal(data, &ev))
		got = append(got, ev.Type)
	}
	assert.Equal(t, []models.EventType{models.EventConnected, models.EventTxSubmitted}, got)
}

func TestEventsWebsocketOrigin(t *testing.T) {
	svc := newFakeService()
	srv := newTestServer(svc, Config{CORSOrigin: "https://app.example"})
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/events/i-1"

	_, resp, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"https://evil.example"}},
	})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Origin": []string{"https://app.example"}},
	})
	require.NoError(t, err)
	conn.Close(websocket.StatusNormalClosure, "done")
}

func TestOriginPatterns(t *testing.T) {
	tests := []struct {
		origin string
		want   []string
	}{
		{"", []string{"*"}},
		{"*", []string{"*"}},
		{"https://app.example", []string{"app.example"}},
		{"http://localhost:5173", []string{"localhost:5173"}},
		{"app.example", []string{"app.example"}},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			assert.Equal(t, tt.want, originPatterns(tt.origin))
		})
	}
}
