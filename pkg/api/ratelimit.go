package api

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// visitorTTL is how long an idle client's limiter is kept.
const visitorTTL = 5 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter holds one token bucket per client address.
type RateLimiter struct {
	perMinute float64
	burst     int

	mu        sync.Mutex
	visitors  map[string]*visitor
	lastPrune time.Time
	clockNow  func() time.Time
}

// NewRateLimiter allows perMinute requests per client with the given burst.
func NewRateLimiter(perMinute float64, burst int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		perMinute: perMinute,
		burst:     burst,
		visitors:  make(map[string]*visitor),
		clockNow:  time.Now,
	}
}

// Middleware rejects requests over the client's budget with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(clientID(r)) {
			w.Header().Set("Retry-After", strconv.Itoa(int(60/rl.perMinute)+1))
			writeError(w, r, http.StatusTooManyRequests, "rate limit exceeded, slow down")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Allow consumes one token for id.
func (rl *RateLimiter) Allow(id string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clockNow()
	if now.Sub(rl.lastPrune) > visitorTTL {
		for key, v := range rl.visitors {
			if now.Sub(v.lastSeen) > visitorTTL {
				delete(rl.visitors, key)
			}
		}
		rl.lastPrune = now
	}

	v, ok := rl.visitors[id]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(rl.perMinute/60.0), rl.burst)}
		rl.visitors[id] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

func clientID(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.Split(fwd, ",")[0])
		if parsed := net.ParseIP(first); parsed != nil {
			return parsed.String()
		}
		return first
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
