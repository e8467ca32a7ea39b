package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shadowswap-labs/shadowswap-solver/pkg/circuitbreaker"
	"github.com/shadowswap-labs/shadowswap-solver/pkg/logger"
)

// StatusProvider supplies readiness and the /status document.
type StatusProvider interface {
	Ready(ctx context.Context) error
	Status(ctx context.Context) interface{}
}

// Server represents the operator health and metrics HTTP server
type Server struct {
	port          string
	provider      StatusProvider
	breaker       *circuitbreaker.CircuitBreaker
	metricsAPIKey string
	logger        logger.Logger
	mux           *http.ServeMux
	http          *http.Server
}

// NewServer creates a new health check server
func NewServer(port, metricsAPIKey string, provider StatusProvider, breaker *circuitbreaker.CircuitBreaker, log logger.Logger) *Server {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	s := &Server{
		port:          port,
		provider:      provider,
		breaker:       breaker,
		metricsAPIKey: metricsAPIKey,
		logger:        log,
		mux:           http.NewServeMux(),
	}
	s.routes()
	s.http = &http.Server{
		Addr:              ":" + port,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// metricsAuthMiddleware is a middleware that checks for a valid API key
func (s *Server) metricsAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip auth if no API key is configured
		if s.metricsAPIKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Missing Authorization header", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
			return
		}

		if parts[1] != s.metricsAPIKey {
			http.Error(w, "Invalid API key", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) routes() {
	s.mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Readiness follows the chain RPC
	s.mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.provider.Ready(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(err.Error()))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Ready"))
	})

	s.mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(s.provider.Status(ctx)); err != nil {
			s.logger.Error("Error encoding status JSON: %v", err)
		}
	})

	// Circuit breaker admin control endpoint
	s.mux.HandleFunc("/circuit/reset", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if s.breaker == nil {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte("No circuit breaker configured"))
			return
		}

		s.breaker.Reset()
		s.logger.Notice("Circuit breaker reset by operator")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Circuit breaker reset"))
	})

	// Expose Prometheus metrics with API key authentication
	s.mux.Handle("/metrics", s.metricsAuthMiddleware(promhttp.Handler()))
}

// Handler returns the server's mux.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("Starting health and metrics server on port %s", s.port)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
