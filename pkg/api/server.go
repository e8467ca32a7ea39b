package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/shadowswap-labs/shadowswap-solver/pkg/logger"
	"github.com/shadowswap-labs/shadowswap-solver/pkg/models"
)

const (
	// SSEKeepAlive is the interval between comment frames on idle event streams.
	SSEKeepAlive = 15 * time.Second
	// WSWriteTimeout bounds a single websocket frame write.
	WSWriteTimeout = 10 * time.Second

	maxBodyBytes = 64 << 10
)

// Service is what the API needs from the solver.
type Service interface {
	SubmitIntent(ctx context.Context, req models.SubmitIntentRequest) (models.SubmitIntentResponse, error)
	GetIntent(id string) (models.Intent, bool)
	ListPendingIntents() []models.IntentSummary
	StreamEvents(ctx context.Context, intentID string) <-chan models.SettlementEvent
	SolverAddress() string
	PendingCount() int
}

// Config for the API server.
type Config struct {
	Port            string
	CORSOrigin      string
	SubmitPerMinute float64
	SubmitBurst     int
	KeepAlive       time.Duration
}

// Server serves intent submission, queries and event streams.
type Server struct {
	cfg     Config
	svc     Service
	logger  logger.Logger
	limiter *RateLimiter
	router  chi.Router
	http    *http.Server
}

// NewServer builds the router. Call Start to listen.
func NewServer(cfg Config, svc Service, log logger.Logger) *Server {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = SSEKeepAlive
	}

	s := &Server{
		cfg:     cfg,
		svc:     svc,
		logger:  log,
		limiter: NewRateLimiter(cfg.SubmitPerMinute, cfg.SubmitBurst),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestID)
	r.Use(cors(cfg.CORSOrigin))
	r.Use(accessLog(log))

	r.With(s.limiter.Middleware).Post("/submit-intent", s.handleSubmitIntent)
	r.Get("/intents", s.handleListIntents)
	r.Get("/intents/{id}", s.handleGetIntent)
	r.Get("/events/{id}", s.handleEventsSSE)
	r.Get("/ws/events/{id}", s.handleEventsWS)
	r.Get("/health", s.handleHealth)

	s.router = r
	s.http = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens until Shutdown. http.ErrServerClosed is not reported.
func (s *Server) Start() error {
	s.logger.Info("Starting API server on port %s", s.cfg.Port)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight handlers.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
