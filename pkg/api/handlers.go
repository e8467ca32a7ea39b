package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shadowswap-labs/shadowswap-solver/pkg/models"
	"github.com/shadowswap-labs/shadowswap-solver/pkg/orderbook"
	"github.com/shadowswap-labs/shadowswap-solver/pkg/solver"
)

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

type healthResponse struct {
	Status         string `json:"status"`
	Timestamp      int64  `json:"timestamp"`
	Solver         string `json:"solver"`
	PendingIntents int    `json:"pendingIntents"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, RequestID: requestIDFrom(r.Context())})
}

func (s *Server) handleSubmitIntent(w http.ResponseWriter, r *http.Request) {
	var req models.SubmitIntentRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	s.logger.InfoWithIntent(req.ID, "Received intent: %s %s -> %s from %s", req.AmountIn, req.TokenIn, req.TokenOut, req.UserAddress)

	resp, err := s.svc.SubmitIntent(r.Context(), req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, resp)
	case errors.Is(err, solver.ErrValidation), errors.Is(err, orderbook.ErrInvalidStatus), errors.Is(err, orderbook.ErrMissingID):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, orderbook.ErrDuplicateIntent):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, solver.ErrShuttingDown):
		writeError(w, r, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.ErrorWithIntent(req.ID, "Submission failed: %v", err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) handleListIntents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.ListPendingIntents())
}

func (s *Server) handleGetIntent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	intent, ok := s.svc.GetIntent(id)
	if !ok {
		writeError(w, r, http.StatusNotFound, "intent not found")
		return
	}
	writeJSON(w, http.StatusOK, intent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:         "ok",
		Timestamp:      time.Now().UnixMilli(),
		Solver:         s.svc.SolverAddress(),
		PendingIntents: s.svc.PendingCount(),
	})
}
