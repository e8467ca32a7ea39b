package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"nhooyr.io/websocket"

	"github.com/shadowswap-labs/shadowswap-solver/pkg/models"
)

// handleEventsSSE streams CONNECTED, history, then live events as server-sent events.
func (s *Server) handleEventsSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	intentID := chi.URLParam(r, "id")
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s.logger.DebugWithIntent(intentID, "SSE client connected")
	defer s.logger.DebugWithIntent(intentID, "SSE client disconnected")

	ctx := r.Context()
	stream := s.svc.StreamEvents(ctx, intentID)
	keepAlive := time.NewTicker(s.cfg.KeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-stream:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.ErrorWithIntent(intentID, "Failed to encode event: %v", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// originPatterns converts the CORS origin into the host patterns the websocket
// handshake checks. Same-host requests are always accepted.
func originPatterns(origin string) []string {
	if origin == "" || origin == "*" {
		return []string{"*"}
	}
	if u, err := url.Parse(origin); err == nil && u.Host != "" {
		return []string{u.Host}
	}
	return []string{origin}
}

// handleEventsWS carries the same stream as text frames over a websocket.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	intentID := chi.URLParam(r, "id")
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: originPatterns(s.cfg.CORSOrigin)})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	// clients never send; CloseRead cancels ctx when the peer goes away
	ctx := conn.CloseRead(r.Context())
	if err := s.streamWS(ctx, conn, intentID); err != nil {
		if status := websocket.CloseStatus(err); status == -1 && ctx.Err() == nil {
			s.logger.DebugWithIntent(intentID, "Websocket stream error: %v", err)
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamWS(ctx context.Context, conn *websocket.Conn, intentID string) error {
	stream := s.svc.StreamEvents(ctx, intentID)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-stream:
			if !ok {
				return nil
			}
			if err := writeEvent(ctx, conn, ev); err != nil {
				return err
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, ev models.SettlementEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, WSWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
