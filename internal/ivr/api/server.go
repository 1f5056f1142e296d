// Package api exposes the HTTP surface: starting calls, receiving provider
// callbacks and inspecting live sessions.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sebas/ivrcaller/internal/ivr/registry"
	"github.com/sebas/ivrcaller/internal/ivr/router"
	"github.com/sebas/ivrcaller/internal/ivr/session"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// CallRouter starts calls and routes callbacks.
// Implemented by router.Router.
type CallRouter interface {
	StartCall(ctx context.Context, phoneNumber string) (uuid.UUID, error)
	RouteBatch(ctx context.Context, batch []router.ProviderEvent) int
}

// SessionProvider provides session data for the API.
// Implemented by registry.Registry.
type SessionProvider interface {
	List() []session.Info
	Get(id uuid.UUID) (*session.Session, bool)
	Stats() registry.Stats
}

// Server provides the HTTP API
type Server struct {
	addr       string
	httpServer *http.Server
	calls      CallRouter
	sessions   SessionProvider
	logger     *slog.Logger
	startTime  time.Time
}

// NewServer creates a new API server
func NewServer(addr string, calls CallRouter, sessions SessionProvider, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		addr:      addr,
		calls:     calls,
		sessions:  sessions,
		logger:    logger,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()

	// Health and stats
	mux.HandleFunc("/api/v1/health", s.handleHealth)
	mux.HandleFunc("/api/v1/stats", s.handleStats)

	// Calls and provider callbacks
	mux.HandleFunc("/api/v1/calls", s.handleCalls)
	mux.HandleFunc("/api/v1/callbacks", s.handleCallbacks)

	// Sessions
	mux.HandleFunc("/api/v1/sessions", s.handleSessions)
	mux.HandleFunc("/api/v1/sessions/", s.handleSessionByID)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Serve listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("[API] Starting HTTP API server", "addr", s.addr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("[API] Shutting down HTTP API server")
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

// --- Health & Stats ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(s.startTime).Seconds()
	response := map[string]interface{}{
		"status": "ok",
		"uptime": int64(uptime),
	}
	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.sessions.Stats()
	response := map[string]interface{}{
		"active_sessions": stats.Active,
		"started":         stats.Started,
		"ended":           stats.Ended,
		"reaped":          stats.Reaped,
	}
	s.writeJSON(w, http.StatusOK, response)
}

// --- Calls ---

type startCallRequest struct {
	PhoneNumber string `json:"phone_number"`
}

func (s *Server) handleCalls(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req startCallRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	id, err := s.calls.StartCall(r.Context(), req.PhoneNumber)
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusAccepted, map[string]interface{}{"call_id": id.String()})
	case errors.Is(err, router.ErrInvalidPhoneNumber):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case id != uuid.Nil:
		s.logger.Error("[API] Call failed to start", "call_id", id, "error", err)
		s.writeJSON(w, http.StatusBadGateway, map[string]interface{}{
			"call_id": id.String(),
			"error":   err.Error(),
		})
	default:
		s.logger.Error("[API] Call failed to start", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// --- Callbacks ---

func (s *Server) handleCallbacks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	batch, err := decodeCallbacks(body)
	if err != nil {
		s.logger.Warn("[API] Unparsable callback", "error", err)
		http.Error(w, "Invalid callback body", http.StatusBadRequest)
		return
	}

	// The provider retries on non-2xx, so routing failures still answer 200.
	routed := s.calls.RouteBatch(r.Context(), batch)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"received": len(batch),
		"routed":   routed,
	})
}

// --- Sessions ---

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, s.sessions.List())
}

func (s *Server) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Extract session ID from path: /api/v1/sessions/{id}
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/sessions/")
	if path == "" {
		http.Error(w, "Session ID required", http.StatusBadRequest)
		return
	}

	id, err := uuid.Parse(path)
	if err != nil {
		http.Error(w, "Invalid session ID", http.StatusBadRequest)
		return
	}

	sess, ok := s.sessions.Get(id)
	if !ok {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, sess.Info())
}

// --- Helpers ---

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("[API] Failed to encode JSON", "error", err)
	}
}
