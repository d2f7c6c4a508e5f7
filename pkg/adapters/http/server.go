package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/enginegate"
	"github.com/aretw0/enginegate/internal/logging"
	"github.com/aretw0/enginegate/pkg/domain"
	"github.com/aretw0/enginegate/pkg/ports"
	"github.com/go-chi/chi/v5"
)

// Status reports the admission queue. Implementations must be safe to call from HTTP goroutines.
type Status interface {
	Sessions(ctx context.Context) ([]domain.SessionInfo, error)
}

// Server exposes admission status, lifecycle events and recorded demos over HTTP.
type Server struct {
	status  Status
	demos   ports.DemoStore
	metrics http.Handler
	streams *StreamManager
	logger  *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithDemoStore enables the /demos routes.
func WithDemoStore(store ports.DemoStore) Option {
	return func(s *Server) {
		s.demos = store
	}
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithStreams shares an existing event fan-out, typically one already wired into the
// manager's lifecycle hooks.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		s.streams = sm
	}
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a status server.
func NewServer(status Status, opts ...Option) *Server {
	s := &Server{
		status:  status,
		streams: NewStreamManager(),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.streams.logger = s.logger
	return s
}

// Streams returns the event fan-out feeding GET /events.
func (s *Server) Streams() *StreamManager {
	return s.streams
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/sessions", s.GetSessions)
	r.Get("/events", s.SubscribeEvents)
	if s.demos != nil {
		r.Get("/demos", s.ListDemos)
		r.Get("/demos/{id}", s.GetDemo)
	}
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}
	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Response encode failed", "err", err)
	}
}

// GetHealth handles GET /healthz.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]string{
		"app":     "enginegate",
		"version": strings.TrimSpace(enginegate.Version),
	})
}

// GetSessions handles GET /sessions: the admission queue, head first.
func (s *Server) GetSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.status.Sessions(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("Snapshot error: %v", err), http.StatusServiceUnavailable)
		s.logger.Warn("Session snapshot failed", "err", err)
		return
	}
	if sessions == nil {
		sessions = []domain.SessionInfo{}
	}
	s.writeJSON(w, sessions)
}

// ListDemos handles GET /demos.
func (s *Server) ListDemos(w http.ResponseWriter, r *http.Request) {
	demos, err := s.demos.List(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("List error: %v", err), http.StatusInternalServerError)
		s.logger.Error("Demo listing failed", "err", err)
		return
	}
	if demos == nil {
		demos = []string{}
	}
	s.writeJSON(w, demos)
}

// GetDemo handles GET /demos/{id}, returning the raw recording.
func (s *Server) GetDemo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	demo, err := s.demos.Load(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrDemoNotFound) {
			http.Error(w, "Demo not found", http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("Load error: %v", err), http.StatusInternalServerError)
		s.logger.Error("Demo load failed", "demo_id", id, "err", err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(demo)
}

// SubscribeEvents handles GET /events (SSE), streaming session lifecycle events.
// The optional "session_id" query parameter filters by session.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("SubscribeEvents: Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	filter := r.URL.Query().Get("session_id")
	ch, cancel := s.streams.Subscribe()
	defer cancel()

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("SSE client disconnected")
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if filter != "" && ev.SessionID != filter {
				continue
			}
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.Error("SSE encode failed", "err", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		}
	}
}
