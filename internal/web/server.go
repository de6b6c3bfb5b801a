// Package web serves the read-only bubble dashboard: a JSON API over the
// engine's views, a server-sent-events feed for live refresh, and an
// embedded single-page UI. It never mutates bubble state.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pairflow/pairflow/internal/bubble"
	"github.com/pairflow/pairflow/internal/engine"
	"github.com/pairflow/pairflow/internal/envelope"
	"github.com/pairflow/pairflow/internal/state"
	"github.com/pairflow/pairflow/internal/transcript"
)

// DefaultAddr is the loopback address the dashboard binds when none is given.
const DefaultAddr = "127.0.0.1:7433"

// BubbleSource is the read-only slice of the engine the server consumes.
type BubbleSource interface {
	List(ctx context.Context, filter engine.ListFilter) ([]engine.ListItem, error)
	Status(ctx context.Context, id string) (*engine.StatusView, error)
	Transcript(ctx context.Context, id string) ([]transcript.Entry, error)
	Inbox(ctx context.Context, id string, pendingOnly bool) ([]transcript.Entry, error)
}

// Options configures a Server.
type Options struct {
	// Addr is the listen address; DefaultAddr when empty.
	Addr string
	// BubblesRoot is the directory watched for changes. Empty disables the
	// live-refresh watcher; the SSE feed then only emits keepalives.
	BubblesRoot string
	Log         *slog.Logger
}

// Server is the dashboard HTTP server.
type Server struct {
	src  BubbleSource
	addr string
	root string
	log  *slog.Logger
	hub  *hub
}

// New builds a Server around src.
func New(src BubbleSource, opts Options) *Server {
	addr := opts.Addr
	if addr == "" {
		addr = DefaultAddr
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		src:  src,
		addr: addr,
		root: opts.BubblesRoot,
		log:  log,
		hub:  newHub(),
	}
}

// Addr returns the configured listen address.
func (s *Server) Addr() string { return s.addr }

// Handler returns the route table. Exposed so tests can drive the API
// without binding a socket.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/bubbles", s.handleList)
	mux.HandleFunc("GET /api/bubbles/{id}", s.handleStatus)
	mux.HandleFunc("GET /api/bubbles/{id}/transcript", s.handleTranscript)
	mux.HandleFunc("GET /api/bubbles/{id}/inbox", s.handleInbox)
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("GET /", s.handleDashboard)
	return mux
}

// Run serves until ctx is cancelled. The bubbles-tree watcher feeds the SSE
// hub for as long as the server lives.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.root != "" {
		w, err := newWatcher(s.root, s.hub.broadcast, s.log)
		if err != nil {
			s.log.Warn("bubble watcher unavailable, dashboard will not live-refresh", "error", err)
		} else {
			go w.run(ctx)
			defer w.close()
		}
	}

	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info("dashboard listening", "addr", s.addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutCancel()
		_ = srv.Shutdown(shutCtx)
		<-errc
		return nil
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("dashboard server: %w", err)
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	filter := engine.ListFilter{}
	if raw := r.URL.Query().Get("state"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			st := state.Lifecycle(strings.ToUpper(strings.TrimSpace(part)))
			if !state.ValidLifecycle(st) {
				s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown state %q", part))
				return
			}
			filter.States = append(filter.States, st)
		}
	}
	items, err := s.src.List(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if items == nil {
		items = []engine.ListItem{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"bubbles": items})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := s.bubbleID(w, r)
	if !ok {
		return
	}
	view, err := s.src.Status(r.Context(), id)
	if err != nil {
		s.writeViewError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

// transcriptItem is the wire form of one log entry.
type transcriptItem struct {
	Seq      int               `json:"seq"`
	Envelope envelope.Envelope `json:"envelope"`
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	id, ok := s.bubbleID(w, r)
	if !ok {
		return
	}
	entries, err := s.src.Transcript(r.Context(), id)
	if err != nil {
		s.writeViewError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"entries": toItems(entries)})
}

func (s *Server) handleInbox(w http.ResponseWriter, r *http.Request) {
	id, ok := s.bubbleID(w, r)
	if !ok {
		return
	}
	pendingOnly := r.URL.Query().Get("pending") == "1"
	entries, err := s.src.Inbox(r.Context(), id, pendingOnly)
	if err != nil {
		s.writeViewError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"entries": toItems(entries)})
}

func toItems(entries []transcript.Entry) []transcriptItem {
	items := make([]transcriptItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, transcriptItem{Seq: e.Seq, Envelope: e.Envelope})
	}
	return items
}

func (s *Server) bubbleID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if err := bubble.ValidateID(id); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return id, true
}

func (s *Server) writeViewError(w http.ResponseWriter, err error) {
	var nf *bubble.NotFoundError
	if errors.As(err, &nf) {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.writeError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("encoding response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, map[string]string{"error": msg})
}
