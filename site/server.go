package site

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/breakingchange/changefeed"
	"github.com/hazyhaar/breakingchange/recorder"
	"github.com/hazyhaar/breakingchange/shield"
	"github.com/hazyhaar/breakingchange/watch"
)

// ServerOptions configures a Server.
type ServerOptions struct {
	SiteDir string // default "docs"

	// AuthUser and AuthHash (bcrypt) enable Basic Auth on everything but
	// /health.
	AuthUser string
	AuthHash string

	// Poll and Debounce drive the rebuild watcher. Default 10s / 2s; a
	// negative Debounce rebuilds as soon as a change is seen.
	Poll     time.Duration
	Debounce time.Duration

	Logger *slog.Logger
}

func (o *ServerOptions) defaults() {
	if o.SiteDir == "" {
		o.SiteDir = "docs"
	}
	if o.Poll <= 0 {
		o.Poll = 10 * time.Second
	}
	if o.Debounce < 0 {
		o.Debounce = 0
	} else if o.Debounce == 0 {
		o.Debounce = 2 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Server serves the built site and a small JSON API over the change feed.
type Server struct {
	svc    *changefeed.Service
	opts   ServerOptions
	logger *slog.Logger
	router chi.Router

	buildMu sync.Mutex
}

// NewServer wires the routes. Call Watch to keep the site current.
func NewServer(svc *changefeed.Service, opts ServerOptions) *Server {
	opts.defaults()
	s := &Server{svc: svc, opts: opts, logger: opts.Logger}

	r := chi.NewRouter()
	for _, mw := range shield.Stack(s.logger) {
		r.Use(mw)
	}
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Group(func(r chi.Router) {
		r.Use(shield.BasicAuth(opts.AuthUser, opts.AuthHash, "breakingchange"))
		r.Get("/api/events", s.handleEvents)
		r.Get("/api/diffs/{id}", s.handleDiff)
		r.Handle("/*", http.FileServer(http.Dir(opts.SiteDir)))
	})
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

// Rebuild regenerates the static site. Concurrent calls run one at a time.
func (s *Server) Rebuild(ctx context.Context) error {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()
	rec := s.svc.Recorder()
	_, err := Build(ctx, Options{
		Events: rec.Events(),
		Blobs:  rec.Blobs(),
		OutDir: s.opts.SiteDir,
		Logger: s.logger,
	})
	return err
}

// Watch builds the site once, then again after every sweep that lands in
// the run log, until ctx is done.
func (s *Server) Watch(ctx context.Context) {
	w := watch.New(s.svc.LastRunAt, watch.Options{
		Interval:    s.opts.Poll,
		Debounce:    s.opts.Debounce,
		FireOnStart: true,
		Logger:      s.logger,
	})
	w.OnChange(ctx, s.Rebuild)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := queryInt(r, "limit", 50)
	if limit <= 0 || limit > DefaultLimit {
		limit = DefaultLimit
	}
	events, err := s.svc.ListEvents(r.Context(), changefeed.EventFilter{
		Vendor:   q.Get("vendor"),
		Slug:     q.Get("slug"),
		Type:     q.Get("type"),
		Severity: q.Get("severity"),
		Limit:    limit,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if events == nil {
		events = []*recorder.ChangeEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	diff, err := s.svc.Diff(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, recorder.ErrInvalidID):
		writeError(w, http.StatusBadRequest, err)
		return
	case errors.Is(err, recorder.ErrBlobNotFound):
		writeError(w, http.StatusNotFound, err)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/x-diff; charset=utf-8")
	w.Write([]byte(diff))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
