// Package httpserv exposes the runner's status over HTTP: current schedule
// state, liveness, counters and recent run history. Read-only by design.
package httpserv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"wfrunner/internal/runner"
	"wfrunner/internal/storage"
	"wfrunner/pkg/logx"
)

const (
	defaultAddr       = ":8080"
	defaultRatePerSec = 20
	readHeaderTimeout = 5 * time.Second
	historyLimitMax   = 200
)

// Config controls the status HTTP server.
type Config struct {
	Addr       string
	RatePerSec int // global request throttle; <=0 uses the default
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = defaultAddr
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = defaultRatePerSec
	}
	return c
}

// SnapshotFunc reports the scheduler's current state.
type SnapshotFunc func() runner.Snapshot

// Server manages lifecycle for the status listener.
type Server struct {
	log     logx.Logger
	snap    SnapshotFunc
	store   storage.Store // nil when history is disabled
	limiter *rate.Limiter
	started time.Time

	mu   sync.Mutex
	srv  *http.Server
	ln   net.Listener
	addr string
}

func New(cfg Config, snap SnapshotFunc, store storage.Store, log logx.Logger) *Server {
	cfg = cfg.withDefaults()
	s := &Server{
		log:     log,
		snap:    snap,
		store:   store,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec*2),
		started: time.Now(),
	}
	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.throttle(s.routes()),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

// Start binds the listener and begins serving. Bind errors are returned
// synchronously so a busy port fails startup instead of dying quietly.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return errors.New("httpserv: already started")
	}

	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("httpserv: listen %s: %w", s.srv.Addr, err)
	}
	s.ln = ln
	s.addr = ln.Addr().String()

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warn("status server error", logx.String("addr", s.addr), logx.Err(err))
		}
	}()
	s.log.Info("status server listening", logx.String("addr", s.addr))
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	srv, ln := s.srv, s.ln
	s.ln = nil
	s.mu.Unlock()
	if ln == nil {
		return
	}

	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Warn("status server shutdown error", logx.Err(err))
	}
	_ = ln.Close()
}

// Addr reports the actual listen address, useful with ":0".
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleStatus)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("GET /history", s.handleHistory)
	return mux
}

func (s *Server) throttle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.snap())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.snap()
	body := map[string]any{
		"status":           "ok",
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds":   int64(time.Since(s.started).Seconds()),
		"schedule_enabled": snap.Enabled,
		"descriptor":       snap.Descriptor,
	}
	if !snap.NextDueAt.IsZero() {
		body["next_due_at"] = snap.NextDueAt
	}
	if !snap.LastRunAt.IsZero() {
		body["last_run_at"] = snap.LastRunAt
	}
	writeJSON(w, http.StatusOK, body)
}

// handleMetrics serves a few counters in the Prometheus text format. Small
// enough to hand-write; pulling in a client library for four gauges is not
// worth the weight.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	snap := s.snap()
	running := 0
	if snap.Running {
		running = 1
	}
	var nextDue int64
	if !snap.NextDueAt.IsZero() {
		nextDue = snap.NextDueAt.Unix()
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	fmt.Fprintf(w, "wfrunner_runs_total %d\n", snap.Runs)
	fmt.Fprintf(w, "wfrunner_run_failures_total %d\n", snap.Failures)
	fmt.Fprintf(w, "wfrunner_run_in_progress %d\n", running)
	fmt.Fprintf(w, "wfrunner_next_due_timestamp_seconds %d\n", nextDue)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "history storage disabled", http.StatusNotFound)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, historyLimitMax)
	}

	runs, err := s.store.RecentRuns(r.Context(), limit)
	if err != nil {
		s.log.Warn("history read failed", logx.Err(err))
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []storage.RunRecord{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
