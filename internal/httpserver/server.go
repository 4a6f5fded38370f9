package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/skobkin/systop-web/internal/config"
	"github.com/skobkin/systop-web/internal/procscan"
	"github.com/skobkin/systop-web/internal/sampler"
	"github.com/skobkin/systop-web/internal/sysinfo"
	"github.com/skobkin/systop-web/internal/version"
)

const (
	readHeaderTimeout = 5 * time.Second
	wsSendQueueSize   = 16
)

// Server wraps the HTTP surface area of the application.
type Server struct {
	cfg        config.Config
	logger     *slog.Logger
	httpServer *http.Server
	sampler    *sampler.Manager
	proc       *procscan.Manager

	maxWSClients int64
	wsActive     atomic.Int64
	wsTotal      atomic.Uint64
	wsRejected   atomic.Uint64
	wsSent       atomic.Uint64
	wsDropped    atomic.Uint64
	wsConnIDs    atomic.Uint64
	requestIDs   atomic.Uint64
}

// New assembles a Server with its handlers. Either manager may be nil, in
// which case the matching endpoints report 503.
func New(cfg config.Config, logger *slog.Logger, samplerManager *sampler.Manager, procManager *procscan.Manager) *Server {
	s := &Server{
		cfg:     cfg,
		logger:  logger,
		sampler: samplerManager,
		proc:    procManager,
	}

	if cfg.WS.MaxClients > 0 {
		s.maxWSClients = int64(cfg.WS.MaxClients)
	}

	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.withRequestLogging(s.routes()),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return s
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/api/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	mux.HandleFunc("/api/readyz", s.handleReadyz)
	mux.HandleFunc("/version", s.handleVersion)
	mux.HandleFunc("/api/version", s.handleVersion)
	mux.HandleFunc("/api/system", s.handleAPISystem)
	mux.HandleFunc("/api/procs", s.handleAPIProcs)
	mux.HandleFunc("/api/procs/", s.handleAPIProcess)
	mux.HandleFunc("/ws", s.handleWS)

	if s.cfg.EnablePrometheus {
		s.registerPrometheus(mux)
	}
	if s.cfg.EnablePprof {
		registerPprof(mux)
	}
	return mux
}

// Handler exposes the fully wrapped handler chain.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins serving HTTP until shutdown is requested.
func (s *Server) Start() error {
	s.logger.Info("listening", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("listener stopped")
	return nil
}

// Shutdown attempts a graceful shutdown within the supplied context.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	info := s.readiness()
	statusCode := http.StatusOK
	if info.Status != "ok" {
		statusCode = http.StatusServiceUnavailable
	}
	s.writeJSON(w, r, statusCode, info)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	s.writeJSON(w, r, http.StatusOK, version.Current())
}

func (s *Server) handleAPISystem(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	if s.sampler == nil {
		http.Error(w, "metrics sampler unavailable", http.StatusServiceUnavailable)
		return
	}

	sample, ok := s.sampler.Latest()
	if !ok {
		http.Error(w, "no sample available", http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, r, http.StatusOK, sample)
}

func (s *Server) handleAPIProcs(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	if s.proc == nil || !s.proc.Enabled() {
		http.Error(w, "process scanner unavailable", http.StatusServiceUnavailable)
		return
	}

	snapshot, ok := s.proc.Latest()
	if !ok {
		http.Error(w, "no process data available", http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, r, http.StatusOK, snapshot)
}

func (s *Server) handleAPIProcess(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}

	const prefix = "/api/procs/"
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	if rest == "" || strings.Contains(rest, "/") {
		http.NotFound(w, r)
		return
	}

	pid, err := strconv.Atoi(rest)
	if err != nil || pid <= 0 {
		http.Error(w, "invalid pid", http.StatusBadRequest)
		return
	}

	if s.proc == nil {
		http.Error(w, "process scanner unavailable", http.StatusServiceUnavailable)
		return
	}

	proc, err := s.proc.Process(pid)
	if err != nil {
		if sysinfo.IsGone(err) {
			http.NotFound(w, r)
			return
		}
		s.loggerFromContext(r.Context()).Warn("process lookup failed", "pid", pid, "err", err)
		http.Error(w, "process data unreadable", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, r, http.StatusOK, proc)
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.loggerFromContext(r.Context()).Error("failed to encode response", "err", err)
	}
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet {
		return true
	}
	w.Header().Set("Allow", http.MethodGet)
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	return false
}

func registerPprof(mux *http.ServeMux) {
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
}

func (s *Server) readiness() readyResponse {
	var resp readyResponse

	if s.proc != nil && s.proc.Enabled() {
		ready := s.proc.Ready()
		resp.ProcsReady = &ready
	}

	if s.sampler == nil {
		resp.Status = "degraded"
		resp.Reason = "sampler_not_configured"
		return resp
	}

	if s.sampler.Ready() {
		resp.Status = "ok"
		return resp
	}

	resp.Status = "initializing"
	resp.Reason = "waiting_for_samples"
	return resp
}

type readyResponse struct {
	Status     string `json:"status"`
	ProcsReady *bool  `json:"procs_ready,omitempty"`
	Reason     string `json:"reason,omitempty"`
}
