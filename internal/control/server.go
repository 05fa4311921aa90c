// Package control serves the HTTP endpoint that completes a delegated boot.
//
// The server is the external caller of the resume function the embedded
// initializer attaches: POST /start resumes the host exactly once. It also
// reports host state and, when given a gatherer, Prometheus metrics.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/bootlatch/internal/canon"
	"github.com/roach88/bootlatch/internal/embedded"
	"github.com/roach88/bootlatch/internal/host"
)

// MaxBodyBytes bounds the size of a /start request body.
const MaxBodyBytes = 1 << 20

// Status is the body of GET /status and of a successful POST /start.
type Status struct {
	Name      string         `json:"name"`
	State     embedded.State `json:"state"`
	Booted    bool           `json:"booted"`
	Deferrals int            `json:"deferrals"`
	Resumable bool           `json:"resumable"`
	Started   bool           `json:"started"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server is the control HTTP server for one host.
type Server struct {
	host     *host.Host
	router   *mux.Router
	logger   *slog.Logger
	gatherer prometheus.Gatherer

	mu       sync.Mutex
	started  bool
	server   *http.Server
	shutdown bool
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithGatherer serves the metrics of g on GET /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// New creates a control server for h.
func New(h *host.Host, opts ...Option) *Server {
	s := &Server{
		host:   h,
		router: mux.NewRouter(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/start", s.start).Methods(http.MethodPost)
	s.router.HandleFunc("/status", s.status).Methods(http.MethodGet)
	s.router.HandleFunc("/config", s.config).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	s.router.HandleFunc("/readyz", s.readyz).Methods(http.MethodGet)
	if s.gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
}

// Handler returns the router, for tests and for embedding in another server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve accepts connections on l until Shutdown is called. It returns nil
// after a clean shutdown, including one that happened before Serve ran.
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return l.Close()
	}
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	s.logger.Info("control server listening", "addr", l.Addr().String())
	if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.shutdown = true
	srv := s.server
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Started reports whether POST /start has resumed the host.
func (s *Server) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *Server) start(w http.ResponseWriter, r *http.Request) {
	overrides, err := decodeOverrides(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("body exceeds %d bytes", tooLarge.Limit))
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		writeError(w, http.StatusConflict, "host already started")
		return
	}
	resume, ok := s.host.Resume()
	if !ok {
		writeError(w, http.StatusNotFound, "host did not delegate its start")
		return
	}
	if err := resume(overrides); err != nil {
		s.logger.Error("resume failed", "host", s.host.Name(), "error", err)
		status := http.StatusInternalServerError
		if host.IsDestroyed(err) {
			status = http.StatusGone
		}
		writeError(w, status, err.Error())
		return
	}
	s.started = true
	s.logger.Info("host resumed", "host", s.host.Name(), "override_keys", len(overrides))

	writeJSON(w, http.StatusOK, s.statusLocked())
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	st := s.statusLocked()
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) statusLocked() Status {
	_, resumable := s.host.Resume()
	return Status{
		Name:      s.host.Name(),
		State:     embedded.StateOf(s.host),
		Booted:    s.host.Booted(),
		Deferrals: s.host.ReadinessDeferrals(),
		Resumable: resumable,
		Started:   s.started,
	}
}

func (s *Server) config(w http.ResponseWriter, _ *http.Request) {
	cfg, ok := s.host.ResolveRegistration(embedded.ConfigKey)
	if !ok {
		writeError(w, http.StatusNotFound, "embedded config not registered")
		return
	}
	data, err := canon.Marshal(cfg)
	if err != nil {
		s.logger.Error("encode embedded config", "error", err)
		writeError(w, http.StatusInternalServerError, "embedded config is not encodable")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if !s.host.Booted() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "waiting"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// decodeOverrides reads an optional JSON object. An empty body or a JSON null
// means no overrides.
func decodeOverrides(body io.Reader) (map[string]any, error) {
	dec := json.NewDecoder(body)
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}
	if dec.More() {
		return nil, errors.New("body must contain a single JSON object")
	}

	switch val := v.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return val, nil
	default:
		return nil, errors.New("body must be a JSON object")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
