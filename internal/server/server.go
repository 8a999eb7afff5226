package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/semaphore"

	"github.com/efebarandurmaz/hoist/internal/concat"
	"github.com/efebarandurmaz/hoist/internal/depgraph"
	"github.com/efebarandurmaz/hoist/internal/ir"
	"github.com/efebarandurmaz/hoist/internal/metrics"
	"github.com/efebarandurmaz/hoist/internal/pipeline"
)

// Config configures a Server.
type Config struct {
	Addr    string // Address to listen on (default: ":8080")
	Version string
	// Concatenate is the default for requests without a concatenate
	// parameter.
	Concatenate bool
	// MaxBodyBytes limits graph documents (default: 32 MiB).
	MaxBodyBytes int64
	// MaxConcurrentPasses limits passes running at once (default: 4).
	MaxConcurrentPasses int64
	Shutdown            *ShutdownConfig
	Logger              *slog.Logger
}

// OptimizeResponse is the body returned by POST /v1/optimize.
type OptimizeResponse struct {
	PassID string              `json:"pass_id,omitempty"`
	Report *metrics.PassReport `json:"report"`
	Export string              `json:"export,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server serves the optimize API next to health probes and metrics.
type Server struct {
	config   Config
	runner   *pipeline.Runner
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	passes   *semaphore.Weighted

	Health   *HealthServer
	Shutdown *ShutdownHandler

	mu       sync.Mutex
	lastPass time.Time
	lastErr  error
}

// New creates a server. gatherer may be nil to disable /metrics.
func New(cfg *Config, runner *pipeline.Runner, gatherer prometheus.Gatherer) *Server {
	c := Config{Concatenate: true}
	if cfg != nil {
		c = *cfg
	}
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 32 << 20
	}
	if c.MaxConcurrentPasses <= 0 {
		c.MaxConcurrentPasses = 4
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	shutdownCfg := c.Shutdown
	if shutdownCfg == nil {
		shutdownCfg = DefaultShutdownConfig()
	}
	if shutdownCfg.Logger == nil {
		sc := *shutdownCfg
		sc.Logger = logger
		shutdownCfg = &sc
	}

	s := &Server{
		config:   c,
		runner:   runner,
		gatherer: gatherer,
		logger:   logger.WithGroup("server"),
		passes:   semaphore.NewWeighted(c.MaxConcurrentPasses),
		Health:   NewHealthServer(c.Version),
		Shutdown: NewShutdownHandler(shutdownCfg),
	}
	s.Health.RegisterCheck("pass", PassHealthChecker(s.LastPass))
	return s
}

// LastPass returns when the most recent pass finished and its error.
func (s *Server) LastPass() (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPass, s.lastErr
}

func (s *Server) recordPass(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastPass = time.Now()
	s.lastErr = err
}

// Handler returns the routes of the service.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Health.Mount(mux)
	mux.HandleFunc("POST /v1/optimize", s.handleOptimize)
	mux.HandleFunc("GET /v1/passes/{id}/groups", s.handleGroups)
	mux.HandleFunc("GET /v1/passes/{id}/importers", s.handleImporters)
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// Start listens on the configured address and begins handling shutdown
// signals. It returns once the listener is bound.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Addr, err)
	}
	return s.Serve(ln)
}

// Serve handles requests on ln in the background.
func (s *Server) Serve(ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      5 * time.Minute,
	}
	s.Shutdown.Register(HTTPServerShutdownHook("http-server", srv.Shutdown))
	s.Shutdown.Start()

	// Stop reporting ready as soon as shutdown begins
	go func() {
		<-s.Shutdown.ShutdownCh()
		s.Health.SetReady(false)
	}()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server stopped", "error", err)
			s.Health.SetLive(false)
			s.Shutdown.Shutdown()
		}
	}()

	s.Health.SetReady(true)
	s.logger.Info("listening", "addr", ln.Addr().String())
	return nil
}

// Wait blocks until shutdown starts and then gives the hooks timeout to
// finish.
func (s *Server) Wait(timeout time.Duration) error {
	<-s.Shutdown.ShutdownCh()
	if !s.Shutdown.WaitWithTimeout(timeout) {
		return fmt.Errorf("shutdown did not finish within %s", timeout)
	}
	return nil
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	export := q.Get("export")
	if export != "" && !slices.Contains(depgraph.Formats, export) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown export format %q", export))
		return
	}
	concatenate := s.config.Concatenate
	if v := q.Get("concatenate"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid concatenate value %q", v))
			return
		}
		concatenate = b
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, err)
			return
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}
	doc, err := ir.ParseDocument(data, documentExt(r.Header.Get("Content-Type")))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("parse graph document: %w", err))
		return
	}
	mg, cg, err := doc.Build()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	if err := s.passes.Acquire(r.Context(), 1); err != nil {
		writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	defer s.passes.Release(1)

	out, err := s.runner.Run(r.Context(), mg, cg, pipeline.Options{
		Source:      "request",
		Concatenate: concatenate,
		Export:      export,
	})
	s.recordPass(err)
	if err != nil {
		status := http.StatusInternalServerError
		var invariant *concat.InvariantError
		if errors.As(err, &invariant) {
			status = http.StatusUnprocessableEntity
		}
		s.logger.Error("optimize failed", "error", err)
		writeError(w, status, err)
		return
	}

	resp := OptimizeResponse{Report: out.Report, Export: string(out.Export)}
	if out.Result != nil {
		resp.PassID = out.Result.PassID
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	if s.runner.Repository == nil {
		writeError(w, http.StatusNotFound, errors.New("graph store is not configured"))
		return
	}
	groups, err := s.runner.Repository.LoadGroups(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if groups == nil {
		groups = []depgraph.Group{}
	}
	writeJSON(w, http.StatusOK, groups)
}

func (s *Server) handleImporters(w http.ResponseWriter, r *http.Request) {
	if s.runner.Repository == nil {
		writeError(w, http.StatusNotFound, errors.New("graph store is not configured"))
		return
	}
	module := r.URL.Query().Get("module")
	if module == "" {
		writeError(w, http.StatusBadRequest, errors.New("module parameter is required"))
		return
	}
	importers, err := s.runner.Repository.QueryImporters(r.Context(), r.PathValue("id"), module)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if importers == nil {
		importers = []string{}
	}
	writeJSON(w, http.StatusOK, importers)
}

// documentExt maps a request content type to the extension ParseDocument
// understands.
func documentExt(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ".json"
	}
	switch mediaType {
	case "application/yaml", "application/x-yaml", "text/yaml", "text/x-yaml":
		return ".yaml"
	default:
		return ".json"
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// Close shuts the server down outside of signal handling.
func (s *Server) Close(ctx context.Context) error {
	s.Shutdown.Shutdown()
	select {
	case <-s.Shutdown.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
