package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/lacquerai/mathutils/internal/dispatch"
	"github.com/lacquerai/mathutils/internal/execcontext"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Config holds the server configuration
type Config struct {
	Host            string
	Port            int
	EnableMetrics   bool
	EnableCORS      bool
	WasmFile        string
	MaxHistory      int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a default server configuration
func DefaultConfig() *Config {
	return &Config{
		Host:            "localhost",
		Port:            8080,
		EnableMetrics:   true,
		EnableCORS:      true,
		MaxHistory:      1000,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// RunManager executes dispatcher runs and keeps a bounded history of them
type RunManager struct {
	runs       map[string]*execcontext.Invocation
	order      []string
	maxHistory int
	mu         sync.RWMutex

	// Metrics
	runsTotal   *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
}

// NewRunManagerWithRegistry creates a run manager with a custom registry.
// A nil registerer leaves the metrics unregistered.
func NewRunManagerWithRegistry(maxHistory int, registerer prometheus.Registerer) *RunManager {
	if maxHistory <= 0 {
		maxHistory = DefaultConfig().MaxHistory
	}

	rm := &RunManager{
		runs:       make(map[string]*execcontext.Invocation),
		maxHistory: maxHistory,

		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mathutils_runs_total",
			Help: "Total dispatcher runs by source, mode and status",
		}, []string{"source", "mode", "status"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mathutils_run_duration_seconds",
			Help:    "Dispatcher run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 8),
		}, []string{"source"}),
	}

	if registerer != nil {
		registerer.MustRegister(rm.runsTotal)
		registerer.MustRegister(rm.runDuration)
	}

	return rm
}

// Execute runs the dispatcher for args and records the invocation
func (rm *RunManager) Execute(ctx context.Context, source execcontext.Source, args []string) (*execcontext.Invocation, *dispatch.Outcome, error) {
	inv := execcontext.NewInvocation(ctx, source, args)
	rm.track(inv)

	out, err := inv.Execute()

	rec := inv.Snapshot()
	mode := string(rec.Mode)
	if mode == "" {
		mode = "none"
	}
	rm.runsTotal.WithLabelValues(string(source), mode, string(rec.Status)).Inc()
	rm.runDuration.WithLabelValues(string(source)).Observe(rec.Duration.Seconds())

	return inv, out, err
}

// track stores inv, evicting the oldest runs beyond maxHistory
func (rm *RunManager) track(inv *execcontext.Invocation) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.runs[inv.RunID] = inv
	rm.order = append(rm.order, inv.RunID)

	for len(rm.order) > rm.maxHistory {
		oldest := rm.order[0]
		rm.order = rm.order[1:]
		delete(rm.runs, oldest)
	}
}

// Get retrieves a run by ID
func (rm *RunManager) Get(runID string) (execcontext.Record, bool) {
	rm.mu.RLock()
	inv, exists := rm.runs[runID]
	rm.mu.RUnlock()

	if !exists {
		return execcontext.Record{}, false
	}
	return inv.Snapshot(), true
}

// Count returns the number of runs held in history
func (rm *RunManager) Count() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.runs)
}

// Server is the mathutils HTTP host
type Server struct {
	config   *Config
	manager  *RunManager
	metrics  *prometheus.Registry
	server   *http.Server
	listener net.Listener
	upgrader websocket.Upgrader

	router     http.Handler
	routerOnce sync.Once
}

// New creates a new server
func New(config *Config) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if config.WasmFile != "" {
		info, err := os.Stat(config.WasmFile)
		if err != nil {
			return nil, fmt.Errorf("failed to stat wasm module: %w", err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("wasm module %s is a directory", config.WasmFile)
		}
	}

	metrics := prometheus.NewRegistry()

	server := &Server{
		config:  config,
		manager: NewRunManagerWithRegistry(config.MaxHistory, metrics),
		metrics: metrics,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return config.EnableCORS // Allow all origins if CORS enabled
			},
		},
	}

	return server, nil
}

// Handler returns the HTTP handler serving all routes
func (s *Server) Handler() http.Handler {
	s.routerOnce.Do(func() {
		s.router = s.routes()
	})
	return s.router
}

func (s *Server) routes() http.Handler {
	router := mux.NewRouter()

	// Apply CORS middleware to all routes if enabled
	if s.config.EnableCORS {
		router.Use(s.corsMiddleware)
	}

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.loggingMiddleware)

	api.HandleFunc("/run", s.run).Methods("POST")
	api.HandleFunc("/runs/{runId}", s.getRun).Methods("GET")
	api.HandleFunc("/operations/{op}", s.operation).Methods("GET")
	api.HandleFunc("/stream", s.stream).Methods("GET")

	// Handle OPTIONS for CORS preflight
	if s.config.EnableCORS {
		api.Methods("OPTIONS").HandlerFunc(s.handleOptions)
	}

	if s.config.EnableMetrics {
		router.Handle("/metrics", promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{}))
	}

	if s.config.WasmFile != "" {
		router.HandleFunc("/mathutils.wasm", s.serveWasm).Methods("GET")
	}

	router.HandleFunc("/health", s.healthCheck)

	return router
}

// Start binds the listener and serves in the background
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener

	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	log.Info().
		Str("addr", s.GetAddr()).
		Bool("metrics", s.config.EnableMetrics).
		Str("wasm", s.config.WasmFile).
		Msg("Starting mathutils server")

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Server stopped unexpectedly")
		}
	}()

	return nil
}

// Stop stops the HTTP server gracefully
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	log.Info().Msg("Shutting down server...")
	return s.server.Shutdown(ctx)
}

// StartWithGracefulShutdown starts the server and blocks until ctx is done
// or the process receives SIGINT or SIGTERM
func (s *Server) StartWithGracefulShutdown(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	return s.Wait(ctx)
}

// Wait blocks until ctx is done or the process receives SIGINT or SIGTERM,
// then shuts the server down
func (s *Server) Wait(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	log.Info().Msg("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	log.Info().Msg("Server shutdown complete")
	return nil
}

// GetAddr returns the server address, including the port assigned when
// the configured port is 0
func (s *Server) GetAddr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

// GetRunCount returns the number of runs held in history
func (s *Server) GetRunCount() int {
	return s.manager.Count()
}

// handleOptions handles CORS preflight requests
func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	// CORS headers are already set by middleware
	w.WriteHeader(http.StatusOK)
}
