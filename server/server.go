// Package server exposes the deploy/run boundary over HTTP.
//
// A Server holds the node registry, a timeline store shared by every
// backend, and the set of deployed flows. Deploying validates and
// compiles a flow document and persists it under the flows directory;
// running executes the compiled program against the requested backend
// and returns the output, per-node states, and the timeline.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/autograph-dev/autograph/flow"
	"github.com/autograph-dev/autograph/flow/backend"
	"github.com/autograph-dev/autograph/flow/emit"
	"github.com/autograph-dev/autograph/flow/store"
)

// Server serves the flow deploy/run API.
type Server struct {
	app      *fiber.App
	registry *flow.Registry
	store    store.TimelineStore
	emitter  emit.Emitter
	metrics  *flow.Metrics
	prom     *prometheus.Registry
	log      *slog.Logger
	flowsDir string
	workers  int

	mu      sync.RWMutex
	flows   map[string]*deployment
	engines map[string]*flow.Engine
}

type deployment struct {
	flow *flow.Flow
	prog *flow.Program
}

// Option configures a Server.
type Option func(*Server)

// WithStore sets the timeline store shared by all runs.
func WithStore(s store.TimelineStore) Option {
	return func(srv *Server) { srv.store = s }
}

// WithEmitter sets the event emitter for all runs.
func WithEmitter(e emit.Emitter) Option {
	return func(srv *Server) { srv.emitter = e }
}

// WithRegistry sets the node registry. Defaults to Builtins.
func WithRegistry(r *flow.Registry) Option {
	return func(srv *Server) { srv.registry = r }
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(srv *Server) { srv.log = l }
}

// WithFlowsDir sets the directory deployed flows are persisted under.
// An empty dir keeps deployments in memory only.
func WithFlowsDir(dir string) Option {
	return func(srv *Server) { srv.flowsDir = dir }
}

// WithWorkers bounds per-run execution concurrency.
func WithWorkers(n int) Option {
	return func(srv *Server) { srv.workers = n }
}

// New creates a Server. Call Listen to serve.
func New(opts ...Option) *Server {
	srv := &Server{
		registry: flow.Builtins(),
		store:    store.NewMemory(),
		emitter:  emit.NewNullEmitter(),
		prom:     prometheus.NewRegistry(),
		log:      slog.Default(),
		flowsDir: "flows",
		workers:  4,
		flows:    make(map[string]*deployment),
		engines:  make(map[string]*flow.Engine),
	}
	for _, opt := range opts {
		opt(srv)
	}
	srv.metrics = flow.NewMetrics(srv.prom)
	srv.prom.MustRegister(collectors.NewGoCollector())

	srv.app = fiber.New(fiber.Config{AppName: "autograph"})
	srv.app.Use(srv.requestLogger)

	srv.app.Post("/deploy/:flow_name", srv.handleDeploy)
	srv.app.Post("/run/:flow_name", srv.handleRun)
	srv.app.Get("/runs/:run_id/timeline", srv.handleTimeline)
	srv.app.Get("/runs", srv.handleListRuns)
	srv.app.Get("/kinds", srv.handleKinds)
	srv.app.Get("/metrics", adaptor.HTTPHandler(
		promhttp.HandlerFor(srv.prom, promhttp.HandlerOpts{})))

	return srv
}

// Listen serves until the listener fails or Shutdown is called.
func (s *Server) Listen(addr string) error {
	s.log.Info("listening", "addr", addr, "flows_dir", s.flowsDir)
	return s.app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// App returns the underlying fiber app, for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) requestLogger(c fiber.Ctx) error {
	started := time.Now()
	err := c.Next()
	s.log.Info("request",
		"method", c.Method(),
		"path", c.Path(),
		"status", c.Response().StatusCode(),
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return err
}

// engineFor returns the shared engine for a backend hint. Engines are
// cached per backend name so every run lands in the same store and
// metrics registry.
func (s *Server) engineFor(hint flow.Hint) (*flow.Engine, error) {
	b, err := backend.Select(hint)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if eng, ok := s.engines[b.Name()]; ok {
		return eng, nil
	}
	eng := flow.New(b,
		flow.WithStore(s.store),
		flow.WithEmitter(s.emitter),
		flow.WithMetrics(s.metrics),
		flow.WithWorkers(s.workers),
	)
	s.engines[b.Name()] = eng
	return eng, nil
}

// deploymentFor returns a deployed flow, falling back to the flows
// directory for deployments from a previous process.
func (s *Server) deploymentFor(name string) (*deployment, error) {
	s.mu.RLock()
	dep, ok := s.flows[name]
	s.mu.RUnlock()
	if ok {
		return dep, nil
	}
	if s.flowsDir == "" {
		return nil, fmt.Errorf("flow %q is not deployed", name)
	}

	data, err := os.ReadFile(filepath.Join(s.flowsDir, name+".flow.json"))
	if err != nil {
		return nil, fmt.Errorf("flow %q is not deployed", name)
	}
	f, err := flow.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("stored flow %q is corrupt: %w", name, err)
	}
	prog, err := flow.Compile(f, s.registry)
	if err != nil {
		return nil, err
	}

	dep = &deployment{flow: f, prog: prog}
	s.mu.Lock()
	s.flows[name] = dep
	s.mu.Unlock()
	return dep, nil
}

func (s *Server) persistDeployment(name string, f *flow.Flow, prog *flow.Program) error {
	if s.flowsDir == "" {
		return nil
	}
	if err := os.MkdirAll(s.flowsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create flows dir: %w", err)
	}
	doc, err := f.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(s.flowsDir, name+".flow.json"), doc, 0o644); err != nil {
		return fmt.Errorf("failed to persist flow: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.flowsDir, name+".src"), []byte(prog.Source), 0o644); err != nil {
		return fmt.Errorf("failed to persist generated source: %w", err)
	}
	return nil
}
