// Package atelier composes the workspace service, the filesystem monitor,
// the sandboxed runner and the HTTP observer API into one server.
package atelier

import (
	"context"
	"errors"
	"sync"
	"time"

	"pkt.systems/atelier/core"
	"pkt.systems/atelier/httpapi"
	"pkt.systems/atelier/internal/echo"
	"pkt.systems/atelier/internal/sandbox"
	"pkt.systems/atelier/internal/watcher"
	"pkt.systems/atelier/schema"
	"pkt.systems/pslog"
)

// Server composes the HTTP API, the workspace monitor, and the sandbox runner.
type Server interface {
	Start(ctx context.Context) error
	Wait() error
	Stop(ctx context.Context) error
}

// ServerConfig configures the compositor.
type ServerConfig struct {
	Service schema.ServiceConfig
	HTTP    httpapi.Config
	Sandbox sandbox.Config
}

// ServerDeps captures optional dependency overrides. Zero values get
// production implementations.
type ServerDeps struct {
	Logger    pslog.Logger
	Runner    core.Runner
	EventSink core.EventSink
}

// New constructs an atelier server.
func New(cfg ServerConfig, deps ServerDeps) (Server, error) {
	normalized, err := schema.NormalizeServiceConfig(cfg.Service)
	if err != nil {
		return nil, err
	}
	cfg.Service = normalized
	if cfg.HTTP.HeartbeatInterval <= 0 {
		cfg.HTTP.HeartbeatInterval = cfg.Service.HeartbeatInterval
	}

	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}

	registry := echo.New(cfg.Service.EchoSuppress, cfg.Service.EchoPurge, logger)
	monitor := watcher.New(cfg.Service.Debounce, registry, logger)
	hub := httpapi.NewHub(cfg.Service.MaxConnections, cfg.Service.HeartbeatTimeout, logger)

	runner := deps.Runner
	if runner == nil {
		if cfg.Sandbox.MaxOutputBytes <= 0 {
			cfg.Sandbox.MaxOutputBytes = cfg.Service.MaxOutputBytes
		}
		runner = sandbox.New(cfg.Sandbox, logger)
	}

	var sink core.EventSink = hub
	if deps.EventSink != nil {
		sink = eventFanout{sinks: []core.EventSink{hub, deps.EventSink}}
	}

	service, err := core.NewService(cfg.Service, core.ServiceDeps{
		Monitor:   monitor,
		Echo:      registry,
		Runner:    runner,
		EventSink: sink,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	httpSrv := httpapi.NewServer(cfg.HTTP, service, hub)

	return &compositeServer{
		cfg:     cfg,
		service: service,
		monitor: monitor,
		hub:     hub,
		httpSrv: httpSrv,
		sink:    sink,
	}, nil
}

type compositeServer struct {
	cfg     ServerConfig
	service core.Service
	monitor *watcher.Monitor
	hub     *httpapi.Hub
	httpSrv *httpapi.Server
	sink    core.EventSink
	logger  pslog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	errCh   chan error
	started bool
}

func (s *compositeServer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		pslog.Ctx(ctx).Warn("server start rejected", "reason", "already started")
		return errors.New("server already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.errCh = make(chan error, 2)
	s.started = true
	s.logger = pslog.Ctx(s.ctx)
	s.mu.Unlock()

	log := s.logger
	log.Info("server start", "http_addr", s.cfg.HTTP.Addr, "workspace", s.cfg.Service.WorkspaceRoot)

	// Change events produced before this point had nowhere to go and were
	// dropped; from here on they reach the observers.
	s.monitor.SetSink(s.sink)

	if s.cfg.Service.WorkspaceRoot != "" {
		if _, err := s.service.OpenWorkspace(s.ctx, schema.OpenWorkspaceRequest{Path: s.cfg.Service.WorkspaceRoot}); err != nil {
			s.cancel()
			return err
		}
	}

	go func() {
		if err := httpapi.ListenAndServe(s.ctx, s.cfg.HTTP.Addr, s.httpSrv.Handler()); err != nil {
			log.Error("http server failed", "err", err)
			s.errCh <- err
		}
	}()
	go s.sweepLoop(s.ctx)
	return nil
}

func (s *compositeServer) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.HTTP.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.hub.Sweep()
		}
	}
}

func (s *compositeServer) Wait() error {
	s.mu.Lock()
	ctx := s.ctx
	errCh := s.errCh
	started := s.started
	s.mu.Unlock()
	if !started {
		return errors.New("server not started")
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil {
			pslog.Ctx(ctx).Error("server stopped", "err", err)
			_ = s.Stop(context.Background())
			return err
		}
		return nil
	}
}

func (s *compositeServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	started := s.started
	log := s.logger
	s.mu.Unlock()
	if !started {
		return nil
	}
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	log.Info("server stop requested")
	if err := s.monitor.Stop(); err != nil {
		log.Warn("server monitor stop failed", "err", err)
	}
	if cancel != nil {
		cancel()
	}
	if ctx == nil {
		log.Info("server stop completed")
		return nil
	}
	select {
	case <-ctx.Done():
		log.Warn("server stop timed out", "err", ctx.Err())
		return ctx.Err()
	case <-s.ctx.Done():
		log.Info("server stopped")
		return nil
	}
}
