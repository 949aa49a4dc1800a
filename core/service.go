package core

import (
	"context"
	"errors"
	"sync"

	"pkt.systems/atelier/internal/echo"
	"pkt.systems/atelier/internal/logx"
	"pkt.systems/atelier/schema"
	"pkt.systems/pslog"
)

// service implements the core service behavior.
type service struct {
	cfg     schema.ServiceConfig
	monitor Monitor
	echo    *echo.Registry
	runner  Runner
	sink    EventSink
	logger  pslog.Logger

	mu    sync.RWMutex
	guard *Guard
}

// ServiceDeps carries the collaborators the service needs. Monitor, Echo and
// Runner are required; EventSink and Logger have working defaults.
type ServiceDeps struct {
	Monitor   Monitor
	Echo      *echo.Registry
	Runner    Runner
	EventSink EventSink
	Logger    pslog.Logger
}

// NewService constructs the core service implementation.
func NewService(cfg schema.ServiceConfig, deps ServiceDeps) (Service, error) {
	normalized, err := schema.NormalizeServiceConfig(cfg)
	if err != nil {
		return nil, err
	}
	cfg = normalized
	if deps.Monitor == nil {
		return nil, errors.New("monitor is required")
	}
	if deps.Echo == nil {
		return nil, errors.New("echo registry is required")
	}
	if deps.Runner == nil {
		return nil, errors.New("runner is required")
	}
	if deps.EventSink == nil {
		deps.EventSink = NopEventSink{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &service{
		cfg:     cfg,
		monitor: deps.Monitor,
		echo:    deps.Echo,
		runner:  deps.Runner,
		sink:    deps.EventSink,
		logger:  logger,
	}, nil
}

func (s *service) OpenWorkspace(ctx context.Context, req schema.OpenWorkspaceRequest) (schema.OpenWorkspaceResponse, error) {
	if ctx == nil {
		return schema.OpenWorkspaceResponse{}, errors.New("missing context")
	}
	path := req.Path
	if path == "" {
		path = s.cfg.WorkspaceRoot
	}
	if path == "" {
		return schema.OpenWorkspaceResponse{}, schema.ErrInvalidRequest
	}
	guard, err := NewGuard(path)
	if err != nil {
		return schema.OpenWorkspaceResponse{}, err
	}
	log := logx.WithPath(ctx, guard.Root())
	if err := s.monitor.Watch(guard.Root()); err != nil {
		log.Warn("service workspace open failed", "err", err)
		return schema.OpenWorkspaceResponse{}, err
	}
	s.mu.Lock()
	s.guard = guard
	s.mu.Unlock()
	tree, err := buildTree(guard.Root(), s.cfg.TreeMaxDepth)
	if err != nil {
		return schema.OpenWorkspaceResponse{}, err
	}
	log.Info("service workspace open")
	return schema.OpenWorkspaceResponse{Root: guard.Root(), Tree: tree}, nil
}

func (s *service) CloseWorkspace(ctx context.Context, req schema.CloseWorkspaceRequest) (schema.CloseWorkspaceResponse, error) {
	if ctx == nil {
		return schema.CloseWorkspaceResponse{}, errors.New("missing context")
	}
	s.mu.Lock()
	guard := s.guard
	s.guard = nil
	s.mu.Unlock()
	if guard == nil {
		return schema.CloseWorkspaceResponse{}, schema.ErrWorkspaceNotOpen
	}
	if err := s.monitor.Stop(); err != nil {
		return schema.CloseWorkspaceResponse{}, err
	}
	pslog.Ctx(ctx).Info("service workspace close", "root", guard.Root())
	return schema.CloseWorkspaceResponse{}, nil
}

func (s *service) GetTree(ctx context.Context, req schema.GetTreeRequest) (schema.GetTreeResponse, error) {
	if ctx == nil {
		return schema.GetTreeResponse{}, errors.New("missing context")
	}
	guard, err := s.currentGuard()
	if err != nil {
		return schema.GetTreeResponse{}, err
	}
	tree, err := buildTree(guard.Root(), s.cfg.TreeMaxDepth)
	if err != nil {
		return schema.GetTreeResponse{}, err
	}
	return schema.GetTreeResponse{Root: guard.Root(), Tree: tree}, nil
}

func (s *service) currentGuard() (*Guard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.guard == nil {
		return nil, schema.ErrWorkspaceNotOpen
	}
	return s.guard, nil
}
