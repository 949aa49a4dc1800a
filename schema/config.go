package schema

import (
	"errors"
	"time"
)

// ServiceConfig defines timing windows and limits for the core service.
// The debounce and echo durations are tuned values, not protocol constants;
// they are configurable but the two-tier echo behavior itself is fixed.
type ServiceConfig struct {
	// WorkspaceRoot, when set, is bound and watched at startup. Leave empty
	// to bind a root later through OpenWorkspace.
	WorkspaceRoot      string
	Debounce           time.Duration
	EchoSuppress       time.Duration
	EchoPurge          time.Duration
	HeartbeatInterval  time.Duration
	HeartbeatTimeout   time.Duration
	MaxConnections     int
	DefaultExecTimeout time.Duration
	MaxExecTimeout     time.Duration
	MaxReadBytes       int64
	MaxOutputBytes     int64
	TreeMaxDepth       int
	SearchLimit        int
}

// Defaults for ServiceConfig fields.
const (
	DefaultDebounce           = 500 * time.Millisecond
	DefaultEchoSuppress       = 2 * time.Second
	DefaultEchoPurge          = 5 * time.Second
	DefaultHeartbeatInterval  = 10 * time.Second
	DefaultHeartbeatTimeout   = 30 * time.Second
	DefaultMaxConnections     = 64
	DefaultExecTimeout        = 15 * time.Second
	DefaultMaxExecTimeout     = 120 * time.Second
	DefaultMaxReadBytes       = 8 << 20
	DefaultMaxOutputBytes     = 1 << 20
	DefaultTreeMaxDepth       = 10
	DefaultSearchLimit        = 50
)

// NormalizeServiceConfig applies defaults and validates the config.
func NormalizeServiceConfig(cfg ServiceConfig) (ServiceConfig, error) {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.EchoSuppress <= 0 {
		cfg.EchoSuppress = DefaultEchoSuppress
	}
	if cfg.EchoPurge <= 0 {
		cfg.EchoPurge = DefaultEchoPurge
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = DefaultMaxConnections
	}
	if cfg.DefaultExecTimeout <= 0 {
		cfg.DefaultExecTimeout = DefaultExecTimeout
	}
	if cfg.MaxExecTimeout <= 0 {
		cfg.MaxExecTimeout = DefaultMaxExecTimeout
	}
	if cfg.MaxReadBytes <= 0 {
		cfg.MaxReadBytes = DefaultMaxReadBytes
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = DefaultMaxOutputBytes
	}
	if cfg.TreeMaxDepth <= 0 {
		cfg.TreeMaxDepth = DefaultTreeMaxDepth
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = DefaultSearchLimit
	}
	if cfg.EchoPurge <= cfg.EchoSuppress {
		return ServiceConfig{}, errors.New("echo purge window must exceed suppress window")
	}
	if cfg.HeartbeatTimeout <= cfg.HeartbeatInterval {
		return ServiceConfig{}, errors.New("heartbeat timeout must exceed interval")
	}
	if cfg.MaxExecTimeout < cfg.DefaultExecTimeout {
		return ServiceConfig{}, errors.New("max exec timeout must not be below default")
	}
	return cfg, nil
}
