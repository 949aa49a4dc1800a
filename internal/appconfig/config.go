package appconfig

import (
	"os"
	"path/filepath"

	"pkt.systems/atelier/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int             `mapstructure:"config_version" yaml:"config_version"`
	Workspace     WorkspaceConfig `mapstructure:"workspace" yaml:"workspace"`
	Watch         WatchConfig     `mapstructure:"watch" yaml:"watch"`
	Observer      ObserverConfig  `mapstructure:"observer" yaml:"observer"`
	Sandbox       SandboxConfig   `mapstructure:"sandbox" yaml:"sandbox"`
	HTTP          HTTPConfig      `mapstructure:"http" yaml:"http"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// WorkspaceConfig controls workspace binding and file access limits.
type WorkspaceConfig struct {
	// Root, when set, is bound and watched at startup.
	Root         string `mapstructure:"root" yaml:"root"`
	TreeMaxDepth int    `mapstructure:"tree_max_depth" yaml:"tree_max_depth"`
	SearchLimit  int    `mapstructure:"search_limit" yaml:"search_limit"`
	MaxReadBytes int64  `mapstructure:"max_read_bytes" yaml:"max_read_bytes"`
}

// WatchConfig controls the change monitor timing windows.
type WatchConfig struct {
	DebounceMillis      int `mapstructure:"debounce_ms" yaml:"debounce_ms"`
	EchoSuppressSeconds int `mapstructure:"echo_suppress_seconds" yaml:"echo_suppress_seconds"`
	EchoPurgeSeconds    int `mapstructure:"echo_purge_seconds" yaml:"echo_purge_seconds"`
}

// ObserverConfig controls the observer connection registry.
type ObserverConfig struct {
	MaxConnections           int `mapstructure:"max_connections" yaml:"max_connections"`
	HeartbeatIntervalSeconds int `mapstructure:"heartbeat_interval_seconds" yaml:"heartbeat_interval_seconds"`
	HeartbeatTimeoutSeconds  int `mapstructure:"heartbeat_timeout_seconds" yaml:"heartbeat_timeout_seconds"`
}

// SandboxConfig controls sandboxed execution.
type SandboxConfig struct {
	Python                string `mapstructure:"python" yaml:"python"`
	DefaultTimeoutSeconds int    `mapstructure:"default_timeout_seconds" yaml:"default_timeout_seconds"`
	MaxTimeoutSeconds     int    `mapstructure:"max_timeout_seconds" yaml:"max_timeout_seconds"`
	MaxOutputBytes        int64  `mapstructure:"max_output_bytes" yaml:"max_output_bytes"`
}

// HTTPConfig configures the HTTP server.
type HTTPConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	return Config{
		ConfigVersion: CurrentConfigVersion,
		Workspace: WorkspaceConfig{
			Root:         "",
			TreeMaxDepth: schema.DefaultTreeMaxDepth,
			SearchLimit:  schema.DefaultSearchLimit,
			MaxReadBytes: schema.DefaultMaxReadBytes,
		},
		Watch: WatchConfig{
			DebounceMillis:      int(schema.DefaultDebounce.Milliseconds()),
			EchoSuppressSeconds: int(schema.DefaultEchoSuppress.Seconds()),
			EchoPurgeSeconds:    int(schema.DefaultEchoPurge.Seconds()),
		},
		Observer: ObserverConfig{
			MaxConnections:           schema.DefaultMaxConnections,
			HeartbeatIntervalSeconds: int(schema.DefaultHeartbeatInterval.Seconds()),
			HeartbeatTimeoutSeconds:  int(schema.DefaultHeartbeatTimeout.Seconds()),
		},
		Sandbox: SandboxConfig{
			Python:                "python3",
			DefaultTimeoutSeconds: int(schema.DefaultExecTimeout.Seconds()),
			MaxTimeoutSeconds:     int(schema.DefaultMaxExecTimeout.Seconds()),
			MaxOutputBytes:        schema.DefaultMaxOutputBytes,
		},
		HTTP: HTTPConfig{
			Addr: ":27490",
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".atelier", "config.yaml"), nil
}
