package appconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Load reads configuration from the provided path. If path is empty, uses DefaultConfigPath.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("workspace.root", cfg.Workspace.Root)
	v.SetDefault("workspace.tree_max_depth", cfg.Workspace.TreeMaxDepth)
	v.SetDefault("workspace.search_limit", cfg.Workspace.SearchLimit)
	v.SetDefault("workspace.max_read_bytes", cfg.Workspace.MaxReadBytes)
	v.SetDefault("watch.debounce_ms", cfg.Watch.DebounceMillis)
	v.SetDefault("watch.echo_suppress_seconds", cfg.Watch.EchoSuppressSeconds)
	v.SetDefault("watch.echo_purge_seconds", cfg.Watch.EchoPurgeSeconds)
	v.SetDefault("observer.max_connections", cfg.Observer.MaxConnections)
	v.SetDefault("observer.heartbeat_interval_seconds", cfg.Observer.HeartbeatIntervalSeconds)
	v.SetDefault("observer.heartbeat_timeout_seconds", cfg.Observer.HeartbeatTimeoutSeconds)
	v.SetDefault("sandbox.python", cfg.Sandbox.Python)
	v.SetDefault("sandbox.default_timeout_seconds", cfg.Sandbox.DefaultTimeoutSeconds)
	v.SetDefault("sandbox.max_timeout_seconds", cfg.Sandbox.MaxTimeoutSeconds)
	v.SetDefault("sandbox.max_output_bytes", cfg.Sandbox.MaxOutputBytes)
	v.SetDefault("http.addr", cfg.HTTP.Addr)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if !os.IsNotExist(err) {
				return Config{}, err
			}
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.IsSet("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	cfg.Workspace.Root = expandEnv(cfg.Workspace.Root)
	cfg.Sandbox.Python = expandEnv(cfg.Sandbox.Python)
	return cfg, nil
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := os.LookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
