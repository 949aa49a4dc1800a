package main

import (
	"context"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/atelier"
	"pkt.systems/atelier/httpapi"
	"pkt.systems/atelier/internal/appconfig"
	"pkt.systems/atelier/internal/sandbox"
	"pkt.systems/atelier/schema"
	"pkt.systems/pslog"
)

func newServeCmd() *cobra.Command {
	var cfgPath string
	var workspace string
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the atelier server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			if workspace != "" {
				cfg.Workspace.Root = workspace
			}
			if addr != "" {
				cfg.HTTP.Addr = addr
			}
			if _, err := exec.LookPath(cfg.Sandbox.Python); err != nil {
				logger.Warn("sandbox interpreter not found; code execution will fail", "python", cfg.Sandbox.Python, "err", err)
			}

			serverCfg := atelier.ServerConfig{
				Service: toServiceConfig(cfg),
				HTTP: httpapi.Config{
					Addr:              cfg.HTTP.Addr,
					HeartbeatInterval: time.Duration(cfg.Observer.HeartbeatIntervalSeconds) * time.Second,
				},
				Sandbox: sandbox.Config{
					PythonPath:     cfg.Sandbox.Python,
					MaxOutputBytes: cfg.Sandbox.MaxOutputBytes,
				},
			}
			server, err := atelier.New(serverCfg, atelier.ServerDeps{Logger: logger})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Stop(stopCtx); err != nil {
					logger.Warn("server stop failed", "err", err)
				}
			}()
			logger.Info("http server listening", "addr", serverCfg.HTTP.Addr)
			if err := server.Start(ctx); err != nil {
				return err
			}
			return server.Wait()
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVarP(&workspace, "workspace", "w", "", "workspace root to bind at startup")
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "http listen address")
	return cmd
}

func toServiceConfig(cfg appconfig.Config) schema.ServiceConfig {
	return schema.ServiceConfig{
		WorkspaceRoot:      cfg.Workspace.Root,
		Debounce:           time.Duration(cfg.Watch.DebounceMillis) * time.Millisecond,
		EchoSuppress:       time.Duration(cfg.Watch.EchoSuppressSeconds) * time.Second,
		EchoPurge:          time.Duration(cfg.Watch.EchoPurgeSeconds) * time.Second,
		HeartbeatInterval:  time.Duration(cfg.Observer.HeartbeatIntervalSeconds) * time.Second,
		HeartbeatTimeout:   time.Duration(cfg.Observer.HeartbeatTimeoutSeconds) * time.Second,
		MaxConnections:     cfg.Observer.MaxConnections,
		DefaultExecTimeout: time.Duration(cfg.Sandbox.DefaultTimeoutSeconds) * time.Second,
		MaxExecTimeout:     time.Duration(cfg.Sandbox.MaxTimeoutSeconds) * time.Second,
		MaxReadBytes:       cfg.Workspace.MaxReadBytes,
		MaxOutputBytes:     cfg.Sandbox.MaxOutputBytes,
		TreeMaxDepth:       cfg.Workspace.TreeMaxDepth,
		SearchLimit:        cfg.Workspace.SearchLimit,
	}
}
