package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oriys/optionspulse/internal/bus"
	"github.com/oriys/optionspulse/internal/config"
	"github.com/oriys/optionspulse/internal/gateway"
	"github.com/oriys/optionspulse/internal/logging"
	"github.com/oriys/optionspulse/internal/metrics"
	"github.com/oriys/optionspulse/internal/observability"
)

func daemonCmd() *cobra.Command {
	var (
		logLevel string
		addr     string
	)

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the broadcast gateway's websocket server and bus listener",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultConfig()
			if configFile != "" {
				var err error
				cfg, err = config.LoadFromFile(configFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
			}
			config.LoadFromEnv(cfg)
			if cmd.Flags().Changed("log-level") {
				cfg.Daemon.LogLevel = logLevel
			}
			if cmd.Flags().Changed("addr") {
				cfg.Gateway.Addr = addr
			}

			logging.SetLevelFromString(cfg.Daemon.LogLevel)
			logging.InitStructured(cfg.Daemon.LogFormat, cfg.Daemon.LogLevel)

			if cfg.Tracing.ServiceName == "" {
				cfg.Tracing.ServiceName = "gateway"
			}
			if err := observability.Init(context.Background(), observability.Config{
				Enabled:     cfg.Tracing.Enabled,
				Exporter:    cfg.Tracing.Exporter,
				Endpoint:    cfg.Tracing.Endpoint,
				ServiceName: cfg.Tracing.ServiceName,
				SampleRate:  cfg.Tracing.SampleRate,
			}); err != nil {
				return fmt.Errorf("init tracing: %w", err)
			}
			defer observability.Shutdown(context.Background())

			ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.BusRead)
			b, err := bus.Dial(ctx, bus.Config{Addr: cfg.Bus.Addr, Password: cfg.Bus.Password, DB: cfg.Bus.DB}, cfg.Timeouts.BusRead)
			cancel()
			if err != nil {
				return fmt.Errorf("dial bus: %w", err)
			}
			defer b.Close()

			srv := gateway.New(b, *cfg)

			if cfg.Metrics.Enabled {
				metrics.Init(cfg.Metrics.Namespace, nil)
			}

			runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			go srv.Listen(runCtx)
			defer srv.Stop()

			mux := http.NewServeMux()
			mux.Handle("/ws", srv)
			if cfg.Metrics.Enabled {
				mux.Handle("/metrics", metrics.Get().Handler())
			}

			httpServer := &http.Server{Addr: cfg.Gateway.Addr, Handler: mux}
			go func() {
				<-runCtx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.StoreOp)
				defer cancel()
				httpServer.Shutdown(shutdownCtx)
			}()

			logging.Op().Info("gateway started", "addr", cfg.Gateway.Addr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("gateway http server: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level")
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config)")

	return cmd
}
