package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oriys/optionspulse/internal/bus"
	"github.com/oriys/optionspulse/internal/config"
	"github.com/oriys/optionspulse/internal/dispatcher"
	"github.com/oriys/optionspulse/internal/enrichment"
	"github.com/oriys/optionspulse/internal/logging"
	"github.com/oriys/optionspulse/internal/metrics"
	"github.com/oriys/optionspulse/internal/observability"
	"github.com/oriys/optionspulse/internal/store"
)

func daemonCmd() *cobra.Command {
	var (
		logLevel string
		role     string
	)

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the subscriber-dispatcher and/or enrichment worker pool",
		Long:  "Run S and W as cooperating goroutine groups, or just one via --role",
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

			logging.SetLevelFromString(cfg.Daemon.LogLevel)
			logging.InitStructured(cfg.Daemon.LogFormat, cfg.Daemon.LogLevel)

			if cfg.Tracing.ServiceName == "" {
				cfg.Tracing.ServiceName = "ingestor"
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

			runSubscribe := role == "" || role == "subscribe"
			runWork := role == "" || role == "work"

			var queueDepth func() float64
			if runWork {
				queueDepth = func() float64 {
					ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.CacheOp)
					defer cancel()
					n, err := b.Depth(ctx, enrichment.Queue)
					if err != nil {
						return 0
					}
					return float64(n)
				}
			}
			if cfg.Metrics.Enabled {
				metrics.Init(cfg.Metrics.Namespace, queueDepth)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if runWork {
				s, err := store.New(context.Background(), cfg.Store, cfg.Timeouts.StoreOp)
				if err != nil {
					return fmt.Errorf("connect store: %w", err)
				}
				defer s.Close(context.Background())
				if err := s.Migrate(context.Background()); err != nil {
					return fmt.Errorf("migrate store: %w", err)
				}

				pool := enrichment.New(b, s, *cfg)
				pool.Start()
				defer pool.Stop()
			}

			if runSubscribe {
				d := dispatcher.New(b, *cfg)
				go d.Run(ctx)
				defer d.Stop()
			}

			logging.Op().Info("ingestor started", "role", role)

			<-ctx.Done()
			logging.Op().Info("shutdown signal received")
			time.Sleep(100 * time.Millisecond)
			return nil
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level")
	cmd.Flags().StringVar(&role, "role", "", "Run only \"subscribe\" or \"work\"; empty runs both")

	return cmd
}
