package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gezibash/arc-rosca/internal/config"
	"github.com/gezibash/arc-rosca/internal/node"
	"github.com/gezibash/arc-rosca/internal/observability"
	"github.com/gezibash/arc-rosca/internal/server"
	"github.com/gezibash/arc-rosca/internal/sweeper"
)

func newNodeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Run a rosca node",
	}
	cmd.AddCommand(newStartCmd(v))
	return cmd
}

func newStartCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Serve the rosca HTTP API and gRPC health checks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd, v)
		},
	}
	config.BindNodeFlags(cmd, v)
	return cmd
}

func runStart(cmd *cobra.Command, v *viper.Viper) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(v, configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if noSweep, _ := cmd.Flags().GetBool("no-sweep"); noSweep {
		cfg.Sweeper.Enabled = false
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	obs, err := observability.New(ctx, observability.Settings{
		LogLevel:       cfg.Observability.LogLevel,
		LogFormat:      cfg.Observability.LogFormat,
		OTLPEndpoint:   cfg.Observability.OTLPEndpoint,
		OTLPProtocol:   cfg.Observability.OTLPProtocol,
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: version,
		SampleRatio:    cfg.Observability.SampleRatio,
		MetricsAddr:    cfg.Observability.MetricsAddr,
	}, cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}

	n, err := node.Open(ctx, &cfg, node.Options{Metrics: obs.Metrics, Logger: obs.Logger})
	if err != nil {
		_ = obs.Close(context.Background())
		return fmt.Errorf("open node: %w", err)
	}
	obs.Shutdown.Register("node", func(ctx context.Context) error {
		return n.Close()
	})

	slog.Info("storage initialized",
		"data_dir", cfg.DataDir,
		"storage_backend", cfg.Storage.Backend,
		"archive_backend", cfg.Archive.Backend,
	)

	srv, err := server.New(cfg.HTTP.Addr, obs, n.Service, server.Options{
		RateLimit:  cfg.HTTP.RateLimit,
		Burst:      cfg.HTTP.Burst,
		HealthAddr: cfg.GRPC.HealthAddr,
	})
	if err != nil {
		_ = obs.Close(context.Background())
		return fmt.Errorf("create server: %w", err)
	}
	obs.Shutdown.Register("http-server", func(ctx context.Context) error {
		srv.Stop(ctx)
		return nil
	})

	if cfg.Sweeper.Enabled {
		sw, err := sweeper.New(ctx, n.Service, cfg.Sweeper.Schedule, obs.Logger)
		if err != nil {
			_ = obs.Close(context.Background())
			return fmt.Errorf("create sweeper: %w", err)
		}
		sw.Start()
		obs.Shutdown.Register("sweeper", sw.Stop)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	done := make(chan struct{})
	go func() {
		defer close(done)
		select {
		case <-sigCh:
			slog.Info("shutdown signal received")
		case <-ctx.Done():
		}
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()

		if err := obs.Close(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	srv.SetServing(true)
	slog.Info("serving", "addr", srv.Addr(), "health", srv.HealthAddr(), "metrics", obs.MetricsAddr())
	err = srv.Serve()
	cancel()
	<-done
	return err
}
