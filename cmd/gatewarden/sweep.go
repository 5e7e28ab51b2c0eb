// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatewarden Contributors

package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/gatewarden/gatewarden/internal/auth/postgres"
	"github.com/gatewarden/gatewarden/internal/config"
	"github.com/gatewarden/gatewarden/internal/logging"
	"github.com/gatewarden/gatewarden/internal/observability"
	"github.com/gatewarden/gatewarden/internal/sweeper"
)

// NewSweepCmd creates the sweep subcommand.
func NewSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run the dead-session sweeper daemon",
		Long: `Periodically delete sessions past their idle expiration. Validation
rejects expired sessions on its own; sweeping only reclaims storage.`,
		RunE: runSweep,
	}

	cmd.Flags().Duration("sweep.interval", time.Hour, "time between sweep runs")
	cmd.Flags().String("metrics.addr", "", "metrics/health HTTP address (empty = config value)")

	return cmd
}

func runSweep(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database_url (or DATABASE_URL) is required")
	}

	logger := logging.Setup("gatewarden-sweeper", version, cfg.Log.Format, nil)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	adapter, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer adapter.Close()

	var opts []sweeper.Option
	var obs *observability.Server
	if cfg.Metrics.Addr != "" {
		obs = observability.NewServer(cfg.Metrics.Addr, func() bool {
			return adapter.Ping(ctx)
		})
		errCh, err := obs.Start()
		if err != nil {
			return err
		}
		go func() {
			for serveErr := range errCh {
				logging.LogError(logger, "observability server failed", serveErr)
			}
		}()
		opts = append(opts, sweeper.WithMetrics(obs.Metrics()))
		logger.Info("observability server started", "addr", obs.Addr())
	}

	sw, err := sweeper.New(adapter, cfg.Sweep.Interval, logger, opts...)
	if err != nil {
		return err
	}

	logger.Info("sweeper started", "interval", cfg.Sweep.Interval.String())
	runErr := sw.Run(ctx)

	if obs != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := obs.Stop(shutdownCtx); err != nil {
			logging.LogError(logger, "observability server shutdown failed", err)
		}
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	logger.Info("sweeper stopped")
	return nil
}
