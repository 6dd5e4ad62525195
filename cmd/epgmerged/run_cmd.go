// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ManuGH/epgmerge/internal/config"
	"github.com/ManuGH/epgmerge/internal/daemon"
	"github.com/ManuGH/epgmerge/internal/health"
	xglog "github.com/ManuGH/epgmerge/internal/log"
	"github.com/ManuGH/epgmerge/internal/version"
)

func newRunCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the daemon (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(cmd.Context(), opts)
		},
	}
}

func runDaemon(ctx context.Context, opts *options) error {
	// Safe defaults until config is loaded.
	xglog.Configure(xglog.Config{
		Level:   "info",
		Service: "epgmerge",
		Version: version.Version,
	})
	logger := xglog.WithComponent("main")

	cfg, path, err := loadConfig(opts)
	if err != nil {
		logger.Error().Err(err).Str(xglog.FieldEvent, "config.load_failed").Str(xglog.FieldPath, path).Msg("failed to load configuration")
		return err
	}

	xglog.Configure(xglog.Config{
		Level:   cfg.LogLevel,
		Service: cfg.LogService,
		Version: cfg.Version,
		File:    cfg.LogFile,
	})
	defer func() { _ = xglog.Close() }()
	logger = xglog.WithComponent("main")

	if path != "" {
		logger.Info().Str(xglog.FieldEvent, "config.loaded").Str("source", "file").Str(xglog.FieldPath, path).Msg("loaded configuration from file")
	} else {
		logger.Info().Str(xglog.FieldEvent, "config.loaded").Str("source", "env+defaults").Msg("loaded configuration from environment and defaults")
	}

	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		logger.Error().Err(err).Str(xglog.FieldEvent, "startup.check_failed").Msg("startup checks failed, verify configuration and permissions")
		return err
	}

	logger.Info().
		Str(xglog.FieldEvent, "startup").
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("build_date", version.Date).
		Msg("starting epgmerge")
	logger.Info().Msgf("→ Sources: %s (state: %s)", cfg.SourcesDir, cfg.StateDir)
	logger.Info().Msgf("→ EPG store: %s", cfg.EPGFile)
	logger.Info().Msgf("→ Daily update: %04d (upstart: %v)", cfg.Schedule.ExecTime, cfg.Schedule.UpStart)
	if cfg.OpenWebIF.BaseURL != "" {
		logger.Info().Msgf("→ Receiver: %s (auth: %v)", maskURL(cfg.OpenWebIF.BaseURL), cfg.OpenWebIF.Username != "")
	}

	holder := config.NewConfigHolder(cfg, config.NewLoader(path, version.Version), path)
	app, err := daemon.Bootstrap(ctx, holder)
	if err != nil {
		logger.Error().Err(err).Str(xglog.FieldEvent, "daemon.bootstrap_failed").Msg("failed to build daemon")
		return err
	}
	if err := app.Run(ctx); err != nil {
		return fmt.Errorf("daemon: %w", err)
	}
	logger.Info().Msg("epgmerge exiting")
	return nil
}
