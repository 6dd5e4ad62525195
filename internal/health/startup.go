// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/ManuGH/epgmerge/internal/config"
	"github.com/ManuGH/epgmerge/internal/log"
)

// PerformStartupChecks validates the environment before the daemon starts.
func PerformStartupChecks(_ context.Context, cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("running pre-flight startup checks")

	if err := checkWritableDir(logger, cfg.DataDir); err != nil {
		return fmt.Errorf("data directory check failed: %w", err)
	}
	if err := checkWritableDir(logger, cfg.StateDir); err != nil {
		return fmt.Errorf("state directory check failed: %w", err)
	}
	if cfg.EPGFile != "" {
		if err := checkWritableDir(logger, filepath.Dir(cfg.EPGFile)); err != nil {
			return fmt.Errorf("epg file directory check failed: %w", err)
		}
	}
	if info, err := os.Stat(cfg.SourcesDir); err != nil || !info.IsDir() {
		logger.Warn().Str(log.FieldPath, cfg.SourcesDir).Msg("sources directory missing; no epg sources installed")
	}

	if err := checkListenAddr(logger, "api", cfg.API.ListenAddr); err != nil {
		return err
	}
	if err := checkListenAddr(logger, "svdrp", cfg.SVDRP.ListenAddr); err != nil {
		return err
	}
	if cfg.Metrics.Enabled {
		if err := checkListenAddr(logger, "metrics", cfg.Metrics.ListenAddr); err != nil {
			return err
		}
	}

	if cfg.OpenWebIF.BaseURL == "" {
		logger.Warn().Msg("OpenWebIF base URL not configured; timer pass and guide reload disabled")
	} else {
		u, err := url.Parse(cfg.OpenWebIF.BaseURL)
		if err != nil {
			return fmt.Errorf("invalid OpenWebIF base URL: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("OpenWebIF base URL scheme must be http or https, got: %s", u.Scheme)
		}
	}

	logger.Info().Msg("all startup checks passed")
	return nil
}

func checkWritableDir(logger zerolog.Logger, path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(path, 0o750); err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	testFile := filepath.Join(path, ".write_test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("directory is not writable: %s (error: %v)", path, err)
	}
	_ = os.Remove(testFile)

	logger.Debug().Str(log.FieldPath, path).Msg("directory is writable")
	return nil
}

func checkListenAddr(logger zerolog.Logger, name, addr string) error {
	if addr == "" {
		return nil
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid %s listen address %q: %w", name, addr, err)
	}
	portNum, err := strconv.Atoi(port)
	if err != nil || portNum < 0 || portNum > 65535 {
		return fmt.Errorf("invalid %s listen port %q in %q", name, port, addr)
	}
	logger.Debug().Str("addr", addr).Str("listener", name).Msg("listen address is valid")
	return nil
}
