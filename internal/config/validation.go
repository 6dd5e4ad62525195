// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ManuGH/epgmerge/internal/validate"
)

// Validate validates an AppConfig using the centralized validation package.
func Validate(cfg AppConfig) error {
	v := validate.New()

	if _, err := validate.ParseLogLevel(strings.ToLower(cfg.LogLevel)); err != nil {
		v.AddError("LogLevel", err.Error(), cfg.LogLevel)
	}
	v.NotEmpty("SourcesDir", cfg.SourcesDir)
	v.FilePath("EPGFile", cfg.EPGFile)

	v.ClockTime("Schedule.ExecTime", cfg.Schedule.ExecTime)

	v.NonNegativeDuration("Executor.Backoff", cfg.Executor.Backoff)
	v.Range("Executor.SoftRetries", cfg.Executor.SoftRetries, 0, 2)
	v.Range("Executor.EnrichAttempts", cfg.Executor.EnrichAttempts, 1, 10)
	v.OneOf("Executor.StopPolicy", cfg.Executor.StopPolicy,
		[]string{StopOnFirstSuccess, StopOnFirstFailure, RunAll})
	if cfg.Executor.PollInterval <= 0 || cfg.Executor.PollInterval.Seconds() > 1 {
		v.AddError("Executor.PollInterval", "must be within (0, 1s]", cfg.Executor.PollInterval)
	}
	v.NonNegativeDuration("Executor.KillGrace", cfg.Executor.KillGrace)

	v.NonNegativeDuration("Store.BusyTimeout", cfg.Store.BusyTimeout)
	v.NonNegativeDuration("Housekeeping.Interval", cfg.Housekeeping.Interval)
	v.NonNegativeDuration("Housekeeping.Timeout", cfg.Housekeeping.Timeout)

	v.ListenAddr("API.ListenAddr", cfg.API.ListenAddr)
	v.NonNegative("API.RateLimit", cfg.API.RateLimit)
	v.ListenAddr("SVDRP.ListenAddr", cfg.SVDRP.ListenAddr)
	if cfg.Metrics.Enabled {
		v.ListenAddr("Metrics.ListenAddr", cfg.Metrics.ListenAddr)
	}
	if cfg.Telemetry.Enabled {
		v.OneOf("Telemetry.Exporter", cfg.Telemetry.Exporter, []string{"grpc", "http"})
		if cfg.Telemetry.SamplingRate < 0 || cfg.Telemetry.SamplingRate > 1 {
			v.AddError("Telemetry.SamplingRate", "must be within [0, 1]", cfg.Telemetry.SamplingRate)
		}
	}
	if strings.TrimSpace(cfg.OpenWebIF.BaseURL) != "" {
		v.URL("OpenWebIF.BaseURL", cfg.OpenWebIF.BaseURL, []string{"http", "https"})
	}

	seen := make(map[string]struct{}, len(cfg.Channels))
	for i, m := range cfg.Channels {
		field := fmt.Sprintf("Channels[%d]", i)
		if strings.TrimSpace(m.ChannelID) == "" {
			v.AddError(field, "channel id cannot be empty", m.ChannelID)
			continue
		}
		if _, dup := seen[m.ChannelID]; dup {
			v.AddError(field, "duplicate mapping for channel", m.ChannelID)
		}
		seen[m.ChannelID] = struct{}{}
		for _, f := range m.Flags {
			if !slices.Contains(KnownFlags, f) {
				v.AddError(field, fmt.Sprintf("unknown flag %q", f), f)
			}
		}
	}

	return v.Err()
}
