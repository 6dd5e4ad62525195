// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values used when neither file nor environment provide one.
const (
	DefaultDataDir      = "/var/lib/epgmerge"
	DefaultSourcesDir   = "/var/lib/epgsources"
	DefaultVideoDir     = "/video"
	DefaultEPGFileName  = "epg.db"
	DefaultExecTime     = 200
	DefaultBackoff      = 60 * time.Second
	DefaultSoftRetries  = 2
	DefaultEnrichTries  = 3
	DefaultPollInterval = 500 * time.Millisecond
	DefaultKillGrace    = 2 * time.Second
	DefaultBusyTimeout  = 10 * time.Millisecond
	DefaultHKInterval   = time.Hour
	DefaultHKTimeout    = 5 * time.Minute
)

// Loader handles configuration loading with precedence.
type Loader struct {
	configPath string
	version    string
}

// NewLoader creates a new configuration loader.
func NewLoader(configPath, version string) *Loader {
	return &Loader{configPath: configPath, version: version}
}

// Path returns the configuration file the loader reads, if any.
func (l *Loader) Path() string {
	return l.configPath
}

// Load loads configuration with precedence: ENV > File > Defaults.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	mergeEnv(&cfg)
	resolvePaths(&cfg)
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		DataDir:      DefaultDataDir,
		LogLevel:     "info",
		LogService:   "epgmerge",
		SourcesDir:   DefaultSourcesDir,
		VideoDir:     DefaultVideoDir,
		TextMappings: DefaultTextMappings(),
		Schedule: ScheduleConfig{
			ExecTime: DefaultExecTime,
			UpStart:  true,
		},
		Executor: ExecutorConfig{
			Backoff:        DefaultBackoff,
			SoftRetries:    DefaultSoftRetries,
			EnrichAttempts: DefaultEnrichTries,
			StopPolicy:     StopOnFirstSuccess,
			PollInterval:   DefaultPollInterval,
			KillGrace:      DefaultKillGrace,
		},
		Store:        StoreConfig{BusyTimeout: DefaultBusyTimeout},
		Housekeeping: HousekeepingConfig{Interval: DefaultHKInterval, Timeout: DefaultHKTimeout},
		API:          APIConfig{ListenAddr: "127.0.0.1:6420", RateLimit: 120},
		SVDRP:        SVDRPConfig{ListenAddr: "127.0.0.1:6419", RateLimit: 5, Burst: 10},
		Metrics:      MetricsConfig{ListenAddr: "127.0.0.1:9420"},
		Telemetry:    TelemetryConfig{Exporter: "grpc", SamplingRate: 1.0},
		OpenWebIF:    OpenWebIFConfig{Timeout: 10 * time.Second},
	}
}

// loadFile decodes the YAML file onto cfg with strict parsing.
func (l *Loader) loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "not found in type") {
			return fmt.Errorf("%w: %v", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return ErrTrailingContent
	}
	return nil
}

func mergeEnv(cfg *AppConfig) {
	p := EnvPrefix
	cfg.DataDir = ParseString(p+"DATA_DIR", cfg.DataDir)
	cfg.LogLevel = ParseString(p+"LOG_LEVEL", cfg.LogLevel)
	cfg.LogService = ParseString(p+"LOG_SERVICE", cfg.LogService)
	cfg.LogFile = ParseString(p+"LOG_FILE", cfg.LogFile)
	cfg.SourcesDir = ParseString(p+"SOURCES_DIR", cfg.SourcesDir)
	cfg.StateDir = ParseString(p+"STATE_DIR", cfg.StateDir)
	cfg.VideoDir = ParseString(p+"VIDEO_DIR", cfg.VideoDir)
	cfg.EPGFile = ParseString(p+"EPG_FILE", cfg.EPGFile)
	cfg.EPListsDir = ParseString(p+"EPLISTS_DIR", cfg.EPListsDir)
	cfg.ImportAll = ParseBool(p+"IMPORT_ALL", cfg.ImportAll)

	cfg.Schedule.ExecTime = ParseInt(p+"EXEC_TIME", cfg.Schedule.ExecTime)
	cfg.Schedule.UpStart = ParseBool(p+"UPSTART", cfg.Schedule.UpStart)
	cfg.Schedule.WakeUp = ParseBool(p+"WAKEUP", cfg.Schedule.WakeUp)

	cfg.Executor.Backoff = ParseDuration(p+"RETRY_BACKOFF", cfg.Executor.Backoff)
	cfg.Executor.StopPolicy = ParseString(p+"STOP_POLICY", cfg.Executor.StopPolicy)
	cfg.Store.BusyTimeout = ParseDuration(p+"STORE_BUSY_TIMEOUT", cfg.Store.BusyTimeout)
	cfg.Housekeeping.Interval = ParseDuration(p+"HOUSEKEEPING_INTERVAL", cfg.Housekeeping.Interval)

	cfg.API.ListenAddr = ParseString(p+"API_LISTEN", cfg.API.ListenAddr)
	cfg.SVDRP.ListenAddr = ParseString(p+"SVDRP_LISTEN", cfg.SVDRP.ListenAddr)
	cfg.Metrics.Enabled = ParseBool(p+"METRICS_ENABLED", cfg.Metrics.Enabled)
	cfg.Metrics.ListenAddr = ParseString(p+"METRICS_LISTEN", cfg.Metrics.ListenAddr)

	cfg.Telemetry.Enabled = ParseBool(p+"TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Endpoint = ParseString(p+"TELEMETRY_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = ParseFloat(p+"TELEMETRY_SAMPLING_RATE", cfg.Telemetry.SamplingRate)

	cfg.OpenWebIF.BaseURL = ParseString(p+"OWI_BASE", cfg.OpenWebIF.BaseURL)
	cfg.OpenWebIF.Username = ParseString(p+"OWI_USER", cfg.OpenWebIF.Username)
	cfg.OpenWebIF.Password = ParseString(p+"OWI_PASSWORD", cfg.OpenWebIF.Password)
}

// resolvePaths fills derived paths once DataDir and VideoDir are final.
func resolvePaths(cfg *AppConfig) {
	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}
	if cfg.StateDir == "" {
		cfg.StateDir = filepath.Join(cfg.DataDir, "sources")
	}
	if cfg.EPGFile == "" {
		cfg.EPGFile = filepath.Join(cfg.VideoDir, DefaultEPGFileName)
	}
	if cfg.EPListsDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.EPListsDir = filepath.Join(home, ".eplists", "lists")
		}
	}
	if cfg.TextMappings == nil {
		cfg.TextMappings = DefaultTextMappings()
	}
}
