// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"slices"
	"time"
)

// Reconciliation flags a channel mapping can enable.
const (
	FlagShortText   = "shorttext"
	FlagLongText    = "longtext"
	FlagSeason      = "season"
	FlagCredits     = "credits"
	FlagCountryDate = "countrydate"
	FlagOrigTitle   = "origtitle"
	FlagCategory    = "category"
	FlagReview      = "review"
)

// KnownFlags lists every flag accepted in a channel mapping.
var KnownFlags = []string{
	FlagShortText, FlagLongText, FlagSeason, FlagCredits,
	FlagCountryDate, FlagOrigTitle, FlagCategory, FlagReview,
}

// Source iteration policies for an executor run.
const (
	StopOnFirstSuccess = "first-success"
	StopOnFirstFailure = "first-failure"
	RunAll             = "all"
)

// AppConfig is the effective configuration of the daemon.
type AppConfig struct {
	Version string `yaml:"-"`

	DataDir    string `yaml:"dataDir,omitempty"`
	LogLevel   string `yaml:"logLevel,omitempty"`
	LogService string `yaml:"logService,omitempty"`
	LogFile    string `yaml:"logFile,omitempty"`

	// SourcesDir holds the source definition files dropped in by source packages.
	SourcesDir string `yaml:"sourcesDir,omitempty"`
	// StateDir holds the per-source runtime state (PIN, days, channel selection).
	StateDir   string `yaml:"stateDir,omitempty"`
	VideoDir   string `yaml:"videoDir,omitempty"`
	EPGFile    string `yaml:"epgFile,omitempty"`
	EPListsDir string `yaml:"epListsDir,omitempty"`

	ImportAll    bool              `yaml:"importAll"`
	Channels     []ChannelMapping  `yaml:"channels,omitempty"`
	TextMappings map[string]string `yaml:"textMappings,omitempty"`

	Schedule     ScheduleConfig     `yaml:"schedule"`
	Executor     ExecutorConfig     `yaml:"executor"`
	Store        StoreConfig        `yaml:"store"`
	Housekeeping HousekeepingConfig `yaml:"housekeeping"`
	API          APIConfig          `yaml:"api"`
	SVDRP        SVDRPConfig        `yaml:"svdrp"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
	OpenWebIF    OpenWebIFConfig    `yaml:"openWebIF"`
}

// ChannelMapping enables reconciliation for one channel.
type ChannelMapping struct {
	ChannelID string   `yaml:"id"`
	Enabled   bool     `yaml:"enabled"`
	Flags     []string `yaml:"flags,omitempty"`
	Priority  int      `yaml:"priority,omitempty"`
}

// Has reports whether the mapping enables the given flag.
func (m ChannelMapping) Has(flag string) bool {
	return slices.Contains(m.Flags, flag)
}

// ScheduleConfig controls the daily import trigger.
type ScheduleConfig struct {
	// ExecTime is the daily start time as HHMM (200 = 02:00).
	ExecTime int  `yaml:"execTime"`
	UpStart  bool `yaml:"upStart"`
	WakeUp   bool `yaml:"wakeUp"`
}

// ExecutorConfig tunes the source executor.
type ExecutorConfig struct {
	Backoff        time.Duration `yaml:"backoff"`
	SoftRetries    int           `yaml:"softRetries"`
	EnrichAttempts int           `yaml:"enrichAttempts"`
	StopPolicy     string        `yaml:"stopPolicy"`
	PollInterval   time.Duration `yaml:"pollInterval"`
	KillGrace      time.Duration `yaml:"killGrace"`
}

// StoreConfig tunes the EPG store.
type StoreConfig struct {
	BusyTimeout time.Duration `yaml:"busyTimeout"`
}

// HousekeepingConfig controls expired-row pruning.
type HousekeepingConfig struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// APIConfig configures the HTTP API.
type APIConfig struct {
	ListenAddr string `yaml:"listenAddr"`
	// RateLimit is requests per minute per client IP; 0 disables limiting.
	RateLimit int `yaml:"rateLimit"`
}

// SVDRPConfig configures the line-protocol command server.
type SVDRPConfig struct {
	ListenAddr string  `yaml:"listenAddr"`
	RateLimit  float64 `yaml:"rateLimit"`
	Burst      int     `yaml:"burst"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listenAddr"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
}

// OpenWebIFConfig points at the receiver whose timers and guide cache we serve.
type OpenWebIFConfig struct {
	BaseURL  string        `yaml:"baseUrl,omitempty"`
	Username string        `yaml:"username,omitempty"`
	Password string        `yaml:"password,omitempty"`
	Timeout  time.Duration `yaml:"timeout"`
}

// DefaultTextMappings returns the built-in labels used when formatting extras.
func DefaultTextMappings() map[string]string {
	return map[string]string{
		"country":       "country",
		"date":          "year",
		"originaltitle": "originaltitle",
		"category":      "category",
		"actor":         "actor",
		"adapter":       "adapter",
		"commentator":   "commentator",
		"composer":      "composer",
		"director":      "director",
		"editor":        "editor",
		"guest":         "guest",
		"presenter":     "presenter",
		"producer":      "producer",
		"writer":        "writer",
		"review":        "review",
		"season":        "season",
		"episode":       "episode",
	}
}

// Mapping returns the mapping for a channel id, if any.
func (c AppConfig) Mapping(channelID string) (ChannelMapping, bool) {
	for _, m := range c.Channels {
		if m.ChannelID == channelID {
			return m, true
		}
	}
	return ChannelMapping{}, false
}

// Clone returns a deep copy so readers never share slices or maps with a reload.
func (c AppConfig) Clone() AppConfig {
	out := c
	if c.Channels != nil {
		out.Channels = make([]ChannelMapping, len(c.Channels))
		for i, m := range c.Channels {
			m.Flags = slices.Clone(m.Flags)
			out.Channels[i] = m
		}
	}
	if c.TextMappings != nil {
		out.TextMappings = make(map[string]string, len(c.TextMappings))
		for k, v := range c.TextMappings {
			out.TextMappings[k] = v
		}
	}
	return out
}
