// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command epgmerged imports listings from external EPG sources and merges
// them into the receiver's programme guide.
package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ManuGH/epgmerge/internal/config"
	"github.com/ManuGH/epgmerge/internal/version"
)

// options are the flags shared by every subcommand.
type options struct {
	configPath string
	epgFile    string
	logFile    string
}

func main() {
	os.Exit(execute())
}

func execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:          "epgmerged",
		Short:        "EPG ingestion and merge daemon",
		Long:         "epgmerged runs the configured EPG sources once a day, stores their listings and merges them into broadcast events.",
		Version:      version.String(),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(cmd.Context(), opts)
		},
	}
	root.SetVersionTemplate("{{.Version}}\n")

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to config file (YAML)")
	flags.StringVar(&opts.epgFile, "epgfile", "", "path of the EPG store (overrides config)")
	flags.StringVar(&opts.logFile, "logfile", "", "additional rotating log file")

	root.AddCommand(
		newRunCmd(opts),
		newUpdateCmd(opts),
		newVerifyCmd(opts),
		newConfigCmd(opts),
		newVersionCmd(),
	)
	return root
}

// loadConfig resolves the config path and loads the configuration. Command
// line paths are exported as environment overrides so reloads keep them.
func loadConfig(opts *options) (config.AppConfig, string, error) {
	if opts.epgFile != "" {
		if err := os.Setenv(config.EnvPrefix+"EPG_FILE", opts.epgFile); err != nil {
			return config.AppConfig{}, "", err
		}
	}
	if opts.logFile != "" {
		if err := os.Setenv(config.EnvPrefix+"LOG_FILE", opts.logFile); err != nil {
			return config.AppConfig{}, "", err
		}
	}

	path := strings.TrimSpace(opts.configPath)
	if path == "" {
		dataDir := config.ParseString(config.EnvPrefix+"DATA_DIR", config.DefaultDataDir)
		autoPath := filepath.Join(dataDir, "config.yaml")
		if _, err := os.Stat(autoPath); err == nil {
			path = autoPath
		}
	}

	cfg, err := config.NewLoader(path, version.Version).Load()
	if err != nil {
		return cfg, path, fmt.Errorf("load config %q: %w", path, err)
	}
	return cfg, path, nil
}

// maskURL removes user info from a URL string for safe logging.
func maskURL(rawURL string) string {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return "invalid-url-redacted"
	}
	parsedURL.User = nil
	return parsedURL.String()
}
