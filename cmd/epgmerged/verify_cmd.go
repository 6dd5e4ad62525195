// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ManuGH/epgmerge/internal/persistence/sqlite"
)

func newVerifyCmd(opts *options) *cobra.Command {
	var (
		path string
		mode string
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check the integrity of the EPG store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mode = strings.ToLower(strings.TrimSpace(mode))
			if mode != "quick" && mode != "full" {
				return fmt.Errorf("invalid mode %q, use quick or full", mode)
			}
			if path == "" {
				path = opts.epgFile
			}
			if path == "" {
				cfg, _, err := loadConfig(opts)
				if err != nil {
					return err
				}
				path = cfg.EPGFile
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Verifying integrity of %s (mode: %s)...\n", path, mode)
			issues, err := sqlite.VerifyIntegrity(cmd.Context(), path, mode)
			if err != nil {
				return fmt.Errorf("verification interrupted: %w", err)
			}
			if len(issues) > 0 {
				_, _ = fmt.Fprintln(out, "CORRUPTION DETECTED")
				for _, issue := range issues {
					_, _ = fmt.Fprintf(out, "  - %s\n", issue)
				}
				return fmt.Errorf("%s: %d integrity issues", path, len(issues))
			}
			_, _ = fmt.Fprintln(out, "Integrity verified: ok")
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "database file (defaults to the configured EPG store)")
	cmd.Flags().StringVar(&mode, "mode", "quick", "verification mode: quick or full")
	return cmd
}
