// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ManuGH/epgmerge/internal/svdrp"
)

func newUpdateCmd(opts *options) *cobra.Command {
	var (
		addr    string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Ask the running daemon to start an EPG update",
		Long:  "Sends UPDT to the daemon's SVDRP port. Without --addr the address is taken from the configuration.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				cfg, _, err := loadConfig(opts)
				if err != nil {
					return err
				}
				addr = cfg.SVDRP.ListenAddr
			}
			reply, err := svdrp.Client{Timeout: timeout}.Send(cmd.Context(), addr, "UPDT")
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), reply.String())
			if !reply.OK() {
				return fmt.Errorf("update rejected: %s", reply.Text)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "SVDRP address of the daemon")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "connection timeout")
	return cmd
}
