// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package source

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/renameio/v2"
)

// Store persists the runtime state (PIN, days in advance, selected channels)
// atomically. The file takes the owner of the state directory.
func (s *Source) Store() error {
	if err := os.MkdirAll(s.stateDir, 0750); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	path := filepath.Join(s.stateDir, s.Name)

	pf, err := renameio.NewPendingFile(path, renameio.WithPermissions(0600))
	if err != nil {
		s.Errorf("cannot create %s", path)
		return fmt.Errorf("create pending state file: %w", err)
	}
	defer func() { _ = pf.Cleanup() }()

	s.mu.RLock()
	w := bufio.NewWriter(pf)
	pin := s.pin
	if pin == "" {
		pin = NoPIN
	}
	_, _ = w.WriteString(pin + "\n")
	_, _ = w.WriteString(strconv.Itoa(s.daysInAdvance) + "\n")
	for _, ch := range s.channels {
		if ch.InUse {
			_, _ = w.WriteString(ch.ID + "\n")
		}
	}
	s.mu.RUnlock()

	if err := w.Flush(); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	if uid, gid, ok := dirOwner(s.stateDir); ok {
		// Best effort: unprivileged daemons cannot give files away.
		_ = pf.Chown(uid, gid)
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
