// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"
)

const fileHeader = "# epgmerged configuration\n"

// Encode writes cfg as two-space indented YAML.
func Encode(w io.Writer, cfg AppConfig) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}

// WriteFile replaces path with cfg. Readers never observe a partial file.
func WriteFile(path string, cfg AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	buf := bytes.NewBufferString(fileHeader)
	if err := Encode(buf, cfg); err != nil {
		return err
	}
	if err := renameio.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Redacted returns a copy of cfg safe to print.
func Redacted(cfg AppConfig) AppConfig {
	if cfg.OpenWebIF.Password != "" {
		cfg.OpenWebIF.Password = "***"
	}
	return cfg
}
