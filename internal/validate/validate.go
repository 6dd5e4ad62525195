// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package validate collects field-level configuration errors so a bad config
// file is reported in one go.
package validate

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Error is one rejected field.
type Error struct {
	Field   string
	Value   any
	Message string
}

func (e Error) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// ValidationError is every field a Validator rejected.
type ValidationError []Error

// Errors returns the individual field errors.
func (e ValidationError) Errors() []Error { return e }

func (e ValidationError) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validator accumulates field errors.
type Validator struct {
	errs []Error
}

// New returns an empty Validator.
func New() *Validator {
	return &Validator{}
}

// AddError records a failed field.
func (v *Validator) AddError(field, message string, value any) {
	v.errs = append(v.errs, Error{Field: field, Value: value, Message: message})
}

func (v *Validator) addf(field string, value any, format string, args ...any) {
	v.AddError(field, fmt.Sprintf(format, args...), value)
}

// IsValid reports whether no field failed so far.
func (v *Validator) IsValid() bool { return len(v.errs) == 0 }

// Errors returns the accumulated field errors.
func (v *Validator) Errors() []Error { return v.errs }

// Err returns nil or a ValidationError holding a copy of the field errors.
func (v *Validator) Err() error {
	if len(v.errs) == 0 {
		return nil
	}
	return ValidationError(slices.Clone(v.errs))
}

// URL requires an absolute URL with a host and, when given, one of schemes.
func (v *Validator) URL(field, value string, schemes []string) {
	if value == "" {
		v.AddError(field, "URL cannot be empty", value)
		return
	}
	u, err := url.Parse(value)
	switch {
	case err != nil:
		v.addf(field, value, "invalid URL: %v", err)
	case u.Host == "":
		v.AddError(field, "URL must have a host", value)
	case len(schemes) > 0 && !slices.Contains(schemes, u.Scheme):
		v.addf(field, value, "unsupported URL scheme %q (allowed: %v)", u.Scheme, schemes)
	}
}

// Range requires lo <= value <= hi.
func (v *Validator) Range(field string, value, lo, hi int) {
	if value < lo || value > hi {
		v.addf(field, value, "value must be between %d and %d, got %d", lo, hi, value)
	}
}

// FilePath requires a usable file location: not empty, no NUL byte and not
// an existing directory. The file itself may be missing.
func (v *Validator) FilePath(field, path string) {
	switch {
	case strings.TrimSpace(path) == "":
		v.AddError(field, "path cannot be empty", path)
	case strings.ContainsRune(path, 0):
		v.AddError(field, "path contains a NUL byte", path)
	default:
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			v.AddError(field, "path is a directory", path)
		}
	}
}

// NotEmpty rejects empty and whitespace-only values.
func (v *Validator) NotEmpty(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.AddError(field, "value cannot be empty", value)
	}
}

// OneOf requires value to be in allowed.
func (v *Validator) OneOf(field, value string, allowed []string) {
	if !slices.Contains(allowed, value) {
		v.addf(field, value, "value must be one of %v, got %q", allowed, value)
	}
}

// NonNegative rejects negative counts.
func (v *Validator) NonNegative(field string, value int) {
	if value < 0 {
		v.addf(field, value, "value cannot be negative, got %d", value)
	}
}

// NonNegativeDuration rejects negative durations.
func (v *Validator) NonNegativeDuration(field string, d time.Duration) {
	if d < 0 {
		v.addf(field, d, "duration cannot be negative, got %s", d)
	}
}

// ClockTime validates an HHMM wall-clock value such as 200 (02:00) or 2359.
func (v *Validator) ClockTime(field string, hhmm int) {
	if hhmm < 0 || hhmm/100 > 23 || hhmm%100 > 59 {
		v.addf(field, hhmm, "must be a HHMM clock time, got %04d", hhmm)
	}
}

// ListenAddr validates a host:port listen address. Empty means disabled.
func (v *Validator) ListenAddr(field, addr string) {
	if addr == "" {
		return
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		v.addf(field, addr, "invalid listen address: %v", err)
		return
	}
	if p, err := strconv.Atoi(port); err != nil || p < 0 || p > 65535 {
		v.addf(field, addr, "invalid port %q", port)
	}
}
