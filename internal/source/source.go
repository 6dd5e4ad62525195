// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package source models the external EPG sources: their definition files,
// per-source runtime state and the command line used to run them.
package source

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	xglog "github.com/ManuGH/epgmerge/internal/log"
	"github.com/rs/zerolog"
)

// ErrConfig marks a missing or unreadable source definition.
var ErrConfig = errors.New("source config error")

// ErrSelectionLength is returned when a selection does not match the channel list.
var ErrSelectionLength = errors.New("selection length does not match channel count")

// Mode is the delivery mode of a source.
type Mode int

const (
	// ModeFile sources write <SourcesDir>/<name>.xmltv and exit.
	ModeFile Mode = iota
	// ModePipe sources print the listing on stdout.
	ModePipe
)

func (m Mode) String() string {
	if m == ModePipe {
		return "pipe"
	}
	return "file"
}

// MarshalText renders the mode for JSON and YAML.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText parses "pipe" or "file".
func (m *Mode) UnmarshalText(b []byte) error {
	switch string(b) {
	case "pipe":
		*m = ModePipe
	case "file":
		*m = ModeFile
	default:
		return fmt.Errorf("unknown source mode %q", b)
	}
	return nil
}

// Channel is one channel a source can deliver.
type Channel struct {
	ID    string `json:"id"`
	InUse bool   `json:"in_use"`
}

// Source is one configured EPG source. Static attributes come from the
// definition file; the guarded fields are runtime state edited by the user.
type Source struct {
	Name    string
	Mode    Mode
	NeedPIN bool
	DaysMax int

	sourcesDir string
	stateDir   string
	defModTime time.Time
	logger     zerolog.Logger
	ring       *xglog.Ring

	mu            sync.RWMutex
	pin           string
	daysInAdvance int
	channels      []Channel
	lastExec      time.Time
	ready         bool
}

// Info is a point-in-time view of a source for status reporting.
type Info struct {
	Name          string    `json:"name"`
	Mode          Mode      `json:"mode"`
	NeedPIN       bool      `json:"need_pin"`
	HasPIN        bool      `json:"has_pin"`
	DaysMax       int       `json:"days_max"`
	DaysInAdvance int       `json:"days_in_advance"`
	Channels      []Channel `json:"channels"`
	LastExec      time.Time `json:"last_exec,omitzero"`
	Ready         bool      `json:"ready"`
}

func newSource(name, sourcesDir, stateDir string, ringSize int) *Source {
	return &Source{
		Name:       name,
		sourcesDir: sourcesDir,
		stateDir:   stateDir,
		ring:       xglog.NewRing(ringSize),
		logger:     xglog.WithComponent("source").With().Str(xglog.FieldSource, name).Logger(),
	}
}

// Ready reports whether the definition was read successfully.
func (s *Source) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// Log returns the rolling per-source log.
func (s *Source) Log() *xglog.Ring {
	return s.ring
}

// PIN returns the configured PIN.
func (s *Source) PIN() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pin
}

// SetPIN replaces the PIN. It takes effect on the next Store.
func (s *Source) SetPIN(pin string) {
	s.mu.Lock()
	s.pin = strings.TrimSpace(pin)
	s.mu.Unlock()
}

// DaysInAdvance returns how many days the source is asked to fetch.
func (s *Source) DaysInAdvance() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.daysInAdvance
}

// SetDaysInAdvance sets the window, clamped to [0, DaysMax] when DaysMax is known.
func (s *Source) SetDaysInAdvance(days int) {
	if days < 0 {
		days = 0
	}
	if s.DaysMax > 0 && days > s.DaysMax {
		days = s.DaysMax
	}
	s.mu.Lock()
	s.daysInAdvance = days
	s.mu.Unlock()
}

// Channels returns a copy of the channel list, sorted by id.
func (s *Source) Channels() []Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.channels)
}

// SetChannelSelection flags channels in list order.
func (s *Source) SetChannelSelection(selection []bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(selection) != len(s.channels) {
		return fmt.Errorf("%w: got %d, have %d", ErrSelectionLength, len(selection), len(s.channels))
	}
	for i := range s.channels {
		s.channels[i].InUse = selection[i]
	}
	return nil
}

// SelectChannels marks exactly the given ids as in use. Unknown ids are ignored.
func (s *Source) SelectChannels(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.channels {
		s.channels[i].InUse = slices.Contains(ids, s.channels[i].ID)
	}
}

// LastExec returns the time of the last successful execution.
func (s *Source) LastExec() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastExec
}

// MarkExecuted records a successful execution.
func (s *Source) MarkExecuted(t time.Time) {
	s.mu.Lock()
	s.lastExec = t
	s.mu.Unlock()
}

// BeginExecution clears the rolling log when the source already ran once,
// so the log always describes the latest attempt.
func (s *Source) BeginExecution() {
	if !s.LastExec().IsZero() {
		s.ring.Reset()
	}
}

// Info returns a snapshot for status reporting.
func (s *Source) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Info{
		Name:          s.Name,
		Mode:          s.Mode,
		NeedPIN:       s.NeedPIN,
		HasPIN:        s.pin != "",
		DaysMax:       s.DaysMax,
		DaysInAdvance: s.daysInAdvance,
		Channels:      slices.Clone(s.channels),
		LastExec:      s.lastExec,
		Ready:         s.ready,
	}
}

// Debugf logs at debug level to both the process log and the rolling log.
func (s *Source) Debugf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	s.logger.Debug().Msg(msg)
	s.ring.Append(xglog.RingDebug, msg)
}

// Infof logs at info level to both the process log and the rolling log.
func (s *Source) Infof(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	s.logger.Info().Msg(msg)
	s.ring.Append(xglog.RingInfo, msg)
}

// Errorf logs at error level to both the process log and the rolling log.
func (s *Source) Errorf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	s.logger.Error().Msg(msg)
	s.ring.Append(xglog.RingError, msg)
}
