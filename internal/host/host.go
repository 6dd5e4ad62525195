// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package host describes what epgmerge needs from the receiver it enriches:
// broadcast events, recording timers and the program guide index.
package host

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Event is a broadcast (EIT) event as seen by the host.
type Event struct {
	ID          uint32        `json:"id"`
	ChannelID   string        `json:"channel_id"`
	Start       time.Time     `json:"start"`
	Duration    time.Duration `json:"duration"`
	Title       string        `json:"title"`
	ShortText   string        `json:"short_text,omitempty"`
	Description string        `json:"description,omitempty"`
	// HasTimer is set when a recording timer covers the event.
	HasTimer bool `json:"has_timer,omitempty"`
	// Processed is set once a merge has been written onto the event.
	Processed bool `json:"processed,omitempty"`
}

// Timer is a recording timer with its event, if known.
type Timer struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	Event     *Event `json:"event,omitempty"`
}

// TimerSource lists the recording timers of the host.
type TimerSource interface {
	Timers(ctx context.Context) ([]Timer, error)
}

// EventWriter is implemented by hosts that accept merged event data for the
// event of a timer.
type EventWriter interface {
	WriteTimerEvent(ctx context.Context, timerID string, ev Event) error
}

// ErrUnknownTimer is returned by EventWriter for a timer the host does not know.
var ErrUnknownTimer = errors.New("unknown timer")

// GuideIndex is the host's cached program guide.
type GuideIndex interface {
	// Invalidate asks the host to rebuild the guide from fresh data.
	Invalidate(ctx context.Context) error
}

// StaticTimers serves a fixed timer list. Callers get copies of the events;
// WriteTimerEvent is the only way to change them.
type StaticTimers struct {
	mu     sync.Mutex
	timers []Timer
}

// NewStaticTimers returns a TimerSource for the given timers.
func NewStaticTimers(timers ...Timer) *StaticTimers {
	return &StaticTimers{timers: timers}
}

// Set replaces the served timers.
func (s *StaticTimers) Set(timers ...Timer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timers = timers
}

// Timers returns copies of the configured timers.
func (s *StaticTimers) Timers(context.Context) ([]Timer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Timer, len(s.timers))
	for i, t := range s.timers {
		if t.Event != nil {
			ev := *t.Event
			t.Event = &ev
		}
		out[i] = t
	}
	return out, nil
}

// WriteTimerEvent replaces the event of timer timerID.
func (s *StaticTimers) WriteTimerEvent(_ context.Context, timerID string, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.timers {
		if s.timers[i].ID == timerID {
			s.timers[i].Event = &ev
			return nil
		}
	}
	return ErrUnknownTimer
}

// NopGuide is a GuideIndex for hosts without a guide to invalidate.
type NopGuide struct{}

// Invalidate does nothing.
func (NopGuide) Invalidate(context.Context) error { return nil }
