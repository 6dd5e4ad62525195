// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package scheduler starts the daily EPG update.
package scheduler

import (
	"context"
	"sync"
	"time"

	xglog "github.com/ManuGH/epgmerge/internal/log"
	"github.com/rs/zerolog"
)

const (
	// UpStartDelay is the wait before the run triggered by a fresh start.
	UpStartDelay = 60 * time.Second
	// WakeupLead is how long before the run the host should wake up.
	WakeupLead = 180 * time.Second
)

// Trigger starts an update and reports whether it actually started.
type Trigger interface {
	Start() bool
}

// Scheduler fires the trigger once a day at the configured time.
type Scheduler struct {
	trigger Trigger
	logger  zerolog.Logger
	clock   Clock

	mu       sync.Mutex
	execTime int
	upStart  bool
	wakeUp   bool
	next     time.Time
	reset    chan struct{}
}

// New returns a scheduler firing at execTime (HHMM, local time). With
// upStart the first run happens shortly after Run is called.
func New(trigger Trigger, execTime int, upStart bool) *Scheduler {
	return &Scheduler{
		trigger:  trigger,
		logger:   xglog.WithComponent("scheduler"),
		clock:    RealClock{},
		execTime: execTime,
		upStart:  upStart,
		reset:    make(chan struct{}, 1),
	}
}

// NextExec returns the next occurrence of hhmm at or after now: today if
// it has not passed yet, else the same time on the next calendar day.
func NextExec(now time.Time, hhmm int) time.Time {
	h, m := hhmm/100, hhmm%100
	at := time.Date(now.Year(), now.Month(), now.Day(), h, m, 0, 0, now.Location())
	if !at.After(now) {
		at = time.Date(now.Year(), now.Month(), now.Day()+1, h, m, 0, 0, now.Location())
	}
	return at
}

// SetExecTime changes the daily time and reschedules the pending run.
func (s *Scheduler) SetExecTime(hhmm int) {
	s.mu.Lock()
	changed := s.execTime != hhmm
	s.execTime = hhmm
	s.mu.Unlock()
	if !changed {
		return
	}
	select {
	case s.reset <- struct{}{}:
	default:
	}
}

// SetWakeUp enables or disables the wake-up request for the daily run.
func (s *Scheduler) SetWakeUp(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wakeUp = enabled
}

// NextRun is the time of the pending run; zero before Run starts.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// WakeupTime is when the host should power up for the daily run:
// WakeupLead before today's exec time, or the same time tomorrow once that
// has passed. Zero when wake-up is disabled.
func (s *Scheduler) WakeupTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.wakeUp {
		return time.Time{}
	}
	now := s.clock.Now()
	h, m := s.execTime/100, s.execTime%100
	at := time.Date(now.Year(), now.Month(), now.Day(), h, m, 0, 0, now.Location()).Add(-WakeupLead)
	if !at.After(now) {
		at = time.Date(now.Year(), now.Month(), now.Day()+1, h, m, 0, 0, now.Location()).Add(-WakeupLead)
	}
	return at
}

func (s *Scheduler) plan(first bool) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	if first && s.upStart {
		s.next = now.Add(UpStartDelay)
		return UpStartDelay
	}
	s.next = NextExec(now, s.execTime)
	return s.next.Sub(now)
}

// Run fires the trigger until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	timer := s.clock.NewTimer(s.plan(true))
	defer timer.Stop()
	s.logger.Info().Time("next_run", s.NextRun()).Msg("scheduler started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.reset:
			timer.Stop()
			timer.Reset(s.plan(false))
			s.logger.Info().Time("next_run", s.NextRun()).Msg("rescheduled epg update")
		case <-timer.C():
			if s.trigger.Start() {
				s.logger.Info().Str(xglog.FieldEvent, "schedule.fired").Msg("scheduled epg update started")
			} else {
				s.logger.Info().Str(xglog.FieldEvent, "schedule.skipped").Msg("epg update already running")
			}
			timer.Reset(s.plan(false))
		}
	}
}
