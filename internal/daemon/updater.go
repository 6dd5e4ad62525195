// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"github.com/ManuGH/epgmerge/internal/api"
	xglog "github.com/ManuGH/epgmerge/internal/log"
)

// runControl is the executor surface the daemon drives.
type runControl interface {
	api.Executor
	Wait(ctx context.Context) error
}

// updater starts executor runs for the scheduler, SVDRP and the API and
// follows every successful run with a timer pass.
type updater struct {
	runControl
	pass   api.TimerPasser
	base   context.Context
	wg     conc.WaitGroup
	logger zerolog.Logger
}

func newUpdater(base context.Context, exec runControl, pass api.TimerPasser) *updater {
	return &updater{
		runControl: exec,
		pass:       pass,
		base:       base,
		logger:     xglog.WithComponent("updater"),
	}
}

// Start begins a run unless one is active.
func (u *updater) Start() bool {
	if !u.runControl.Start() {
		return false
	}
	if u.pass != nil {
		u.wg.Go(u.afterRun)
	}
	return true
}

func (u *updater) afterRun() {
	if err := u.Wait(u.base); err != nil {
		return
	}
	rep, ok := u.LastReport()
	if !ok || !rep.Success {
		return
	}
	res, err := u.pass.Run(u.base)
	if err != nil {
		if u.base.Err() == nil {
			u.logger.Warn().Err(err).Str(xglog.FieldJobID, rep.JobID).Msg("timer pass after update failed")
		}
		return
	}
	u.logger.Info().
		Str(xglog.FieldJobID, rep.JobID).
		Int("timers", res.Timers).
		Int("created", res.Created).
		Int("backfilled", res.Backfilled).
		Msg("timer pass after update finished")
}

// wait blocks until all follow-up passes returned.
func (u *updater) wait() {
	u.wg.Wait()
}
