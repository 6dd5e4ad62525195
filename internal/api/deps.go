// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"time"

	"github.com/ManuGH/epgmerge/internal/executor"
	"github.com/ManuGH/epgmerge/internal/health"
	"github.com/ManuGH/epgmerge/internal/host"
	"github.com/ManuGH/epgmerge/internal/reconcile"
	"github.com/ManuGH/epgmerge/internal/source"
	"github.com/ManuGH/epgmerge/internal/store"
)

// Executor starts and observes update runs.
type Executor interface {
	Start() bool
	Stop()
	IsActive() bool
	LastReport() (executor.Report, bool)
}

// Schedule reports the next planned run.
type Schedule interface {
	NextRun() time.Time
	WakeupTime() time.Time
}

// Sources is the source registry.
type Sources interface {
	Snapshot() []*source.Source
	Get(name string) (*source.Source, bool)
	Len() int
	Order(names []string)
}

// OrderStore persists the source priority order.
type OrderStore interface {
	Reindex(ctx context.Context, from, to int) error
	SourceOrder(ctx context.Context) ([]store.SourceRank, error)
}

// Reconciler merges imported data into a broadcast event.
type Reconciler interface {
	Handle(ctx context.Context, ev *host.Event) bool
}

// TimerPasser runs the timer-driven backfill.
type TimerPasser interface {
	Run(ctx context.Context) (reconcile.TimerPassResult, error)
}

// Sweeper prunes expired events on demand.
type Sweeper interface {
	RunOnce(ctx context.Context) (int64, error)
}

// Deps wires the server to the daemon's components. Nil optional
// components answer 503 on their routes.
type Deps struct {
	Executor    Executor
	Schedule    Schedule
	Sources     Sources
	Order       OrderStore
	Reconciler  Reconciler
	TimerPass   TimerPasser
	Housekeeper Sweeper
	Health      *health.Manager
	Version     string
}
