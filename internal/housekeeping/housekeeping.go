// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package housekeeping prunes events whose broadcast window has passed.
package housekeeping

import (
	"context"
	"errors"
	"time"

	xglog "github.com/ManuGH/epgmerge/internal/log"
	"github.com/ManuGH/epgmerge/internal/metrics"
	"github.com/ManuGH/epgmerge/internal/store"
	"github.com/ManuGH/epgmerge/internal/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// Defaults of a Keeper.
const (
	DefaultInterval = time.Hour
	DefaultTimeout  = 5 * time.Minute
)

// Keeper deletes expired rows on its own schedule. Each pass opens and
// closes its own store handle.
type Keeper struct {
	path     string
	opts     store.Options
	interval time.Duration
	timeout  time.Duration

	group  singleflight.Group
	logger zerolog.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// New returns a Keeper for the store file at path.
func New(path string, opts store.Options, interval, timeout time.Duration) *Keeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Keeper{
		path:     path,
		opts:     opts,
		interval: interval,
		timeout:  timeout,
		logger:   xglog.WithComponent("housekeeping"),
		tracer:   telemetry.Tracer("epgmerge/housekeeping"),
		now:      time.Now,
	}
}

// Run sweeps every interval until ctx is done.
func (k *Keeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := k.RunOnce(ctx); err != nil && ctx.Err() == nil {
				k.logger.Warn().Err(err).Msg("housekeeping failed")
			}
		}
	}
}

// RunOnce performs one time-boxed sweep and returns the number of rows
// removed. Concurrent callers share the sweep in progress. A missing or
// empty store is not an error.
func (k *Keeper) RunOnce(ctx context.Context) (int64, error) {
	v, err, shared := k.group.Do("sweep", func() (any, error) {
		return k.sweep(ctx)
	})
	if shared {
		metrics.RecordHousekeeping("shared", 0)
	}
	n, _ := v.(int64)
	return n, err
}

func (k *Keeper) sweep(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()
	ctx, span := k.tracer.Start(ctx, "housekeeping.sweep")
	defer span.End()

	st, err := store.OpenExisting(ctx, k.path, k.opts)
	if errors.Is(err, store.ErrNotExist) {
		metrics.RecordHousekeeping("noop", 0)
		return 0, nil
	}
	if err != nil {
		metrics.RecordHousekeeping("error", 0)
		span.SetStatus(codes.Error, err.Error())
		return 0, err
	}
	defer func() { _ = st.Close() }()

	n, err := st.DeleteExpired(ctx, k.now())
	span.SetAttributes(attribute.Int64(telemetry.StoreDeletedKey, n))
	if err != nil {
		metrics.RecordHousekeeping("error", n)
		span.SetStatus(codes.Error, err.Error())
		return n, err
	}
	if n == 0 {
		metrics.RecordHousekeeping("noop", 0)
		return 0, nil
	}
	metrics.RecordHousekeeping("success", n)
	k.logger.Info().
		Str(xglog.FieldEvent, "housekeeping.done").
		Int64(xglog.FieldDeleted, n).
		Msg("removed expired events")
	return n, nil
}
