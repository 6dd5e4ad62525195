// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics holds the Prometheus collectors of epgmerge.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sourceExecutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "epgmerge_source_executions_total",
		Help: "Source executions by final result",
	}, []string{"source", "result"}) // result=success|soft|hard|spawn|config|parse|cancelled

	sourceRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "epgmerge_source_retries_total",
		Help: "Retries scheduled after soft source failures",
	}, []string{"source"})

	sourceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "epgmerge_source_duration_seconds",
		Help:    "Wall time of one source execution including retries",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	}, []string{"source"})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "epgmerge_runs_total",
		Help: "Executor runs by outcome",
	}, []string{"result"}) // result=success|failure|cancelled

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "epgmerge_run_duration_seconds",
		Help:    "Wall time of a complete executor run",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	runActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "epgmerge_run_active",
		Help: "Whether an executor run is in progress (1) or not (0)",
	})

	reconcileDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "epgmerge_reconcile_decisions_total",
		Help: "Reconciliation outcomes per broadcast event",
	}, []string{"decision"}) // decision=ineligible|created|updated|unchanged|store_error

	storeLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "epgmerge_store_lookups_total",
		Help: "EPG store lookups by result",
	}, []string{"result"}) // result=hit|miss|busy|error

	eventsImportedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "epgmerge_events_imported_total",
		Help: "Events written by the listing import",
	}, []string{"source", "op"}) // op=insert|update|unchanged

	housekeepingDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "epgmerge_housekeeping_deleted_total",
		Help: "Expired events removed by housekeeping",
	})

	housekeepingRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "epgmerge_housekeeping_runs_total",
		Help: "Housekeeping passes by outcome",
	}, []string{"result"}) // result=success|noop|error|shared

	svdrpCommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "epgmerge_svdrp_commands_total",
		Help: "Remote commands by verb and reply code",
	}, []string{"command", "code"})
)

// RecordSourceExecution counts the final result of one source.
func RecordSourceExecution(source, result string, d time.Duration) {
	sourceExecutionsTotal.WithLabelValues(source, result).Inc()
	sourceDuration.WithLabelValues(source).Observe(d.Seconds())
}

// IncSourceRetry counts a scheduled retry.
func IncSourceRetry(source string) {
	sourceRetriesTotal.WithLabelValues(source).Inc()
}

// RecordRun counts a finished executor run.
func RecordRun(result string, d time.Duration) {
	runsTotal.WithLabelValues(result).Inc()
	runDuration.Observe(d.Seconds())
}

// SetRunActive flags whether a run is in progress.
func SetRunActive(active bool) {
	if active {
		runActive.Set(1)
		return
	}
	runActive.Set(0)
}

// IncReconcileDecision counts one reconciliation outcome.
func IncReconcileDecision(decision string) {
	reconcileDecisionsTotal.WithLabelValues(decision).Inc()
}

// IncStoreLookup counts one store lookup.
func IncStoreLookup(result string) {
	storeLookupsTotal.WithLabelValues(result).Inc()
}

// IncEventImported counts one event write from the listing import.
func IncEventImported(source, op string) {
	eventsImportedTotal.WithLabelValues(source, op).Inc()
}

// RecordHousekeeping counts a housekeeping pass and the rows it removed.
func RecordHousekeeping(result string, deleted int64) {
	housekeepingRunsTotal.WithLabelValues(result).Inc()
	if deleted > 0 {
		housekeepingDeletedTotal.Add(float64(deleted))
	}
}

// IncSVDRPCommand counts a remote command and its reply code.
func IncSVDRPCommand(command string, code int) {
	svdrpCommandsTotal.WithLabelValues(command, strconv.Itoa(code)).Inc()
}
