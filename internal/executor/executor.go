// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package executor runs the configured EPG sources one after another,
// retries transient failures and hands their output to the parser.
package executor

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuGH/epgmerge/internal/config"
	"github.com/ManuGH/epgmerge/internal/host"
	xglog "github.com/ManuGH/epgmerge/internal/log"
	"github.com/ManuGH/epgmerge/internal/metrics"
	"github.com/ManuGH/epgmerge/internal/runner"
	"github.com/ManuGH/epgmerge/internal/source"
	"github.com/ManuGH/epgmerge/internal/telemetry"
	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Parser consumes the listing a source produced. Zero means success.
type Parser interface {
	Process(ctx context.Context, src *source.Source, data []byte) int
}

// Enricher runs the follow-up season/episode pass.
type Enricher interface {
	Enrich(ctx context.Context) error
}

// Sources yields the sources of a run in priority order.
type Sources interface {
	Snapshot() []*source.Source
}

// CommandRunner executes one command line.
type CommandRunner interface {
	Run(ctx context.Context, line string) runner.Result
}

// Defaults of Options.
const (
	DefaultBackoff        = 60 * time.Second
	DefaultSoftRetries    = 2
	DefaultEnrichAttempts = 3
	DefaultEnrichBackoff  = time.Second
)

// Bounds of Options.SoftRetries. Zero selects DefaultSoftRetries.
const (
	MaxSoftRetries = 2
	NoSoftRetries  = -1
)

// Options tunes an Executor.
type Options struct {
	// SourcesDir is where file sources leave <name>.xmltv.
	SourcesDir string
	Backoff    time.Duration
	// SoftRetries is the number of extra attempts after a soft failure,
	// capped at MaxSoftRetries. Use NoSoftRetries to disable retrying.
	SoftRetries    int
	EnrichAttempts int
	EnrichBackoff  time.Duration
	// StopPolicy is one of config.StopOnFirstSuccess, StopOnFirstFailure or RunAll.
	StopPolicy string
	ImportAll  bool
}

func (o *Options) applyDefaults() {
	if o.Backoff <= 0 {
		o.Backoff = DefaultBackoff
	}
	switch {
	case o.SoftRetries < 0:
		o.SoftRetries = 0
	case o.SoftRetries == 0:
		o.SoftRetries = DefaultSoftRetries
	case o.SoftRetries > MaxSoftRetries:
		o.SoftRetries = MaxSoftRetries
	}
	if o.EnrichAttempts <= 0 {
		o.EnrichAttempts = DefaultEnrichAttempts
	}
	if o.EnrichBackoff < 0 {
		o.EnrichBackoff = 0
	}
	if o.StopPolicy == "" {
		o.StopPolicy = config.StopOnFirstSuccess
	}
}

// Executor runs at most one update at a time.
type Executor struct {
	sources  Sources
	runner   CommandRunner
	parser   Parser
	enricher Enricher
	guide    host.GuideIndex
	opts     Options

	importAll atomic.Bool
	active    atomic.Bool

	logger zerolog.Logger
	tracer trace.Tracer
	now    func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	last   *Report
}

// New builds an Executor. enricher and guide may be nil.
func New(sources Sources, r CommandRunner, parser Parser, enricher Enricher, guide host.GuideIndex, opts Options) *Executor {
	opts.applyDefaults()
	e := &Executor{
		sources:  sources,
		runner:   r,
		parser:   parser,
		enricher: enricher,
		guide:    guide,
		opts:     opts,
		logger:   xglog.WithComponent("executor"),
		tracer:   telemetry.Tracer("epgmerge/executor"),
		now:      time.Now,
	}
	e.importAll.Store(opts.ImportAll)
	return e
}

// SetImportAll switches the follow-up enrichment on config reload.
func (e *Executor) SetImportAll(v bool) { e.importAll.Store(v) }

// IsActive reports whether a run is in progress. It never blocks.
func (e *Executor) IsActive() bool { return e.active.Load() }

// begin claims the run slot. The caller owns the returned channel.
func (e *Executor) begin(parent context.Context) (context.Context, chan struct{}, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active.Load() {
		return nil, nil, false
	}
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})
	e.cancel = cancel
	e.done = done
	e.active.Store(true)
	return ctx, done, true
}

func (e *Executor) finish(rep Report, done chan struct{}) {
	e.mu.Lock()
	e.last = &rep
	e.cancel()
	e.cancel = nil
	e.active.Store(false)
	e.mu.Unlock()
	close(done)
}

// Start begins a run in the background unless one is active. It reports
// whether a run was started.
func (e *Executor) Start() bool {
	ctx, done, ok := e.begin(context.Background())
	if !ok {
		return false
	}
	go func() {
		rep := e.execute(ctx)
		e.finish(rep, done)
	}()
	return true
}

// Run executes an update synchronously.
func (e *Executor) Run(ctx context.Context) (Report, error) {
	runCtx, done, ok := e.begin(ctx)
	if !ok {
		return Report{}, ErrAlreadyRunning
	}
	rep := e.execute(runCtx)
	e.finish(rep, done)

	if len(rep.Results) == 0 && !rep.Cancelled {
		return rep, ErrNoSources
	}
	if rep.Cancelled {
		return rep, ErrCancelled
	}
	return rep, nil
}

// Stop cancels the active run and waits until the worker has observed it.
func (e *Executor) Stop() {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Wait blocks until the current run, if any, has finished.
func (e *Executor) Wait(ctx context.Context) error {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LastReport returns the report of the most recent finished run.
func (e *Executor) LastReport() (Report, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.last == nil {
		return Report{}, false
	}
	return *e.last, true
}

func (e *Executor) execute(ctx context.Context) Report {
	rep := Report{JobID: uuid.NewString(), Started: e.now()}
	ctx = xglog.ContextWithJobID(ctx, rep.JobID)
	logger := xglog.WithContext(ctx, e.logger)

	ctx, span := e.tracer.Start(ctx, "executor.run",
		trace.WithAttributes(attribute.String(telemetry.JobIDKey, rep.JobID)))
	defer span.End()

	metrics.SetRunActive(true)
	defer metrics.SetRunActive(false)

	srcs := e.sources.Snapshot()
	logger.Info().Str(xglog.FieldEvent, "run.start").Int("sources", len(srcs)).Msg("epg update started")

	for _, src := range srcs {
		res := e.executeSource(ctx, src)
		rep.Results = append(rep.Results, res)
		if res.Kind == KindCancelled {
			rep.Cancelled = true
			break
		}
		if res.OK() {
			rep.Success = true
		}
		if e.stopAfter(res) {
			break
		}
	}
	if !rep.Cancelled && ctx.Err() != nil {
		rep.Cancelled = true
	}

	if rep.Success && !rep.Cancelled {
		if e.importAll.Load() && e.enricher != nil {
			rep.Enriched = e.enrich(ctx, logger)
		}
		if e.guide != nil {
			if err := e.guide.Invalidate(ctx); err != nil {
				logger.Warn().Err(err).Msg("failed to invalidate program guide")
			} else {
				rep.Invalidated = true
			}
		}
	}

	rep.Finished = e.now()
	metrics.RecordRun(rep.outcome(), rep.Finished.Sub(rep.Started))
	if rep.Cancelled {
		span.SetStatus(codes.Error, "cancelled")
		logger.Info().Str(xglog.FieldEvent, "run.cancelled").Msg("request to stop")
	} else {
		logger.Info().
			Str(xglog.FieldEvent, "run.done").
			Bool("success", rep.Success).
			Dur("took", rep.Finished.Sub(rep.Started)).
			Msg("epg update finished")
	}
	return rep
}

// stopAfter applies the source iteration policy.
func (e *Executor) stopAfter(res SourceResult) bool {
	switch e.opts.StopPolicy {
	case config.StopOnFirstFailure:
		return !res.OK()
	case config.RunAll:
		return false
	default:
		return res.OK()
	}
}

func (e *Executor) enrich(ctx context.Context, logger zerolog.Logger) bool {
	err := retry.Do(
		func() error { return e.enricher.Enrich(ctx) },
		retry.Attempts(uint(e.opts.EnrichAttempts)),
		retry.Delay(e.opts.EnrichBackoff),
		retry.DelayType(retry.FixedDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn().Err(err).Int(xglog.FieldAttempt, int(n)+1).Msg("enrichment failed")
		}),
	)
	if err != nil {
		logger.Error().Err(err).Msg("enrichment gave up")
		return false
	}
	return true
}

func (e *Executor) executeSource(ctx context.Context, src *source.Source) SourceResult {
	res := SourceResult{Source: src.Name, Started: e.now()}
	ctx = xglog.ContextWithSource(ctx, src.Name)
	ctx, span := e.tracer.Start(ctx, "executor.source",
		trace.WithAttributes(telemetry.SourceAttributes(src.Name, src.Mode.String(), 0)...))
	defer span.End()

	defer func() {
		res.Finished = e.now()
		res.Kind = KindOf(res.Err)
		if res.Err != nil {
			res.Error = res.Err.Error()
		}
		metrics.RecordSourceExecution(src.Name, res.Kind.String(), res.Finished.Sub(res.Started))
		span.SetAttributes(telemetry.SourceResultAttributes(res.Kind.String(), res.Code)...)
		span.SetAttributes(attribute.Int(telemetry.SourceAttemptKey, res.Attempts))
		if res.Err != nil && res.Kind != KindCancelled {
			span.SetAttributes(attribute.String(telemetry.ErrorTypeKey, res.Kind.String()))
			span.SetStatus(codes.Error, res.Kind.String())
		}
	}()

	if !src.Ready() {
		src.Errorf("source definition missing or unreadable")
		res.Err = &ExecError{Source: src.Name, Kind: KindConfig, Err: ErrConfig}
		return res
	}

	src.BeginExecution()
	cmd := src.Command()
	src.Infof("executing %s", cmd.Display)

	total := uint(1 + e.opts.SoftRetries)
	var last *ExecError
	err := retry.Do(
		func() error {
			res.Attempts++
			ee := e.attempt(ctx, src, cmd)
			if ee == nil {
				return nil
			}
			last = ee
			return ee
		},
		retry.Attempts(total),
		retry.Delay(e.opts.Backoff),
		retry.DelayType(retry.FixedDelay),
		retry.RetryIf(func(err error) bool { return errors.Is(err, ErrSoftExecution) }),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, _ error) {
			if n+1 < total {
				metrics.IncSourceRetry(src.Name)
				src.Infof("waiting %s", e.opts.Backoff)
			}
		}),
	)

	switch {
	case err == nil:
		src.MarkExecuted(e.now())
		src.Infof("update finished")
		return res
	case ctx.Err() != nil && (last == nil || last.Kind == KindSoft || last.Kind == KindCancelled):
		src.Infof("request to stop")
		res.Err = &ExecError{Source: src.Name, Kind: KindCancelled, Err: ErrCancelled}
		return res
	case last != nil:
		res.Code = last.Code
		res.Err = last
		if last.Kind == KindSoft {
			src.Errorf("skipping after %d retries", res.Attempts-1)
		}
		return res
	default:
		res.Err = &ExecError{Source: src.Name, Kind: KindHard, Err: err}
		return res
	}
}

// attempt runs the source once and parses what it delivered.
func (e *Executor) attempt(ctx context.Context, src *source.Source, cmd source.Command) *ExecError {
	r := e.runner.Run(ctx, cmd.Line)
	logStderr(src, r.Stderr)

	fail := func(kind Kind, code int, err error) *ExecError {
		return &ExecError{Source: src.Name, Code: code, Kind: kind, Err: err}
	}

	switch r.Class {
	case runner.ClassCancelled:
		return fail(KindCancelled, 0, ErrCancelled)
	case runner.ClassCannotStart:
		src.Errorf("failed to execute: %v", r.Err)
		return fail(KindSpawn, CodeCannotExecute, fmt.Errorf("%w: %w", ErrSpawn, r.Err))
	case runner.ClassIOFailure:
		src.Errorf("failed to read output: %v", r.Err)
		return fail(KindSoft, CodeIOFailure, fmt.Errorf("%w: %w", ErrSoftExecution, r.Err))
	}

	switch kind := classify(r.ExitCode); kind {
	case KindSoft:
		src.Errorf("exit code %d", r.ExitCode)
		return fail(KindSoft, r.ExitCode, ErrSoftExecution)
	case KindHard:
		src.Errorf("exit code %d", r.ExitCode)
		return fail(KindHard, r.ExitCode, ErrHardExecution)
	}

	data := r.Stdout
	if src.Mode == source.ModeFile {
		var code int
		var err error
		data, code, err = e.readFile(src.Name)
		if err != nil {
			src.Errorf("%v", err)
			return fail(KindHard, code, fmt.Errorf("%w: %w", ErrHardExecution, err))
		}
	}
	if len(data) == 0 {
		src.Infof("no data received")
		return nil
	}

	if code := e.parser.Process(ctx, src, data); code != 0 {
		src.Errorf("parser failed with %d", code)
		return fail(KindParse, code, ErrParse)
	}
	return nil
}

func (e *Executor) readFile(name string) ([]byte, int, error) {
	f, err := os.Open(filepath.Join(e.opts.SourcesDir, name+".xmltv"))
	if err != nil {
		return nil, CodeOpenFailed, err
	}
	defer func() { _ = f.Close() }()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, CodeReadFailed, err
	}
	return data, 0, nil
}

// logStderr copies stderr lines into the source log, collapsing repeats.
func logStderr(src *source.Source, stderr []byte) {
	if len(stderr) == 0 {
		return
	}
	sc := bufio.NewScanner(bytes.NewReader(stderr))
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	prev := ""
	for sc.Scan() {
		line := string(bytes.TrimRight(sc.Bytes(), "\r"))
		if line == "" || line == prev {
			continue
		}
		prev = line
		src.Errorf("%s", line)
	}
}
