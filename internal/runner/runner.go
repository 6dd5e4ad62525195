// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package runner spawns a source command, captures stdout and stderr
// concurrently and honours cancellation by terminating the process group.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	xglog "github.com/ManuGH/epgmerge/internal/log"
	"github.com/ManuGH/epgmerge/internal/procgroup"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
)

// Class classifies how a run ended.
type Class int

const (
	// ClassExited means the process ran to completion; see Result.ExitCode.
	ClassExited Class = iota
	// ClassCancelled means the context was cancelled and the process killed.
	ClassCancelled
	// ClassCannotStart means the process could not be spawned.
	ClassCannotStart
	// ClassIOFailure means capturing the output failed.
	ClassIOFailure
)

func (c Class) String() string {
	switch c {
	case ClassExited:
		return "exited"
	case ClassCancelled:
		return "cancelled"
	case ClassCannotStart:
		return "cannot_start"
	case ClassIOFailure:
		return "io_failure"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// Defaults for a zero Runner.
const (
	DefaultShell        = "/bin/sh"
	DefaultPollInterval = 500 * time.Millisecond
	DefaultKillGrace    = 2 * time.Second
)

// Result is the outcome of one Run. Output is discarded on cancellation.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Class    Class
	Err      error
	Duration time.Duration
}

// Runner executes shell command lines.
type Runner struct {
	// Shell interprets the command line ("sh -c").
	Shell string
	// Dir is the working directory of the child.
	Dir string
	// Env is appended to the parent environment.
	Env []string
	// PollInterval is the heartbeat of the wait loop, at most one second.
	PollInterval time.Duration
	// KillGrace is the time between SIGTERM and SIGKILL on cancellation.
	KillGrace time.Duration
	// Progress, if set, receives the captured byte counts on every heartbeat.
	Progress func(stdout, stderr int)

	Logger zerolog.Logger
}

// New returns a Runner with defaults applied.
func New(poll, grace time.Duration) *Runner {
	r := &Runner{PollInterval: poll, KillGrace: grace, Logger: xglog.WithComponent("runner")}
	r.applyDefaults()
	return r
}

func (r *Runner) applyDefaults() {
	if r.Shell == "" {
		r.Shell = DefaultShell
	}
	if r.PollInterval <= 0 || r.PollInterval > time.Second {
		r.PollInterval = DefaultPollInterval
	}
	if r.KillGrace <= 0 {
		r.KillGrace = DefaultKillGrace
	}
}

// lockedBuffer lets the heartbeat read the length while a pump writes.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

func (b *lockedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bytes.Clone(b.buf.Bytes())
}

// Run executes line and blocks until the process and its output streams
// are done or ctx is cancelled.
func (r *Runner) Run(ctx context.Context, line string) Result {
	r.applyDefaults()
	start := time.Now()

	outR, outW, err := os.Pipe()
	if err != nil {
		return Result{Class: ClassCannotStart, Err: fmt.Errorf("stdout pipe: %w", err), ExitCode: -1}
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		_ = outR.Close()
		_ = outW.Close()
		return Result{Class: ClassCannotStart, Err: fmt.Errorf("stderr pipe: %w", err), ExitCode: -1}
	}

	// #nosec G204 -- command lines come from operator-installed source definitions
	cmd := exec.Command(r.Shell, "-c", line)
	cmd.Dir = r.Dir
	if len(r.Env) > 0 {
		cmd.Env = append(os.Environ(), r.Env...)
	}
	cmd.Stdout = outW
	cmd.Stderr = errW
	procgroup.Set(cmd)

	if err := cmd.Start(); err != nil {
		for _, f := range []*os.File{outR, outW, errR, errW} {
			_ = f.Close()
		}
		return Result{Class: ClassCannotStart, Err: fmt.Errorf("start: %w", err), ExitCode: -1, Duration: time.Since(start)}
	}
	// The child owns the write ends now.
	_ = outW.Close()
	_ = errW.Close()

	r.Logger.Debug().Int(xglog.FieldPID, cmd.Process.Pid).Msg("source process started")

	var (
		stdout, stderr lockedBuffer
		readMu         sync.Mutex
		readErr        error
		pumps          conc.WaitGroup
	)
	pump := func(dst io.Writer, src *os.File) {
		if _, err := io.Copy(dst, src); err != nil {
			readMu.Lock()
			if readErr == nil {
				readErr = err
			}
			readMu.Unlock()
		}
	}
	pumps.Go(func() { pump(&stdout, outR) })
	pumps.Go(func() { pump(&stderr, errR) })

	pumpsDone := make(chan struct{})
	go func() {
		pumps.Wait()
		close(pumpsDone)
	}()

	waitCh := make(chan error, 1)
	go func() { waitCh <- cmd.Wait() }()

	ticker := time.NewTicker(r.PollInterval)
	defer ticker.Stop()

	var (
		waitErr error
		exited  bool
	)
	for !exited || pumpsDone != nil {
		select {
		case <-ctx.Done():
			if !exited {
				_ = procgroup.Terminate(cmd, waitCh, r.KillGrace)
			}
			// Descendants may still hold the pipes open.
			_ = outR.Close()
			_ = errR.Close()
			if pumpsDone != nil {
				<-pumpsDone
			}
			r.Logger.Debug().Int(xglog.FieldPID, cmd.Process.Pid).Msg("source process cancelled")
			return Result{Class: ClassCancelled, Err: ctx.Err(), ExitCode: -1, Duration: time.Since(start)}

		case waitErr = <-waitCh:
			exited = true
			waitCh = nil

		case <-pumpsDone:
			pumpsDone = nil

		case <-ticker.C:
			if r.Progress != nil {
				r.Progress(stdout.Len(), stderr.Len())
			}
		}
	}
	_ = outR.Close()
	_ = errR.Close()

	res := Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: time.Since(start),
	}

	readMu.Lock()
	rerr := readErr
	readMu.Unlock()
	if rerr != nil {
		res.Class = ClassIOFailure
		res.Err = fmt.Errorf("read output: %w", rerr)
		res.ExitCode = -1
		res.Stdout = nil
		return res
	}

	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
		res.Class = ClassExited
	case errors.As(waitErr, &exitErr):
		res.Class = ClassExited
		res.ExitCode = exitCode(exitErr)
	default:
		res.Class = ClassIOFailure
		res.Err = fmt.Errorf("wait: %w", waitErr)
		res.ExitCode = -1
	}
	return res
}
