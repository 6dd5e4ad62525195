// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package executor

import (
	"errors"
	"fmt"

	"github.com/ManuGH/epgmerge/internal/source"
)

// Error taxonomy of a source execution.
var (
	ErrConfig        = source.ErrConfig
	ErrSpawn         = errors.New("source could not be started")
	ErrSoftExecution = errors.New("source failed transiently")
	ErrHardExecution = errors.New("source failed")
	ErrCancelled     = errors.New("execution cancelled")
	ErrParse         = errors.New("source data rejected by parser")

	ErrAlreadyRunning = errors.New("update already running")
	ErrNoSources      = errors.New("no epg sources installed")
)

// Internal exit codes, kept compatible with the classic plugin.
const (
	CodeIOFailure     = 74
	CodeCannotExecute = 126
	CodeOutOfMemory   = 134
	CodePipeFailed    = 141
	CodeReadFailed    = 149
	CodeOpenFailed    = 157
)

// Kind classifies a failed source execution.
type Kind int

const (
	KindNone Kind = iota
	KindConfig
	KindSpawn
	KindSoft
	KindHard
	KindCancelled
	KindParse
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "success"
	case KindConfig:
		return "config"
	case KindSpawn:
		return "spawn"
	case KindSoft:
		return "soft"
	case KindHard:
		return "hard"
	case KindCancelled:
		return "cancelled"
	case KindParse:
		return "parse"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// MarshalText renders the kind for JSON.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k Kind) sentinel() error {
	switch k {
	case KindConfig:
		return ErrConfig
	case KindSpawn:
		return ErrSpawn
	case KindSoft:
		return ErrSoftExecution
	case KindHard:
		return ErrHardExecution
	case KindCancelled:
		return ErrCancelled
	case KindParse:
		return ErrParse
	}
	return nil
}

// ExecError describes why a source did not deliver.
type ExecError struct {
	Source string
	Code   int
	Kind   Kind
	Err    error
}

func (e *ExecError) Error() string {
	msg := fmt.Sprintf("source %s: %s", e.Source, e.Kind)
	if e.Code != 0 {
		msg += fmt.Sprintf(" (code %d)", e.Code)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is matches the sentinel of the error kind.
func (e *ExecError) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

func (e *ExecError) Unwrap() error { return e.Err }

// KindOf extracts the kind of err; nil is KindNone.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var ee *ExecError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return KindHard
}

// classify maps a process exit code to a kind.
func classify(code int) Kind {
	switch {
	case code == 0:
		return KindNone
	case code > 0 && code < CodeCannotExecute:
		return KindSoft
	default:
		return KindHard
	}
}
