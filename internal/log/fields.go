// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldJobID     = "job_id"
	FieldSource    = "source"
	FieldChannel   = "channel"
	FieldEventID   = "event_id"
	FieldTimerID   = "timer_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldCommand   = "command"
	FieldExitCode  = "exit_code"
	FieldAttempt   = "attempt"
	FieldPID       = "pid"

	// Store fields
	FieldPath    = "path"
	FieldDeleted = "deleted"
)
