// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package executor

import "time"

// SourceResult is the outcome of one source within a run.
type SourceResult struct {
	Source   string    `json:"source"`
	Attempts int       `json:"attempts"`
	Code     int       `json:"code"`
	Kind     Kind      `json:"kind"`
	Err      error     `json:"-"`
	Error    string    `json:"error,omitempty"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
}

// OK reports whether the source delivered data.
func (r SourceResult) OK() bool { return r.Err == nil }

// Report describes a finished run.
type Report struct {
	JobID       string         `json:"job_id"`
	Started     time.Time      `json:"started"`
	Finished    time.Time      `json:"finished"`
	Results     []SourceResult `json:"results"`
	Success     bool           `json:"success"`
	Cancelled   bool           `json:"cancelled"`
	Enriched    bool           `json:"enriched"`
	Invalidated bool           `json:"invalidated"`
}

func (r Report) outcome() string {
	switch {
	case r.Cancelled:
		return "cancelled"
	case r.Success:
		return "success"
	default:
		return "failure"
	}
}
