// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestContextWithJobID(t *testing.T) {
	tests := []struct {
		name  string
		ctx   context.Context
		jobID string
		want  string
	}{
		{name: "nil context", ctx: nil, jobID: "job-123", want: "job-123"},
		{name: "background context", ctx: context.Background(), jobID: "job-456", want: "job-456"},
		{name: "empty job ID", ctx: context.Background(), jobID: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := ContextWithJobID(tt.ctx, tt.jobID)
			if got := JobIDFromContext(ctx); got != tt.want {
				t.Errorf("JobIDFromContext() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWithContext_AddsCorrelationFields(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithJobID(ctx, "job-1")
	l := WithContext(ctx, base)
	l.Info().Msg("hello")

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if got[FieldRequestID] != "req-1" || got[FieldJobID] != "job-1" {
		t.Errorf("missing correlation fields: %v", got)
	}
}

func TestWithContext_NoFieldsReturnsSameLogger(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)
	l := WithContext(context.Background(), base)
	l.Info().Msg("plain")

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if _, ok := got[FieldJobID]; ok {
		t.Errorf("unexpected job_id field: %v", got)
	}
}

func TestWithContext_SourceField(t *testing.T) {
	var buf bytes.Buffer
	ctx := ContextWithSource(ContextWithJobID(context.Background(), "job-9"), "tvm")
	l := WithContext(ctx, zerolog.New(&buf))
	l.Info().Msg("running")

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if got[FieldSource] != "tvm" || got[FieldJobID] != "job-9" {
		t.Errorf("missing source or job fields: %v", got)
	}
	if SourceFromContext(ctx) != "tvm" {
		t.Errorf("SourceFromContext() = %q", SourceFromContext(ctx))
	}
}
