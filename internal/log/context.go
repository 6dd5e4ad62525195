// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package log provides structured logging utilities.
package log

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey uint8

const (
	requestIDKey ctxKey = iota
	jobIDKey
	sourceKey
)

// correlation lists the context values copied onto loggers, in field order.
var correlation = []struct {
	key   ctxKey
	field string
}{
	{requestIDKey, FieldRequestID},
	{jobIDKey, FieldJobID},
	{sourceKey, FieldSource},
}

func with(ctx context.Context, key ctxKey, v string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, v)
}

func from(ctx context.Context, key ctxKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}

// ContextWithRequestID stores the HTTP request ID in the context.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return with(ctx, requestIDKey, id)
}

// ContextWithJobID stores the update run ID in the context.
func ContextWithJobID(ctx context.Context, id string) context.Context {
	return with(ctx, jobIDKey, id)
}

// ContextWithSource stores the name of the executing EPG source.
func ContextWithSource(ctx context.Context, name string) context.Context {
	return with(ctx, sourceKey, name)
}

// RequestIDFromContext extracts the request ID from context if present.
func RequestIDFromContext(ctx context.Context) string { return from(ctx, requestIDKey) }

// JobIDFromContext extracts the run ID from context if present.
func JobIDFromContext(ctx context.Context) string { return from(ctx, jobIDKey) }

// SourceFromContext extracts the source name from context if present.
func SourceFromContext(ctx context.Context) string { return from(ctx, sourceKey) }

// WithContext enriches logger with the correlation fields found in ctx. The
// logger is returned unchanged when there are none.
func WithContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	if ctx == nil {
		return logger
	}
	builder := logger.With()
	added := false
	for _, c := range correlation {
		if v := from(ctx, c.key); v != "" {
			builder = builder.Str(c.field, v)
			added = true
		}
	}
	if !added {
		return logger
	}
	return builder.Logger()
}

// WithComponentFromContext returns a component logger enriched with the
// correlation fields from ctx.
func WithComponentFromContext(ctx context.Context, component string) zerolog.Logger {
	return WithContext(ctx, WithComponent(component))
}
