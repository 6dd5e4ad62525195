// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	JobIDKey = "job.id"

	SourceNameKey    = "source.name"
	SourceModeKey    = "source.mode"
	SourceAttemptKey = "source.attempt"
	SourceExitKey    = "source.exit_code"
	SourceResultKey  = "source.result"

	ChannelKey           = "epg.channel"
	EventKeyKey          = "epg.natural_key"
	ReconcileDecisionKey = "reconcile.decision"

	StoreDeletedKey = "store.deleted"

	ErrorTypeKey = "error.type"
)

// SourceAttributes describes one source execution attempt.
func SourceAttributes(name, mode string, attempt int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(SourceNameKey, name),
		attribute.String(SourceModeKey, mode),
		attribute.Int(SourceAttemptKey, attempt),
	}
}

// SourceResultAttributes describes the final outcome of a source.
func SourceResultAttributes(result string, exitCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(SourceResultKey, result),
		attribute.Int(SourceExitKey, exitCode),
	}
}

// EventAttributes identifies a broadcast event being reconciled.
func EventAttributes(channel string, key int64) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 2)
	if channel != "" {
		attrs = append(attrs, attribute.String(ChannelKey, channel))
	}
	if key != 0 {
		attrs = append(attrs, attribute.Int64(EventKeyKey, key))
	}
	return attrs
}
