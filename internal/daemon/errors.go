// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import "errors"

var (
	// ErrMissingConfig is returned when the daemon is bootstrapped without a config holder.
	ErrMissingConfig = errors.New("config holder is required")

	// ErrMissingExecutor is returned when an App is assembled without an executor.
	ErrMissingExecutor = errors.New("executor is required")

	// ErrMissingStore is returned when an App is assembled without the EPG store.
	ErrMissingStore = errors.New("epg store is required")
)
