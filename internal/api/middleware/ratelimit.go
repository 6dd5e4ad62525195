// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"
)

// triggersPerMinute caps the endpoints that start an update run or a pass.
const triggersPerMinute = 10

// Throttle allows limit requests per client IP in each sliding window.
// limit <= 0 passes every request.
func Throttle(limit int, window time.Duration) func(http.Handler) http.Handler {
	if limit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	retryAfter := strconv.Itoa(max(int(window/time.Second), 1))
	return httprate.Limit(limit, window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", retryAfter)
			writeJSONError(w, r, http.StatusTooManyRequests, "rate_limit_exceeded")
		}),
	)
}

// TriggerRateLimit guards the endpoints that start expensive work.
func TriggerRateLimit() func(http.Handler) http.Handler {
	return Throttle(triggersPerMinute, time.Minute)
}

// APIRateLimit limits general API traffic per client IP.
func APIRateLimit(perMinute int) func(http.Handler) http.Handler {
	return Throttle(perMinute, time.Minute)
}
