// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 0 closed, 1 open, 2 half-open.
	receiverBreakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "epgmerge_receiver_breaker_state",
		Help: "State of the receiver circuit breaker (0 closed, 1 open, 2 half-open)",
	})

	receiverBreakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "epgmerge_receiver_breaker_transitions_total",
		Help: "Receiver circuit breaker state changes",
	}, []string{"from", "to", "reason"})
)

// SetReceiverBreakerState publishes the numeric breaker state.
func SetReceiverBreakerState(state int) {
	receiverBreakerState.Set(float64(state))
}

// RecordReceiverBreakerTransition counts a state change. reason is empty
// for transitions not caused by a failed request.
func RecordReceiverBreakerTransition(from, to, reason string) {
	if reason == "" {
		reason = "none"
	}
	receiverBreakerTransitions.WithLabelValues(from, to, reason).Inc()
}
