// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	procTerminateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "epgmerge_process_terminate_total",
		Help: "Signals sent to source process groups by outcome",
	}, []string{"signal", "result"}) // result=sent|esrch|error

	procWaitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "epgmerge_process_wait_total",
		Help: "Outcome of waiting for a terminated source process",
	}, []string{"result"}) // result=exit0|exit_nonzero|forced_exit0|forced_error
)

// IncProcTerminate counts a termination signal sent to a process group.
func IncProcTerminate(signal, result string) {
	procTerminateTotal.WithLabelValues(signal, result).Inc()
}

// IncProcWait counts how a terminated process finally exited.
func IncProcWait(result string) {
	procWaitTotal.WithLabelValues(result).Inc()
}
