// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"encoding/json"
	"net/http"

	"github.com/ManuGH/epgmerge/internal/log"
)

// ServeHealth answers liveness probes. It is always 200; ?verbose=true adds
// the component checks.
func (m *Manager) ServeHealth(w http.ResponseWriter, r *http.Request) {
	writeReport(w, r, http.StatusOK, m.Health(r.Context(), r.URL.Query().Get("verbose") == "true"))
}

// ServeReady answers readiness probes with 503 while a component is unhealthy.
func (m *Manager) ServeReady(w http.ResponseWriter, r *http.Request) {
	rep := m.Ready(r.Context())
	code := http.StatusOK
	if !rep.Ready {
		code = http.StatusServiceUnavailable
	}
	writeReport(w, r, code, rep)

	logger := log.WithComponentFromContext(r.Context(), "health")
	logger.Debug().
		Str(log.FieldEvent, "readiness.checked").
		Str("status", string(rep.Status)).
		Bool("ready", rep.Ready).
		Msg("readiness check performed")
}

func writeReport(w http.ResponseWriter, r *http.Request, code int, rep Report) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(rep); err != nil {
		logger := log.WithComponentFromContext(r.Context(), "health")
		logger.Error().Err(err).
			Str(log.FieldEvent, "health.encode_error").
			Msg("failed to encode health report")
	}
}
