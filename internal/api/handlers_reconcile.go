// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"net/http"

	"github.com/ManuGH/epgmerge/internal/host"
)

// ReconcileResponse carries the event after merging. Handled is the
// placement answer for the host and is always false.
type ReconcileResponse struct {
	Handled bool       `json:"handled"`
	Event   host.Event `json:"event"`
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	if s.deps.Reconciler == nil {
		writeUnavailable(w, "reconciler")
		return
	}
	var ev host.Event
	if !decodeJSON(w, r, &ev) {
		return
	}
	if ev.ChannelID == "" || ev.Start.IsZero() {
		writeError(w, http.StatusBadRequest, "channel_id and start are required")
		return
	}
	handled := s.deps.Reconciler.Handle(r.Context(), &ev)
	writeJSON(w, http.StatusOK, ReconcileResponse{Handled: handled, Event: ev})
}
