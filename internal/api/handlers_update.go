// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"net/http"
	"time"

	"github.com/ManuGH/epgmerge/internal/executor"
	"github.com/ManuGH/epgmerge/internal/log"
)

// StatusResponse is the GET /api/v1/status contract.
type StatusResponse struct {
	Version    string           `json:"version"`
	Active     bool             `json:"active"`
	Sources    int              `json:"sources"`
	NextRun    time.Time        `json:"next_run,omitzero"`
	Wakeup     time.Time        `json:"wakeup,omitzero"`
	LastReport *executor.Report `json:"last_report,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{Version: s.deps.Version}
	if s.deps.Executor != nil {
		resp.Active = s.deps.Executor.IsActive()
		if rep, ok := s.deps.Executor.LastReport(); ok {
			resp.LastReport = &rep
		}
	}
	if s.deps.Sources != nil {
		resp.Sources = s.deps.Sources.Len()
	}
	if s.deps.Schedule != nil {
		resp.NextRun = s.deps.Schedule.NextRun()
		resp.Wakeup = s.deps.Schedule.WakeupTime()
	}
	writeJSON(w, http.StatusOK, resp)
}

// UpdateResponse mirrors the SVDRP UPDT replies.
type UpdateResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if s.deps.Executor == nil || s.deps.Sources == nil {
		writeUnavailable(w, "executor")
		return
	}
	if s.deps.Sources.Len() == 0 {
		writeJSON(w, http.StatusConflict, UpdateResponse{Message: "No epg sources installed"})
		return
	}
	if !s.deps.Executor.Start() {
		writeJSON(w, http.StatusConflict, UpdateResponse{Message: "Update already running"})
		return
	}
	logger := log.WithComponentFromContext(r.Context(), "api")
	logger.Info().
		Str(log.FieldEvent, "update.requested").
		Msg("update started via api")
	writeJSON(w, http.StatusAccepted, UpdateResponse{Started: true, Message: "Update started"})
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Executor == nil {
		writeUnavailable(w, "executor")
		return
	}
	active := s.deps.Executor.IsActive()
	s.deps.Executor.Stop()
	writeJSON(w, http.StatusOK, map[string]bool{"stopped": active})
}

func (s *Server) handleTimerPass(w http.ResponseWriter, r *http.Request) {
	if s.deps.TimerPass == nil {
		writeUnavailable(w, "timer pass")
		return
	}
	res, err := s.deps.TimerPass.Run(r.Context())
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleHousekeeping(w http.ResponseWriter, r *http.Request) {
	if s.deps.Housekeeper == nil {
		writeUnavailable(w, "housekeeping")
		return
	}
	n, err := s.deps.Housekeeper.RunOnce(r.Context())
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}
