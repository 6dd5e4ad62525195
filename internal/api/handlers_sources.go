// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/epgmerge/internal/log"
	"github.com/ManuGH/epgmerge/internal/source"
	"github.com/ManuGH/epgmerge/internal/store"
)

func (s *Server) lookupSource(w http.ResponseWriter, r *http.Request) (*source.Source, bool) {
	if s.deps.Sources == nil {
		writeUnavailable(w, "sources")
		return nil, false
	}
	src, ok := s.deps.Sources.Get(chi.URLParam(r, "name"))
	if !ok {
		writeNotFound(w)
		return nil, false
	}
	return src, true
}

func (s *Server) handleListSources(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Sources == nil {
		writeUnavailable(w, "sources")
		return
	}
	snap := s.deps.Sources.Snapshot()
	out := make([]source.Info, 0, len(snap))
	for _, src := range snap {
		out = append(out, src.Info())
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetSource(w http.ResponseWriter, r *http.Request) {
	src, ok := s.lookupSource(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, src.Info())
}

func (s *Server) handleSourceLog(w http.ResponseWriter, r *http.Request) {
	src, ok := s.lookupSource(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(src.Log().String()))
}

// SourceUpdate edits the runtime state of a source. Nil fields are kept.
type SourceUpdate struct {
	Channels      *[]string `json:"channels,omitempty"`
	DaysInAdvance *int      `json:"days_in_advance,omitempty"`
	PIN           *string   `json:"pin,omitempty"`
}

func (s *Server) handleUpdateSource(w http.ResponseWriter, r *http.Request) {
	src, ok := s.lookupSource(w, r)
	if !ok {
		return
	}
	var req SourceUpdate
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.DaysInAdvance != nil && *req.DaysInAdvance < 0 {
		writeError(w, http.StatusBadRequest, "days_in_advance must not be negative")
		return
	}

	if req.Channels != nil {
		src.SelectChannels(*req.Channels)
	}
	if req.DaysInAdvance != nil {
		src.SetDaysInAdvance(*req.DaysInAdvance)
	}
	if req.PIN != nil {
		src.SetPIN(*req.PIN)
	}
	if err := src.Store(); err != nil {
		writeInternal(w, r, err)
		return
	}
	logger := log.WithComponentFromContext(r.Context(), "api")
	logger.Info().
		Str(log.FieldEvent, "source.updated").
		Str(log.FieldSource, src.Name).
		Msg("source settings stored")
	writeJSON(w, http.StatusOK, src.Info())
}

func (s *Server) handleSourceOrder(w http.ResponseWriter, r *http.Request) {
	if s.deps.Order == nil {
		writeUnavailable(w, "store")
		return
	}
	order, err := s.deps.Order.SourceOrder(r.Context())
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// ReorderRequest moves the source at priority From to priority To.
type ReorderRequest struct {
	From int `json:"from"`
	To   int `json:"to"`
}

func (s *Server) handleReorder(w http.ResponseWriter, r *http.Request) {
	if s.deps.Order == nil || s.deps.Sources == nil {
		writeUnavailable(w, "store")
		return
	}
	var req ReorderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.deps.Order.Reindex(r.Context(), req.From, req.To); err != nil {
		if errors.Is(err, store.ErrPriority) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeInternal(w, r, err)
		return
	}
	order, err := s.deps.Order.SourceOrder(r.Context())
	if err != nil {
		writeInternal(w, r, err)
		return
	}
	names := make([]string, len(order))
	for i, rank := range order {
		names[i] = rank.Name
	}
	s.deps.Sources.Order(names)
	writeJSON(w, http.StatusOK, order)
}
