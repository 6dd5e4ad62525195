// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package reconcile

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/ManuGH/epgmerge/internal/host"
	xglog "github.com/ManuGH/epgmerge/internal/log"
	"github.com/ManuGH/epgmerge/internal/store"
	"github.com/rs/zerolog"
)

// Enricher adds season/episode numbers from the episode lists to stored
// events of every channel that carries a recording timer.
type Enricher struct {
	timers   host.TimerSource
	open     Opener
	episodes Episodes
	logger   zerolog.Logger
	now      func() time.Time
}

// NewEnricher builds an enricher.
func NewEnricher(timers host.TimerSource, open Opener, episodes Episodes) *Enricher {
	return &Enricher{
		timers:   timers,
		open:     open,
		episodes: episodes,
		logger:   xglog.WithComponent("enrich"),
		now:      time.Now,
	}
}

// Enrich runs one pass. Rows that gain numbers are re-put so the next
// reconciliation merges them again.
func (e *Enricher) Enrich(ctx context.Context) error {
	if e.episodes == nil {
		return nil
	}
	timers, err := e.timers.Timers(ctx)
	if err != nil {
		return fmt.Errorf("list timers: %w", err)
	}
	var channels []string
	for _, t := range timers {
		if t.ChannelID != "" && !slices.Contains(channels, t.ChannelID) {
			channels = append(channels, t.ChannelID)
		}
	}
	if len(channels) == 0 {
		return nil
	}

	h, err := e.open(ctx)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = h.Close() }()

	enriched := 0
	for _, ch := range channels {
		rows, err := h.ChannelEvents(ctx, ch, e.now())
		if err != nil {
			return err
		}
		for _, row := range rows {
			if row.ShortText == "" || row.Extras[store.ExtraSeason] != "" {
				continue
			}
			ep, ok := e.episodes.Lookup(row.Title, row.ShortText)
			if !ok {
				continue
			}
			extras := make(store.Extras, len(row.Extras)+3)
			for k, v := range row.Extras {
				extras[k] = v
			}
			extras[store.ExtraSeason] = strconv.Itoa(ep.Season)
			extras[store.ExtraEpisode] = strconv.Itoa(ep.Episode)
			if ep.Overall > 0 {
				extras[store.ExtraEpisodeOverall] = strconv.Itoa(ep.Overall)
			}
			row.Extras = extras
			if _, err := h.Put(ctx, row); err != nil {
				return err
			}
			enriched++
		}
	}

	e.logger.Info().
		Str(xglog.FieldEvent, "enrich.done").
		Int("channels", len(channels)).
		Int("enriched", enriched).
		Msg("season/episode enrichment finished")
	return nil
}
