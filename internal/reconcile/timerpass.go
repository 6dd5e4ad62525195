// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ManuGH/epgmerge/internal/config"
	"github.com/ManuGH/epgmerge/internal/host"
	xglog "github.com/ManuGH/epgmerge/internal/log"
	"github.com/ManuGH/epgmerge/internal/store"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// TimerPassResult summarizes one timer pass.
type TimerPassResult struct {
	Timers     int `json:"timers"`
	Checked    int `json:"checked"`
	Created    int `json:"created"`
	Backfilled int `json:"backfilled"`
	Errors     int `json:"errors"`
	// Events holds the backfilled timer events.
	Events []host.Event `json:"events,omitempty"`
}

// TimerPass backfills short text and season/episode data of timer events.
// The matched store row is marked touched and, when the timer source is a
// host.EventWriter, the merged event is written back to the host.
// Concurrent calls share one pass.
type TimerPass struct {
	timers   host.TimerSource
	open     Opener
	cfg      ConfigSource
	episodes Episodes
	logger   zerolog.Logger
	group    singleflight.Group
}

// NewTimerPass builds a timer pass. episodes may be nil.
func NewTimerPass(timers host.TimerSource, open Opener, cfg ConfigSource, episodes Episodes) *TimerPass {
	return &TimerPass{
		timers:   timers,
		open:     open,
		cfg:      cfg,
		episodes: episodes,
		logger:   xglog.WithComponent("timerpass"),
	}
}

// Run executes the pass, or joins the one in progress.
func (p *TimerPass) Run(ctx context.Context) (TimerPassResult, error) {
	v, err, shared := p.group.Do("timerpass", func() (any, error) {
		return p.run(ctx)
	})
	if shared {
		p.logger.Debug().Str(xglog.FieldEvent, "timerpass.shared").Msg("joined running timer pass")
	}
	res, _ := v.(TimerPassResult)
	return res, err
}

func (p *TimerPass) run(ctx context.Context) (TimerPassResult, error) {
	var res TimerPassResult

	timers, err := p.timers.Timers(ctx)
	if err != nil {
		return res, fmt.Errorf("list timers: %w", err)
	}
	res.Timers = len(timers)
	if len(timers) == 0 {
		return res, nil
	}

	h, err := p.open(ctx)
	if err != nil {
		return res, fmt.Errorf("open store: %w", err)
	}
	// Released when the pass concludes, never held across passes.
	defer func() { _ = h.Close() }()

	labels := p.cfg.Get().TextMappings
	for _, t := range timers {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		ev := t.Event
		if ev == nil || ev.ShortText != "" {
			continue
		}
		res.Checked++

		imp, created, err := lookupOrCreate(ctx, h, ev, 0)
		if err != nil {
			res.Errors++
			p.logger.Warn().Err(err).Str(xglog.FieldTimerID, t.ID).Msg("timer lookup failed")
			continue
		}
		if created {
			res.Created++
			continue
		}

		mr := merge(imp, ev, []string{config.FlagShortText, config.FlagSeason}, labels, p.episodes)
		if !mr.setShort || strings.TrimSpace(mr.shortText) == "" {
			continue
		}

		if err := h.Update(ctx, backfillRow(imp, ev, p.episodes)); err != nil {
			res.Errors++
			p.logger.Warn().Err(err).Str(xglog.FieldTimerID, t.ID).Msg("timer backfill store update failed")
			continue
		}

		updated := *ev
		updated.ShortText = mr.shortText
		updated.Processed = true
		if w, ok := p.timers.(host.EventWriter); ok {
			if err := w.WriteTimerEvent(ctx, t.ID, updated); err != nil {
				res.Errors++
				entry := p.logger.Warn().Err(err).Str(xglog.FieldTimerID, t.ID)
				if errors.Is(err, host.ErrUnknownTimer) {
					entry.Msg("timer vanished before write-back")
				} else {
					entry.Msg("timer write-back failed")
				}
				continue
			}
		}
		res.Backfilled++
		res.Events = append(res.Events, updated)
		p.logger.Debug().
			Str(xglog.FieldTimerID, t.ID).
			Str(xglog.FieldChannel, ev.ChannelID).
			Str("short_text", updated.ShortText).
			Msg("backfilled timer event")
	}

	p.logger.Info().
		Str(xglog.FieldEvent, "timerpass.done").
		Int("timers", res.Timers).
		Int("checked", res.Checked).
		Int("backfilled", res.Backfilled).
		Msg("timer pass finished")
	return res, nil
}

// backfillRow links the imported row to the broadcast and records the
// resolved episode numbers the row does not carry yet.
func backfillRow(imp store.Event, ev *host.Event, episodes Episodes) store.Event {
	imp.EITEventID = &ev.ID
	ep, ok := resolveEpisode(imp, ev.Title, imp.ShortText, episodes)
	if !ok {
		return imp
	}
	extras := make(map[string]string, len(imp.Extras)+3)
	for k, v := range imp.Extras {
		extras[k] = v
	}
	setMissing := func(key string, n int) {
		if n <= 0 {
			return
		}
		if _, ok := extras[key]; !ok {
			extras[key] = strconv.Itoa(n)
		}
	}
	setMissing(store.ExtraSeason, ep.Season)
	setMissing(store.ExtraEpisode, ep.Episode)
	setMissing(store.ExtraEpisodeOverall, ep.Overall)
	imp.Extras = extras
	return imp
}
