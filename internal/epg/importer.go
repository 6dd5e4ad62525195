// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package epg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	xglog "github.com/ManuGH/epgmerge/internal/log"
	"github.com/ManuGH/epgmerge/internal/metrics"
	"github.com/ManuGH/epgmerge/internal/source"
	"github.com/ManuGH/epgmerge/internal/store"
	"github.com/ManuGH/epgmerge/internal/telemetry"
)

// Process result codes. Anything non-zero fails the source.
const (
	ResultOK     = 0
	ResultDecode = 1
	ResultStore  = 2
)

// Writer persists imported events.
type Writer interface {
	Put(ctx context.Context, ev store.Event) (store.PutResult, error)
	Close() error
}

// Opener yields a store handle for one import.
type Opener func(ctx context.Context) (Writer, error)

// StoreOpener opens the event store at path for each import.
func StoreOpener(path string, opts store.Options) Opener {
	return func(ctx context.Context) (Writer, error) {
		st, err := store.Open(ctx, path, opts)
		if err != nil {
			return nil, err
		}
		return st, nil
	}
}

// Stats counts what an import did.
type Stats struct {
	Programmes int
	Skipped    int
	Inserted   int
	Updated    int
	Unchanged  int
}

// Importer decodes XMLTV output of a source into the event store.
type Importer struct {
	open     Opener
	maxBytes int64
	now      func() time.Time
	logger   zerolog.Logger
	tracer   trace.Tracer
}

// NewImporter returns an importer writing through open.
func NewImporter(open Opener, maxBytes int64) *Importer {
	return &Importer{
		open:     open,
		maxBytes: maxBytes,
		now:      time.Now,
		logger:   xglog.WithComponent("epg"),
		tracer:   telemetry.Tracer("epgmerge.epg"),
	}
}

// Process imports data delivered by src and returns 0 on success.
func (im *Importer) Process(ctx context.Context, src *source.Source, data []byte) int {
	ctx, span := im.tracer.Start(ctx, "epg.import",
		trace.WithAttributes(attribute.String(telemetry.SourceNameKey, src.Name)))
	defer span.End()

	stats, err := im.Import(ctx, src, data)
	span.SetAttributes(
		attribute.Int("epg.programmes", stats.Programmes),
		attribute.Int("epg.inserted", stats.Inserted),
		attribute.Int("epg.updated", stats.Updated),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		src.Errorf("import failed: %v", err)
		if errors.Is(err, store.ErrStore) {
			return ResultStore
		}
		return ResultDecode
	}
	src.Infof("imported %d programmes (%d new, %d changed, %d unchanged, %d skipped)",
		stats.Programmes, stats.Inserted, stats.Updated, stats.Unchanged, stats.Skipped)
	return ResultOK
}

// Import decodes and stores the programmes of the source's selected channels.
func (im *Importer) Import(ctx context.Context, src *source.Source, data []byte) (Stats, error) {
	var stats Stats
	channels := map[string]bool{}
	for _, ch := range src.Channels() {
		if ch.InUse {
			channels[ch.ID] = true
		}
	}

	now := im.now()
	var horizon time.Time
	if days := src.DaysInAdvance(); days > 0 {
		horizon = now.AddDate(0, 0, days+1)
	}

	var events []store.Event
	err := Decode(bytes.NewReader(data), im.maxBytes, func(p Programme) error {
		stats.Programmes++
		if !channels[p.Channel] {
			stats.Skipped++
			return nil
		}
		ev, ok := toEvent(src.Name, p)
		if !ok {
			stats.Skipped++
			return nil
		}
		if !horizon.IsZero() && ev.Start.After(horizon) {
			stats.Skipped++
			return nil
		}
		events = append(events, ev)
		return nil
	})
	if err != nil {
		return stats, err
	}

	events = fillDurations(events)
	if len(events) == 0 {
		return stats, nil
	}

	w, err := im.open(ctx)
	if err != nil {
		return stats, err
	}
	defer func() {
		if cerr := w.Close(); cerr != nil {
			im.logger.Warn().Err(cerr).Str(xglog.FieldSource, src.Name).Msg("close store")
		}
	}()

	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if !ev.End().After(now) {
			stats.Skipped++
			continue
		}
		res, err := w.Put(ctx, ev)
		if err != nil {
			return stats, fmt.Errorf("%w: %s/%d: %w", store.ErrStore, ev.ChannelID, ev.Key, err)
		}
		metrics.IncEventImported(src.Name, res.String())
		switch res {
		case store.PutInserted:
			stats.Inserted++
		case store.PutUpdated:
			stats.Updated++
		default:
			stats.Unchanged++
		}
	}
	return stats, nil
}

// toEvent maps a programme; stop may be missing and is filled later.
func toEvent(src string, p Programme) (store.Event, bool) {
	title := first(p.Titles)
	if title == "" {
		return store.Event{}, false
	}
	start, err := ParseTime(p.Start)
	if err != nil {
		return store.Event{}, false
	}
	var dur time.Duration
	if p.Stop != "" {
		stop, err := ParseTime(p.Stop)
		if err != nil || !stop.After(start) {
			return store.Event{}, false
		}
		dur = stop.Sub(start)
	}

	ep := parseEpisode(p.EpisodeNum)
	ev := store.Event{
		Source:      src,
		ChannelID:   p.Channel,
		Key:         store.NaturalKey(start, ep.XRef),
		Start:       start,
		Duration:    dur,
		Title:       title,
		ShortText:   first(p.SubTitles),
		Description: first(p.Descs),
		Extras:      extras(p, title, ep),
	}
	return ev, true
}

func extras(p Programme, title string, ep Episode) store.Extras {
	x := store.Extras{}
	set := func(key, value string) {
		if value = strings.TrimSpace(value); value != "" {
			x[key] = value
		}
	}
	if ep.Season > 0 {
		set(store.ExtraSeason, strconv.Itoa(ep.Season))
	}
	if ep.Episode > 0 {
		set(store.ExtraEpisode, strconv.Itoa(ep.Episode))
	}
	set(store.ExtraDate, p.Date)
	set(store.ExtraCountry, joinTexts(p.Countries))
	set(store.ExtraCategory, joinTexts(p.Categories))
	set(store.ExtraReview, first(p.Reviews))
	for _, t := range p.Titles {
		if v := strings.TrimSpace(t.Value); v != "" && v != title {
			set(store.ExtraOriginalTitle, v)
			break
		}
	}
	for role, people := range p.Credits.Roles() {
		set(role, strings.Join(trimAll(people), ", "))
	}
	mergeDescribed(x, describedExtras(first(p.Descs)))
	if len(x) == 0 {
		return nil
	}
	return x
}

func trimAll(in []string) []string {
	out := in[:0:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// fillDurations closes open-ended programmes at the next start on the same
// channel and drops those that stay open.
func fillDurations(events []store.Event) []store.Event {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].ChannelID != events[j].ChannelID {
			return events[i].ChannelID < events[j].ChannelID
		}
		return events[i].Start.Before(events[j].Start)
	})
	out := events[:0]
	for i, ev := range events {
		if ev.Duration == 0 {
			if i+1 < len(events) && events[i+1].ChannelID == ev.ChannelID && events[i+1].Start.After(ev.Start) {
				ev.Duration = events[i+1].Start.Sub(ev.Start)
			} else {
				continue
			}
		}
		out = append(out, ev)
	}
	return out
}
