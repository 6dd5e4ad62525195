// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"encoding/json"
	"hash/crc32"
	"maps"
	"time"
)

// EITSource is the pseudo source holding events synthesized from the
// broadcast stream itself.
const EITSource = "EIT"

// Well-known keys of Event.Extras.
const (
	ExtraSeason         = "season"
	ExtraEpisode        = "episode"
	ExtraEpisodeOverall = "episodeoverall"
	ExtraCountry        = "country"
	ExtraDate           = "date"
	ExtraOriginalTitle  = "originaltitle"
	ExtraCategory       = "category"
	ExtraReview         = "review"
)

// CreditRoles are the Extras keys holding comma separated credit lists.
var CreditRoles = []string{
	"actor", "adapter", "commentator", "composer", "director",
	"editor", "guest", "presenter", "producer", "writer",
}

// Extras holds free-form structured metadata of an event.
type Extras map[string]string

// Event is one imported listing row.
type Event struct {
	Source      string
	ChannelID   string
	Key         int64
	Start       time.Time
	Duration    time.Duration
	Title       string
	ShortText   string
	Description string
	Extras      Extras
	// Priority is the source index; lower wins. Filled on reads.
	Priority int
	// EITEventID is the broadcast event this row was merged into, if any.
	EITEventID *uint32
	// Touched is set once reconciliation has written the row.
	Touched bool
}

// End is the computed end of the broadcast window.
func (e Event) End() time.Time { return e.Start.Add(e.Duration) }

// Merged reports whether the row carries a broadcast identity.
func (e Event) Merged() bool { return e.EITEventID != nil }

// SameContent compares the fields a re-import may change.
func (e Event) SameContent(o Event) bool {
	return e.Start.Unix() == o.Start.Unix() &&
		e.Duration/time.Second == o.Duration/time.Second &&
		e.Title == o.Title &&
		e.ShortText == o.ShortText &&
		e.Description == o.Description &&
		maps.Equal(e.Extras, o.Extras)
}

// NaturalKey derives the per-channel identity of a broadcast occurrence:
// the CRC-32 of a cross-reference id when one exists, else the start time
// in minutes since the epoch.
func NaturalKey(start time.Time, xref string) int64 {
	if xref != "" {
		return int64(crc32.ChecksumIEEE([]byte(xref)))
	}
	return start.Unix() / 60
}

func encodeExtras(x Extras) (string, error) {
	if len(x) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(x)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeExtras(s string) (Extras, error) {
	if s == "" || s == "{}" {
		return nil, nil
	}
	var x Extras
	if err := json.Unmarshal([]byte(s), &x); err != nil {
		return nil, err
	}
	return x, nil
}
