// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	xglog "github.com/ManuGH/epgmerge/internal/log"
	"github.com/ManuGH/epgmerge/internal/metrics"
	"github.com/ManuGH/epgmerge/internal/persistence/sqlite"
)

const selectColumns = `src, channelid, eventid, starttime, duration, title, shorttext,
	description, extras, srcidx, eiteventid, touched`

// PutResult tells what Put did.
type PutResult int

const (
	PutUnchanged PutResult = iota
	PutInserted
	PutUpdated
)

func (r PutResult) String() string {
	switch r {
	case PutInserted:
		return "insert"
	case PutUpdated:
		return "update"
	default:
		return "unchanged"
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (Event, error) {
	var (
		ev       Event
		start    int64
		duration int64
		extras   string
		eit      sql.NullInt64
		touched  int
	)
	if err := row.Scan(&ev.Source, &ev.ChannelID, &ev.Key, &start, &duration,
		&ev.Title, &ev.ShortText, &ev.Description, &extras, &ev.Priority, &eit, &touched); err != nil {
		return Event{}, err
	}
	ev.Start = time.Unix(start, 0)
	ev.Duration = time.Duration(duration) * time.Second
	ev.Touched = touched != 0
	if eit.Valid {
		id := uint32(eit.Int64)
		ev.EITEventID = &id
	}
	x, err := decodeExtras(extras)
	if err != nil {
		return Event{}, err
	}
	ev.Extras = x
	return ev, nil
}

// Lookup returns the highest priority row for (channel, key). Lock
// contention is reported as a miss so the caller never waits longer than
// the busy timeout. In WAL mode reads only see SQLITE_BUSY while another
// connection recovers or checkpoints the log; a pending writer does not
// block them.
func (s *Store) Lookup(ctx context.Context, channel string, key int64) (Event, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM epg
		WHERE channelid = ? AND eventid = ? ORDER BY srcidx ASC LIMIT 1`, channel, key)
	return s.lookupRow(row)
}

// LookupAt finds the highest priority row of a channel starting exactly at start.
func (s *Store) LookupAt(ctx context.Context, channel string, start time.Time) (Event, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM epg
		WHERE channelid = ? AND starttime = ? ORDER BY srcidx ASC LIMIT 1`, channel, start.Unix())
	return s.lookupRow(row)
}

func (s *Store) lookupRow(row rowScanner) (Event, bool, error) {
	ev, err := scanEvent(row)
	switch {
	case err == nil:
		metrics.IncStoreLookup("hit")
		return ev, true, nil
	case errors.Is(err, sql.ErrNoRows):
		metrics.IncStoreLookup("miss")
		return Event{}, false, nil
	case sqlite.IsBusy(err):
		metrics.IncStoreLookup("busy")
		s.logger.Debug().Str(xglog.FieldEvent, "store.lookup_busy").Msg("store busy, treating lookup as miss")
		return Event{}, false, nil
	default:
		metrics.IncStoreLookup("error")
		return Event{}, false, wrap("lookup", err)
	}
}

// Insert stores a new row. The source is registered with the next free
// priority on first use. An existing (source, channel, key) row yields
// ErrDuplicateKey.
func (s *Store) Insert(ctx context.Context, ev Event) error {
	extras, err := encodeExtras(ev.Extras)
	if err != nil {
		return wrap("insert", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("insert", err)
	}
	defer func() { _ = tx.Rollback() }()

	idx, err := ensureSource(ctx, tx, ev.Source)
	if err != nil {
		return wrap("insert", err)
	}

	var eit any
	if ev.EITEventID != nil {
		eit = int64(*ev.EITEventID)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO epg
		(src, channelid, eventid, starttime, duration, title, shorttext, description, extras, srcidx, eiteventid, touched)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.Source, ev.ChannelID, ev.Key, ev.Start.Unix(), int64(ev.Duration/time.Second),
		ev.Title, ev.ShortText, ev.Description, extras, idx, eit, boolInt(ev.Touched))
	if sqlite.IsUniqueViolation(err) {
		return ErrDuplicateKey
	}
	if err != nil {
		return wrap("insert", err)
	}
	return wrap("insert", tx.Commit())
}

// Update replaces the mutable fields of an existing row and marks it
// touched. A nil EITEventID keeps the recorded broadcast identity.
func (s *Store) Update(ctx context.Context, ev Event) error {
	extras, err := encodeExtras(ev.Extras)
	if err != nil {
		return wrap("update", err)
	}
	var eit any
	if ev.EITEventID != nil {
		eit = int64(*ev.EITEventID)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE epg SET
		starttime = ?, duration = ?, title = ?, shorttext = ?, description = ?, extras = ?,
		eiteventid = COALESCE(?, eiteventid), touched = 1
		WHERE src = ? AND channelid = ? AND eventid = ?`,
		ev.Start.Unix(), int64(ev.Duration/time.Second), ev.Title, ev.ShortText, ev.Description, extras,
		eit, ev.Source, ev.ChannelID, ev.Key)
	if err != nil {
		return wrap("update", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrap("update", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Put is the import upsert: insert a new row, or replace a stored one whose
// content differs. A replaced row loses its broadcast identity and touched
// marker so reconciliation merges the new data again.
func (s *Store) Put(ctx context.Context, ev Event) (PutResult, error) {
	ev.EITEventID = nil
	ev.Touched = false
	err := s.Insert(ctx, ev)
	if err == nil {
		return PutInserted, nil
	}
	if !errors.Is(err, ErrDuplicateKey) {
		return PutUnchanged, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM epg
		WHERE src = ? AND channelid = ? AND eventid = ?`, ev.Source, ev.ChannelID, ev.Key)
	stored, err := scanEvent(row)
	if err != nil {
		return PutUnchanged, wrap("put", err)
	}
	if stored.SameContent(ev) {
		return PutUnchanged, nil
	}

	extras, err := encodeExtras(ev.Extras)
	if err != nil {
		return PutUnchanged, wrap("put", err)
	}
	_, err = s.db.ExecContext(ctx, `UPDATE epg SET
		starttime = ?, duration = ?, title = ?, shorttext = ?, description = ?, extras = ?,
		eiteventid = NULL, touched = 0
		WHERE src = ? AND channelid = ? AND eventid = ?`,
		ev.Start.Unix(), int64(ev.Duration/time.Second), ev.Title, ev.ShortText, ev.Description, extras,
		ev.Source, ev.ChannelID, ev.Key)
	if err != nil {
		return PutUnchanged, wrap("put", err)
	}
	return PutUpdated, nil
}

// DeleteExpired removes every row whose start+duration precedes now and
// compacts the file when anything was removed.
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	// Rows hold whole seconds: end < now  <=>  end < ceil(now).
	cutoff := now.Unix()
	if now.Nanosecond() > 0 {
		cutoff++
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM epg WHERE starttime + duration < ?`, cutoff)
	if err != nil {
		return 0, wrap("delete expired", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrap("delete expired", err)
	}
	if n == 0 {
		return 0, nil
	}
	if _, err := s.db.ExecContext(ctx, `VACUUM`); err != nil {
		return n, wrap("vacuum", err)
	}
	return n, nil
}

// ChannelEvents lists the rows of a channel that have not ended before
// from, in start order and highest priority first.
func (s *Store) ChannelEvents(ctx context.Context, channel string, from time.Time) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM epg
		WHERE channelid = ? AND starttime + duration >= ?
		ORDER BY starttime ASC, srcidx ASC`, channel, from.Unix())
	if err != nil {
		return nil, wrap("channel events", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, wrap("channel events", err)
		}
		out = append(out, ev)
	}
	return out, wrap("channel events", rows.Err())
}

// Count returns the number of stored events.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM epg`).Scan(&n); err != nil {
		return 0, wrap("count", err)
	}
	return n, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
