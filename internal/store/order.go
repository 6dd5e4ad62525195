// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	xglog "github.com/ManuGH/epgmerge/internal/log"
)

// scratchPriority parks a source during Reindex. Real priorities are >= 0.
const scratchPriority = -1

// ErrPriority is returned by Reindex for a negative priority or a slot no
// source occupies.
var ErrPriority = errors.New("invalid priority")

// SourceRank is one entry of the persisted source order.
type SourceRank struct {
	Name     string `json:"name"`
	Priority int    `json:"priority"`
}

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func ensureSource(ctx context.Context, q execQuerier, name string) (int, error) {
	var idx int
	err := q.QueryRowContext(ctx, `SELECT srcidx FROM sources WHERE name = ?`, name).Scan(&idx)
	if err == nil {
		return idx, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	err = q.QueryRowContext(ctx, `INSERT INTO sources (name, srcidx)
		SELECT ?, COALESCE(MAX(srcidx) + 1, 0) FROM sources
		RETURNING srcidx`, name).Scan(&idx)
	return idx, err
}

// EnsureSource returns the priority of name, appending it to the order on
// first sight.
func (s *Store) EnsureSource(ctx context.Context, name string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, wrap("ensure source", err)
	}
	defer func() { _ = tx.Rollback() }()

	idx, err := ensureSource(ctx, tx, name)
	if err != nil {
		return 0, wrap("ensure source", err)
	}
	return idx, wrap("ensure source", tx.Commit())
}

// SourceOrder lists the known sources, highest priority first.
func (s *Store) SourceOrder(ctx context.Context) ([]SourceRank, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, srcidx FROM sources ORDER BY srcidx ASC`)
	if err != nil {
		return nil, wrap("source order", err)
	}
	defer func() { _ = rows.Close() }()

	var out []SourceRank
	for rows.Next() {
		var r SourceRank
		if err := rows.Scan(&r.Name, &r.Priority); err != nil {
			return nil, wrap("source order", err)
		}
		out = append(out, r)
	}
	return out, wrap("source order", rows.Err())
}

// Reindex moves the source at priority from to priority to. The source
// occupying to is parked on a scratch slot, the mover takes its place and
// the parked source lands on from. All three steps run on both tables in a
// single transaction.
func (s *Store) Reindex(ctx context.Context, from, to int) error {
	if from < 0 || to < 0 {
		return fmt.Errorf("%w: %d -> %d", ErrPriority, from, to)
	}
	if from == to {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrap("reindex", err)
	}
	defer func() { _ = tx.Rollback() }()

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM sources WHERE srcidx IN (?, ?)`, from, to).Scan(&n); err != nil {
		return wrap("reindex", err)
	}
	if n != 2 {
		return fmt.Errorf("%w: %d -> %d: no such source slot", ErrPriority, from, to)
	}

	steps := [][2]int{
		{to, scratchPriority},
		{from, to},
		{scratchPriority, from},
	}
	for _, table := range []string{"sources", "epg"} {
		for _, st := range steps {
			q := fmt.Sprintf(`UPDATE %s SET srcidx = ? WHERE srcidx = ?`, table)
			if _, err := tx.ExecContext(ctx, q, st[1], st[0]); err != nil {
				return wrap("reindex", err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return wrap("reindex", err)
	}

	s.logger.Info().
		Str(xglog.FieldEvent, "store.reindexed").
		Int("from", from).
		Int("to", to).
		Msg("source priority changed")
	return nil
}
