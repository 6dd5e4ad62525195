// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package store persists imported EPG events and the source priority order
// in a SQLite database.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	xglog "github.com/ManuGH/epgmerge/internal/log"
	"github.com/ManuGH/epgmerge/internal/persistence/sqlite"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	// ErrStore wraps every transaction or lock failure.
	ErrStore = errors.New("store error")
	// ErrDuplicateKey is returned by Insert when the row already exists.
	ErrDuplicateKey = errors.New("duplicate event key")
	// ErrNotFound is returned by Update when no row matches.
	ErrNotFound = errors.New("event not found")
	// ErrNotExist is returned by OpenExisting when the database file is missing.
	ErrNotExist = errors.New("store does not exist")
)

// Options configures a store handle.
type Options struct {
	// BusyTimeout bounds lock waits. Zero means the package default (10ms).
	BusyTimeout time.Duration
}

// Store is a handle on the EPG database. It is safe for concurrent use.
type Store struct {
	db     *sql.DB
	path   string
	logger zerolog.Logger
	now    func() time.Time
}

// Open opens or creates the database at path and applies pending migrations.
func Open(ctx context.Context, path string, opts Options) (*Store, error) {
	cfg := sqlite.DefaultConfig()
	if opts.BusyTimeout > 0 {
		cfg.BusyTimeout = opts.BusyTimeout
	}
	db, err := sqlite.Open(ctx, path, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStore, err)
	}

	s := &Store{
		db:     db,
		path:   path,
		logger: xglog.WithComponent("store").With().Str(xglog.FieldPath, path).Logger(),
		now:    time.Now,
	}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: migration failed: %w", ErrStore, err)
	}
	return s, nil
}

// OpenExisting opens the database only if the file is already there.
func OpenExisting(ctx context.Context, path string, opts Options) (*Store, error) {
	fi, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotExist
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStore, err)
	}
	if fi.Size() == 0 {
		return nil, ErrNotExist
	}
	return Open(ctx, path, opts)
}

func (s *Store) migrate(ctx context.Context) error {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db, sub)
	if err != nil {
		return err
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return err
	}
	for _, r := range results {
		s.logger.Info().
			Str(xglog.FieldEvent, "store.migrated").
			Int64("version", r.Source.Version).
			Dur("took", r.Duration).
			Msg("applied store migration")
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close releases the connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}
