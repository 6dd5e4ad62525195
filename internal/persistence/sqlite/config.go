// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package sqlite opens SQLite databases with the pragmas every epgmerge
// store relies on and classifies driver errors.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Config defines standard SQLite operational parameters.
type Config struct {
	// BusyTimeout bounds how long a statement waits for a lock.
	BusyTimeout  time.Duration
	MaxOpenConns int
	ReadOnly     bool
}

// DefaultConfig favours availability: lock waits are short and callers
// treat a busy store as "no data".
func DefaultConfig() Config {
	return Config{
		BusyTimeout:  10 * time.Millisecond,
		MaxOpenConns: 4,
	}
}

// DSN builds the modernc connection string. Pragmas in the DSN apply to
// every connection of the pool.
func DSN(dbPath string, cfg Config) string {
	mode := ""
	if cfg.ReadOnly {
		mode = "mode=ro&"
	}
	return fmt.Sprintf("file:%s?%s_txlock=immediate&_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		dbPath, mode, cfg.BusyTimeout.Milliseconds())
}

// Open initializes a SQLite connection pool with mandatory PRAGMAs.
func Open(ctx context.Context, dbPath string, cfg Config) (*sql.DB, error) {
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = DefaultConfig().MaxOpenConns
	}

	db, err := sql.Open("sqlite", DSN(dbPath, cfg))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open failed: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping failed: %w", err)
	}
	return db, nil
}

func code(err error) (int, bool) {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return 0, false
	}
	return se.Code(), true
}

// IsBusy reports lock contention (SQLITE_BUSY or SQLITE_LOCKED, any extended code).
func IsBusy(err error) bool {
	c, ok := code(err)
	if !ok {
		return false
	}
	primary := c & 0xff
	return primary == sqlite3.SQLITE_BUSY || primary == sqlite3.SQLITE_LOCKED
}

// IsUniqueViolation reports a PRIMARY KEY or UNIQUE constraint failure.
func IsUniqueViolation(err error) bool {
	c, ok := code(err)
	if !ok {
		return false
	}
	return c == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY || c == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}
