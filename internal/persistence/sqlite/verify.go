// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidCheckMode is returned for modes other than quick and full.
var ErrInvalidCheckMode = errors.New("invalid check mode (use quick or full)")

var checkPragmas = map[string]string{
	"quick": "PRAGMA quick_check",
	"full":  "PRAGMA integrity_check",
}

// VerifyIntegrity opens path read-only and runs quick_check or
// integrity_check. Healthy databases yield no issues.
func VerifyIntegrity(ctx context.Context, path, mode string) ([]string, error) {
	pragma, ok := checkPragmas[mode]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCheckMode, mode)
	}

	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro&_pragma=busy_timeout(2000)")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s read-only: %w", path, err)
	}
	defer func() { _ = db.Close() }()

	report, err := pragmaRows(ctx, db, pragma)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
	}
	switch {
	case len(report) == 0:
		return []string{"integrity check returned no rows"}, nil
	case len(report) == 1 && strings.EqualFold(report[0], "ok"):
		return nil, nil
	default:
		return report, nil
	}
}

func pragmaRows(ctx context.Context, db *sql.DB, pragma string) ([]string, error) {
	rows, err := db.QueryContext(ctx, pragma)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, err
		}
		out = append(out, line)
	}
	return out, rows.Err()
}
