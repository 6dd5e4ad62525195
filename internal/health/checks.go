// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"time"
)

// staleAfter is how old the last update may get with a daily schedule.
const staleAfter = 26 * time.Hour

func healthy(msg string) CheckResult  { return CheckResult{Status: StatusHealthy, Message: msg} }
func degraded(msg string) CheckResult { return CheckResult{Status: StatusDegraded, Message: msg} }
func unhealthy(err string) CheckResult {
	return CheckResult{Status: StatusUnhealthy, Error: err}
}

// FileChecker checks the EPG store file. A missing file is only degraded
// because the first import creates it.
type FileChecker struct {
	name string
	path string
}

// NewFileChecker checks the file at path.
func NewFileChecker(name, path string) *FileChecker {
	return &FileChecker{name: name, path: path}
}

func (c *FileChecker) Name() string { return c.name }

func (c *FileChecker) Check(context.Context) CheckResult {
	if c.path == "" {
		return healthy("not configured")
	}
	info, err := os.Stat(c.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return degraded("not created yet")
	case err != nil:
		return unhealthy(err.Error())
	case info.IsDir():
		return unhealthy("expected file, got directory")
	case info.Size() == 0:
		return degraded("file is empty")
	}
	return healthy("present")
}

// LastRunChecker checks the outcome and age of the last update run.
type LastRunChecker struct {
	lastRun func() (time.Time, string)
}

// NewLastRunChecker uses lastRun, which returns the finish time of the last
// run and its error text.
func NewLastRunChecker(lastRun func() (time.Time, string)) *LastRunChecker {
	return &LastRunChecker{lastRun: lastRun}
}

func (c *LastRunChecker) Name() string { return "last_update" }

func (c *LastRunChecker) Check(context.Context) CheckResult {
	at, errText := c.lastRun()
	switch {
	case at.IsZero():
		return degraded("no update run yet")
	case errText != "":
		res := degraded("last update failed")
		res.Error = errText
		return res
	case time.Since(at) > staleAfter:
		return degraded("last update over a day ago")
	}
	return healthy("last update successful")
}

// SourcesChecker reports on the installed EPG sources.
type SourcesChecker struct {
	count func() (total, ready int)
}

// NewSourcesChecker uses count for the installed and readable sources.
func NewSourcesChecker(count func() (total, ready int)) *SourcesChecker {
	return &SourcesChecker{count: count}
}

func (c *SourcesChecker) Name() string { return "sources" }

func (c *SourcesChecker) Check(context.Context) CheckResult {
	total, ready := c.count()
	switch {
	case total == 0:
		return degraded("no epg sources installed")
	case ready == 0:
		return unhealthy("no source definition readable")
	case ready < total:
		return degraded("some source definitions unreadable")
	}
	return healthy("all sources ready")
}
