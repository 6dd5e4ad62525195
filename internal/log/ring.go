// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// RingLevel is the single-letter severity stored with each ring entry.
type RingLevel byte

const (
	RingDebug RingLevel = 'D'
	RingInfo  RingLevel = 'I'
	RingError RingLevel = 'E'
)

// DefaultRingSize bounds a per-source log when no explicit size is given.
const DefaultRingSize = 256

// RingEntry is one line of a rolling log.
type RingEntry struct {
	Time    time.Time `json:"time"`
	Level   RingLevel `json:"level"`
	Message string    `json:"message"`
}

// String renders the entry the way the setup screens show it: "<L>HH:MM message".
func (e RingEntry) String() string {
	return fmt.Sprintf("%c%s %s", e.Level, e.Time.Format("15:04"), e.Message)
}

// Ring is a bounded, timestamped and leveled log buffer. Once full, the
// oldest entry is overwritten. It is safe for concurrent use.
type Ring struct {
	mu      sync.Mutex
	entries []RingEntry
	next    int
	full    bool
	now     func() time.Time
}

// NewRing creates a ring holding at most size entries.
func NewRing(size int) *Ring {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &Ring{
		entries: make([]RingEntry, size),
		now:     time.Now,
	}
}

// Append stores a message at the given level.
func (r *Ring) Append(level RingLevel, msg string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[r.next] = RingEntry{Time: r.now(), Level: level, Message: msg}
	r.next++
	if r.next == len(r.entries) {
		r.next = 0
		r.full = true
	}
}

// Appendf formats and stores a message at the given level.
func (r *Ring) Appendf(level RingLevel, format string, args ...any) {
	r.Append(level, fmt.Sprintf(format, args...))
}

// Entries returns the buffered entries, oldest first.
func (r *Ring) Entries() []RingEntry {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		out := make([]RingEntry, r.next)
		copy(out, r.entries[:r.next])
		return out
	}
	out := make([]RingEntry, 0, len(r.entries))
	out = append(out, r.entries[r.next:]...)
	out = append(out, r.entries[:r.next]...)
	return out
}

// Len reports how many entries are buffered.
func (r *Ring) Len() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return len(r.entries)
	}
	return r.next
}

// Reset drops all entries.
func (r *Ring) Reset() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next = 0
	r.full = false
	clear(r.entries)
}

// String renders the whole buffer, one entry per line.
func (r *Ring) String() string {
	var b strings.Builder
	for _, e := range r.Entries() {
		b.WriteString(e.String())
		b.WriteByte('\n')
	}
	return b.String()
}
