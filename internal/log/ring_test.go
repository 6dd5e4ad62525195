// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedRing(size int) *Ring {
	r := NewRing(size)
	r.now = func() time.Time { return time.Date(2026, 1, 2, 7, 5, 0, 0, time.UTC) }
	return r
}

func TestRing_KeepsOrderUntilFull(t *testing.T) {
	r := fixedRing(3)
	r.Append(RingDebug, "one")
	r.Append(RingInfo, "two")

	entries := r.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "one", entries[0].Message)
	assert.Equal(t, "two", entries[1].Message)
	assert.Equal(t, "D07:05 one\nI07:05 two\n", r.String())
}

func TestRing_OverwritesOldest(t *testing.T) {
	r := fixedRing(3)
	for i := 1; i <= 5; i++ {
		r.Appendf(RingError, "line %d", i)
	}

	entries := r.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, []string{"line 3", "line 4", "line 5"}, []string{entries[0].Message, entries[1].Message, entries[2].Message})
	assert.Equal(t, 3, r.Len())
}

func TestRing_Reset(t *testing.T) {
	r := fixedRing(2)
	r.Append(RingInfo, "a")
	r.Append(RingInfo, "b")
	r.Append(RingInfo, "c")
	r.Reset()

	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.Entries())
	r.Append(RingInfo, "d")
	assert.Equal(t, "I07:05 d\n", r.String())
}

func TestRing_NilSafe(t *testing.T) {
	var r *Ring
	r.Append(RingInfo, "ignored")
	assert.Equal(t, 0, r.Len())
	assert.Nil(t, r.Entries())
}

func TestRing_ConcurrentAppend(t *testing.T) {
	r := NewRing(64)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				r.Append(RingDebug, fmt.Sprintf("%d-%d", g, i))
			}
		}(g)
	}
	wg.Wait()
	assert.Equal(t, 64, r.Len())
}
