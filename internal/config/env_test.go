// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ManuGH/epgmerge/internal/log"
)

func TestParseEnv_InvalidValuesWarnAndFallBack(t *testing.T) {
	var buf bytes.Buffer
	log.Configure(log.Config{Level: "warn", Output: &buf})
	t.Cleanup(func() { log.Configure(log.Config{}) })

	t.Setenv("EPGMERGE_TEST_INT", "many")
	t.Setenv("EPGMERGE_TEST_FLOAT", "half")
	t.Setenv("EPGMERGE_TEST_DUR", "soon")
	t.Setenv("EPGMERGE_TEST_BOOL", "maybe")

	assert.Equal(t, 7, ParseInt("EPGMERGE_TEST_INT", 7))
	assert.InDelta(t, 0.5, ParseFloat("EPGMERGE_TEST_FLOAT", 0.5), 1e-9)
	assert.Equal(t, time.Minute, ParseDuration("EPGMERGE_TEST_DUR", time.Minute))
	assert.True(t, ParseBool("EPGMERGE_TEST_BOOL", true))

	out := buf.String()
	for _, want := range []string{"invalid integer", "invalid float", "invalid duration", "invalid boolean"} {
		assert.Contains(t, out, want)
	}
	assert.Contains(t, out, `"component":"config"`)
}

func TestParseEnv_ValidValues(t *testing.T) {
	t.Setenv("EPGMERGE_TEST_INT", "42")
	t.Setenv("EPGMERGE_TEST_BOOL", "no")
	t.Setenv("EPGMERGE_TEST_DUR", "90s")
	assert.Equal(t, 42, ParseInt("EPGMERGE_TEST_INT", 7))
	assert.False(t, ParseBool("EPGMERGE_TEST_BOOL", true))
	assert.Equal(t, 90*time.Second, ParseDuration("EPGMERGE_TEST_DUR", time.Minute))
}
