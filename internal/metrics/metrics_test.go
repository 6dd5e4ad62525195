// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestReceiverBreaker(t *testing.T) {
	SetReceiverBreakerState(1)
	assert.Equal(t, 1.0, testutil.ToFloat64(receiverBreakerState))

	before := testutil.ToFloat64(receiverBreakerTransitions.WithLabelValues("half-open", "closed", "none"))
	RecordReceiverBreakerTransition("half-open", "closed", "")
	assert.Equal(t, before+1, testutil.ToFloat64(receiverBreakerTransitions.WithLabelValues("half-open", "closed", "none")))
}

func TestRecordSourceExecution(t *testing.T) {
	before := testutil.ToFloat64(sourceExecutionsTotal.WithLabelValues("metrics-test", "soft"))
	RecordSourceExecution("metrics-test", "soft", 2*time.Second)
	IncSourceRetry("metrics-test")
	assert.Equal(t, before+1, testutil.ToFloat64(sourceExecutionsTotal.WithLabelValues("metrics-test", "soft")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sourceRetriesTotal.WithLabelValues("metrics-test")))
}

func TestRecordHousekeeping_CountsDeletions(t *testing.T) {
	before := testutil.ToFloat64(housekeepingDeletedTotal)
	RecordHousekeeping("success", 7)
	RecordHousekeeping("noop", 0)
	assert.Equal(t, before+7, testutil.ToFloat64(housekeepingDeletedTotal))
}

func TestIncSVDRPCommand_Code(t *testing.T) {
	IncSVDRPCommand("UPDT", 250)
	assert.Equal(t, 1.0, testutil.ToFloat64(svdrpCommandsTotal.WithLabelValues("UPDT", "250")))
}

func TestSetRunActive(t *testing.T) {
	SetRunActive(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(runActive))
	SetRunActive(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(runActive))
}
