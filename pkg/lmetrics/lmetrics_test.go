package lmetrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestAddNewRuleCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(AddNewRuleDone)
	AddNewRuleDone.Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(AddNewRuleDone))

	AddNewRuleActivity.WithLabelValues("express").Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(AddNewRuleActivity.WithLabelValues("express")))

	AddNewRuleErrorType.WithLabelValues("unknown").Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(AddNewRuleErrorType.WithLabelValues("unknown")))
}

func TestReaperDeletionCounters(t *testing.T) {
	before := testutil.ToFloat64(ReaperDeletionDone)
	ReaperDeletionDone.Add(3)
	assert.Equal(t, before+3, testutil.ToFloat64(ReaperDeletionDone))

	ReaperDeletionFailed.WithLabelValues("not found (already deleted?)").Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(ReaperDeletionFailed.WithLabelValues("not found (already deleted?)")))
}
