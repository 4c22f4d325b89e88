package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMustRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NotPanics(t, func() { MustRegister(reg) })

	RecordAttempt("GET", 200)
	RecordRetry("http_5xx")
	RecordPoll()
	RecordOperation("succeeded", 3*time.Second)

	families, err := reg.Gather()
	require.NoError(t, err)

	got := make(map[string]bool)
	for _, mf := range families {
		got[mf.GetName()] = true
	}
	for _, name := range []string{
		"fabricbridge_requests_total",
		"fabricbridge_retries_total",
		"fabricbridge_operations_total",
		"fabricbridge_operation_polls_total",
		"fabricbridge_operation_duration_seconds",
	} {
		assert.True(t, got[name], "metric %s not gathered", name)
	}
}

func TestRecordAttempt(t *testing.T) {
	before := testutil.ToFloat64(RequestsTotal.WithLabelValues("POST", "error"))
	RecordAttempt("POST", 0)
	assert.Equal(t, before+1, testutil.ToFloat64(RequestsTotal.WithLabelValues("POST", "error")))

	before = testutil.ToFloat64(RequestsTotal.WithLabelValues("POST", "503"))
	RecordAttempt("POST", 503)
	assert.Equal(t, before+1, testutil.ToFloat64(RequestsTotal.WithLabelValues("POST", "503")))
}

func TestRecordOperation(t *testing.T) {
	before := testutil.ToFloat64(OperationsTotal.WithLabelValues("failed"))
	RecordOperation("failed", time.Second)
	assert.Equal(t, before+1, testutil.ToFloat64(OperationsTotal.WithLabelValues("failed")))
}
