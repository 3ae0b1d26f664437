package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.JobRun("metrics", "succeeded")
	m.JobRun("metrics", "succeeded")
	m.MetricComputed("binary_class", "ok")
	m.LogsMarked(30)
	m.Alert("metric", "suppressed")
	m.SamplerRequest("model", "miss", 600000, true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.jobRuns.WithLabelValues("metrics", "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.metricComputations.WithLabelValues("binary_class", "ok")))
	assert.Equal(t, 30.0, testutil.ToFloat64(m.logsMarked))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.alerts.WithLabelValues("metric", "suppressed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.samplerRequests.WithLabelValues("model", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.samplerSampledTotal.WithLabelValues("model")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.JobRun("metrics", "failed")
		m.JobDuration(1)
		m.MetricComputed("x", "error")
		m.LogsMarked(1)
		m.Alert("error", "created")
		m.RangeUpserted()
		m.SamplerRequest("nodes", "hit", 10, false)
	})
}
