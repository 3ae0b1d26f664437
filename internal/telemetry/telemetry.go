// Package telemetry exposes the engine's Prometheus collectors.
// All recording methods are safe on a nil *Metrics.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gauge"

// Metrics holds the collectors recorded by jobs, alerts and the sampler
type Metrics struct {
	jobRuns             *prometheus.CounterVec
	jobDuration         prometheus.Histogram
	metricComputations  *prometheus.CounterVec
	logsMarked          prometheus.Counter
	alerts              *prometheus.CounterVec
	rangeUpserts        prometheus.Counter
	samplerRequests     *prometheus.CounterVec
	samplerEstimates    *prometheus.HistogramVec
	samplerSampledTotal *prometheus.CounterVec
}

// New registers the collectors with reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		jobRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "job_runs_total",
				Help:      "Scheduled job invocations by job and final status",
			},
			[]string{"job", "status"},
		),
		jobDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "metric_job_duration_seconds",
				Help:      "Duration of one metric job pass",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
			},
		),
		metricComputations: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "metric_computations_total",
				Help:      "Metric computations by problem type and status",
			},
			[]string{"problem_type", "status"},
		),
		logsMarked: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "logs_marked_total",
				Help:      "Model logs marked as metric processed",
			},
		),
		alerts: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_total",
				Help:      "Alert decisions by type and outcome",
			},
			[]string{"type", "outcome"},
		),
		rangeUpserts: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "metric_range_upserts_total",
				Help:      "Weekly metric range upserts",
			},
		),
		samplerRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sampler_requests_total",
				Help:      "Sampler requests by mode and cache outcome",
			},
			[]string{"mode", "cache"},
		),
		samplerEstimates: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sampler_estimated_tokens",
				Help:      "Estimated export size in tokens before sampling",
				Buckets:   prometheus.ExponentialBuckets(1000, 4, 10),
			},
			[]string{"mode"},
		),
		samplerSampledTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sampler_sampled_total",
				Help:      "Sampler requests that needed sampling",
			},
			[]string{"mode"},
		),
	}
}

// JobRun records the final status of a job invocation
func (m *Metrics) JobRun(job, status string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job, status).Inc()
}

// JobDuration records how long a metric job pass took
func (m *Metrics) JobDuration(seconds float64) {
	if m == nil {
		return
	}
	m.jobDuration.Observe(seconds)
}

// MetricComputed records one metric computation
func (m *Metrics) MetricComputed(problemType, status string) {
	if m == nil {
		return
	}
	m.metricComputations.WithLabelValues(problemType, status).Inc()
}

// LogsMarked records marked logs
func (m *Metrics) LogsMarked(n int) {
	if m == nil {
		return
	}
	m.logsMarked.Add(float64(n))
}

// Alert records an alert decision, outcome is created or suppressed
func (m *Metrics) Alert(alertType, outcome string) {
	if m == nil {
		return
	}
	m.alerts.WithLabelValues(alertType, outcome).Inc()
}

// RangeUpserted records a weekly range upsert
func (m *Metrics) RangeUpserted() {
	if m == nil {
		return
	}
	m.rangeUpserts.Inc()
}

// SamplerRequest records one sampler request
func (m *Metrics) SamplerRequest(mode, cacheOutcome string, estimatedTokens int, sampled bool) {
	if m == nil {
		return
	}
	m.samplerRequests.WithLabelValues(mode, cacheOutcome).Inc()
	m.samplerEstimates.WithLabelValues(mode).Observe(float64(estimatedTokens))
	if sampled {
		m.samplerSampledTotal.WithLabelValues(mode).Inc()
	}
}
