package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for dispatch_outcomes_total.
const (
	OutcomeSucceeded    = "succeeded"
	OutcomeDeferScore   = "defer_score"
	OutcomeDeferQuota   = "defer_quota"
	OutcomeDeferCircuit = "defer_circuit"
	OutcomeRetried      = "retried"
	OutcomeFailed       = "failed"
	OutcomeSkipped      = "skipped"
)

// Metrics holds the dispatcher collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	outcomes        *prometheus.CounterVec
	publishDuration *prometheus.HistogramVec
	runs            *prometheus.CounterVec
	reconciled      *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clipcast_dispatch_outcomes_total",
				Help: "Per-candidate dispatch outcomes",
			},
			[]string{"platform", "outcome"},
		),
		publishDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "clipcast_publish_duration_seconds",
				Help:    "Platform publisher call duration in seconds",
				Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"platform"},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clipcast_dispatch_runs_total",
				Help: "Dispatch runs by result",
			},
			[]string{"platform", "result"},
		),
		reconciled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clipcast_reconciled_jobs_total",
				Help: "Stale processing jobs handled by the reconciliation sweep",
			},
			[]string{"action"},
		),
	}

	m.Registry.MustRegister(m.outcomes, m.publishDuration, m.runs, m.reconciled)
	return m
}

func (m *Metrics) Outcome(platform, outcome string) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(platform, outcome).Inc()
}

func (m *Metrics) PublishDuration(platform string, d time.Duration) {
	if m == nil {
		return
	}
	m.publishDuration.WithLabelValues(platform).Observe(d.Seconds())
}

func (m *Metrics) Run(platform string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "aborted"
	}
	m.runs.WithLabelValues(platform, result).Inc()
}

func (m *Metrics) Reconciled(completed, reset int64) {
	if m == nil {
		return
	}
	m.reconciled.WithLabelValues("completed").Add(float64(completed))
	m.reconciled.WithLabelValues("reset").Add(float64(reset))
}

func (m *Metrics) OutcomeCounter(platform, outcome string) prometheus.Counter {
	return m.outcomes.WithLabelValues(platform, outcome)
}

func (m *Metrics) RunCounter(platform, result string) prometheus.Counter {
	return m.runs.WithLabelValues(platform, result)
}
