// Package metrics exposes the Prometheus collectors of the settlement
// processes. Every recorder is safe to call on a nil receiver.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "marketsettle"

// Sweep outcomes recorded by ObserveSweep.
const (
	SweepRan       = "ran"
	SweepLockHeld  = "lock_held"
	SweepLockError = "lock_error"
)

// SchedulerMetrics records sweep and per-job outcomes of the cron worker.
type SchedulerMetrics struct {
	sweeps      *prometheus.CounterVec
	jobRuns     *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
}

func NewSchedulerMetrics(reg prometheus.Registerer) *SchedulerMetrics {
	if reg == nil {
		return &SchedulerMetrics{}
	}
	m := &SchedulerMetrics{
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "sweeps_total",
			Help:      "Scheduler ticks by whether this instance ran the sweep.",
		}, []string{"outcome"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_runs_total",
			Help:      "Job executions by outcome.",
		}, []string{"job", "outcome"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_duration_seconds",
			Help:      "Duration of job executions.",
			Buckets:   []float64{0.05, 0.25, 1, 5, 15, 60, 300, 900},
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "job_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run of each job.",
		}, []string{"job"}),
	}
	reg.MustRegister(m.sweeps, m.jobRuns, m.jobDuration, m.lastSuccess)
	return m
}

func (m *SchedulerMetrics) ObserveSweep(outcome string) {
	if m == nil || m.sweeps == nil {
		return
	}
	m.sweeps.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveJob records one finished job run. finishedAt feeds the last
// success gauge.
func (m *SchedulerMetrics) ObserveJob(job string, duration time.Duration, finishedAt time.Time, err error) {
	if m == nil || m.jobRuns == nil {
		return
	}
	job = normalizeLabel(job)
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
	if err != nil {
		m.jobRuns.WithLabelValues(job, "failure").Inc()
		return
	}
	m.jobRuns.WithLabelValues(job, "success").Inc()
	m.lastSuccess.WithLabelValues(job).Set(float64(finishedAt.Unix()))
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
