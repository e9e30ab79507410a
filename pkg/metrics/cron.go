package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "marketplace"

// CronJobMetrics tracks each scheduled job: order expiry, outbox retention
// and the finance snapshot.
type CronJobMetrics struct {
	duration    *prometheus.HistogramVec
	runs        map[bool]*prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
}

func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return nil
	}
	opts := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help}
	}
	m := &CronJobMetrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cron_job_duration_seconds",
			Help:      "Wall time of each cron job run.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"job"}),
		runs: map[bool]*prometheus.CounterVec{
			true:  prometheus.NewCounterVec(opts("cron_job_success_total", "Cron job runs that completed."), []string{"job"}),
			false: prometheus.NewCounterVec(opts("cron_job_failure_total", "Cron job runs that returned an error."), []string{"job"}),
		},
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cron_job_last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run; alert when it goes stale.",
		}, []string{"job"}),
	}
	reg.MustRegister(m.duration, m.runs[true], m.runs[false], m.lastSuccess)
	return m
}

// ObserveRun records one finished run of job.
func (m *CronJobMetrics) ObserveRun(job string, finished time.Time, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	job = normalizeLabel(job)
	m.duration.WithLabelValues(job).Observe(elapsed.Seconds())
	m.runs[err == nil].WithLabelValues(job).Inc()
	if err == nil {
		m.lastSuccess.WithLabelValues(job).Set(float64(finished.Unix()))
	}
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
