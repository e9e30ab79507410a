package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCronJobMetricsRecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	finished := time.Date(2026, 3, 1, 4, 0, 0, 0, time.UTC)

	m.ObserveRun("order-expiry", finished, 250*time.Millisecond, nil)
	m.ObserveRun("order-expiry", finished.Add(time.Hour), time.Second, errors.New("db down"))
	m.ObserveRun("", finished, time.Millisecond, nil)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for name, want := range map[string]float64{
		"marketplace_cron_job_success_total": 1,
		"marketplace_cron_job_failure_total": 1,
	} {
		got, err := fetchCounterValue(mfs, name, "job", "order-expiry")
		if err != nil || got != want {
			t.Fatalf("%s = %v (%v), want %v", name, got, err, want)
		}
	}
	if got, err := fetchHistogramSum(mfs, "marketplace_cron_job_duration_seconds", "job", "order-expiry"); err != nil || got != 1.25 {
		t.Fatalf("duration sum = %v (%v)", got, err)
	}
	if got, err := fetchGaugeValue(mfs, "marketplace_cron_job_last_success_timestamp_seconds", "job", "order-expiry"); err != nil || got != float64(finished.Unix()) {
		t.Fatalf("last success = %v (%v), failed run must not advance it", got, err)
	}
	if _, err := fetchCounterValue(mfs, "marketplace_cron_job_success_total", "job", "unknown"); err != nil {
		t.Fatalf("blank job label: %v", err)
	}
}

func TestNilCronJobMetricsIsNoop(t *testing.T) {
	m := NewCronJobMetrics(nil)
	m.ObserveRun("order-expiry", time.Now(), time.Second, nil)
}

func fetchGaugeValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetGauge().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("gauge %q missing label %s=%s", name, label, value)
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
