package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestOutboxMetrics(t *testing.T) {
	m := NewOutboxMetrics(prometheus.NewRegistry())
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	m.RecordPublish("sent")
	m.RecordPublish("sent")
	m.RecordPublish("retry_error")
	require.Equal(t, float64(2), testutil.ToFloat64(m.publishAttempts.WithLabelValues("sent")))

	m.SetBacklog(3, now.Add(-30*time.Second), now)
	require.Equal(t, float64(3), testutil.ToFloat64(m.pending))
	require.Equal(t, float64(30), testutil.ToFloat64(m.oldestAge))

	m.SetBacklog(0, time.Time{}, now)
	require.Zero(t, testutil.ToFloat64(m.oldestAge))

	var nilMetrics *OutboxMetrics
	nilMetrics.RecordPublish("sent")
	nilMetrics.SetBacklog(1, now, now)
}

func TestCleanupMetrics(t *testing.T) {
	m := NewCleanupMetrics(prometheus.NewRegistry())

	m.AddDeleted(5)
	m.AddDeleted(0)
	m.RecordRun(ResultOK, 5)
	m.RecordRun(ResultError, 0)

	require.Equal(t, float64(5), testutil.ToFloat64(m.deleted))
	require.Equal(t, float64(5), testutil.ToFloat64(m.lastDeleted))
	require.Equal(t, float64(1), testutil.ToFloat64(m.runs.WithLabelValues(ResultError)))

	var nilMetrics *CleanupMetrics
	nilMetrics.RecordRun(ResultOK, 1)
	nilMetrics.AddDeleted(1)
}

func TestOutboxMetrics_SharedRegistry(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := NewOutboxMetrics(registry)
	second := NewOutboxMetrics(registry)

	first.RecordPublish("sent")
	second.RecordPublish("sent")
	second.RecordPublish("failed")

	families, err := registry.Gather()
	require.NoError(t, err)

	var attempts *dto.MetricFamily
	for _, mf := range families {
		if mf.GetName() == "bookshop_outbox_publish_attempts_total" {
			attempts = mf
		}
	}
	require.NotNil(t, attempts)
	require.Equal(t, dto.MetricType_COUNTER, attempts.GetType())

	byResult := map[string]float64{}
	for _, metric := range attempts.GetMetric() {
		for _, label := range metric.GetLabel() {
			if label.GetName() == "result" {
				byResult[label.GetValue()] = metric.GetCounter().GetValue()
			}
		}
	}
	require.Equal(t, map[string]float64{"sent": 2, "failed": 1}, byResult)
}
