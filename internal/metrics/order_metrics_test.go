package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNewOrderMetrics_Collectors(t *testing.T) {
	m := NewOrderMetricsWithRegisterer(prometheus.NewRegistry())

	require.NotNil(t, m.ordersCreated)
	require.NotNil(t, m.operations)
	require.NotNil(t, m.operationDuration)
	require.NotNil(t, m.transitions)
	require.NotNil(t, m.couponsApplied)
	require.NotNil(t, m.couponsNeutralized)
	require.NotNil(t, m.hookCalls)
	require.NotNil(t, m.timelineEvents)
	require.NotNil(t, m.outboxEvents)
}

func TestOrderMetrics_ReRegistrationReusesCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := NewOrderMetricsWithRegisterer(registry)
	second := NewOrderMetricsWithRegisterer(registry)

	first.RecordOrderCreated()
	second.RecordOrderCreated()

	require.Equal(t, float64(2), testutil.ToFloat64(first.ordersCreated))
}

func TestOrderMetrics_Record(t *testing.T) {
	m := NewOrderMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordOperation("add_item", ResultOK, 5*time.Millisecond)
	m.RecordOperation("add_item", ResultRejected, time.Millisecond)
	m.RecordOperation("add_item", ResultOK, time.Millisecond)
	m.RecordTransition("new", "sent", false)
	m.RecordCouponApplied()
	m.RecordCouponsNeutralized(2)
	m.RecordCouponsNeutralized(0)
	m.RecordHookCall("register_sent_order", ResultOK)
	m.RecordTimelineEvent()
	m.RecordOutboxEvent()

	require.Equal(t, float64(2), testutil.ToFloat64(m.operations.WithLabelValues("add_item", ResultOK)))
	require.Equal(t, float64(1), testutil.ToFloat64(m.operations.WithLabelValues("add_item", ResultRejected)))
	require.Equal(t, float64(1), testutil.ToFloat64(m.transitions.WithLabelValues("new", "sent", "false")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.couponsApplied))
	require.Equal(t, float64(2), testutil.ToFloat64(m.couponsNeutralized))
	require.Equal(t, float64(1), testutil.ToFloat64(m.hookCalls.WithLabelValues("register_sent_order", ResultOK)))
	require.Equal(t, float64(1), testutil.ToFloat64(m.timelineEvents))
	require.Equal(t, float64(1), testutil.ToFloat64(m.outboxEvents))
	require.Equal(t, 1, testutil.CollectAndCount(m.operationDuration))
}
