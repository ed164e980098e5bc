// Package metrics содержит Prometheus-метрики жизненного цикла заказов.
package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты операций для лейбла result.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// OrderMetrics содержит метрики операций над заказами.
type OrderMetrics struct {
	ordersCreated      prometheus.Counter
	operations         *prometheus.CounterVec
	operationDuration  *prometheus.HistogramVec
	transitions        *prometheus.CounterVec
	couponsApplied     prometheus.Counter
	couponsNeutralized prometheus.Counter
	hookCalls          *prometheus.CounterVec

	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter
}

// NewOrderMetrics регистрирует метрики в DefaultRegisterer.
func NewOrderMetrics() *OrderMetrics {
	return NewOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOrderMetricsWithRegisterer регистрирует метрики в указанном registerer.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		ordersCreated: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bookshop_orders_created_total",
			Help: "Total number of book-shop orders created",
		})),
		operations: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bookshop_order_operations_total",
			Help: "Order lifecycle operations by name and result",
		}, []string{"operation", "result"})),
		operationDuration: register(registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bookshop_order_operation_duration_seconds",
			Help:    "Duration of order lifecycle operations in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, []string{"operation"})),
		transitions: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bookshop_order_transitions_total",
			Help: "Applied order status transitions",
		}, []string{"from", "to", "privileged"})),
		couponsApplied: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bookshop_coupons_applied_total",
			Help: "Total number of coupons applied to orders",
		})),
		couponsNeutralized: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bookshop_coupons_neutralized_total",
			Help: "Coupons zeroed during cost recomputation because they expired or hit the usage limit",
		})),
		hookCalls: register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bookshop_order_hook_calls_total",
			Help: "Account side-effect hook calls by hook and result",
		}, []string{"hook", "result"})),
		timelineEvents: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bookshop_timeline_events_total",
			Help: "Total number of timeline events recorded",
		})),
		outboxEvents: register(registerer, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bookshop_outbox_events_total",
			Help: "Total number of events enqueued to the outbox",
		})),
	}
}

func register[C prometheus.Collector](registerer prometheus.Registerer, collector C) C {
	if err := registerer.Register(collector); err != nil {
		var alreadyRegistered prometheus.AlreadyRegisteredError
		if errors.As(err, &alreadyRegistered) {
			existing, ok := alreadyRegistered.ExistingCollector.(C)
			if !ok {
				panic(fmt.Sprintf("collector already registered with unexpected type %T", alreadyRegistered.ExistingCollector))
			}
			return existing
		}
		panic(fmt.Sprintf("register collector: %v", err))
	}
	return collector
}

// RecordOrderCreated увеличивает счётчик созданных заказов.
func (m *OrderMetrics) RecordOrderCreated() {
	m.ordersCreated.Inc()
}

// RecordOperation фиксирует результат и длительность операции.
func (m *OrderMetrics) RecordOperation(operation, result string, duration time.Duration) {
	m.operations.WithLabelValues(operation, result).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordTransition фиксирует применённый переход статуса.
func (m *OrderMetrics) RecordTransition(from, to string, privileged bool) {
	m.transitions.WithLabelValues(from, to, fmt.Sprint(privileged)).Inc()
}

// RecordCouponApplied увеличивает счётчик применённых купонов.
func (m *OrderMetrics) RecordCouponApplied() {
	m.couponsApplied.Inc()
}

// RecordCouponsNeutralized учитывает купоны, обнулённые при пересчёте.
func (m *OrderMetrics) RecordCouponsNeutralized(n int) {
	if n > 0 {
		m.couponsNeutralized.Add(float64(n))
	}
}

// RecordHookCall фиксирует вызов хука аккаунта.
func (m *OrderMetrics) RecordHookCall(hook, result string) {
	m.hookCalls.WithLabelValues(hook, result).Inc()
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *OrderMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *OrderMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}
