package metrics

import "github.com/prometheus/client_golang/prometheus"

// OrderMetrics counts checkout, payment and publishing outcomes.
type OrderMetrics struct {
	ordersCreated  *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	payments       *prometheus.CounterVec
	webhooks       *prometheus.CounterVec
	outboxOutcomes *prometheus.CounterVec
}

// NewOrderMetrics registers the order pipeline counters. A nil registerer yields
// a no-op recorder.
func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	m := &OrderMetrics{
		ordersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "Orders created, by checkout kind.",
		}, []string{"kind"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_transitions_total",
			Help:      "Order status transitions, by target status and actor role.",
		}, []string{"status", "actor"}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_operations_total",
			Help:      "Payment gateway operations, by operation and result.",
		}, []string{"operation", "result"}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_webhooks_total",
			Help:      "Payment webhook deliveries, by event type and outcome.",
		}, []string{"type", "outcome"}),
		outboxOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_total",
			Help:      "Outbox publish outcomes.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.ordersCreated, m.transitions, m.payments, m.webhooks, m.outboxOutcomes)
	return m
}

func (m *OrderMetrics) OrderCreated(kind string) {
	if m == nil || m.ordersCreated == nil {
		return
	}
	m.ordersCreated.WithLabelValues(normalizeLabel(kind)).Inc()
}

func (m *OrderMetrics) Transition(status, actor string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(status), normalizeLabel(actor)).Inc()
}

func (m *OrderMetrics) Payment(operation, result string) {
	if m == nil || m.payments == nil {
		return
	}
	m.payments.WithLabelValues(normalizeLabel(operation), normalizeLabel(result)).Inc()
}

func (m *OrderMetrics) Webhook(eventType, outcome string) {
	if m == nil || m.webhooks == nil {
		return
	}
	m.webhooks.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

func (m *OrderMetrics) Outbox(result string) {
	if m == nil || m.outboxOutcomes == nil {
		return
	}
	m.outboxOutcomes.WithLabelValues(normalizeLabel(result)).Inc()
}
