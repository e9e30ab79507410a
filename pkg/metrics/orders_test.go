package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestOrderMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOrderMetrics(reg)
	m.OrderCreated("guest")
	m.OrderCreated("guest")
	m.Transition("shipped", "seller")
	m.Payment("verify", "")
	m.Webhook("payment.captured", "processed")
	m.Outbox("published")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "marketplace_orders_created_total", "kind", "guest"); err != nil || got != 2 {
		t.Fatalf("expected 2 guest orders, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "marketplace_payment_operations_total", "result", "unknown"); err != nil || got != 1 {
		t.Fatalf("expected blank label normalized, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "marketplace_outbox_events_total", "result", "published"); err != nil || got != 1 {
		t.Fatalf("expected outbox counter, got %f (%v)", got, err)
	}
}

func TestNilOrderMetricsIsNoop(t *testing.T) {
	var m *OrderMetrics
	m.OrderCreated("registered")
	m.Webhook("refund.created", "ignored")
	NewOrderMetrics(nil).Transition("paid", "system")
}
