package metrics

import "github.com/prometheus/client_golang/prometheus"

// OrderMetrics tracks checkout outcomes and order state transitions.
type OrderMetrics struct {
	checkouts   *prometheus.CounterVec
	transitions *prometheus.CounterVec
}

func NewOrderMetrics(reg prometheus.Registerer) *OrderMetrics {
	if reg == nil {
		return &OrderMetrics{}
	}
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkouts_total",
		Help:      "Checkout attempts by result.",
	}, []string{"result"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_transitions_total",
		Help:      "Order status transitions by target status and result.",
	}, []string{"status", "result"})
	reg.MustRegister(checkouts, transitions)
	return &OrderMetrics{checkouts: checkouts, transitions: transitions}
}

func (m *OrderMetrics) ObserveCheckout(err error) {
	if m == nil || m.checkouts == nil {
		return
	}
	m.checkouts.WithLabelValues(resultLabel(err)).Inc()
}

func (m *OrderMetrics) ObserveTransition(status string, err error) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(status), resultLabel(err)).Inc()
}
