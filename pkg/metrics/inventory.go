package metrics

import "github.com/prometheus/client_golang/prometheus"

// InventoryMetrics tracks projection health: divergences found by the
// reconcile job, rebuilds, and current low-stock counts per store.
type InventoryMetrics struct {
	divergences *prometheus.CounterVec
	rebuilds    *prometheus.CounterVec
	lowStock    *prometheus.GaugeVec
}

func NewInventoryMetrics(reg prometheus.Registerer) *InventoryMetrics {
	if reg == nil {
		return &InventoryMetrics{}
	}
	divergences := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "projection_divergences_total",
		Help:      "Projection rows whose quantity differed from the ledger sum.",
	}, []string{"store"})
	rebuilds := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "projection_rebuilds_total",
		Help:      "Projection rebuilds by whether the row changed.",
	}, []string{"changed"})
	lowStock := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "low_stock_items",
		Help:      "Inventory records at or below their minimum quantity.",
	}, []string{"store"})
	reg.MustRegister(divergences, rebuilds, lowStock)
	return &InventoryMetrics{divergences: divergences, rebuilds: rebuilds, lowStock: lowStock}
}

func (m *InventoryMetrics) AddDivergences(storeID string, n int) {
	if m == nil || m.divergences == nil || n <= 0 {
		return
	}
	m.divergences.WithLabelValues(normalizeLabel(storeID)).Add(float64(n))
}

func (m *InventoryMetrics) IncRebuild(changed bool) {
	if m == nil || m.rebuilds == nil {
		return
	}
	label := "false"
	if changed {
		label = "true"
	}
	m.rebuilds.WithLabelValues(label).Inc()
}

func (m *InventoryMetrics) SetLowStock(storeID string, n int) {
	if m == nil || m.lowStock == nil {
		return
	}
	m.lowStock.WithLabelValues(normalizeLabel(storeID)).Set(float64(n))
}
