package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StockMetrics tracks stock mutations by ledger kind and outcome.
type StockMetrics struct {
	mutations *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	units     *prometheus.CounterVec
}

func NewStockMetrics(reg prometheus.Registerer) *StockMetrics {
	if reg == nil {
		return &StockMetrics{}
	}
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stock_mutations_total",
		Help:      "Stock mutations by ledger kind and result.",
	}, []string{"kind", "result"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "stock_mutation_duration_seconds",
		Help:      "Time spent inside the per-product critical section.",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"kind"})
	units := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stock_units_total",
		Help:      "Absolute units moved by committed mutations.",
	}, []string{"kind", "direction"})
	reg.MustRegister(mutations, duration, units)
	return &StockMetrics{mutations: mutations, duration: duration, units: units}
}

// ObserveMutation records one Mutate call.
func (m *StockMetrics) ObserveMutation(kind string, delta int, elapsed time.Duration, err error) {
	if m == nil || m.mutations == nil {
		return
	}
	kind = normalizeLabel(kind)
	m.mutations.WithLabelValues(kind, resultLabel(err)).Inc()
	m.duration.WithLabelValues(kind).Observe(elapsed.Seconds())
	if err != nil || delta == 0 {
		return
	}
	direction, units := "in", delta
	if delta < 0 {
		direction, units = "out", -delta
	}
	m.units.WithLabelValues(kind, direction).Add(float64(units))
}
