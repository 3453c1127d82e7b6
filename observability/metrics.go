package observability

import (
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// MarketMetrics records engine activity: settlement counts by operation and
// fee volume by kind. Fee volume is exported as a float and loses precision
// beyond 2^53; the event stream remains the exact record.
type MarketMetrics struct {
	ops  *prometheus.CounterVec
	fees *prometheus.CounterVec
}

var (
	marketMetricsOnce sync.Once
	marketRegistry    *MarketMetrics
)

// Market returns the lazily-initialised market metrics registry.
func Market() *MarketMetrics {
	marketMetricsOnce.Do(func() {
		marketRegistry = &MarketMetrics{
			ops: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "curvemarket",
				Subsystem: "engine",
				Name:      "operations_total",
				Help:      "Total settled market operations segmented by operation.",
			}, []string{"op"}),
			fees: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "curvemarket",
				Subsystem: "engine",
				Name:      "fee_volume_total",
				Help:      "Total fee volume routed by the engine segmented by fee kind.",
			}, []string{"kind"}),
		}
		prometheus.MustRegister(marketRegistry.ops, marketRegistry.fees)
	})
	return marketRegistry
}

// ObserveOp counts one settled operation.
func (m *MarketMetrics) ObserveOp(op string) {
	if m == nil {
		return
	}
	m.ops.WithLabelValues(op).Inc()
}

// ObserveFee accumulates routed fee volume.
func (m *MarketMetrics) ObserveFee(kind string, amount *big.Int) {
	if m == nil || amount == nil {
		return
	}
	value, _ := new(big.Float).SetInt(amount).Float64()
	m.fees.WithLabelValues(kind).Add(value)
}
