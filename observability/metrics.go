package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
	liquidity  *prometheus.GaugeVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics
)

// Modules returns the process-wide metrics registry for module operations.
func Modules() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "smg",
				Subsystem: "module",
				Name:      "operations_total",
				Help:      "Count of module operations segmented by module, operation and result.",
			}, []string{"module", "operation", "result"}),
			durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "smg",
				Subsystem: "module",
				Name:      "operation_duration_seconds",
				Help:      "Latency of module operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "operation"}),
			liquidity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "smg",
				Subsystem: "pool",
				Name:      "liquidity",
				Help:      "Pool balances segmented by pool and kind (deposited, borrowed).",
			}, []string{"pool", "kind"}),
		}
		prometheus.MustRegister(
			moduleRegistry.operations,
			moduleRegistry.durations,
			moduleRegistry.liquidity,
		)
	})
	return moduleRegistry
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(strings.ToLower(value))
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}

// RecordOperation counts one module operation outcome and its latency.
func (m *moduleMetrics) RecordOperation(module, operation string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.operations.WithLabelValues(normalizeLabel(module), normalizeLabel(operation), result).Inc()
	m.durations.WithLabelValues(normalizeLabel(module), normalizeLabel(operation)).Observe(elapsed.Seconds())
}

// SetPoolLiquidity publishes a pool's deposited and borrowed totals.
func (m *moduleMetrics) SetPoolLiquidity(pool string, deposited, borrowed uint64) {
	if m == nil {
		return
	}
	m.liquidity.WithLabelValues(normalizeLabel(pool), "deposited").Set(float64(deposited))
	m.liquidity.WithLabelValues(normalizeLabel(pool), "borrowed").Set(float64(borrowed))
}
