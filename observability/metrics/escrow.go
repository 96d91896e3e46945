package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type EscrowMetrics struct {
	operations       *prometheus.CounterVec
	reentrancyAborts prometheus.Counter
	lockedValue      prometheus.Gauge
}

var (
	escrowOnce     sync.Once
	escrowRegistry *EscrowMetrics
)

func Escrow() *EscrowMetrics {
	escrowOnce.Do(func() {
		escrowRegistry = &EscrowMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "escrow_operations_total",
				Help: "Count of escrow lifecycle invocations by operation and result.",
			}, []string{"operation", "result"}),
			reentrancyAborts: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "escrow_reentrancy_aborts_total",
				Help: "Count of invocations aborted by the execution guard.",
			}),
			lockedValue: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "escrow_custody_balance",
				Help: "Custody balance held by the escrow vault at last query.",
			}),
		}
		prometheus.MustRegister(
			escrowRegistry.operations,
			escrowRegistry.reentrancyAborts,
			escrowRegistry.lockedValue,
		)
	})
	return escrowRegistry
}

// ObserveOperation records one finished invocation.
func (m *EscrowMetrics) ObserveOperation(operation, result string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, result).Inc()
}

// ObserveReentrancyAbort records a guard-triggered abort.
func (m *EscrowMetrics) ObserveReentrancyAbort() {
	if m == nil {
		return
	}
	m.reentrancyAborts.Inc()
}

// SetCustodyBalance publishes the vault balance observed by the last query.
func (m *EscrowMetrics) SetCustodyBalance(v float64) {
	if m == nil {
		return
	}
	m.lockedValue.Set(v)
}
