package metrics

import "github.com/prometheus/client_golang/prometheus"

// EscrowMetrics counts escrow lifecycle events worth alerting on.
type EscrowMetrics struct {
	unmatchedFunding *prometheus.CounterVec
	released         prometheus.Counter
	expired          prometheus.Counter
}

// NewEscrowMetrics registers escrow metrics on the provided registerer.
func NewEscrowMetrics(reg prometheus.Registerer) *EscrowMetrics {
	if reg == nil {
		return &EscrowMetrics{}
	}
	unmatched := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_unmatched_funding_events",
		Help: "Funding confirmations with no matching transaction, flagged for reconciliation.",
	}, []string{"provider"})
	released := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "escrow_released_total",
		Help: "Transactions released after handover verification.",
	})
	expired := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "escrow_expired_total",
		Help: "Transactions expired by the reservation TTL sweep.",
	})
	reg.MustRegister(unmatched, released, expired)
	return &EscrowMetrics{
		unmatchedFunding: unmatched,
		released:         released,
		expired:          expired,
	}
}

// IncUnmatchedFunding flags a funding event that matched no transaction.
func (m *EscrowMetrics) IncUnmatchedFunding(provider string) {
	if m == nil || m.unmatchedFunding == nil {
		return
	}
	m.unmatchedFunding.WithLabelValues(provider).Inc()
}

// IncReleased counts a completed handover.
func (m *EscrowMetrics) IncReleased() {
	if m == nil || m.released == nil {
		return
	}
	m.released.Inc()
}

// IncExpired counts an expired reservation.
func (m *EscrowMetrics) IncExpired() {
	if m == nil || m.expired == nil {
		return
	}
	m.expired.Inc()
}
