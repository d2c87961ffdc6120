package core

// Metrics — ambient observability surface, per SPEC_FULL.md's ambient
// stack section (prometheus/client_golang, grounded on
// certenIO-certen-validator's go.mod). Deliberately distinct from the
// out-of-scope "benchmarking toolkit" (spec.md §1 Non-goals): these are
// cheap counters/gauges for production monitoring, not a load-testing
// harness. A Registerer is always injected; this package never touches
// prometheus's default global registry, so embedding callers can run
// more than one core instance side by side.

import "github.com/prometheus/client_golang/prometheus"

// Metrics groups the gauges and counters the atomic-commit coordinator
// and consensus engine update.
type Metrics struct {
	BlocksCommitted     prometheus.Counter
	CommitRollbacks     prometheus.Counter
	MissedSlots         prometheus.Counter
	AuthorityReputation *prometheus.GaugeVec
}

// NewMetrics registers and returns a Metrics bundle against reg. Passing
// nil uses a fresh, unregistered prometheus.Registry so tests can
// construct a Metrics without a real exporter.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		BlocksCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "provchain",
			Name:      "blocks_committed_total",
			Help:      "Number of blocks committed by the atomic-commit coordinator.",
		}),
		CommitRollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "provchain",
			Name:      "commit_rollbacks_total",
			Help:      "Number of atomic-commit attempts rolled back after a triplestore failure.",
		}),
		MissedSlots: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "provchain",
			Name:      "missed_slots_total",
			Help:      "Number of PoA slots where the active authority failed to produce in time.",
		}),
		AuthorityReputation: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "provchain",
			Name:      "authority_reputation",
			Help:      "Current reputation score of each authority, keyed by address.",
		}, []string{"authority"}),
	}
	reg.MustRegister(m.BlocksCommitted, m.CommitRollbacks, m.MissedSlots, m.AuthorityReputation)
	return m
}
