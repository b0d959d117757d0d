package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// CartMetrics records shopper-state mutations and persistence health.
type CartMetrics struct {
	mutations           *prometheus.CounterVec
	persistenceFailures *prometheus.CounterVec
}

// NewCartMetrics registers the cart metrics on the provided registerer.
func NewCartMetrics(reg prometheus.Registerer) *CartMetrics {
	if reg == nil {
		return &CartMetrics{}
	}
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_mutations_total",
		Help: "Cart and wishlist mutations applied, by operation.",
	}, []string{"operation"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "state_persistence_failures_total",
		Help: "Swallowed persistence failures, by store.",
	}, []string{"store"})
	reg.MustRegister(mutations, failures)
	return &CartMetrics{
		mutations:           mutations,
		persistenceFailures: failures,
	}
}

// IncMutation increments the mutation counter for the named operation.
func (c *CartMetrics) IncMutation(operation string) {
	if c == nil || c.mutations == nil {
		return
	}
	c.mutations.WithLabelValues(normalizeLabel(operation)).Inc()
}

// IncPersistenceFailure counts a write that could not reach the backing store.
func (c *CartMetrics) IncPersistenceFailure(store string) {
	if c == nil || c.persistenceFailures == nil {
		return
	}
	c.persistenceFailures.WithLabelValues(normalizeLabel(store)).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
