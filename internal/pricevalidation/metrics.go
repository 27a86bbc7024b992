package pricevalidation

import "github.com/prometheus/client_golang/prometheus"

var (
	ValidationOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "price_validation_outcomes_total",
			Help: "Reconciliation outcomes by result",
		},
		[]string{"outcome"},
	)
	StaleResponsesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "price_validation_stale_responses_total",
			Help: "Authority responses discarded because the cart changed while in flight",
		},
	)
)

func init() {
	prometheus.MustRegister(ValidationOutcomes, StaleResponsesTotal)
}
