package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CheckoutGateDenials counts checkout submissions refused by the
	// validation gate, by reason (pending, mismatch).
	CheckoutGateDenials *prometheus.CounterVec
	// OrdersSubmittedTotal counts accepted submissions by the validation
	// state they were accepted under (valid, local, none).
	OrdersSubmittedTotal *prometheus.CounterVec
	// UnpricedLinesTotal counts cart lines excluded from totals because no
	// catalog product could be resolved for them.
	UnpricedLinesTotal prometheus.Counter
	// CartMutationsTotal counts cart line mutations by operation.
	CartMutationsTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CheckoutGateDenials = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_gate_denials_total",
			Help:      "Count of checkout submissions refused by the price validation gate.",
		}, []string{"reason"})
		OrdersSubmittedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_submitted_total",
			Help:      "Count of accepted checkout submissions by validation state.",
		}, []string{"validation"})
		UnpricedLinesTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unpriced_lines_total",
			Help:      "Cart lines excluded from totals because the catalog product was missing.",
		})
		CartMutationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_mutations_total",
			Help:      "Count of cart line mutations by operation.",
		}, []string{"op"})

		mustRegisterCollector(reg, CheckoutGateDenials, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CheckoutGateDenials = v
			}
		})
		mustRegisterCollector(reg, OrdersSubmittedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				OrdersSubmittedTotal = v
			}
		})
		mustRegisterCollector(reg, UnpricedLinesTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				UnpricedLinesTotal = v
			}
		})
		mustRegisterCollector(reg, CartMutationsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CartMutationsTotal = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
