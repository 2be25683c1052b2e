package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// BackendRequestsTotal counts calls to the storefront backend by endpoint and outcome.
	BackendRequestsTotal *prometheus.CounterVec
	// BackendRequestLatency records backend call latency in milliseconds.
	BackendRequestLatency *prometheus.HistogramVec
	// FeasibilityChecksTotal counts supplier balance gate decisions.
	FeasibilityChecksTotal *prometheus.CounterVec
	// PurchaseAttemptsTotal counts purchase attempts by payment path and terminal state.
	PurchaseAttemptsTotal *prometheus.CounterVec
	// PaymentPollsTotal counts direct-charge verification polls by outcome.
	PaymentPollsTotal *prometheus.CounterVec
	// OrderPlacementsTotal counts order placement outcomes.
	OrderPlacementsTotal *prometheus.CounterVec
	// PaymentCallbacksTotal counts hosted payment callback outcomes.
	PaymentCallbacksTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		BackendRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_requests_total",
			Help:      "Count of storefront backend calls by endpoint and result.",
		}, []string{"endpoint", "result"})
		BackendRequestLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_duration_ms",
			Help:      "Latency of storefront backend calls in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"endpoint"})
		FeasibilityChecksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feasibility_checks_total",
			Help:      "Supplier balance gate decisions.",
		}, []string{"result"})
		PurchaseAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purchase_attempts_total",
			Help:      "Purchase attempts by payment path and state.",
		}, []string{"path", "state"})
		PaymentPollsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_poll_attempts_total",
			Help:      "Direct charge verification polls by outcome.",
		}, []string{"result"})
		OrderPlacementsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_placements_total",
			Help:      "Order placement outcomes.",
		}, []string{"prepaid", "result"})
		PaymentCallbacksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_callbacks_total",
			Help:      "Hosted payment callback outcomes.",
		}, []string{"result"})

		registerOrReuse(reg, &BackendRequestsTotal)
		registerOrReuse(reg, &BackendRequestLatency)
		registerOrReuse(reg, &FeasibilityChecksTotal)
		registerOrReuse(reg, &PurchaseAttemptsTotal)
		registerOrReuse(reg, &PaymentPollsTotal)
		registerOrReuse(reg, &OrderPlacementsTotal)
		registerOrReuse(reg, &PaymentCallbacksTotal)
	})
}

// IncCounter bumps a domain counter when metrics are registered.
func IncCounter(vec *prometheus.CounterVec, labels ...string) {
	if vec == nil {
		return
	}
	vec.WithLabelValues(labels...).Inc()
}

// Observe records a histogram sample when metrics are registered.
func Observe(vec *prometheus.HistogramVec, value float64, labels ...string) {
	if vec == nil {
		return
	}
	vec.WithLabelValues(labels...).Observe(value)
}

// registerOrReuse registers the collector, swapping in the already registered one on conflict.
func registerOrReuse[T prometheus.Collector](reg prometheus.Registerer, collector *T) {
	if err := reg.Register(*collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				*collector = existing
			}
			return
		}
		panic(fmt.Errorf("register metric: %w", err))
	}
}
