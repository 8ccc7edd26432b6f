package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PaymentCreateTotal counts payment creation outcomes.
	PaymentCreateTotal *prometheus.CounterVec
	// PaymentWebhookTotal counts inbound payment webhook processing outcomes.
	PaymentWebhookTotal *prometheus.CounterVec
	// PaymentTransitionTotal counts applied payment attempt state transitions.
	PaymentTransitionTotal *prometheus.CounterVec
	// CartMutationTotal counts cart mutations by operation.
	CartMutationTotal *prometheus.CounterVec
	// PaymentCreateLatency records payment creation latency in milliseconds.
	PaymentCreateLatency prometheus.Histogram
	// TaskProcessedTotal counts worker task outcomes.
	TaskProcessedTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PaymentCreateTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_create_total",
			Help:      "Count of payment creation outcomes.",
		}, []string{"result"})
		PaymentWebhookTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_webhook_total",
			Help:      "Count of processed payment webhooks by outcome.",
		}, []string{"variant", "result"})
		PaymentTransitionTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_transition_total",
			Help:      "Count of payment attempt state transitions.",
		}, []string{"from", "to"})
		CartMutationTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_mutation_total",
			Help:      "Count of cart mutations by operation.",
		}, []string{"op"})
		PaymentCreateLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "payment_create_duration_ms",
			Help:      "Latency for payment creation in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000},
		})
		TaskProcessedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_processed_total",
			Help:      "Count of background tasks processed by type and outcome.",
		}, []string{"type", "result"})

		PaymentCreateTotal = register(reg, PaymentCreateTotal)
		PaymentWebhookTotal = register(reg, PaymentWebhookTotal)
		PaymentTransitionTotal = register(reg, PaymentTransitionTotal)
		CartMutationTotal = register(reg, CartMutationTotal)
		PaymentCreateLatency = register(reg, PaymentCreateLatency)
		TaskProcessedTotal = register(reg, TaskProcessedTotal)
	})
}

// ObservePaymentTransition increments the transition counter when registered.
func ObservePaymentTransition(from, to string) {
	if PaymentTransitionTotal != nil {
		PaymentTransitionTotal.WithLabelValues(from, to).Inc()
	}
}

// ObserveCartMutation increments the cart mutation counter when registered.
func ObserveCartMutation(op string) {
	if CartMutationTotal != nil {
		CartMutationTotal.WithLabelValues(op).Inc()
	}
}

// ObserveTask records a worker task outcome when registered.
func ObserveTask(taskType string, err error) {
	if TaskProcessedTotal == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	TaskProcessedTotal.WithLabelValues(taskType, result).Inc()
}
