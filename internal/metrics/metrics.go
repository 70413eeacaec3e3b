package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "travel"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		},
		[]string{"method", "route", "status"},
	)

	paymentsInitiated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_initiated_total",
			Help:      "Payment initiation attempts by outcome.",
		},
		[]string{"outcome"},
	)

	paymentsVerified = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_verified_total",
			Help:      "Payment verifications by outcome.",
		},
		[]string{"outcome"},
	)

	gatewayDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_request_duration_seconds",
			Help:      "Latency of payment gateway calls.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"operation", "outcome"},
	)

	notificationsEnqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_enqueued_total",
			Help:      "Notification jobs handed to the queue.",
		},
		[]string{"kind", "outcome"},
	)

	notificationsDelivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_delivered_total",
			Help:      "Notification jobs processed by the worker.",
		},
		[]string{"kind", "outcome"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			paymentsInitiated,
			paymentsVerified,
			gatewayDuration,
			notificationsEnqueued,
			notificationsDelivered,
		)
	})
}

// IncHTTP counts a served request.
func IncHTTP(method, route string, status int) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

// IncPaymentInitiated counts an initiation outcome.
func IncPaymentInitiated(outcome string) {
	paymentsInitiated.WithLabelValues(outcome).Inc()
}

// IncPaymentVerified counts a verification outcome.
func IncPaymentVerified(outcome string) {
	paymentsVerified.WithLabelValues(outcome).Inc()
}

// ObserveGateway records the duration of one gateway call.
func ObserveGateway(operation, outcome string, elapsed time.Duration) {
	gatewayDuration.WithLabelValues(operation, outcome).Observe(elapsed.Seconds())
}

// IncNotificationEnqueued counts an enqueue attempt.
func IncNotificationEnqueued(kind, outcome string) {
	notificationsEnqueued.WithLabelValues(kind, outcome).Inc()
}

// IncNotificationDelivered counts a worker delivery attempt.
func IncNotificationDelivered(kind, outcome string) {
	notificationsDelivered.WithLabelValues(kind, outcome).Inc()
}
