package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reconcileTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventpass_reconcile_total",
			Help: "Reconciliation runs by trigger and outcome",
		},
		[]string{"trigger", "outcome"},
	)

	reconcileAnomalies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventpass_reconcile_anomalies_total",
			Help: "Reconciliation anomalies that need operator attention",
		},
		[]string{"kind"},
	)

	ticketsIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventpass_tickets_issued_total",
			Help: "Tickets issued per booking flow",
		},
		[]string{"flow"},
	)

	gatewayDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eventpass_gateway_request_duration_seconds",
			Help:    "Latency of payment gateway calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "outcome"},
	)

	notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventpass_notifications_total",
			Help: "Confirmation notifications by delivery outcome",
		},
		[]string{"outcome"},
	)

	rateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventpass_ratelimit_rejections_total",
			Help: "Requests rejected by the rate limiter",
		},
		[]string{"route"},
	)
)

func RecordReconcile(trigger, outcome string) {
	reconcileTotal.WithLabelValues(trigger, outcome).Inc()
}

func RecordAnomaly(kind string) {
	reconcileAnomalies.WithLabelValues(kind).Inc()
}

func RecordTicketsIssued(flow string, count int) {
	ticketsIssued.WithLabelValues(flow).Add(float64(count))
}

// ObserveGateway records how long a gateway call took since start.
func ObserveGateway(operation, outcome string, start time.Time) {
	gatewayDuration.WithLabelValues(operation, outcome).Observe(time.Since(start).Seconds())
}

func RecordNotification(outcome string) {
	notifications.WithLabelValues(outcome).Inc()
}

func RecordRateLimitRejection(route string) {
	rateLimitRejections.WithLabelValues(route).Inc()
}
