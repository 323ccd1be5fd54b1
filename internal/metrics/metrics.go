package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the counters and histograms the payment core exports.
type Metrics struct {
	CheckoutAttempts      *prometheus.CounterVec
	WebhookEvents         *prometheus.CounterVec
	Refunds               *prometheus.CounterVec
	ReservationsReaped    prometheus.Counter
	GatewayRequestSeconds *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CheckoutAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkout_attempts_total",
			Help: "Checkout attempts by result.",
		}, []string{"result"}),
		WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Gateway webhook events by type and outcome.",
		}, []string{"type", "outcome"}),
		Refunds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "refunds_total",
			Help: "Refund requests by result.",
		}, []string{"result"}),
		ReservationsReaped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reservations_reaped_total",
			Help: "Stale inventory reservations released by the reaper.",
		}),
		GatewayRequestSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_request_seconds",
			Help:    "Payment gateway request latency by operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
	}

	reg.MustRegister(
		m.CheckoutAttempts,
		m.WebhookEvents,
		m.Refunds,
		m.ReservationsReaped,
		m.GatewayRequestSeconds,
	)

	return m
}

// NewNop returns metrics backed by a private registry, for tests.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
