// Package metrics exposes the Prometheus instrumentation for the
// delivery pipeline and the payment state machine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the collectors. A single instance is created in main
// and threaded to the components that record into it.
type Metrics struct {
	PaymentTransitions *prometheus.CounterVec
	EventsPublished    *prometheus.CounterVec
	DeliveryAttempts   *prometheus.CounterVec
	DeliveryQueueDepth prometheus.Gauge
	DeliveryDuration   prometheus.Histogram
	SweepClaimed       prometheus.Counter
	QueueOverflows     prometheus.Counter
}

// New registers the gateway collectors with reg and returns them.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PaymentTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stackspay",
			Name:      "payment_transitions_total",
			Help:      "Accepted payment state transitions by target status.",
		}, []string{"to"}),
		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stackspay",
			Name:      "events_published_total",
			Help:      "Domain events handed to the delivery bus by type.",
		}, []string{"type"}),
		DeliveryAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stackspay",
			Name:      "delivery_attempts_total",
			Help:      "Webhook delivery attempts by outcome.",
		}, []string{"outcome"}),
		DeliveryQueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "stackspay",
			Name:      "delivery_queue_depth",
			Help:      "Deliveries currently waiting in the in-process worker queue.",
		}),
		DeliveryDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "stackspay",
			Name:      "delivery_request_duration_seconds",
			Help:      "Wall time of outbound webhook requests.",
			Buckets:   prometheus.DefBuckets,
		}),
		SweepClaimed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "stackspay",
			Name:      "sweep_claimed_total",
			Help:      "Due deliveries re-enqueued by the sweep.",
		}),
		QueueOverflows: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "stackspay",
			Name:      "delivery_queue_overflows_total",
			Help:      "Deliveries that could not be enqueued because the queue was full.",
		}),
	}
}
