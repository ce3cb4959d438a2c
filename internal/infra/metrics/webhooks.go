package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		webhookDeliveriesTotal,
		webhookEventsTotal,
		webhookSignatureFailuresTotal,
		webhookHandleDuration,
	)
}

var (
	// outcome: processed|ignored|dropped|duplicate|rejected|failed
	webhookDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_deliveries_total",
			Help: "Webhook deliveries by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	// result: ok|ignored|dropped|error
	webhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Decoded webhook events by provider, event type and handler result.",
		},
		[]string{"provider", "type", "result"},
	)

	// reason: missing_headers|stale|bad_signature
	webhookSignatureFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_signature_failures_total",
			Help: "Webhook deliveries rejected during authentication.",
		},
		[]string{"provider", "reason"},
	)

	webhookHandleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webhook_handle_duration_seconds",
			Help:    "Time from receipt to response for webhook deliveries.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"provider"},
	)
)

func IncWebhookDelivery(provider, outcome string) {
	webhookDeliveriesTotal.WithLabelValues(norm(provider), norm(outcome)).Inc()
}

func IncWebhookEvent(provider, eventType, result string) {
	webhookEventsTotal.WithLabelValues(norm(provider), norm(eventType), norm(result)).Inc()
}

func IncSignatureFailure(provider, reason string) {
	webhookSignatureFailuresTotal.WithLabelValues(norm(provider), norm(reason)).Inc()
}

func ObserveWebhookDuration(provider string, d time.Duration) {
	webhookHandleDuration.WithLabelValues(norm(provider)).Observe(d.Seconds())
}

// norm keeps label values lowercase so provider casing never splits a series.
func norm(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
