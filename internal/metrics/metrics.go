package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Webhook endpoint
	WebhookRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "igbot_webhook_requests_total",
			Help: "Webhook requests by method and result",
		},
		[]string{"method", "result"},
	)

	EventsClassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "igbot_events_classified_total",
			Help: "Messaging events classified, by variant",
		},
		[]string{"kind"},
	)

	// Reply dispatch
	DispatchOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "igbot_dispatch_total",
			Help: "Dispatch results by outcome",
		},
		[]string{"outcome"},
	)

	DispatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "igbot_dispatch_duration_seconds",
			Help:    "Time from dispatch start to outcome, including the reply delay",
			Buckets: []float64{0.1, 0.5, 1, 2, 2.5, 3, 5, 10, 30},
		},
	)

	DispatchInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "igbot_dispatch_in_flight",
			Help: "Dispatches currently running in the in-process pool",
		},
	)
)
