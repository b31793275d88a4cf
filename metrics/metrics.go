// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tutor_webhook_events_total",
		Help: "Gateway webhook deliveries, labeled by event kind and outcome",
	}, []string{"kind", "outcome"})

	LedgerCredits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tutor_ledger_credits_total",
		Help: "Ledger credit attempts, labeled by outcome",
	}, []string{"outcome"})

	SessionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tutor_session_transitions_total",
		Help: "Live-session state transitions",
	}, []string{"state"})

	GatewayLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tutor_gateway_request_duration_seconds",
		Help:    "Latency of payment gateway calls",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"operation", "status"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tutor_http_requests_total",
		Help: "HTTP requests processed, labeled by route and status",
	}, []string{"method", "route", "status"})
)
