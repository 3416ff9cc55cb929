// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rental_http_requests_total",
		Help: "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rental_http_request_duration_seconds",
		Help:    "HTTP request latency by method and route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rental_webhook_events_total",
		Help: "Processor webhook events by type and outcome.",
	}, []string{"type", "outcome"})

	RentalsMaterialized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rental_rentals_materialized_total",
		Help: "Rentals written by the reconciler or the direct create path.",
	}, []string{"source"})

	ReconciliationMismatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rental_reconciliation_mismatches_total",
		Help: "Tenant breakdowns skipped because recomputed amounts diverged.",
	})

	HandoffFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rental_handoff_failures_total",
		Help: "Best-effort downstream failures by stage.",
	}, []string{"stage"})

	HoldsPurged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rental_holds_purged_total",
		Help: "Expired holds deleted by the sweep.",
	})
)
