// internal/pkg/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReconcileTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vowlist_reconcile_total",
			Help: "Reconciliation passes by outcome",
		},
		[]string{"outcome"},
	)

	ReconcileAmbiguous = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vowlist_reconcile_ambiguous_total",
			Help: "Reconciliations that had to pick among several untagged subscriptions",
		},
	)

	ReconcileDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "vowlist_reconcile_duration_seconds",
			Help: "Duration of a reconciliation pass in seconds",
		},
	)

	BoostToggles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vowlist_boost_toggles_total",
			Help: "Boost toggle requests by desired state and result",
		},
		[]string{"desired", "result"},
	)

	ClaimsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vowlist_claims_submitted_total",
			Help: "Claim submissions by result",
		},
		[]string{"result"},
	)

	ClaimsDecided = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vowlist_claims_decided_total",
			Help: "Claim decisions by outcome",
		},
		[]string{"outcome"},
	)

	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vowlist_webhook_events_total",
			Help: "Billing webhook events by type and result",
		},
		[]string{"type", "result"},
	)
)
