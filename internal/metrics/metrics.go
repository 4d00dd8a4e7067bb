package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CreditsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compengine_credits_total",
			Help: "Number of income credits applied, by history type",
		},
		[]string{"type"},
	)

	CreditedAmount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compengine_credited_amount_total",
			Help: "Sum of credited amounts, by history type",
		},
		[]string{"type"},
	)

	RedirectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compengine_redirects_total",
			Help: "Number of credits redirected to the fallback account, by reason",
		},
		[]string{"reason"},
	)

	DistributionEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compengine_distribution_events_total",
			Help: "Distribution events by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	DistributionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "compengine_distribution_duration_seconds",
			Help:    "Duration of distribution events in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"kind"},
	)

	SettlementUnitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compengine_settlement_units_total",
			Help: "Settlement units by job and outcome (released, skipped, failed)",
		},
		[]string{"job", "outcome"},
	)

	SchedulerRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compengine_scheduler_runs_total",
			Help: "Scheduled job runs by job and outcome",
		},
		[]string{"job", "outcome"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compengine_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
)
