// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driveledger_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "driveledger_http_request_duration_seconds",
			Help:    "Histogram of HTTP response times",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// OrdersSaved counts SaveOrder outcomes: recorded, replayed or an error code.
	OrdersSaved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driveledger_orders_saved_total",
			Help: "Drive order submissions by outcome",
		},
		[]string{"outcome"},
	)

	LedgerPostings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driveledger_ledger_postings_total",
			Help: "Ledger entries appended by source and account",
		},
		[]string{"source", "account"},
	)

	FreezeTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driveledger_freeze_transitions_total",
			Help: "Account freeze state changes",
		},
		[]string{"transition"},
	)

	ConflictRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "driveledger_conflict_retries_total",
			Help: "Transactions retried after a serialization failure or deadlock",
		},
	)

	LedgerMismatches = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "driveledger_ledger_mismatches",
			Help: "Cached balances disagreeing with their ledger at the last reconciliation",
		},
	)

	SchedulerRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driveledger_scheduler_runs_total",
			Help: "Maintenance job runs by job and result",
		},
		[]string{"job", "result"},
	)
)
