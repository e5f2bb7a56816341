package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Evaluation pass metrics
	PassesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alertwatch_evaluation_passes_total",
			Help: "Total number of evaluation passes executed",
		},
	)

	PassesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alertwatch_evaluation_passes_skipped_total",
			Help: "Total number of ticks skipped because a pass was still running",
		},
	)

	PassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "alertwatch_evaluation_pass_duration_seconds",
			Help:    "Duration of one evaluation pass",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	RulesEvaluated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alertwatch_rules_evaluated_total",
			Help: "Total number of rule evaluations",
		},
	)

	EvaluationErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alertwatch_evaluation_errors_total",
			Help: "Total number of rules skipped due to evaluation errors",
		},
	)

	// Admission metrics
	AlertsAdmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alertwatch_alerts_admitted_total",
			Help: "Total number of alerts admitted past cooldown and daily cap",
		},
	)

	AlertsSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertwatch_alerts_suppressed_total",
			Help: "Total number of triggered rules suppressed by the gate",
		},
		[]string{"reason"},
	)

	// Delivery metrics
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertwatch_notifications_sent_total",
			Help: "Total number of notification tasks delivered",
		},
		[]string{"channel"},
	)

	NotificationsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alertwatch_notifications_failed_total",
			Help: "Total number of notification tasks that exhausted retries",
		},
		[]string{"channel"},
	)

	DeliveryAttemptDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "alertwatch_delivery_attempt_duration_seconds",
			Help:    "Duration of one channel send attempt",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"channel"},
	)
)
