// Package metrics exposes the core's Prometheus instrumentation: pool
// availability, rate-budget rejections, dispatcher retries, grading
// duration and heartbeat activity.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PoolAvailable = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "inkgrade",
		Subsystem: "pool",
		Name:      "available_credentials",
		Help:      "Number of credentials currently available for borrow.",
	})

	PoolFailed = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "inkgrade",
		Subsystem: "pool",
		Name:      "failed_credentials",
		Help:      "Number of credentials currently cooling down after a failure.",
	})

	RateBudgetRejections = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "inkgrade",
		Subsystem: "rate_budget",
		Name:      "rejections_total",
		Help:      "Number of admission requests denied by the sliding-window rate budget.",
	})

	DispatcherRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inkgrade",
		Subsystem: "dispatcher",
		Name:      "retries_total",
		Help:      "Number of task retries, labeled by reason.",
	}, []string{"reason"})

	GradingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "inkgrade",
		Subsystem: "grading",
		Name:      "duration_seconds",
		Help:      "End-to-end grading request duration, labeled by mode and outcome.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
	}, []string{"mode", "outcome"})

	HeartbeatEvents = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "inkgrade",
		Subsystem: "grading",
		Name:      "heartbeat_events_total",
		Help:      "Number of thinking heartbeat events emitted while awaiting the first upstream token.",
	})

	FloodRejections = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "inkgrade",
		Subsystem: "floodlimiter",
		Name:      "rejections_total",
		Help:      "Number of requests rejected by the per-user flood limiter.",
	})
)
