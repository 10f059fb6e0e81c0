package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Queue metrics for Prometheus monitoring.
var (
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "prioq_messages_pending",
			Help: "Approximate number of messages per priority level, as last observed",
		},
		[]string{"priority"},
	)

	MessagesEnqueuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prioq_messages_enqueued_total",
			Help: "Total number of messages enqueued by priority",
		},
		[]string{"priority"},
	)

	MessagesReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prioq_messages_received_total",
			Help: "Total number of messages handed to subscribers",
		},
		[]string{"priority", "mode"}, // mode: item, batch
	)

	PollCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prioq_poll_cycles_total",
			Help: "Total number of dispatch cycles by outcome",
		},
		[]string{"outcome"}, // progress, empty, error
	)

	HandlerFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prioq_handler_failures_total",
			Help: "Total number of subscriber handler errors and panics",
		},
		[]string{"mode"},
	)

	HandlerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prioq_handler_duration_seconds",
			Help:    "Duration of subscriber handler invocations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	BackoffSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "prioq_backoff_seconds",
			Help: "Current idle wait of the dispatch loop",
		},
	)
)
