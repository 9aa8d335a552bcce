package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "export",
			Name:      "jobs_create_attempts_total",
			Help:      "Total number of export job create attempts by store outcome.",
		},
		[]string{"destination_type", "outcome"}, // outcome: created, conflict, error
	)

	statusPolls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "export",
			Name:      "status_polls_total",
			Help:      "Total number of export status polls by observed job state.",
		},
		[]string{"state"},
	)

	requestsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "export",
			Name:      "requests_rejected_total",
			Help:      "Total number of export requests rejected by the service.",
		},
		[]string{"kind"},
	)

	eventPublishFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "export",
			Name:      "event_publish_failures_total",
			Help:      "Total number of NATS events that could not be published.",
		},
		[]string{"subject"},
	)

	statusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "export",
			Name:      "status_transitions_total",
			Help:      "Total number of job status events applied or rejected.",
		},
		[]string{"status", "result"}, // result: applied, rejected, error
	)

	statusEventDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "export",
			Name:      "status_event_duration_seconds",
			Help:      "Duration of applying a job status event.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"subject"},
	)
)
