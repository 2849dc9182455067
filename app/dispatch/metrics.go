package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Messages that reached their channel
	publicationsPublishedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telepost_publications_published_total",
			Help: "Total number of publications delivered to Telegram",
		},
	)

	// Dispatch failures partitioned by classification
	publishFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "telepost_publish_failures_total",
			Help: "Total number of failed publish attempts",
		},
		[]string{"reason"},
	)

	// Deliveries pushed back because Telegram signaled a flood wait
	rateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telepost_rate_limited_total",
			Help: "Total number of deliveries re-delayed by a Telegram rate limit",
		},
	)

	// Timed deletions that removed their message
	publicationsDeletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "telepost_publications_deleted_total",
			Help: "Total number of publications removed by their delete timer",
		},
	)
)

const (
	failureReasonFatal     = "fatal"
	failureReasonTransient = "transient"
	failureReasonExhausted = "exhausted"
)
