// Package metrics holds the Prometheus collectors of the archive engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Publications counts inserted revisions by kind
	Publications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archive_publications_total",
		Help: "Total inserted document revisions by kind",
	}, []string{"kind"})

	// LatestUpdates counts latest pointer outcomes: applied, stale, recomputed, deleted, unchanged
	LatestUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archive_latest_updates_total",
		Help: "Latest pointer maintenance outcomes",
	}, []string{"result"})

	// Subcollections counts identity resolutions: existing, revision, created
	Subcollections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archive_subcollection_resolutions_total",
		Help: "Subcollection identity resolutions by outcome",
	}, []string{"outcome"})

	// RepublishRoots counts root collections by outcome: cloned, skipped, failed
	RepublishRoots = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archive_republish_roots_total",
		Help: "Root collections handled by republication",
	}, []string{"result"})

	// RepublishDuration tracks whole republication batches
	RepublishDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "archive_republish_duration_seconds",
		Help:    "Republication batch duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
	})

	// ClonedNodes tracks tree size per cloned root
	ClonedNodes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "archive_republish_cloned_nodes",
		Help:    "Tree nodes created per cloned root",
		Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000},
	})

	// EventsDelivered counts outbox deliveries by result
	EventsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archive_events_delivered_total",
		Help: "Publication events handed to the sink",
	}, []string{"result"})

	// QueueDepth is the number of pending asynchronous republish jobs
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "archive_republish_queue_depth",
		Help: "Pending asynchronous republish jobs",
	})
)

// Handler exposes the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}
