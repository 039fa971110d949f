// Package metrics holds the Prometheus collectors of the linker.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Resolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linker_resolutions_total",
			Help: "Total number of resolved queries by module and result type",
		},
		[]string{"module", "result"},
	)

	ResolutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "linker_resolution_duration_seconds",
			Help:    "Time spent resolving a query, including the data snapshot",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		},
		[]string{"result"},
	)

	ChainDepth = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "linker_chain_depth",
			Help:    "Number of chain hops followed per resolution",
			Buckets: []float64{0, 1, 2, 3, 4, 5, 6},
		},
	)

	PatternCompileFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linker_pattern_compile_failures_total",
			Help: "Rule patterns that could not be compiled and were treated as non-matching",
		},
		[]string{"pattern_type"},
	)

	SnapshotCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linker_snapshot_cache_total",
			Help: "Snapshot cache lookups by backend and outcome",
		},
		[]string{"backend", "outcome"},
	)

	LogMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linker_log_messages_total",
			Help: "Warnings and errors reported, counted before sampling",
		},
		[]string{"level"},
	)

	HTTPErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linker_http_errors_total",
			Help: "HTTP error responses by status code",
		},
		[]string{"code"},
	)
)
