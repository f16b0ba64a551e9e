package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Run metrics
	RunsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "researchd_runs_started_total",
			Help: "Total number of research runs started",
		},
	)

	RunsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "researchd_runs_completed_total",
			Help: "Total number of research runs completed",
		},
		[]string{"status"},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "researchd_run_duration_seconds",
			Help:    "Research run duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "researchd_stage_duration_seconds",
			Help:    "Duration of each loop stage in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	IterationsPerRun = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "researchd_iterations_per_run",
			Help:    "Number of loop iterations per run",
			Buckets: []float64{1, 2, 3, 4, 5, 8},
		},
	)

	DegradedRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "researchd_degraded_runs_total",
			Help: "Runs that entered degraded search mode",
		},
	)

	FallbackPlans = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "researchd_fallback_plans_total",
			Help: "Planning calls substituted with the fixed fallback query set",
		},
	)

	HeuristicFired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "researchd_heuristic_fired_total",
			Help: "Domain heuristics that overrode a sufficient reflection",
		},
		[]string{"heuristic"},
	)

	// Cache metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "researchd_cache_hits_total",
			Help: "Cache hits by namespace",
		},
		[]string{"namespace"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "researchd_cache_misses_total",
			Help: "Cache misses by namespace",
		},
		[]string{"namespace"},
	)

	// Search metrics
	SearchQueries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "researchd_search_queries_total",
			Help: "Search queries executed (cache misses only)",
		},
	)

	SearchRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "researchd_search_retries_total",
			Help: "Search retry attempts after a failed or empty call",
		},
	)

	SearchFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "researchd_search_failures_total",
			Help: "Search queries that exhausted all retry attempts",
		},
	)

	// Source metrics
	SourcesCollected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "researchd_sources_collected_total",
			Help: "Sources accumulated across all runs before dedup/filter",
		},
	)

	SourcesCompacted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "researchd_sources_compacted_total",
			Help: "Presentations that required source-list compaction",
		},
	)

	// Citation metrics
	InvalidCitations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "researchd_invalid_citations_total",
			Help: "Model citations rejected during validation",
		},
	)

	// HTTP metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "researchd_http_requests_total",
			Help: "HTTP requests by route and status",
		},
		[]string{"route", "status"},
	)
)
