package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Request metrics
	RequestsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prosearch_requests_started_total",
			Help: "Total number of chat requests started",
		},
		[]string{"mode"},
	)

	RequestsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prosearch_requests_completed_total",
			Help: "Total number of chat requests completed",
		},
		[]string{"mode", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prosearch_request_duration_seconds",
			Help:    "End-to-end chat request duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
		},
		[]string{"mode"},
	)

	// Fallback metrics
	Fallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prosearch_fallbacks_total",
			Help: "Pro-mode runs that fell back to basic mode, by failure kind",
		},
		[]string{"reason"},
	)

	// Planning metrics
	PlanSteps = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "prosearch_plan_steps",
			Help:    "Number of steps in accepted query plans",
			Buckets: []float64{1, 2, 3, 4},
		},
	)

	PlanLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "prosearch_plan_latency_seconds",
			Help:    "Latency of the planning capability",
			Buckets: prometheus.DefBuckets,
		},
	)

	StepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "prosearch_step_duration_seconds",
			Help:    "Duration of a non-terminal research step",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Search metrics
	SearchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prosearch_search_latency_seconds",
			Help:    "Latency of individual search provider calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	SearchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prosearch_search_errors_total",
			Help: "Search provider calls neutralised to empty results",
		},
		[]string{"provider"},
	)

	SearchResults = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prosearch_search_results",
			Help:    "Number of results returned per search call",
			Buckets: []float64{0, 1, 2, 4, 6, 10, 20},
		},
		[]string{"provider"},
	)

	AggregateDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "prosearch_search_aggregate_seconds",
			Help:    "Wall time of a fan-out search batch",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Capability metrics
	CapabilityCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prosearch_capability_calls_total",
			Help: "Calls to language-answer capabilities",
		},
		[]string{"kind", "status"},
	)

	CapabilityLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prosearch_capability_latency_seconds",
			Help:    "Latency of language-answer capability calls (time to first byte for streams)",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"kind"},
	)

	// Streaming metrics
	TextChunks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "prosearch_text_chunks_total",
			Help: "Answer deltas forwarded to callers",
		},
	)

	RelatedQuestionsFallback = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "prosearch_related_questions_padded_total",
			Help: "Related-question sets that needed generic padding",
		},
	)

	// HTTP metrics
	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "prosearch_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		},
	)
)
