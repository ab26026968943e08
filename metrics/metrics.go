package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Analysis paths
const (
	PathCached   = "cached"
	PathDatabase = "database"
	PathAI       = "ai"
	PathDegraded = "degraded"
)

// AI call outcomes
const (
	OutcomeSuccess     = "success"
	OutcomeRateLimited = "rate_limited"
	OutcomeMalformed   = "malformed"
	OutcomeError       = "error"
)

var (
	// AnalysisRequests counts analyze results by the path that produced them
	AnalysisRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "legalmatch_analysis_requests_total",
		Help: "Total legal analysis results by producing path",
	}, []string{"path"})

	// AICalls counts model invocations by provider and outcome
	AICalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "legalmatch_ai_calls_total",
		Help: "Total AI model calls by provider and outcome",
	}, []string{"provider", "outcome"})

	// AIRetries counts backoff sleeps taken after rate-limited calls
	AIRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "legalmatch_ai_retries_total",
		Help: "Total retries after rate-limited AI calls",
	})

	// HTTPRequests counts served requests
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "legalmatch_http_requests_total",
		Help: "Total HTTP requests by method, route and status",
	}, []string{"method", "route", "status"})

	// HTTPDuration tracks request latency
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "legalmatch_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
	}, []string{"method", "route"})

	// ChatConnections is the number of open chat websockets
	ChatConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "legalmatch_chat_connections",
		Help: "Open chat websocket connections",
	})
)
