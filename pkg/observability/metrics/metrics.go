package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal tracks processed completion requests by outcome
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmguardian_requests_total",
			Help: "The total number of completion requests processed, labeled by outcome",
		},
		[]string{"outcome"},
	)

	// RequestLatency tracks end-to-end request latency by outcome
	RequestLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llmguardian_request_latency_seconds",
			Help:    "End-to-end completion request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	// StageLatency tracks per-stage latency within the request pipeline
	StageLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llmguardian_stage_latency_seconds",
			Help:    "Latency of individual pipeline stages in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"stage"},
	)

	// CacheHits tracks cache hits by tier
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmguardian_cache_hits_total",
			Help: "The total number of cache hits by tier",
		},
		[]string{"tier"},
	)

	// CacheMisses tracks cache misses by tier
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmguardian_cache_misses_total",
			Help: "The total number of cache misses by tier",
		},
		[]string{"tier"},
	)

	// CacheOperationTotal tracks cache operations by tier, operation, and status
	CacheOperationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmguardian_cache_operations_total",
			Help: "The total number of cache operations",
		},
		[]string{"tier", "operation", "status"},
	)

	// CacheOperationDuration tracks the duration of cache operations by tier and operation
	CacheOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llmguardian_cache_operation_duration_seconds",
			Help:    "The duration of cache operations in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"tier", "operation"},
	)

	// CacheEntries tracks the number of live entries per cache tier
	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "llmguardian_cache_entries",
			Help: "The current number of entries in the cache by tier",
		},
		[]string{"tier"},
	)

	// PIIDetections tracks sensitive-value detections by kind
	PIIDetections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmguardian_pii_detections_total",
			Help: "The total number of sensitive values detected, labeled by kind",
		},
		[]string{"kind"},
	)

	// ProviderAttempts tracks outbound provider attempts by model and outcome
	ProviderAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmguardian_provider_attempts_total",
			Help: "The total number of provider call attempts by model and outcome (ok or error kind)",
		},
		[]string{"model", "outcome"},
	)

	// ProviderLatency tracks provider completion latency by model
	ProviderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llmguardian_provider_latency_seconds",
			Help:    "The latency of provider completions in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model"},
	)

	// ModelPromptTokens tracks prompt tokens consumed per model
	ModelPromptTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmguardian_model_prompt_tokens_total",
			Help: "The total number of prompt tokens used by each model",
		},
		[]string{"model"},
	)

	// ModelCompletionTokens tracks completion tokens produced per model
	ModelCompletionTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmguardian_model_completion_tokens_total",
			Help: "The total number of completion tokens used by each model",
		},
		[]string{"model"},
	)

	// ModelCost tracks the estimated cost attributed to each model by currency
	ModelCost = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmguardian_model_cost_total",
			Help: "The estimated cost attributed to each model, labeled by currency",
		},
		[]string{"model", "currency"},
	)

	// RoutingDecisions tracks routing decisions by strategy and selected model
	RoutingDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llmguardian_routing_decisions_total",
			Help: "The total number of routing decisions by strategy and selected model",
		},
		[]string{"strategy", "model"},
	)

	// RoutingLatency tracks the latency of routing decisions
	RoutingLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "llmguardian_routing_latency_seconds",
			Help:    "The latency of model routing decisions in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// OptimizationTokensSaved tracks tokens removed by prompt optimization
	OptimizationTokensSaved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "llmguardian_optimization_tokens_saved_total",
			Help: "The total number of estimated tokens removed by prompt optimization",
		},
	)

	// AuditWrites tracks persisted audit records
	AuditWrites = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "llmguardian_audit_writes_total",
			Help: "The total number of audit records written",
		},
	)

	// AuditDrops tracks audit submissions dropped due to queue overflow
	AuditDrops = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "llmguardian_audit_drops_total",
			Help: "The total number of audit submissions dropped because the queue was full",
		},
	)

	// AuditQueueDepth tracks the current depth of the audit submission queue
	AuditQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "llmguardian_audit_queue_depth",
			Help: "The current number of pending audit submissions",
		},
	)
)

// RecordRequest records a completed request with its outcome and latency.
func RecordRequest(outcome string, seconds float64) {
	RequestsTotal.WithLabelValues(outcome).Inc()
	RequestLatency.WithLabelValues(outcome).Observe(seconds)
}

// RecordStageLatency records the latency of one pipeline stage.
func RecordStageLatency(stage string, seconds float64) {
	StageLatency.WithLabelValues(stage).Observe(seconds)
}

// RecordCacheHit records a cache hit for the given tier.
func RecordCacheHit(tier string) {
	CacheHits.WithLabelValues(tier).Inc()
}

// RecordCacheMiss records a cache miss for the given tier.
func RecordCacheMiss(tier string) {
	CacheMisses.WithLabelValues(tier).Inc()
}

// RecordCacheOperation records a cache operation with its duration.
// status should be "success" or "error".
func RecordCacheOperation(tier, operation, status string, seconds float64) {
	CacheOperationTotal.WithLabelValues(tier, operation, status).Inc()
	CacheOperationDuration.WithLabelValues(tier, operation).Observe(seconds)
}

// UpdateCacheEntries sets the live entry count for a cache tier.
func UpdateCacheEntries(tier string, count int) {
	CacheEntries.WithLabelValues(tier).Set(float64(count))
}

// RecordPIIDetection records a single sensitive-value detection.
func RecordPIIDetection(kind string) {
	PIIDetections.WithLabelValues(kind).Inc()
}

// RecordPIIDetections records n detections of one kind at once.
func RecordPIIDetections(kind string, n int) {
	if n > 0 {
		PIIDetections.WithLabelValues(kind).Add(float64(n))
	}
}

// RecordProviderAttempt records one provider call attempt.
// outcome is "ok" for success or the classified error kind.
func RecordProviderAttempt(model, outcome string) {
	ProviderAttempts.WithLabelValues(model, outcome).Inc()
}

// RecordProviderLatency records the latency of a successful provider completion.
func RecordProviderLatency(model string, seconds float64) {
	ProviderLatency.WithLabelValues(model).Observe(seconds)
}

// RecordModelTokens records prompt and completion token usage for a model.
func RecordModelTokens(model string, promptTokens, completionTokens float64) {
	if promptTokens > 0 {
		ModelPromptTokens.WithLabelValues(model).Add(promptTokens)
	}
	if completionTokens > 0 {
		ModelCompletionTokens.WithLabelValues(model).Add(completionTokens)
	}
}

// RecordModelCost records the estimated cost of a completion.
func RecordModelCost(model, currency string, amount float64) {
	ModelCost.WithLabelValues(model, currency).Add(amount)
}

// RecordRoutingDecision records a routing decision and its latency.
func RecordRoutingDecision(strategy, model string, seconds float64) {
	RoutingDecisions.WithLabelValues(strategy, model).Inc()
	RoutingLatency.Observe(seconds)
}

// RecordTokensSaved records tokens removed by prompt optimization.
func RecordTokensSaved(tokens int) {
	if tokens > 0 {
		OptimizationTokensSaved.Add(float64(tokens))
	}
}

// RecordAuditWrites records n persisted audit records.
func RecordAuditWrites(n int) {
	if n > 0 {
		AuditWrites.Add(float64(n))
	}
}

// RecordAuditDrop records a dropped audit submission.
func RecordAuditDrop() {
	AuditDrops.Inc()
}

// UpdateAuditQueueDepth sets the current audit queue depth.
func UpdateAuditQueueDepth(depth int) {
	AuditQueueDepth.Set(float64(depth))
}
