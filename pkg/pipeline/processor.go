package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mdkashifakram/LLMGuardian/pkg/audit"
	"github.com/mdkashifakram/LLMGuardian/pkg/cache"
	"github.com/mdkashifakram/LLMGuardian/pkg/complexity"
	"github.com/mdkashifakram/LLMGuardian/pkg/observability/logging"
	"github.com/mdkashifakram/LLMGuardian/pkg/observability/metrics"
	"github.com/mdkashifakram/LLMGuardian/pkg/observability/tracing"
	"github.com/mdkashifakram/LLMGuardian/pkg/optimizer"
	"github.com/mdkashifakram/LLMGuardian/pkg/pii"
	"github.com/mdkashifakram/LLMGuardian/pkg/provider"
	"github.com/mdkashifakram/LLMGuardian/pkg/routing"
)

// Stage labels for the latency histogram.
const (
	stageRedaction  = "pii_redaction"
	stageOptimize   = "optimization"
	stageComplexity = "complexity"
	stageRouting    = "routing"
	stageCacheGet   = "cache_lookup"
	stageProvider   = "provider_call"
	stageCacheSet   = "cache_store"
	stageRestore    = "pii_restore"
	stageAudit      = "audit_submit"
)

// Options wires the processor's collaborators. Audit may be nil when the
// sink is disabled.
type Options struct {
	Detector  *pii.Detector
	Redactor  *pii.Redactor
	Restorer  *pii.Restorer
	Optimizer *optimizer.Optimizer
	Router    *routing.Router
	Cache     *cache.Manager
	Provider  provider.Provider
	Audit     *audit.Sink
}

// Processor runs one request through the full stage sequence. Safe for
// concurrent use; each invocation owns its redaction context.
type Processor struct {
	detector  *pii.Detector
	redactor  *pii.Redactor
	restorer  *pii.Restorer
	optimizer *optimizer.Optimizer
	router    *routing.Router
	cache     *cache.Manager
	provider  provider.Provider
	audit     *audit.Sink
}

// NewProcessor builds a processor from wired collaborators.
func NewProcessor(opts Options) *Processor {
	return &Processor{
		detector:  opts.Detector,
		redactor:  opts.Redactor,
		restorer:  opts.Restorer,
		optimizer: opts.Optimizer,
		router:    opts.Router,
		cache:     opts.Cache,
		provider:  opts.Provider,
		audit:     opts.Audit,
	}
}

// Process runs the stages in order. The prompt that reaches the provider
// is always the redacted one; the original query never leaves the process.
// Cancellation propagates into the provider call only; cache writes and
// the audit hand-off are best-effort and survive it.
func (p *Processor) Process(ctx context.Context, req Request) *Result {
	start := time.Now()
	requestID := uuid.NewString()

	ctx, span := tracing.StartSpan(ctx, tracing.SpanRequest)
	defer span.End()
	tracing.SetSpanAttributes(span, attribute.String(tracing.AttrRequestID, requestID))

	logging.Infof("request %s: processing started", requestID)

	result := &Result{
		RequestID:     requestID,
		OriginalQuery: req.Query,
	}
	rctx := pii.NewContext(requestID)

	redacted := p.redactStage(ctx, rctx, req.Query, result)
	optimized := p.optimizeStage(ctx, redacted, req.EnableOptimization, result)
	score := p.complexityStage(ctx, optimized)
	result.Complexity = score

	decision := p.routeStage(ctx, req, score)
	result.Routing = decision

	responseText, fromCache := p.lookupStage(ctx, optimized, decision.ModelID, req.EnableCache)
	if !fromCache {
		resp, err := p.providerStage(ctx, req, optimized, decision)
		if err != nil {
			return p.fail(span, result, err, start)
		}
		result.ProviderResponse = resp
		responseText = resp.Text
		p.storeStage(ctx, optimized, decision.ModelID, responseText, req.EnableCache)
	}
	result.FromCache = fromCache

	responseText = p.restoreStage(ctx, rctx, responseText, result.PIIDetected)
	p.auditStage(ctx, rctx, result.PIIDetected)

	result.ResponseText = responseText
	result.Success = true
	result.TotalLatencyMs = time.Since(start).Milliseconds()

	metrics.RecordRequest("success", time.Since(start).Seconds())
	logging.Infof("request %s: complete in %dms (cached=%v, pii=%v, model=%s)",
		requestID, result.TotalLatencyMs, fromCache, result.PIIDetected, decision.ModelID)
	return result
}

func (p *Processor) fail(span trace.Span, result *Result, err error, start time.Time) *Result {
	result.Success = false
	result.Error = err.Error()
	var perr *provider.Error
	if errors.As(err, &perr) {
		result.ErrorType = ErrorTypeProvider
	} else {
		result.ErrorType = ErrorTypeInternal
	}
	result.TotalLatencyMs = time.Since(start).Milliseconds()

	tracing.RecordError(span, err)
	metrics.RecordRequest("error", time.Since(start).Seconds())
	logging.Errorf("request %s: processing failed (%s): %v", result.RequestID, result.ErrorType, err)
	return result
}

func (p *Processor) redactStage(ctx context.Context, rctx *pii.Context, query string, result *Result) string {
	stageStart := time.Now()
	_, span := tracing.StartSpan(ctx, tracing.SpanPIIDetection)
	defer span.End()

	detection := p.detector.Detect(query)
	redacted := query
	if len(detection.Matches) > 0 {
		_, rspan := tracing.StartSpan(ctx, tracing.SpanPIIRedaction)
		redacted = p.redactor.Redact(rctx, query, detection.Matches)
		rspan.End()

		result.PIIDetected = true
		result.PIICount = len(detection.Matches)
		logging.Infof("request %s: %d sensitive values redacted", rctx.RequestID, result.PIICount)
	}

	tracing.SetSpanAttributes(span,
		attribute.Bool(tracing.AttrPIIDetected, result.PIIDetected),
		attribute.Int(tracing.AttrPIICount, result.PIICount),
	)
	metrics.RecordStageLatency(stageRedaction, time.Since(stageStart).Seconds())
	return redacted
}

func (p *Processor) optimizeStage(ctx context.Context, prompt string, enabled bool, result *Result) string {
	stageStart := time.Now()
	_, span := tracing.StartSpan(ctx, tracing.SpanOptimization)
	defer span.End()

	var opt optimizer.Result
	if enabled {
		opt = p.optimizer.Optimize(prompt)
	} else {
		tokens := optimizer.EstimateTokens(prompt)
		opt = optimizer.Result{
			OriginalPrompt:  prompt,
			OptimizedPrompt: prompt,
			OriginalTokens:  tokens,
			OptimizedTokens: tokens,
			SkipReason:      "disabled for request",
			Intent:          optimizer.UnknownIntent(),
		}
	}
	if opt.Applied {
		logging.Debugf("optimization saved %d tokens (%.1f%%)", opt.TokensSaved(), opt.ReductionPercentage())
	}

	tracing.SetSpanAttributes(span, attribute.Int(tracing.AttrTokensSaved, opt.TokensSaved()))
	metrics.RecordStageLatency(stageOptimize, time.Since(stageStart).Seconds())
	result.Optimization = opt
	return opt.OptimizedPrompt
}

func (p *Processor) complexityStage(ctx context.Context, prompt string) complexity.Score {
	stageStart := time.Now()
	_, span := tracing.StartSpan(ctx, tracing.SpanComplexity)
	defer span.End()

	score := complexity.Analyze(prompt)

	tracing.SetSpanAttributes(span,
		attribute.Int(tracing.AttrComplexityScore, score.Score),
		attribute.String(tracing.AttrComplexityLevel, string(score.Level)),
	)
	metrics.RecordStageLatency(stageComplexity, time.Since(stageStart).Seconds())
	return score
}

func (p *Processor) routeStage(ctx context.Context, req Request, score complexity.Score) routing.Decision {
	stageStart := time.Now()
	_, span := tracing.StartSpan(ctx, tracing.SpanRouting)
	defer span.End()

	var decision routing.Decision
	switch {
	case req.Model != "":
		tracing.SetSpanAttributes(span, attribute.String(tracing.AttrModelRequested, req.Model))
		decision = p.router.RouteToModel(req.Model, score)
	case req.Strategy != "":
		decision = p.router.RouteWithStrategy(score, req.Strategy)
	default:
		decision = p.router.Route(score)
	}

	tracing.SetSpanAttributes(span,
		attribute.String(tracing.AttrModelSelected, decision.ModelID),
		attribute.String(tracing.AttrRoutingStrategy, string(decision.Strategy)),
	)
	metrics.RecordStageLatency(stageRouting, time.Since(stageStart).Seconds())
	logging.Debugf("routing: %s (%s)", decision.ModelID, decision.Rationale)
	return decision
}

func (p *Processor) lookupStage(ctx context.Context, prompt, modelID string, enabled bool) (string, bool) {
	if !enabled {
		return "", false
	}
	stageStart := time.Now()
	_, span := tracing.StartSpan(ctx, tracing.SpanCacheLookup)
	defer span.End()

	// Cache reads are best-effort and outlive request cancellation.
	value, hit := p.cache.Lookup(context.WithoutCancel(ctx), prompt, modelID)

	tracing.SetSpanAttributes(span, attribute.Bool(tracing.AttrCacheHit, hit))
	metrics.RecordStageLatency(stageCacheGet, time.Since(stageStart).Seconds())
	return value, hit
}

func (p *Processor) providerStage(ctx context.Context, req Request, prompt string, decision routing.Decision) (*provider.Response, error) {
	stageStart := time.Now()
	ctx, span := tracing.StartSpan(ctx, tracing.SpanProviderCall)
	defer span.End()

	resp, err := p.provider.Complete(ctx, provider.Request{
		ModelID:     decision.ModelID,
		Prompt:      prompt,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
	})
	metrics.RecordStageLatency(stageProvider, time.Since(stageStart).Seconds())
	if err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	tracing.SetSpanAttributes(span,
		attribute.Int(tracing.AttrPromptTokens, resp.InputTokens),
		attribute.Int(tracing.AttrCompletionTokens, resp.OutputTokens),
		attribute.String(tracing.AttrFinishReason, string(resp.FinishReason)),
	)
	return resp, nil
}

func (p *Processor) storeStage(ctx context.Context, prompt, modelID, responseText string, enabled bool) {
	if !enabled {
		return
	}
	stageStart := time.Now()
	_, span := tracing.StartSpan(ctx, tracing.SpanCacheStore)
	defer span.End()

	p.cache.Store(context.WithoutCancel(ctx), prompt, modelID, responseText)
	metrics.RecordStageLatency(stageCacheSet, time.Since(stageStart).Seconds())
}

func (p *Processor) restoreStage(ctx context.Context, rctx *pii.Context, text string, piiDetected bool) string {
	stageStart := time.Now()
	_, span := tracing.StartSpan(ctx, tracing.SpanPIIRestore)
	defer span.End()

	if piiDetected {
		text = p.restorer.Restore(rctx, text)
	}
	metrics.RecordStageLatency(stageRestore, time.Since(stageStart).Seconds())
	return text
}

func (p *Processor) auditStage(ctx context.Context, rctx *pii.Context, piiDetected bool) {
	stageStart := time.Now()
	_, span := tracing.StartSpan(ctx, tracing.SpanAuditSubmit)
	defer span.End()

	if piiDetected && p.audit != nil {
		p.audit.Submit(rctx)
	}
	metrics.RecordStageLatency(stageAudit, time.Since(stageStart).Seconds())
}
