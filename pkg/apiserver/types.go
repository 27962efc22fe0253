package apiserver

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mdkashifakram/LLMGuardian/pkg/pipeline"
	"github.com/mdkashifakram/LLMGuardian/pkg/routing"
)

const (
	defaultMaxTokens    = 1000
	maxCompletionTokens = 4096
)

// CompletionRequest is the POST /api/v1/completions payload. Optional
// fields are pointers so an absent field and an explicit zero stay
// distinguishable when defaults are applied.
type CompletionRequest struct {
	Query              string   `json:"query"`
	MaxTokens          *int     `json:"maxTokens,omitempty"`
	Temperature        *float64 `json:"temperature,omitempty"`
	TopP               *float64 `json:"topP,omitempty"`
	Model              string   `json:"model,omitempty"`
	RoutingStrategy    string   `json:"routingStrategy,omitempty"`
	EnableOptimization *bool    `json:"enableOptimization,omitempty"`
	EnableCache        *bool    `json:"enableCache,omitempty"`
}

// validate rejects out-of-range fields. Error messages never echo the
// query text.
func (r *CompletionRequest) validate() error {
	if strings.TrimSpace(r.Query) == "" {
		return errors.New("query must not be empty")
	}
	if r.MaxTokens != nil && (*r.MaxTokens < 1 || *r.MaxTokens > maxCompletionTokens) {
		return fmt.Errorf("maxTokens must be between 1 and %d", maxCompletionTokens)
	}
	if r.Temperature != nil && (*r.Temperature < 0 || *r.Temperature > 2) {
		return errors.New("temperature must be between 0.0 and 2.0")
	}
	if r.TopP != nil && (*r.TopP < 0 || *r.TopP > 1) {
		return errors.New("topP must be between 0.0 and 1.0")
	}
	if r.RoutingStrategy != "" {
		if _, ok := routing.ParseStrategy(r.RoutingStrategy); !ok {
			return fmt.Errorf("unknown routing strategy %q", r.RoutingStrategy)
		}
	}
	return nil
}

// toPipeline converts the payload into a pipeline request, filling in the
// defaults for absent optional fields.
func (r *CompletionRequest) toPipeline() pipeline.Request {
	preq := pipeline.Request{
		Query:              r.Query,
		MaxTokens:          defaultMaxTokens,
		Temperature:        r.Temperature,
		TopP:               r.TopP,
		Model:              r.Model,
		EnableOptimization: true,
		EnableCache:        true,
	}
	if r.MaxTokens != nil {
		preq.MaxTokens = *r.MaxTokens
	}
	if r.RoutingStrategy != "" {
		strategy, _ := routing.ParseStrategy(r.RoutingStrategy)
		preq.Strategy = strategy
	}
	if r.EnableOptimization != nil {
		preq.EnableOptimization = *r.EnableOptimization
	}
	if r.EnableCache != nil {
		preq.EnableCache = *r.EnableCache
	}
	return preq
}

// CompletionResponse is the completion payload for both outcomes; failed
// requests carry an error string and no metadata.
type CompletionResponse struct {
	RequestID string            `json:"requestId,omitempty"`
	Text      string            `json:"text,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Timestamp string            `json:"timestamp"`
	Metadata  *ResponseMetadata `json:"metadata,omitempty"`
}

// ResponseMetadata describes how the pipeline handled one request.
type ResponseMetadata struct {
	ModelUsed           string  `json:"modelUsed"`
	ComplexityLevel     string  `json:"complexityLevel"`
	InputTokens         int     `json:"inputTokens"`
	OutputTokens        int     `json:"outputTokens"`
	TotalTokens         int     `json:"totalTokens"`
	LatencyMs           int64   `json:"latencyMs"`
	FromCache           bool    `json:"fromCache"`
	OptimizationApplied bool    `json:"optimizationApplied"`
	TokensSaved         int     `json:"tokensSaved"`
	ReductionPercentage float64 `json:"reductionPercentage"`
	PIIDetected         bool    `json:"piiDetected"`
	PIICount            int     `json:"piiCount"`
	EstimatedCost       float64 `json:"estimatedCost"`
}

func completionResponseFrom(result *pipeline.Result) CompletionResponse {
	resp := CompletionResponse{
		RequestID: result.RequestID,
		Success:   result.Success,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if !result.Success {
		resp.Error = result.Error
		return resp
	}

	resp.Text = result.ResponseText
	meta := &ResponseMetadata{
		ModelUsed:           result.Routing.ModelID,
		ComplexityLevel:     string(result.Complexity.Level),
		LatencyMs:           result.TotalLatencyMs,
		FromCache:           result.FromCache,
		OptimizationApplied: result.Optimization.Applied,
		TokensSaved:         result.Optimization.TokensSaved(),
		ReductionPercentage: result.Optimization.ReductionPercentage(),
		PIIDetected:         result.PIIDetected,
		PIICount:            result.PIICount,
	}
	// Cache hits have no provider response; token counts stay zero.
	if pr := result.ProviderResponse; pr != nil {
		meta.InputTokens = pr.InputTokens
		meta.OutputTokens = pr.OutputTokens
		meta.TotalTokens = pr.TotalTokens()
		meta.EstimatedCost = pr.EstimatedCost
	}
	resp.Metadata = meta
	return resp
}
