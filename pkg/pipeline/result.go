// Package pipeline sequences the guarded request flow: redaction, prompt
// optimization, complexity scoring, model routing, cache lookup, the
// provider call, cache store, restoration and the audit hand-off.
package pipeline

import (
	"github.com/mdkashifakram/LLMGuardian/pkg/complexity"
	"github.com/mdkashifakram/LLMGuardian/pkg/optimizer"
	"github.com/mdkashifakram/LLMGuardian/pkg/provider"
	"github.com/mdkashifakram/LLMGuardian/pkg/routing"
)

// Error types surfaced on failed results.
const (
	ErrorTypeProvider = "PROVIDER_ERROR"
	ErrorTypeInternal = "INTERNAL_ERROR"
)

// Request is one pipeline invocation. The HTTP layer validates input and
// applies defaults before building it.
type Request struct {
	Query     string
	MaxTokens int
	// Temperature and TopP pass through to the provider; nil keeps the
	// provider defaults.
	Temperature *float64
	TopP        *float64
	// Model pins the model, bypassing strategy selection.
	Model string
	// Strategy overrides the router default when non-empty.
	Strategy           routing.Strategy
	EnableOptimization bool
	EnableCache        bool
}

// Result carries the response text and every per-stage artifact. Error and
// ErrorType are set only when Success is false.
type Result struct {
	RequestID     string
	OriginalQuery string
	ResponseText  string
	Success       bool
	Error         string
	ErrorType     string

	PIIDetected      bool
	PIICount         int
	Optimization     optimizer.Result
	Complexity       complexity.Score
	Routing          routing.Decision
	ProviderResponse *provider.Response
	FromCache        bool
	TotalLatencyMs   int64
}
