// Package provider calls the upstream LLM API. The OpenAI client validates
// requests locally, classifies failures, and retries transient ones with
// exponential backoff; redacted prompts are all it ever sees.
package provider

import (
	"context"
	"time"
)

// FinishReason explains why the model stopped generating.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishContentFilter FinishReason = "content_filter"
	FinishOther         FinishReason = "other"
)

// Request is one completion call.
type Request struct {
	ModelID   string
	Prompt    string
	MaxTokens int

	// Optional sampling controls; nil leaves the provider default.
	Temperature *float64
	TopP        *float64

	// N asks for multiple choices; only the first is returned.
	N int

	StopSequences []string
}

// Response is the outcome of a successful completion call.
type Response struct {
	Text          string
	ModelID       string
	InputTokens   int
	OutputTokens  int
	FinishReason  FinishReason
	LatencyMillis int64
	// EstimatedCost is informational; a missing rate yields zero.
	EstimatedCost float64
	Timestamp     time.Time
}

// TotalTokens sums prompt and completion tokens.
func (r *Response) TotalTokens() int {
	return r.InputTokens + r.OutputTokens
}

// Provider is the upstream completion API.
type Provider interface {
	// Complete runs one completion, retrying transient failures. Errors
	// are *Error values carrying the classified kind.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Available reports whether the upstream API answers at all. Used by
	// health checks; failures degrade, never abort.
	Available(ctx context.Context) bool
}

// supportedModels is the closed set of model ids this provider accepts.
var supportedModels = map[string]struct{}{
	"gpt-4o":        {},
	"gpt-4o-mini":   {},
	"gpt-3.5-turbo": {},
	"gpt-4-turbo":   {},
	"gpt-4":         {},
}

// IsSupported reports whether the model id belongs to the provider's set.
func IsSupported(modelID string) bool {
	_, ok := supportedModels[modelID]
	return ok
}

// SupportedModels lists the accepted model ids.
func SupportedModels() []string {
	out := make([]string, 0, len(supportedModels))
	for id := range supportedModels {
		out = append(out, id)
	}
	return out
}
