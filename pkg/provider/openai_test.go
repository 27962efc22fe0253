package provider_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdkashifakram/LLMGuardian/pkg/provider"
	"github.com/mdkashifakram/LLMGuardian/pkg/routing"
)

func writeCompletion(w http.ResponseWriter, model, content, finishReason string, promptTokens, completionTokens int) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{
		"id": "chatcmpl-123",
		"object": "chat.completion",
		"created": 1700000000,
		"model": %q,
		"choices": [{"index": 0, "message": {"role": "assistant", "content": %q}, "finish_reason": %q}],
		"usage": {"prompt_tokens": %d, "completion_tokens": %d, "total_tokens": %d}
	}`, model, content, finishReason, promptTokens, completionTokens, promptTokens+completionTokens)
}

func writeAPIError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"error": {"message": %q, "type": "api_error"}}`, message)
}

func fastOptions(baseURL string) provider.Options {
	return provider.Options{
		APIKey:     "test-key",
		BaseURL:    baseURL,
		Timeout:    5 * time.Second,
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
	}
}

func floatPtr(v float64) *float64 { return &v }

func TestCompleteSuccess(t *testing.T) {
	var captured []byte
	var gotAuth, gotOrg, gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotOrg = r.Header.Get("OpenAI-Organization")
		gotContentType = r.Header.Get("Content-Type")
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		captured = body
		writeCompletion(w, "gpt-4o-mini", "Hello there", "stop", 10, 5)
	}))
	defer server.Close()

	opts := fastOptions(server.URL)
	opts.OrganizationID = "org-test"
	opts.MaxRequestsPerMinute = 600
	p := provider.NewOpenAIProvider(opts, routing.NewRegistry(nil))

	resp, err := p.Complete(context.Background(), provider.Request{
		ModelID:       "gpt-4o-mini",
		Prompt:        "Summarize the report",
		MaxTokens:     100,
		Temperature:   floatPtr(0.7),
		TopP:          floatPtr(0.9),
		StopSequences: []string{"END"},
	})
	require.NoError(t, err)
	require.NotNil(t, resp)

	assert.Equal(t, "Hello there", resp.Text)
	assert.Equal(t, "gpt-4o-mini", resp.ModelID)
	assert.Equal(t, 10, resp.InputTokens)
	assert.Equal(t, 5, resp.OutputTokens)
	assert.Equal(t, 15, resp.TotalTokens())
	assert.Equal(t, provider.FinishStop, resp.FinishReason)
	assert.GreaterOrEqual(t, resp.LatencyMillis, int64(0))
	assert.False(t, resp.Timestamp.IsZero())

	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "org-test", gotOrg)
	assert.Equal(t, "application/json", gotContentType)

	var sent map[string]interface{}
	require.NoError(t, json.Unmarshal(captured, &sent))
	assert.Equal(t, "gpt-4o-mini", sent["model"])
	assert.InDelta(t, 100, sent["max_tokens"].(float64), 0)
	assert.InDelta(t, 0.7, sent["temperature"].(float64), 1e-9)
	assert.InDelta(t, 0.9, sent["top_p"].(float64), 1e-9)
	assert.Equal(t, []interface{}{"END"}, sent["stop"])

	messages, ok := sent["messages"].([]interface{})
	require.True(t, ok)
	require.Len(t, messages, 1)
	msg, ok := messages[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "user", msg["role"])
	assert.Equal(t, "Summarize the report", msg["content"])
}

func TestCompleteValidation(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeCompletion(w, "gpt-4o-mini", "unexpected", "stop", 1, 1)
	}))
	defer server.Close()

	p := provider.NewOpenAIProvider(fastOptions(server.URL), nil)

	tests := []struct {
		name string
		req  provider.Request
	}{
		{name: "empty prompt", req: provider.Request{ModelID: "gpt-4o-mini", Prompt: "", MaxTokens: 10}},
		{name: "whitespace prompt", req: provider.Request{ModelID: "gpt-4o-mini", Prompt: "   ", MaxTokens: 10}},
		{name: "zero max tokens", req: provider.Request{ModelID: "gpt-4o-mini", Prompt: "hi", MaxTokens: 0}},
		{name: "negative max tokens", req: provider.Request{ModelID: "gpt-4o-mini", Prompt: "hi", MaxTokens: -5}},
		{name: "unsupported model", req: provider.Request{ModelID: "llama-unknown", Prompt: "hi", MaxTokens: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := p.Complete(context.Background(), tt.req)
			require.Error(t, err)
			assert.Nil(t, resp)

			var perr *provider.Error
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, provider.ErrInvalidRequest, perr.Kind)
			assert.False(t, perr.Retryable())
		})
	}
	assert.Equal(t, int32(0), calls.Load(), "validation failures must not reach the API")
}

func TestCompleteRetriesRateLimitThenSucceeds(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 2 {
			writeAPIError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		writeCompletion(w, "gpt-4o-mini", "finally", "stop", 8, 3)
	}))
	defer server.Close()

	p := provider.NewOpenAIProvider(fastOptions(server.URL), nil)

	resp, err := p.Complete(context.Background(), provider.Request{
		ModelID: "gpt-4o-mini", Prompt: "hi", MaxTokens: 50,
	})
	require.NoError(t, err)
	assert.Equal(t, "finally", resp.Text)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestCompleteDoesNotRetryAuthErrors(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		writeAPIError(w, http.StatusUnauthorized, "invalid api key")
	}))
	defer server.Close()

	p := provider.NewOpenAIProvider(fastOptions(server.URL), nil)

	_, err := p.Complete(context.Background(), provider.Request{
		ModelID: "gpt-4o-mini", Prompt: "hi", MaxTokens: 50,
	})
	require.Error(t, err)

	var perr *provider.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, provider.ErrAuthentication, perr.Kind)
	assert.Equal(t, http.StatusUnauthorized, perr.Status)
	assert.Contains(t, perr.Message, "invalid api key")
	assert.Equal(t, int32(1), attempts.Load())
}

func TestCompleteExhaustsRetryBudget(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		writeAPIError(w, http.StatusServiceUnavailable, "overloaded")
	}))
	defer server.Close()

	opts := fastOptions(server.URL)
	opts.MaxRetries = 2
	p := provider.NewOpenAIProvider(opts, nil)

	_, err := p.Complete(context.Background(), provider.Request{
		ModelID: "gpt-4o-mini", Prompt: "hi", MaxTokens: 50,
	})
	require.Error(t, err)

	var perr *provider.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, provider.ErrUnavailable, perr.Kind)
	assert.True(t, perr.Retryable())
	assert.Equal(t, int32(3), attempts.Load(), "budget is initial attempt plus MaxRetries")
}

func TestCompleteAbortsBackoffOnCancel(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		writeAPIError(w, http.StatusTooManyRequests, "rate limit exceeded")
	}))
	defer server.Close()

	opts := fastOptions(server.URL)
	opts.RetryDelay = 5 * time.Second
	p := provider.NewOpenAIProvider(opts, nil)

	ctx, cancel := context.WithCancel(context.Background())
	timer := time.AfterFunc(100*time.Millisecond, cancel)
	defer timer.Stop()

	start := time.Now()
	_, err := p.Complete(ctx, provider.Request{
		ModelID: "gpt-4o-mini", Prompt: "hi", MaxTokens: 50,
	})
	elapsed := time.Since(start)
	require.Error(t, err)

	var perr *provider.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, provider.ErrRateLimit, perr.Kind)
	assert.Equal(t, int32(1), attempts.Load())
	assert.Less(t, elapsed, 2*time.Second, "cancellation must cut the backoff sleep short")
}

func TestCompleteStatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		kind      provider.ErrorKind
		retryable bool
	}{
		{status: http.StatusUnauthorized, kind: provider.ErrAuthentication, retryable: false},
		{status: http.StatusForbidden, kind: provider.ErrAuthentication, retryable: false},
		{status: http.StatusBadRequest, kind: provider.ErrInvalidRequest, retryable: false},
		{status: http.StatusNotFound, kind: provider.ErrNotFound, retryable: false},
		{status: http.StatusTooManyRequests, kind: provider.ErrRateLimit, retryable: true},
		{status: http.StatusInternalServerError, kind: provider.ErrServer, retryable: true},
		{status: http.StatusBadGateway, kind: provider.ErrServer, retryable: true},
		{status: http.StatusServiceUnavailable, kind: provider.ErrUnavailable, retryable: true},
		{status: http.StatusTeapot, kind: provider.ErrUnknown, retryable: false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("status %d", tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeAPIError(w, tt.status, "boom")
			}))
			defer server.Close()

			opts := fastOptions(server.URL)
			opts.MaxRetries = 0
			p := provider.NewOpenAIProvider(opts, nil)

			_, err := p.Complete(context.Background(), provider.Request{
				ModelID: "gpt-4o-mini", Prompt: "hi", MaxTokens: 50,
			})
			require.Error(t, err)

			var perr *provider.Error
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tt.kind, perr.Kind)
			assert.Equal(t, tt.status, perr.Status)
			assert.Equal(t, tt.retryable, perr.Retryable())
		})
	}
}

func TestCompleteTimesOutSlowAttempt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
			writeCompletion(w, "gpt-4o-mini", "too late", "stop", 1, 1)
		}
	}))
	defer server.Close()

	opts := fastOptions(server.URL)
	opts.Timeout = 50 * time.Millisecond
	opts.MaxRetries = 0
	p := provider.NewOpenAIProvider(opts, nil)

	_, err := p.Complete(context.Background(), provider.Request{
		ModelID: "gpt-4o-mini", Prompt: "hi", MaxTokens: 50,
	})
	require.Error(t, err)

	var perr *provider.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, provider.ErrTimeout, perr.Kind)
	assert.True(t, perr.Retryable())
}

func TestCompleteRejectsMalformedSuccessBody(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		fmt.Fprint(w, "not json at all")
	}))
	defer server.Close()

	p := provider.NewOpenAIProvider(fastOptions(server.URL), nil)

	_, err := p.Complete(context.Background(), provider.Request{
		ModelID: "gpt-4o-mini", Prompt: "hi", MaxTokens: 50,
	})
	require.Error(t, err)

	var perr *provider.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, provider.ErrUnknown, perr.Kind)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestCompleteEstimatesCostFromRegistry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeCompletion(w, "gpt-4o-mini-2024-07-18", "ok", "stop", 1000, 1000)
	}))
	defer server.Close()

	p := provider.NewOpenAIProvider(fastOptions(server.URL), routing.NewRegistry(nil))

	resp, err := p.Complete(context.Background(), provider.Request{
		ModelID: "gpt-4o-mini", Prompt: "hi", MaxTokens: 50,
	})
	require.NoError(t, err)

	// Dated server echo still prices against the routed model.
	assert.Equal(t, "gpt-4o-mini-2024-07-18", resp.ModelID)
	assert.InDelta(t, 0.00075, resp.EstimatedCost, 1e-9)
}

func TestCompleteFinishReasonMapping(t *testing.T) {
	tests := []struct {
		raw  string
		want provider.FinishReason
	}{
		{raw: "stop", want: provider.FinishStop},
		{raw: "length", want: provider.FinishLength},
		{raw: "content_filter", want: provider.FinishContentFilter},
		{raw: "tool_calls", want: provider.FinishOther},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeCompletion(w, "gpt-4o-mini", "ok", tt.raw, 1, 1)
			}))
			defer server.Close()

			p := provider.NewOpenAIProvider(fastOptions(server.URL), nil)
			resp, err := p.Complete(context.Background(), provider.Request{
				ModelID: "gpt-4o-mini", Prompt: "hi", MaxTokens: 50,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.FinishReason)
		})
	}
}

func TestAvailable(t *testing.T) {
	t.Run("healthy endpoint", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/models", r.URL.Path)
			assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
			fmt.Fprint(w, `{"object": "list", "data": []}`)
		}))
		defer server.Close()

		p := provider.NewOpenAIProvider(fastOptions(server.URL), nil)
		assert.True(t, p.Available(context.Background()))
	})

	t.Run("failing endpoint", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		p := provider.NewOpenAIProvider(fastOptions(server.URL), nil)
		assert.False(t, p.Available(context.Background()))
	})

	t.Run("unreachable endpoint", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		server.Close()

		p := provider.NewOpenAIProvider(fastOptions(server.URL), nil)
		assert.False(t, p.Available(context.Background()))
	})
}

func TestSupportedModels(t *testing.T) {
	assert.True(t, provider.IsSupported("gpt-4o"))
	assert.True(t, provider.IsSupported("gpt-4o-mini"))
	assert.True(t, provider.IsSupported("gpt-3.5-turbo"))
	assert.False(t, provider.IsSupported("claude-3-opus"))
	assert.False(t, provider.IsSupported(""))

	models := provider.SupportedModels()
	assert.Contains(t, models, "gpt-4o-mini")
	assert.GreaterOrEqual(t, len(models), 3)
}
