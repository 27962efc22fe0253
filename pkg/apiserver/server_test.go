package apiserver_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdkashifakram/LLMGuardian/pkg/apiserver"
	"github.com/mdkashifakram/LLMGuardian/pkg/audit"
	"github.com/mdkashifakram/LLMGuardian/pkg/cache"
	"github.com/mdkashifakram/LLMGuardian/pkg/optimizer"
	"github.com/mdkashifakram/LLMGuardian/pkg/pii"
	"github.com/mdkashifakram/LLMGuardian/pkg/pipeline"
	"github.com/mdkashifakram/LLMGuardian/pkg/provider"
	"github.com/mdkashifakram/LLMGuardian/pkg/routing"
)

// stubProvider answers completions locally and records what it was asked.
type stubProvider struct {
	mu        sync.Mutex
	reqs      []provider.Request
	reply     func(req provider.Request) (*provider.Response, error)
	available bool
}

func (p *stubProvider) Complete(_ context.Context, req provider.Request) (*provider.Response, error) {
	p.mu.Lock()
	p.reqs = append(p.reqs, req)
	reply := p.reply
	p.mu.Unlock()

	if reply != nil {
		return reply(req)
	}
	return &provider.Response{
		Text:         "Hi! How can I help you today?",
		ModelID:      req.ModelID,
		InputTokens:  10,
		OutputTokens: 5,
		FinishReason: provider.FinishStop,
		Timestamp:    time.Now(),
	}, nil
}

func (p *stubProvider) Available(context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.available
}

func (p *stubProvider) setAvailable(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.available = v
}

func (p *stubProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.reqs)
}

func (p *stubProvider) requests() []provider.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]provider.Request(nil), p.reqs...)
}

type testServer struct {
	handler http.Handler
	stub    *stubProvider
	store   *audit.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	registry, err := pii.NewRegistry(nil, nil)
	require.NoError(t, err)

	store, err := audit.OpenStore(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	sink := audit.NewSink(store, audit.SinkOptions{
		Enabled:       true,
		Level:         audit.LevelStandard,
		SweepInterval: time.Hour,
	})
	t.Cleanup(func() {
		sink.Close()
		store.Close()
	})

	manager := cache.NewManager(
		cache.NewKeyGenerator(""),
		cache.NewMemoryTier(128, time.Minute),
		cache.NewRedisTier(cache.RedisTierOptions{}),
	)
	t.Cleanup(func() { manager.Close() })

	models := routing.NewRegistry(nil)
	stub := &stubProvider{available: true}
	processor := pipeline.NewProcessor(pipeline.Options{
		Detector: pii.NewDetector(registry),
		Redactor: pii.NewRedactor(pii.TokenModeRandom, 0),
		Restorer: pii.NewRestorer(),
		Optimizer: optimizer.New(optimizer.Config{
			Enabled:         true,
			MinPromptLength: 50,
			TargetReduction: 30,
			Strategies: optimizer.Strategies{
				RemoveRedundancy:   true,
				RemoveFillerWords:  true,
				SimplifyLanguage:   true,
				CompressWhitespace: true,
			},
		}),
		Router:   routing.NewRouter(models, routing.StrategyComplexity),
		Cache:    manager,
		Provider: stub,
		Audit:    sink,
	})

	server := apiserver.New(apiserver.Options{
		Processor: processor,
		Cache:     manager,
		Audit:     store,
		Models:    models,
		Provider:  stub,
	})

	return &testServer{handler: server.Handler(), stub: stub, store: store}
}

func (ts *testServer) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, reader)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) complete(t *testing.T, body any) (int, apiserver.CompletionResponse) {
	t.Helper()

	rec := ts.do(t, http.MethodPost, "/api/v1/completions", body)
	var resp apiserver.CompletionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec.Code, resp
}

func decodeMap(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return m
}

func TestCompletionSuccess(t *testing.T) {
	ts := newTestServer(t)

	status, resp := ts.complete(t, map[string]any{"query": "Hello, world!"})

	require.Equal(t, http.StatusOK, status)
	require.True(t, resp.Success)
	require.Empty(t, resp.Error)

	_, err := uuid.Parse(resp.RequestID)
	require.NoError(t, err)
	_, err = time.Parse(time.RFC3339, resp.Timestamp)
	assert.NoError(t, err)

	assert.Equal(t, "Hi! How can I help you today?", resp.Text)

	require.NotNil(t, resp.Metadata)
	assert.Equal(t, "gpt-4o-mini", resp.Metadata.ModelUsed)
	assert.Equal(t, "simple", resp.Metadata.ComplexityLevel)
	assert.Equal(t, 10, resp.Metadata.InputTokens)
	assert.Equal(t, 5, resp.Metadata.OutputTokens)
	assert.Equal(t, 15, resp.Metadata.TotalTokens)
	assert.False(t, resp.Metadata.FromCache)
	assert.False(t, resp.Metadata.PIIDetected)
	assert.False(t, resp.Metadata.OptimizationApplied)

	reqs := ts.stub.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, 1000, reqs[0].MaxTokens)
	assert.Nil(t, reqs[0].Temperature)
	assert.Nil(t, reqs[0].TopP)
}

func TestCompletionValidation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{name: "missing query", body: `{}`, wantErr: "query must not be empty"},
		{name: "empty query", body: `{"query":""}`, wantErr: "query must not be empty"},
		{name: "whitespace query", body: `{"query":"   "}`, wantErr: "query must not be empty"},
		{name: "maxTokens too small", body: `{"query":"hi","maxTokens":0}`, wantErr: "maxTokens must be between 1 and 4096"},
		{name: "maxTokens too large", body: `{"query":"hi","maxTokens":5000}`, wantErr: "maxTokens must be between 1 and 4096"},
		{name: "temperature too high", body: `{"query":"hi","temperature":2.5}`, wantErr: "temperature must be between 0.0 and 2.0"},
		{name: "temperature negative", body: `{"query":"hi","temperature":-0.1}`, wantErr: "temperature must be between 0.0 and 2.0"},
		{name: "topP out of range", body: `{"query":"hi","topP":1.5}`, wantErr: "topP must be between 0.0 and 1.0"},
		{name: "unknown strategy", body: `{"query":"hi","routingStrategy":"fastest"}`, wantErr: "unknown routing strategy"},
		{name: "malformed json", body: `{"query":`, wantErr: "invalid request body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)

			status, resp := ts.complete(t, tt.body)

			assert.Equal(t, http.StatusBadRequest, status)
			assert.False(t, resp.Success)
			assert.Contains(t, resp.Error, tt.wantErr)
			assert.Nil(t, resp.Metadata)
			assert.Zero(t, ts.stub.callCount(), "rejected requests must not reach the provider")
		})
	}
}

func TestCompletionCacheFlow(t *testing.T) {
	ts := newTestServer(t)
	body := map[string]any{"query": "Repeat this query."}

	status, first := ts.complete(t, body)
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, first.Metadata)
	assert.False(t, first.Metadata.FromCache)

	status, second := ts.complete(t, body)
	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, second.Metadata)
	assert.True(t, second.Metadata.FromCache)
	assert.Equal(t, first.Text, second.Text)
	assert.Zero(t, second.Metadata.TotalTokens)

	assert.Equal(t, 1, ts.stub.callCount())
}

func TestCompletionPIIFlow(t *testing.T) {
	ts := newTestServer(t)
	ts.stub.reply = func(req provider.Request) (*provider.Response, error) {
		return &provider.Response{
			Text:         req.Prompt,
			ModelID:      req.ModelID,
			InputTokens:  12,
			OutputTokens: 12,
			FinishReason: provider.FinishStop,
			Timestamp:    time.Now(),
		}, nil
	}

	query := "Contact me at john.doe@example.com regarding the project."
	status, resp := ts.complete(t, map[string]any{"query": query})

	require.Equal(t, http.StatusOK, status)
	require.True(t, resp.Success)
	require.NotNil(t, resp.Metadata)
	assert.True(t, resp.Metadata.PIIDetected)
	assert.Equal(t, 1, resp.Metadata.PIICount)
	assert.Equal(t, query, resp.Text)

	reqs := ts.stub.requests()
	require.Len(t, reqs, 1)
	assert.NotContains(t, reqs[0].Prompt, "john.doe@example.com")
	assert.Contains(t, reqs[0].Prompt, "[EMAIL_TOKEN_")
}

func TestCompletionProviderFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.stub.reply = func(provider.Request) (*provider.Response, error) {
		return nil, &provider.Error{Kind: provider.ErrRateLimit, Status: 429, Message: "rate limit exceeded"}
	}

	status, resp := ts.complete(t, map[string]any{"query": "Answer the question."})

	assert.Equal(t, http.StatusInternalServerError, status)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "rate limit exceeded")
	assert.Empty(t, resp.Text)
	assert.Nil(t, resp.Metadata)

	_, err := uuid.Parse(resp.RequestID)
	assert.NoError(t, err)
}

func TestCompletionRequestOptions(t *testing.T) {
	ts := newTestServer(t)

	status, resp := ts.complete(t, map[string]any{
		"query":       "Hello, world!",
		"maxTokens":   256,
		"temperature": 0.2,
		"topP":        0.5,
		"model":       "gpt-4o",
	})

	require.Equal(t, http.StatusOK, status)
	require.NotNil(t, resp.Metadata)
	assert.Equal(t, "gpt-4o", resp.Metadata.ModelUsed)

	reqs := ts.stub.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "gpt-4o", reqs[0].ModelID)
	assert.Equal(t, 256, reqs[0].MaxTokens)
	require.NotNil(t, reqs[0].Temperature)
	assert.InDelta(t, 0.2, *reqs[0].Temperature, 1e-9)
	require.NotNil(t, reqs[0].TopP)
	assert.InDelta(t, 0.5, *reqs[0].TopP, 1e-9)
}

func TestCompletionDisableFlags(t *testing.T) {
	ts := newTestServer(t)
	body := map[string]any{
		"query":              "Repeat this query.",
		"enableCache":        false,
		"enableOptimization": false,
	}

	_, first := ts.complete(t, body)
	_, second := ts.complete(t, body)

	require.NotNil(t, first.Metadata)
	require.NotNil(t, second.Metadata)
	assert.False(t, first.Metadata.FromCache)
	assert.False(t, second.Metadata.FromCache)
	assert.False(t, first.Metadata.OptimizationApplied)
	assert.Equal(t, 2, ts.stub.callCount())
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/health", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, map[string]interface{}{
		"status":  "UP",
		"service": "LLMGuardian",
		"version": "1.0.0",
	}, decodeMap(t, rec))
}

func TestCacheAnalytics(t *testing.T) {
	ts := newTestServer(t)
	body := map[string]any{"query": "Repeat this query."}
	ts.complete(t, body)
	ts.complete(t, body)

	rec := ts.do(t, http.MethodGet, "/api/v1/analytics/cache", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	m := decodeMap(t, rec)
	assert.EqualValues(t, 1, m["l1Hits"])
	assert.EqualValues(t, 1, m["l1Misses"])
	assert.InDelta(t, 50.0, m["l1HitRate"], 0.01)
	assert.EqualValues(t, 1, m["l1Size"])
	assert.EqualValues(t, 0, m["l2Hits"])
	assert.EqualValues(t, 0, m["l2Misses"])
	assert.EqualValues(t, 1, m["totalHits"])
	assert.EqualValues(t, 1, m["totalMisses"])
	assert.InDelta(t, 50.0, m["overallHitRate"], 0.01)
}

func TestPIIAnalytics(t *testing.T) {
	t.Run("rejects bad day windows", func(t *testing.T) {
		ts := newTestServer(t)
		for _, target := range []string{
			"/api/v1/analytics/pii?days=abc",
			"/api/v1/analytics/pii?days=0",
			"/api/v1/analytics/pii?days=-3",
		} {
			rec := ts.do(t, http.MethodGet, target, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code, target)
			assert.Contains(t, decodeMap(t, rec), "error")
		}
	})

	t.Run("empty store reports zeros", func(t *testing.T) {
		ts := newTestServer(t)

		rec := ts.do(t, http.MethodGet, "/api/v1/analytics/pii", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		m := decodeMap(t, rec)
		assert.EqualValues(t, 0, m["totalDetections"])
		assert.EqualValues(t, 30, m["periodDays"])
		assert.Empty(t, m["detectionsByType"])
	})

	t.Run("counts detections in the window", func(t *testing.T) {
		ts := newTestServer(t)
		status, _ := ts.complete(t, map[string]any{
			"query": "Contact me at john.doe@example.com regarding the project.",
		})
		require.Equal(t, http.StatusOK, status)

		// The audit sink persists asynchronously.
		require.Eventually(t, func() bool {
			rec := ts.do(t, http.MethodGet, "/api/v1/analytics/pii?days=7", nil)
			if rec.Code != http.StatusOK {
				return false
			}
			var m map[string]interface{}
			if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
				return false
			}
			total, ok := m["totalDetections"].(float64)
			return ok && total == 1
		}, 2*time.Second, 20*time.Millisecond, "detection never appeared in analytics")

		rec := ts.do(t, http.MethodGet, "/api/v1/analytics/pii?days=7", nil)
		m := decodeMap(t, rec)
		assert.EqualValues(t, 7, m["periodDays"])
		byType, ok := m["detectionsByType"].(map[string]interface{})
		require.True(t, ok)
		assert.EqualValues(t, 1, byType["EMAIL"])
	})
}

func TestModelAnalytics(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/analytics/models", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	m := decodeMap(t, rec)
	assert.EqualValues(t, 3, m["totalModels"])
	assert.EqualValues(t, 3, m["enabledModels"])

	models, ok := m["models"].(map[string]interface{})
	require.True(t, ok)
	require.Contains(t, models, "gpt-4o")
	gpt4o, ok := models["gpt-4o"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "GPT-4o", gpt4o["displayName"])
	assert.Equal(t, "OpenAI", gpt4o["provider"])
	assert.Equal(t, "advanced", gpt4o["capability"])
	assert.InDelta(t, 0.0025, gpt4o["inputCost"], 1e-9)
	assert.InDelta(t, 0.01, gpt4o["outputCost"], 1e-9)
	assert.EqualValues(t, 128000, gpt4o["maxTokens"])
	assert.Equal(t, true, gpt4o["enabled"])
}

func TestAnalyticsSummary(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/analytics/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	m := decodeMap(t, rec)
	assert.Equal(t, "HEALTHY", m["status"])
	assert.Equal(t, "1.0.0", m["version"])
	assert.EqualValues(t, 0, m["cacheHitRate"])
	assert.EqualValues(t, 0, m["totalCacheHits"])
	assert.EqualValues(t, 0, m["totalPIIDetections"])
	assert.EqualValues(t, 3, m["availableModels"])
}

func TestDetailedHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/analytics/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	m := decodeMap(t, rec)
	assert.Equal(t, "UP", m["status"])
	assert.Equal(t, "LLMGuardian", m["service"])
	components, ok := m["components"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "UP", components["cache"])
	assert.Equal(t, "UP", components["models"])

	ts.stub.setAvailable(false)

	rec = ts.do(t, http.MethodGet, "/api/v1/analytics/health", nil)
	m = decodeMap(t, rec)
	assert.Equal(t, "DEGRADED", m["status"])
	components, ok = m["components"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "UP", components["cache"])
	assert.Equal(t, "DOWN", components["models"])
}

func TestCacheClear(t *testing.T) {
	ts := newTestServer(t)
	body := map[string]any{"query": "Repeat this query."}
	ts.complete(t, body)
	_, second := ts.complete(t, body)
	require.NotNil(t, second.Metadata)
	require.True(t, second.Metadata.FromCache)

	rec := ts.do(t, http.MethodPost, "/api/v1/analytics/cache/clear", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]interface{}{
		"status":  "success",
		"message": "Cache cleared successfully",
	}, decodeMap(t, rec))

	_, third := ts.complete(t, body)
	require.NotNil(t, third.Metadata)
	assert.False(t, third.Metadata.FromCache)
	assert.Equal(t, 2, ts.stub.callCount())
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/completions", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/health", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
