package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"golang.org/x/time/rate"

	"github.com/mdkashifakram/LLMGuardian/pkg/observability/logging"
	"github.com/mdkashifakram/LLMGuardian/pkg/observability/metrics"
	"github.com/mdkashifakram/LLMGuardian/pkg/routing"
)

// Defaults for the OpenAI client.
const (
	DefaultBaseURL        = "https://api.openai.com"
	DefaultTimeout        = 30 * time.Second
	DefaultRetryDelay     = 1 * time.Second
	defaultMaxIdle        = 50
	defaultMaxIdlePerHost = 20
	probeTimeout          = 5 * time.Second
)

// Options configures the OpenAI client.
type Options struct {
	APIKey         string
	OrganizationID string
	BaseURL        string
	// Timeout bounds each attempt, not the whole retry loop.
	Timeout    time.Duration
	MaxRetries int
	// RetryDelay is the backoff base; attempt k sleeps base*2^k plus a
	// uniform jitter in [0, base).
	RetryDelay time.Duration
	// MaxRequestsPerMinute throttles outbound calls; zero means unlimited.
	MaxRequestsPerMinute int
	MaxIdleConns         int
	MaxIdleConnsPerHost  int
}

// OpenAIProvider talks to the chat completions API over its own HTTP client.
type OpenAIProvider struct {
	httpClient     *http.Client
	completionsURL string
	modelsURL      string
	apiKey         string
	orgID          string
	timeout        time.Duration
	maxRetries     int
	retryDelay     time.Duration
	limiter        *rate.Limiter
	registry       *routing.Registry
}

// NewOpenAIProvider builds the client. The registry supplies per-model rates
// for cost estimation and may be nil.
func NewOpenAIProvider(opts Options, registry *routing.Registry) *OpenAIProvider {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = defaultMaxIdle
	}
	if opts.MaxIdleConnsPerHost <= 0 {
		opts.MaxIdleConnsPerHost = defaultMaxIdlePerHost
	}
	if opts.APIKey == "" {
		logging.Warnf("openai api key is empty; upstream calls will fail authentication")
	}

	var limiter *rate.Limiter
	if opts.MaxRequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(opts.MaxRequestsPerMinute)/60.0), opts.MaxRequestsPerMinute)
	}

	base := strings.TrimSuffix(opts.BaseURL, "/")
	return &OpenAIProvider{
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        opts.MaxIdleConns,
				MaxIdleConnsPerHost: opts.MaxIdleConnsPerHost,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		completionsURL: base + "/v1/chat/completions",
		modelsURL:      base + "/v1/models",
		apiKey:         opts.APIKey,
		orgID:          opts.OrganizationID,
		timeout:        opts.Timeout,
		maxRetries:     opts.MaxRetries,
		retryDelay:     opts.RetryDelay,
		limiter:        limiter,
		registry:       registry,
	}
}

// Complete runs one completion with at most maxRetries+1 attempts.
func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	var lastErr *Error
	for attempt := 0; ; attempt++ {
		resp, err := p.attempt(ctx, req)
		if err == nil {
			metrics.RecordProviderAttempt(req.ModelID, "success")
			return resp, nil
		}

		lastErr = asError(err)
		metrics.RecordProviderAttempt(req.ModelID, string(lastErr.Kind))

		if !lastErr.Retryable() || attempt >= p.maxRetries || ctx.Err() != nil {
			return nil, lastErr
		}
		logging.Warnf("provider attempt %d/%d failed (%s), backing off: %v",
			attempt+1, p.maxRetries+1, lastErr.Kind, lastErr)
		if err := p.backoff(ctx, attempt); err != nil {
			return nil, lastErr
		}
	}
}

// Available probes the models endpoint.
func (p *OpenAIProvider) Available(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(probeCtx, http.MethodGet, p.modelsURL, nil)
	if err != nil {
		return false
	}
	p.setAuthHeaders(httpReq)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		logging.Debugf("provider availability probe failed: %v", err)
		return false
	}
	defer httpResp.Body.Close()
	_, _ = io.Copy(io.Discard, httpResp.Body)
	return httpResp.StatusCode == http.StatusOK
}

func (p *OpenAIProvider) attempt(ctx context.Context, req Request) (*Response, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	body, err := encodeRequest(req)
	if err != nil {
		return nil, &Error{Kind: ErrInvalidRequest, Message: "encode request: " + err.Error(), Err: err}
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, p.completionsURL, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: ErrInvalidRequest, Message: err.Error(), Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	p.setAuthHeaders(httpReq)

	start := time.Now()
	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, &Error{
			Kind:    kindForStatus(httpResp.StatusCode),
			Status:  httpResp.StatusCode,
			Message: apiErrorMessage(respBody, httpResp.StatusCode),
		}
	}

	var completion openai.ChatCompletion
	if err := json.Unmarshal(respBody, &completion); err != nil {
		return nil, &Error{Kind: ErrUnknown, Message: "parse response: " + err.Error(), Err: err}
	}

	elapsed := time.Since(start)
	resp := p.buildResponse(req, &completion, elapsed)

	metrics.RecordProviderLatency(resp.ModelID, elapsed.Seconds())
	metrics.RecordModelTokens(resp.ModelID, float64(resp.InputTokens), float64(resp.OutputTokens))
	if resp.EstimatedCost > 0 {
		metrics.RecordModelCost(resp.ModelID, "usd", resp.EstimatedCost)
	}
	return resp, nil
}

func (p *OpenAIProvider) setAuthHeaders(httpReq *http.Request) {
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	if p.orgID != "" {
		httpReq.Header.Set("OpenAI-Organization", p.orgID)
	}
}

// backoff sleeps base*2^attempt plus jitter, aborting early when the
// context dies.
func (p *OpenAIProvider) backoff(ctx context.Context, attempt int) error {
	delay := p.retryDelay * (1 << attempt)
	if p.retryDelay > 0 {
		delay += time.Duration(rand.Int63n(int64(p.retryDelay)))
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (p *OpenAIProvider) buildResponse(req Request, completion *openai.ChatCompletion, elapsed time.Duration) *Response {
	resp := &Response{
		ModelID:       completion.Model,
		InputTokens:   int(completion.Usage.PromptTokens),
		OutputTokens:  int(completion.Usage.CompletionTokens),
		FinishReason:  FinishOther,
		LatencyMillis: elapsed.Milliseconds(),
		Timestamp:     time.Now(),
	}
	if resp.ModelID == "" {
		resp.ModelID = req.ModelID
	}
	if len(completion.Choices) > 0 {
		choice := completion.Choices[0]
		resp.Text = choice.Message.Content
		resp.FinishReason = mapFinishReason(choice.FinishReason)
	}
	// Rates are keyed by the routed id; the response model echo may carry a
	// dated variant that is not in the registry.
	resp.EstimatedCost = p.estimateCost(req.ModelID, resp.InputTokens, resp.OutputTokens)
	return resp
}

func (p *OpenAIProvider) estimateCost(modelID string, inputTokens, outputTokens int) float64 {
	if p.registry == nil {
		return 0
	}
	profile, ok := p.registry.Lookup(modelID)
	if !ok {
		return 0
	}
	return profile.EstimateCost(inputTokens, outputTokens)
}

func validateRequest(req Request) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return &Error{Kind: ErrInvalidRequest, Message: "prompt must not be empty"}
	}
	if req.MaxTokens <= 0 {
		return &Error{Kind: ErrInvalidRequest, Message: fmt.Sprintf("maxTokens must be positive, got %d", req.MaxTokens)}
	}
	if !IsSupported(req.ModelID) {
		return &Error{Kind: ErrInvalidRequest, Message: fmt.Sprintf("unsupported model %q", req.ModelID)}
	}
	return nil
}

func encodeRequest(req Request) ([]byte, error) {
	params := openai.ChatCompletionNewParams{
		Model:     req.ModelID,
		Messages:  []openai.ChatCompletionMessageParamUnion{openai.UserMessage(req.Prompt)},
		MaxTokens: openai.Int(int64(req.MaxTokens)),
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.TopP != nil {
		params.TopP = openai.Float(*req.TopP)
	}
	if req.N > 0 {
		params.N = openai.Int(int64(req.N))
	}

	body, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	if len(req.StopSequences) > 0 {
		// Stop is a string-or-array union in the SDK; setting it on the
		// marshaled body keeps the wire shape independent of the union
		// internals.
		body, err = setStopParam(body, req.StopSequences)
	}
	return body, err
}

func setStopParam(body []byte, stop []string) ([]byte, error) {
	var reqMap map[string]interface{}
	if err := json.Unmarshal(body, &reqMap); err != nil {
		return nil, err
	}
	reqMap["stop"] = stop
	return json.Marshal(reqMap)
}

func mapFinishReason(reason string) FinishReason {
	switch reason {
	case "stop":
		return FinishStop
	case "length":
		return FinishLength
	case "content_filter":
		return FinishContentFilter
	default:
		return FinishOther
	}
}

func apiErrorMessage(body []byte, status int) string {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	return http.StatusText(status)
}
