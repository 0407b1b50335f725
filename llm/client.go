// Package llm provides a provider-agnostic LLM client with retry and
// fallback support. It drives requests through a model.Registry so
// callers route by reviewer role instead of a hardcoded model name.
package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/repoforge/transformer/metrics"
	"github.com/repoforge/transformer/model"
)

// maxResponseSize limits the LLM response body to prevent memory exhaustion.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// Client is a provider-agnostic LLM client with retry and fallback
// support. It is the concrete implementation of the Model Router.
type Client struct {
	registry    *model.Registry
	httpClient  *http.Client
	retryConfig RetryConfig
	logger      *slog.Logger
}

// Message represents a single chat message.
type Message struct {
	Role    string `json:"role"`    // "system", "user", or "assistant"
	Content string `json:"content"` // Message content
}

// Request defines a single completion request.
type Request struct {
	// Role names the reviewer role asking for a completion (architect,
	// auditor, builder, mediator). The registry resolves this to a
	// backend fallback chain.
	Role string

	// Messages is the chat history to send to the LLM.
	Messages []Message

	// Temperature controls randomness. nil uses backend default, 0 is
	// deterministic.
	Temperature *float64

	// MaxTokens limits response length. 0 uses backend default.
	MaxTokens int

	// JSONMode appends an instruction that the response must be valid
	// JSON. The raw content is still returned unparsed; extracting and
	// parsing it is the caller's job (see ExtractJSON).
	JSONMode bool
}

// TokenUsage is the token consumption reported by a completion.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response contains the LLM completion result.
type Response struct {
	// RequestID identifies this call; useful for correlating debate
	// transcript entries and event-bus payloads back to the request
	// that produced them.
	RequestID string

	// Content is the generated text.
	Content string

	// Model is the backend model that actually served the request.
	Model string

	// Usage contains token consumption metrics.
	Usage TokenUsage

	// FinishReason indicates why generation stopped.
	FinishReason string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithRetryConfig sets the retry configuration.
func WithRetryConfig(cfg RetryConfig) ClientOption {
	return func(client *Client) {
		client.retryConfig = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(client *Client) {
		client.logger = logger
	}
}

// NewClient creates a new Model Router client over the given registry.
func NewClient(registry *model.Registry, opts ...ClientOption) *Client {
	c := &Client{
		registry:    registry,
		retryConfig: DefaultRetryConfig(),
		httpClient: &http.Client{
			Timeout: 180 * time.Second, // allow time for LLM responses
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// jsonModeSuffix is appended to the system prompt when Request.JSONMode is
// set.
const jsonModeSuffix = "Respond with valid JSON only."

// Complete sends a completion request, trying the role's primary backend
// then each fallback backend in declared order. The router never retries
// the same backend implicitly beyond RetryConfig; it gives up on a
// backend and moves to the next only after its own retries (if any) are
// exhausted. It returns an error wrapping the last attempt's cause only
// after every backend in the chain has failed.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	if req.Role == "" {
		return nil, fmt.Errorf("role is required")
	}
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("at least one message is required")
	}

	requestID := uuid.New().String()

	if req.JSONMode {
		req = withJSONModeSuffix(req)
	}

	role := model.ParseRole(req.Role)
	if role == "" {
		return nil, fmt.Errorf("unknown role %q", req.Role)
	}
	chain := c.registry.GetAvailableFallbackChain(role)
	if len(chain) == 0 {
		return nil, fmt.Errorf("no backends configured for role %s", req.Role)
	}

	var lastErr error
	for i, backendName := range chain {
		backend := c.registry.GetBackend(backendName)
		if backend == nil {
			c.logger.Debug("no backend config, skipping", "backend", backendName)
			continue
		}

		if !c.registry.IsEndpointAvailable(backendName) {
			c.logger.Debug("backend circuit open, skipping", "backend", backendName)
			continue
		}

		if i > 0 {
			metrics.RecordRouterFallback(req.Role, backendName)
		}

		resp, err := c.tryBackendWithRetry(ctx, backend, backendName, req)
		if err == nil {
			resp.RequestID = requestID
			return resp, nil
		}

		lastErr = err
		c.logger.Warn("backend failed, trying fallback",
			"backend", backendName,
			"provider", backend.Provider,
			"error", err)

		if IsFatal(err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("all providers failed for role %s: %w", req.Role, lastErr)
}

// withJSONModeSuffix appends the JSON-only instruction to the system
// message, adding one if none is present.
func withJSONModeSuffix(req Request) Request {
	out := req
	out.Messages = append([]Message(nil), req.Messages...)

	for i, msg := range out.Messages {
		if msg.Role == "system" {
			out.Messages[i].Content = msg.Content + " " + jsonModeSuffix
			return out
		}
	}

	out.Messages = append([]Message{{Role: "system", Content: jsonModeSuffix}}, out.Messages...)
	return out
}

// tryBackendWithRetry attempts a request against one backend with retry,
// marking the backend's health on terminal success or failure.
func (c *Client) tryBackendWithRetry(ctx context.Context, ep *model.BackendConfig, backendName string, req Request) (*Response, error) {
	var lastErr error

	for attempt := 1; attempt <= c.retryConfig.MaxAttempts; attempt++ {
		resp, err := c.doRequest(ctx, ep, req)
		if err == nil {
			c.registry.MarkEndpointSuccess(backendName)
			return resp, nil
		}

		lastErr = err

		if IsFatal(err) {
			// Fatal errors (bad auth, malformed request) indicate a
			// configuration problem, not a sick backend.
			return nil, err
		}

		if attempt < c.retryConfig.MaxAttempts {
			backoff := c.calculateBackoff(attempt)
			c.logger.Debug("request failed, retrying",
				"attempt", attempt,
				"max_attempts", c.retryConfig.MaxAttempts,
				"backoff", backoff,
				"error", err)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	c.registry.MarkEndpointFailure(backendName)
	return nil, lastErr
}

// calculateBackoff computes exponential backoff with +/-25% jitter to
// avoid synchronized retries across concurrent reviewers.
func (c *Client) calculateBackoff(attempt int) time.Duration {
	multiplier := 1.0
	for i := 1; i < attempt; i++ {
		multiplier *= c.retryConfig.BackoffMultiplier
	}

	backoff := time.Duration(float64(c.retryConfig.BackoffBase) * multiplier)
	if backoff > c.retryConfig.MaxBackoff {
		backoff = c.retryConfig.MaxBackoff
	}

	jitter := float64(backoff) * 0.25 * (rand.Float64()*2 - 1)
	return backoff + time.Duration(jitter)
}

// doRequest executes a single HTTP request to the LLM backend.
func (c *Client) doRequest(ctx context.Context, ep *model.BackendConfig, req Request) (*Response, error) {
	provider := GetProvider(ep.Provider)
	if provider == nil {
		return nil, NewFatalError(fmt.Errorf("unknown provider: %s", ep.Provider))
	}

	url := provider.BuildURL(ep.URL)

	body, err := provider.BuildRequestBody(ep.Model, req.Messages, req.Temperature, req.MaxTokens)
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("build request body: %w", err))
	}

	c.logger.Debug("sending LLM request",
		"provider", ep.Provider,
		"model", ep.Model,
		"url", url,
		"messages", len(req.Messages))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, NewFatalError(fmt.Errorf("create HTTP request: %w", err))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	provider.SetHeaders(httpReq)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, NewTransientError(fmt.Errorf("HTTP request failed: %w", err))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, NewTransientError(fmt.Errorf("read response body: %w", err))
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError(httpResp.StatusCode, respBody)
	}

	return provider.ParseResponse(respBody, ep.Model)
}

// classifyHTTPError determines if an HTTP error is transient or fatal.
func classifyHTTPError(statusCode int, body []byte) error {
	bodyStr := string(body)
	if len(bodyStr) > 200 {
		bodyStr = bodyStr[:200] + "..."
	}

	err := fmt.Errorf("LLM API error (status %d): %s", statusCode, bodyStr)

	switch {
	case statusCode == http.StatusTooManyRequests:
		return NewTransientError(err)
	case statusCode == http.StatusServiceUnavailable,
		statusCode == http.StatusBadGateway,
		statusCode == http.StatusGatewayTimeout:
		return NewTransientError(err)
	case statusCode >= 500:
		return NewTransientError(err)
	case statusCode == http.StatusUnauthorized,
		statusCode == http.StatusForbidden:
		return NewFatalError(err)
	case statusCode == http.StatusBadRequest:
		return NewFatalError(err)
	default:
		return NewFatalError(err)
	}
}
