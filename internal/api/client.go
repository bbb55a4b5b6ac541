// Package api talks to OpenAI-compatible chat completion endpoints with
// shared per-endpoint rate limiting and retries.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lamim/quizforge/internal/config"
	"github.com/lamim/quizforge/internal/metrics"
)

const (
	// DefaultHTTPTimeout bounds one HTTP attempt when the model sets none
	DefaultHTTPTimeout = 120 * time.Second
	// DefaultMaxRetries is used when the model sets none
	DefaultMaxRetries = 3
	// DefaultBaseRetryDelay is the unit of exponential backoff
	DefaultBaseRetryDelay = 2 * time.Second
	// maxRetryAfter caps a server-provided Retry-After
	maxRetryAfter = 60 * time.Second
	// maxErrorBody is how much of a non-JSON error body is kept in the message
	maxErrorBody = 512
)

// ErrNoChoices is returned when a 200 response carries no completion
var ErrNoChoices = errors.New("no choices returned in response")

// Client sends chat completions. It is safe for concurrent use.
type Client struct {
	httpClient     *http.Client
	limiters       *RateLimiterPool
	logger         *slog.Logger
	metrics        *metrics.Collector
	baseRetryDelay time.Duration
}

// NewClient creates a client. collector may be nil.
func NewClient(logger *slog.Logger, collector *metrics.Collector) *Client {
	return &Client{
		// Per-attempt deadlines come from the model config
		httpClient:     &http.Client{},
		limiters:       NewRateLimiterPool(logger),
		logger:         logger,
		metrics:        collector,
		baseRetryDelay: DefaultBaseRetryDelay,
	}
}

// Complete sends messages to the model and returns the first choice.
// Rate limit waits count against ctx; each HTTP attempt additionally gets
// the model's http_timeout_seconds.
func (c *Client) Complete(ctx context.Context, model config.ModelConfig, apiKey string, messages []Message) (Completion, error) {
	endpoint := endpointKey(model)

	waitStart := time.Now()
	if err := c.limiters.Wait(ctx, endpoint, model.RateLimitPerMinute); err != nil {
		return Completion{}, fmt.Errorf("rate limiter wait failed: %w", err)
	}
	c.metrics.RecordRateLimiterWait(model.ModelName, time.Since(waitStart))

	body, err := json.Marshal(newChatRequest(model, messages))
	if err != nil {
		return Completion{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	maxRetries := DefaultMaxRetries
	if model.MaxRetries > 0 {
		maxRetries = model.MaxRetries
	}
	timeout := DefaultHTTPTimeout
	if model.HTTPTimeoutSeconds > 0 {
		timeout = time.Duration(model.HTTPTimeoutSeconds) * time.Second
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay(attempt, lastErr)
			c.logger.Warn("Retrying API request",
				"attempt", attempt,
				"max_retries", maxRetries,
				"backoff", delay,
				"model", model.ModelName,
				"error", lastErr)

			select {
			case <-ctx.Done():
				return Completion{}, ctx.Err()
			case <-time.After(delay):
			}
		}

		start := time.Now()
		out, err := c.send(ctx, model.BaseURL, apiKey, body, timeout)
		c.metrics.RecordAPIRequest(model.ModelName, time.Since(start), err == nil)
		if err == nil {
			c.metrics.RecordTokens(model.ModelName, out.Usage.PromptTokens, out.Usage.CompletionTokens)
			return out, nil
		}
		if ctx.Err() != nil {
			return Completion{}, ctx.Err()
		}

		lastErr = err
		if !IsRetryable(err) {
			return Completion{}, err
		}
	}

	return Completion{}, fmt.Errorf("max retries exceeded: %w", lastErr)
}

func newChatRequest(model config.ModelConfig, messages []Message) chatRequest {
	req := chatRequest{
		Model:       model.ModelName,
		Messages:    messages,
		Temperature: model.Temperature,
		TopP:        model.TopP,
		MaxTokens:   model.MaxOutputTokens,
	}
	if model.UseJSONMode {
		req.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	return req
}

// send performs one HTTP attempt
func (c *Client) send(ctx context.Context, baseURL, apiKey string, body []byte, timeout time.Duration) (Completion, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := strings.TrimRight(baseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Completion{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	}
	c.logger.Debug("API request", "url", url, "has_key", apiKey != "")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Transport failures and per-attempt timeouts are worth another try
		return Completion{}, &APIError{Message: fmt.Sprintf("request failed: %v", err), Retryable: true}
	}
	defer func() {
		if err := httpResp.Body.Close(); err != nil {
			c.logger.Warn("Failed to close response body", "error", err)
		}
	}()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return Completion{}, &APIError{Message: fmt.Sprintf("failed to read response: %v", err), Retryable: true}
	}

	if httpResp.StatusCode != http.StatusOK {
		return Completion{}, newAPIError(httpResp, respBody)
	}

	var resp chatResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return Completion{}, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Completion{}, ErrNoChoices
	}

	return Completion{
		Content:      resp.Choices[0].Message.Content,
		FinishReason: resp.Choices[0].FinishReason,
		Usage:        resp.Usage,
	}, nil
}

// retryDelay grows 2^n for server errors and 3^n for rate limits, with 10% jitter.
// A Retry-After from the server wins when present.
func (c *Client) retryDelay(attempt int, lastErr error) time.Duration {
	var apiErr *APIError
	if errors.As(lastErr, &apiErr) && apiErr.RetryAfter > 0 {
		return min(apiErr.RetryAfter, maxRetryAfter)
	}

	backoff := time.Duration(math.Pow(2, float64(attempt-1))) * c.baseRetryDelay
	if IsRateLimited(lastErr) {
		backoff = time.Duration(math.Pow(3, float64(attempt))) * c.baseRetryDelay
	}
	jitter := time.Duration(float64(backoff) * 0.1 * (2*rand.Float64() - 1))
	return backoff + jitter
}

func endpointKey(model config.ModelConfig) string {
	return strings.TrimRight(model.BaseURL, "/") + ":" + model.ModelName
}

// APIError is a failed exchange with the endpoint
type APIError struct {
	Message    string
	StatusCode int // 0 for transport failures
	Type       string
	RetryAfter time.Duration
	Retryable  bool
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error: %s", e.Message)
}

func newAPIError(resp *http.Response, body []byte) *APIError {
	e := &APIError{
		StatusCode: resp.StatusCode,
		Retryable:  retryableStatus(resp.StatusCode),
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.Error.Message != "" {
		e.Message = eb.Error.Message
		e.Type = eb.Error.Type
		return e
	}

	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody]
	}
	e.Message = fmt.Sprintf("request failed with status %d: %s", resp.StatusCode, msg)
	return e
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// parseRetryAfter accepts the delay-seconds form only
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// IsRetryable reports whether err is an APIError worth retrying
func IsRetryable(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Retryable
}

// IsRateLimited reports whether err is a 429 from the endpoint
func IsRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests
}
