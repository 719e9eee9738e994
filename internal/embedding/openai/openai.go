// Package openai is an embeddings client for OpenAI-compatible endpoints,
// including Ollama's native response shape.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"courserag/internal/logger"
	"courserag/internal/resilience"
)

// Client is an OpenAI-compatible embeddings client implementing the Embedder interface.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	dimension  atomic.Int64
	client     *http.Client
	maxRetries int
	breaker    *resilience.CircuitBreaker
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL string
	// APIKey wins over APIKeyEnv when both are set.
	APIKey     string
	APIKeyEnv  string
	Model      string
	Dimensions int
	Timeout    time.Duration
	MaxRetries int
	Breaker    resilience.CircuitBreakerConfig
	// RequestsPerSecond throttles outgoing requests. Zero means unlimited.
	RequestsPerSecond float64
}

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	key := cfg.APIKey
	if key == "" && cfg.APIKeyEnv != "" {
		key = os.Getenv(cfg.APIKeyEnv)
	}
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	t := cfg.Timeout
	if t == 0 {
		t = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	c := &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     key,
		model:      cfg.Model,
		client:     &http.Client{Timeout: t},
		maxRetries: cfg.MaxRetries,
		breaker:    resilience.NewCircuitBreaker("openai-embeddings", cfg.Breaker),
		logger:     logger.WithComponent("openai-embedder"),
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	c.dimension.Store(int64(cfg.Dimensions))
	return c, nil
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "openai:" + c.model }

// Dimension is learned from the first response unless configured.
func (c *Client) Dimension() int { return int(c.dimension.Load()) }

// statusError is a non-2xx response.
type statusError struct {
	code       int
	status     string
	retryAfter time.Duration
}

func (e *statusError) Error() string { return "openai embeddings failed: " + e.status }

var (
	errNoEmbedding = errors.New("no embedding returned")
	errThrottled   = errors.New("rate limiter")
)

// retryable covers transport failures, throttling, server errors and empty
// payloads. Other 4xx responses are final.
func retryable(err error) bool {
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, context.Canceled) || errors.Is(err, errThrottled) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}
	return true
}

// Embed returns an embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	var out []float64
	cfg := resilience.RetryConfig{
		MaxAttempts:  c.maxRetries + 1,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Retryable:    retryable,
	}
	err := resilience.Retry(ctx, "openai-embed", cfg, func() error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return fmt.Errorf("%w: %w", errThrottled, err)
			}
		}
		return c.breaker.Execute(func() error {
			v, err := c.embedOnce(ctx, text)
			if err != nil {
				return err
			}
			out = v
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	c.dimension.CompareAndSwap(0, int64(len(out)))
	return out, nil
}

func (c *Client) embedOnce(ctx context.Context, text string) ([]float64, error) {
	type reqBody struct {
		Input  string `json:"input,omitempty"`
		Prompt string `json:"prompt,omitempty"`
		Model  string `json:"model"`
	}
	url := fmt.Sprintf("%s/embeddings", c.baseURL)
	data, err := json.Marshal(reqBody{Input: text, Prompt: text, Model: c.model})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		se := &statusError{code: resp.StatusCode, status: resp.Status}
		// Respect Retry-After if provided
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			se.retryAfter = time.Duration(secs) * time.Second
			c.logger.Warn("embeddings throttled", "status", resp.Status, "retry_after", se.retryAfter)
			select {
			case <-time.After(se.retryAfter):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return nil, se
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	// Try OpenAI-compatible response first
	var openaiOut struct {
		Data []struct {
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &openaiOut); err == nil {
		if len(openaiOut.Data) > 0 && len(openaiOut.Data[0].Embedding) > 0 {
			return openaiOut.Data[0].Embedding, nil
		}
	}
	// Fallback to Ollama-native shape: { "embedding": [...] }
	var ollamaOut struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := json.Unmarshal(payload, &ollamaOut); err == nil && len(ollamaOut.Embedding) > 0 {
		return ollamaOut.Embedding, nil
	}
	return nil, errNoEmbedding
}
