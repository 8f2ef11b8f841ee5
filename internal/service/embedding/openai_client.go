package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultModel is the OpenAI embedding model used by the proxy.
const DefaultModel = "text-embedding-3-small"

type openAIRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type openAIResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

type openAIErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// OpenAIClient is an HTTP client for an OpenAI-compatible /embeddings API.
type OpenAIClient struct {
	apiKey     string
	model      string
	baseURL    string
	client     *http.Client
	maxRetries int
}

// OpenAIOption configures an OpenAIClient.
type OpenAIOption func(*OpenAIClient)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) OpenAIOption {
	return func(c *OpenAIClient) { c.client.Timeout = d }
}

// WithMaxRetries sets how many times 429 and 5xx responses are retried.
func WithMaxRetries(n int) OpenAIOption {
	return func(c *OpenAIClient) {
		if n < 0 {
			n = 0
		}
		c.maxRetries = n
	}
}

// NewOpenAIClient creates a client for baseURL (e.g. https://api.openai.com/v1).
func NewOpenAIClient(apiKey, model, baseURL string, opts ...OpenAIOption) *OpenAIClient {
	if model == "" {
		model = DefaultModel
	}
	c := &OpenAIClient{
		apiKey:     apiKey,
		model:      model,
		baseURL:    baseURL,
		client:     &http.Client{Timeout: 60 * time.Second},
		maxRetries: 2,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Embed generates an embedding vector for text. Non-2xx answers are returned as *APIError
// whose Body carries the upstream error message when there is one.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float64, error) {
	jsonData, err := json.Marshal(openAIRequest{Model: c.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr *APIError
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(time.Duration(1<<(attempt-1)) * 500 * time.Millisecond)
			select {
			case <-ctx.Done():
				t.Stop()
				return nil, ctx.Err()
			case <-t.C:
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(jsonData))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to execute request: %w", err)
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			var out openAIResponse
			if err := json.Unmarshal(body, &out); err != nil {
				return nil, fmt.Errorf("failed to decode response: %w", err)
			}
			if len(out.Data) == 0 || len(out.Data[0].Embedding) == 0 {
				return nil, errors.New("no embeddings returned from OpenAI")
			}
			return out.Data[0].Embedding, nil
		}

		apiErr := newAPIError(resp.StatusCode, body)
		var errResp openAIErrorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
			apiErr.Body = errResp.Error.Message
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = apiErr
			continue
		}
		return nil, apiErr
	}
	return nil, lastErr
}
