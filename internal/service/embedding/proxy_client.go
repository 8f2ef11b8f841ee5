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

	"imageclassifier/internal/errs"
)

// ProxyRequest is the body accepted by the embedding proxy.
type ProxyRequest struct {
	Text string `json:"text"`
}

// ProxyResponse is the body returned by the embedding proxy.
type ProxyResponse struct {
	Embeddings []float64 `json:"embeddings"`
}

// ProxyClient calls POST {baseURL}/embeddings with an x-api-key header.
// Every failure is reported as errs.ErrEmbeddingAPI.
type ProxyClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewProxyClient creates a client for the embedding proxy at baseURL.
func NewProxyClient(baseURL, apiKey string, timeout time.Duration) *ProxyClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ProxyClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// Embed returns the embedding for text.
func (c *ProxyClient) Embed(ctx context.Context, text string) ([]float64, error) {
	jsonData, err := json.Marshal(ProxyRequest{Text: text})
	if err != nil {
		return nil, errs.Wrap(errs.ErrEmbeddingAPI, fmt.Errorf("failed to marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(jsonData))
	if err != nil {
		return nil, errs.Wrap(errs.ErrEmbeddingAPI, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.ErrEmbeddingAPI, fmt.Errorf("failed to execute request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Wrap(errs.ErrEmbeddingAPI, fmt.Errorf("failed to read response body: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errs.Wrap(errs.ErrEmbeddingAPI, newAPIError(resp.StatusCode, body))
	}

	var out ProxyResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, errs.Wrap(errs.ErrEmbeddingAPI, fmt.Errorf("failed to decode response: %w", err))
	}
	if len(out.Embeddings) == 0 {
		return nil, errs.Wrap(errs.ErrEmbeddingAPI, errors.New("no embeddings in response"))
	}
	return out.Embeddings, nil
}
