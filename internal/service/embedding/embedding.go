// Package embedding turns label text into embedding vectors.
package embedding

import (
	"context"
	"fmt"
)

// Embedder returns the embedding vector for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// APIError represents a non-2xx HTTP response.
type APIError struct {
	StatusCode int
	Body       string // first 512 bytes
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

func newAPIError(status int, body []byte) *APIError {
	s := string(body)
	if len(s) > 512 {
		s = s[:512]
	}
	return &APIError{StatusCode: status, Body: s}
}
