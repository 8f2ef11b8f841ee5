// Package proxy serves POST /embeddings in front of an OpenAI-compatible embedding API.
package proxy

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"imageclassifier/internal/logger"
	"imageclassifier/internal/service/embedding"
)

// NewHandler returns the proxy's routes wrapped in the x-api-key check.
func NewHandler(apiKey string, embedder embedding.Embedder, log *logger.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /embeddings", EmbeddingsHandler(embedder, log))
	return APIKeyMiddleware(apiKey, mux)
}

// APIKeyMiddleware rejects requests whose x-api-key header does not match apiKey.
func APIKeyMiddleware(apiKey string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("x-api-key")
		if apiKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) != 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// EmbeddingsHandler embeds the "text" field of the request body.
func EmbeddingsHandler(embedder embedding.Embedder, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text *string `json:"text"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil ||
			req.Text == nil || strings.TrimSpace(*req.Text) == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing or invalid text"})
			return
		}

		vec, err := embedder.Embed(r.Context(), *req.Text)
		if err != nil {
			log.ErrorCtx(r.Context(), "Embedding request failed: %v", err)
			msg := "Failed to get embedding from OpenAI"
			var apiErr *embedding.APIError
			if errors.As(err, &apiErr) && apiErr.Body != "" {
				msg = apiErr.Body
			}
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": msg})
			return
		}

		writeJSON(w, http.StatusOK, embedding.ProxyResponse{Embeddings: vec})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
