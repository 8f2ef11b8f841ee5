package proxy

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imageclassifier/internal/errs"
	"imageclassifier/internal/logger"
	"imageclassifier/internal/service/embedding"
)

type stubEmbedder struct {
	vec  []float64
	err  error
	seen string
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	s.seen = text
	return s.vec, s.err
}

func doRequest(h http.Handler, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/embeddings", strings.NewReader(body))
	if key != "" {
		req.Header.Set("x-api-key", key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestProxy_Embeddings(t *testing.T) {
	stub := &stubEmbedder{vec: []float64{0.25, -1}}
	h := NewHandler("secret", stub, logger.Nop())

	rec := doRequest(h, "secret", `{"text":"Persian cat"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"embeddings":[0.25,-1]}`, rec.Body.String())
	assert.Equal(t, "Persian cat", stub.seen)
}

func TestProxy_Unauthorized(t *testing.T) {
	h := NewHandler("secret", &stubEmbedder{}, logger.Nop())

	for _, key := range []string{"", "wrong"} {
		rec := doRequest(h, key, `{"text":"x"}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"message":"Unauthorized"}`, rec.Body.String())
	}
}

func TestProxy_EmptyConfiguredKeyRejectsAll(t *testing.T) {
	rec := doRequest(NewHandler("", &stubEmbedder{}, logger.Nop()), "", `{"text":"x"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProxy_InvalidText(t *testing.T) {
	h := NewHandler("k", &stubEmbedder{}, logger.Nop())

	for _, body := range []string{`{}`, `{"text":""}`, `{"text":42}`, `not json`, `{"text":"   "}`} {
		rec := doRequest(h, "k", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.JSONEq(t, `{"error":"Missing or invalid text"}`, rec.Body.String())
	}
}

func TestProxy_UpstreamFailure(t *testing.T) {
	h := NewHandler("k", &stubEmbedder{err: &embedding.APIError{StatusCode: 429, Body: "Rate limit reached"}}, logger.Nop())
	rec := doRequest(h, "k", `{"text":"x"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Rate limit reached"}`, rec.Body.String())

	h = NewHandler("k", &stubEmbedder{err: errors.New("dial tcp: refused")}, logger.Nop())
	rec = doRequest(h, "k", `{"text":"x"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Failed to get embedding from OpenAI"}`, rec.Body.String())
}

func TestProxy_MethodNotAllowed(t *testing.T) {
	h := NewHandler("k", &stubEmbedder{}, logger.Nop())
	req := httptest.NewRequest(http.MethodGet, "/embeddings", nil)
	req.Header.Set("x-api-key", "k")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

// The classification server's proxy client and this handler agree on the wire format.
func TestProxy_RoundTripWithProxyClient(t *testing.T) {
	server := httptest.NewServer(NewHandler("k", &stubEmbedder{vec: []float64{1, 2, 3}}, logger.Nop()))
	defer server.Close()

	vec, err := embedding.NewProxyClient(server.URL, "k", time.Second).Embed(context.Background(), "dog")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, vec)

	_, err = embedding.NewProxyClient(server.URL, "bad", time.Second).Embed(context.Background(), "dog")
	assert.Equal(t, "E6", errs.CodeOf(err))
}
