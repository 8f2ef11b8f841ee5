package route

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"

	"imageclassifier/internal/config"
	"imageclassifier/internal/dto"
	"imageclassifier/internal/errs"
	"imageclassifier/internal/logger"
	"imageclassifier/internal/model"
	"imageclassifier/internal/service/classification"
)

type stubService struct{}

func (stubService) Classify(ctx context.Context, imagePath string) (*classification.Result, error) {
	return &classification.Result{ClassID: 7, Label: "Cat", Confidence: 0.5}, nil
}

func (stubService) ListClasses(ctx context.Context) ([]dto.ClassInfo, error) {
	return []dto.ClassInfo{{ClassID: 7, Label: "Cat"}}, nil
}

func (stubService) GetClass(ctx context.Context, id int64) (*dto.ClassInfo, error) {
	if id != 7 {
		return nil, errs.ErrClassNotFound
	}
	return &dto.ClassInfo{ClassID: 7, Label: "Cat"}, nil
}

type stubAnalysis struct{}

func (stubAnalysis) ListRecent(ctx context.Context, limit int) ([]model.AnalysisLogEntry, error) {
	return []model.AnalysisLogEntry{{ID: 1, Success: true, Message: "ok"}}, nil
}

type stubHub struct{}

func (stubHub) Register(*websocket.Conn)   {}
func (stubHub) Unregister(*websocket.Conn) {}

type countingLimiter struct{ calls int }

func (l *countingLimiter) Allow(ctx context.Context, key string) (bool, *model.RateLimitWindow, error) {
	l.calls++
	return true, &model.RateLimitWindow{Count: int64(l.calls)}, nil
}

func (l *countingLimiter) Max() int64 { return 100 }

func setupRouter(t *testing.T) (http.Handler, *countingLimiter) {
	t.Helper()
	cfg := &config.Config{APIToken: "tok", Username: "admin", Password: "secret", LogDirectory: t.TempDir()}
	log, err := logger.NewLogger(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { log.Close() })

	limiter := &countingLimiter{}
	return SetupRoutes(cfg, log, stubService{}, stubAnalysis{}, stubHub{}, limiter), limiter
}

func TestSetupRoutes_APIRequiresBearer(t *testing.T) {
	router, limiter := setupRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/classification", strings.NewReader(`{"image_path":"https://example.com/a.jpg"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 0, limiter.calls)

	req = httptest.NewRequest(http.MethodPost, "/api/classification", strings.NewReader(`{"image_path":"https://example.com/a.jpg"}`))
	req.Header.Set("Authorization", "Bearer tok")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"message":"success","estimated_data":{"class":7,"confidence":0.5}}`, rec.Body.String())
	assert.Equal(t, 1, limiter.calls)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "100", rec.Header().Get("X-RateLimit-Limit"))
}

func TestSetupRoutes_Hello(t *testing.T) {
	router, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hello!", rec.Body.String())
}

func TestSetupRoutes_ClassesRequireBasicAuth(t *testing.T) {
	router, limiter := setupRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/classes", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	tests := []struct {
		path   string
		status int
	}{
		{"/classes", http.StatusOK},
		{"/classes/7", http.StatusOK},
		{"/classes/8", http.StatusNotFound},
		{"/logs/info", http.StatusOK},
		{"/logs/analysis", http.StatusOK},
		{"/logs/verbose", http.StatusNotFound},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.path, nil)
		req.SetBasicAuth("admin", "secret")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, tt.status, rec.Code, tt.path)
	}
	assert.Equal(t, 0, limiter.calls)
}

func TestSetupRoutes_MethodNotAllowed(t *testing.T) {
	router, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/classification", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
