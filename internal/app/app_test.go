package app

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imageclassifier/internal/config"
	"imageclassifier/internal/logger"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	sa, err := json.Marshal(map[string]string{
		"type":                        "service_account",
		"project_id":                  "demo-project",
		"private_key_id":              "kid-1",
		"private_key":                 string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})),
		"client_email":                "svc@demo-project.iam.gserviceaccount.com",
		"client_id":                   "1234",
		"auth_uri":                    "https://accounts.google.com/o/oauth2/auth",
		"token_uri":                   "https://oauth2.googleapis.com/token",
		"auth_provider_x509_cert_url": "https://www.googleapis.com/oauth2/v1/certs",
		"client_x509_cert_url":        "https://www.googleapis.com/robot/v1/metadata/x509/svc",
	})
	require.NoError(t, err)

	dir := t.TempDir()
	return &config.Config{
		Port:                0,
		LogDirectory:        filepath.Join(dir, "logs"),
		DBDriver:            "sqlite3",
		DBPath:              filepath.Join(dir, "data", "classification.db"),
		APIToken:            "tok",
		Username:            "admin",
		Password:            "secret",
		GCPServiceAccount:   string(sa),
		VisionAPIURL:        "http://127.0.0.1:1/v1/images:annotate",
		ProxyAPIURL:         "http://127.0.0.1:1",
		ProxyAPIKey:         "proxy-key",
		HTTPTimeout:         time.Second,
		SimilarityThreshold: 0.8,
		DedupSerialize:      true,
		RateLimitMax:        100,
		RateLimitWindow:     15 * time.Minute,
	}
}

func TestOpenStores_SQLite(t *testing.T) {
	cfg := testConfig(t)

	stores, err := OpenStores(context.Background(), cfg)
	require.NoError(t, err)
	defer stores.Close()

	classes, err := stores.Classes.ListAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, classes)
}

func TestOpenStores_UnknownDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.DBDriver = "mysql"

	_, err := OpenStores(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNewApp_InvalidServiceAccount(t *testing.T) {
	cfg := testConfig(t)
	cfg.GCPServiceAccount = "{"

	_, err := NewApp(context.Background(), cfg, logger.Nop())
	assert.Error(t, err)
}

func TestNewApp_ServesAPI(t *testing.T) {
	cfg := testConfig(t)
	a, err := NewApp(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	defer a.Close()

	req := httptest.NewRequest(http.MethodGet, "/api", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hello!", rec.Body.String())

	// An empty body is rejected before any upstream call.
	req = httptest.NewRequest(http.MethodPost, "/api/classification", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rec = httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	a, err := NewApp(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
