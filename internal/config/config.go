package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port         int
	LogLevel     string
	LogDirectory string

	DBDriver    string // "sqlite3" or "postgres"
	DBPath      string
	DatabaseURL string

	APIToken string // Bearer token for /api/*
	Username string // Basic auth for /classes and /logs
	Password string

	GCPServiceAccount string // raw service account JSON
	VisionAPIURL      string
	ProxyAPIURL       string
	ProxyAPIKey       string
	HTTPTimeout       time.Duration

	SimilarityThreshold float64
	DedupSerialize      bool

	RateLimitMax    int64
	RateLimitWindow time.Duration

	// Embedding proxy (cmd/embedproxy)
	ProxyPort            int
	ProxyListenAPIKey    string
	OpenAIAPIKey         string
	OpenAIBaseURL        string
	OpenAIEmbeddingModel string
}

// Load reads an optional .env file (ENV_FILE overrides the path) and then the environment.
// Variables already set in the environment win over the file.
func Load() *Config {
	_ = godotenv.Load(getEnv("ENV_FILE", ".env"))

	return &Config{
		Port:         getEnvAsInt("PORT", 8787),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogDirectory: getEnv("LOG_DIR", filepath.Join(".", "logs")),

		DBDriver:    getEnv("DB_DRIVER", "sqlite3"),
		DBPath:      getEnv("DB_PATH", filepath.Join(".", "data", "classification.db")),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		APIToken: getEnv("API_TOKEN", ""),
		Username: getEnv("USERNAME", ""),
		Password: getEnv("PASSWORD", ""),

		GCPServiceAccount: loadServiceAccount(),
		VisionAPIURL:      getEnv("VISION_API_URL", "https://vision.googleapis.com/v1/images:annotate"),
		ProxyAPIURL:       strings.TrimRight(getEnv("PROXY_API_URL", "http://localhost:8080"), "/"),
		ProxyAPIKey:       getEnv("PROXY_API_KEY", ""),
		HTTPTimeout:       getEnvAsDuration("HTTP_TIMEOUT", 30*time.Second),

		SimilarityThreshold: getEnvAsFloat("SIMILARITY_THRESHOLD", 0.8),
		// Serializes resolution within this process only. Replicas sharing a
		// Postgres store are serialized by an advisory lock instead.
		DedupSerialize: getEnvAsBool("DEDUP_SERIALIZE", true),

		RateLimitMax:    getEnvAsInt64("RATE_LIMIT_MAX", 100),
		RateLimitWindow: getEnvAsDuration("RATE_LIMIT_WINDOW", 15*time.Minute),

		ProxyPort:            getEnvAsInt("PROXY_PORT", 8080),
		ProxyListenAPIKey:    getEnv("API_KEY", ""),
		OpenAIAPIKey:         getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:        strings.TrimRight(getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"), "/"),
		OpenAIEmbeddingModel: getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
	}
}

// Validate reports settings the classification server cannot start without.
func (c *Config) Validate() error {
	var problems []error
	if c.APIToken == "" {
		problems = append(problems, errors.New("API_TOKEN is required"))
	}
	if c.Username == "" || c.Password == "" {
		problems = append(problems, errors.New("USERNAME and PASSWORD are required"))
	}
	if c.GCPServiceAccount == "" {
		problems = append(problems, errors.New("GCP_SERVICE_ACCOUNT or GCP_SERVICE_ACCOUNT_FILE is required"))
	}
	if c.ProxyAPIKey == "" {
		problems = append(problems, errors.New("PROXY_API_KEY is required"))
	}
	if math.IsNaN(c.SimilarityThreshold) || c.SimilarityThreshold < -1 || c.SimilarityThreshold > 1 {
		problems = append(problems, errors.New("SIMILARITY_THRESHOLD must be within [-1, 1]"))
	}
	switch c.DBDriver {
	case "sqlite3":
	case "postgres":
		if c.DatabaseURL == "" {
			problems = append(problems, errors.New("DATABASE_URL is required for the postgres driver"))
		}
	default:
		problems = append(problems, errors.New("DB_DRIVER must be sqlite3 or postgres"))
	}
	return errors.Join(problems...)
}

// ValidateProxy reports settings the embedding proxy cannot start without.
func (c *Config) ValidateProxy() error {
	var problems []error
	if c.ProxyListenAPIKey == "" {
		problems = append(problems, errors.New("API_KEY is required"))
	}
	if c.OpenAIAPIKey == "" {
		problems = append(problems, errors.New("OPENAI_API_KEY is required"))
	}
	return errors.Join(problems...)
}

// loadServiceAccount prefers inline JSON and falls back to reading a file path.
func loadServiceAccount() string {
	if raw := os.Getenv("GCP_SERVICE_ACCOUNT"); raw != "" {
		return raw
	}
	if path := os.Getenv("GCP_SERVICE_ACCOUNT_FILE"); path != "" {
		if data, err := os.ReadFile(path); err == nil {
			return string(data)
		}
	}
	return ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
