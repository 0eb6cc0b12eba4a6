// Package config loads runtime settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreBigQuery = "bigquery"
)

// Artifact drivers.
const (
	ArtifactLocal = "local"
	ArtifactGCS   = "gcs"
)

type Config struct {
	Port               string
	LogLevel           string
	LogFormat          string
	ShutdownTimeout    time.Duration
	MaxUploadSizeBytes int64

	StoreDriver string
	DatabaseURL string
	GCPProject  string
	BQDataset   string

	ArtifactDriver string
	UploadDir      string
	UploadURL      string
	GCSBucket      string
	GCSPrefix      string

	OCREnabled    bool
	StatementMode string
	ReceiptMode   string

	GeminiAPIKey   string
	GeminiModel    string
	GeminiVertex   bool
	GeminiLocation string

	JWTSecret    string
	AuthDisabled bool
}

// Load reads .env when present, then the process environment. A missing
// .env file is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdown, err := time.ParseDuration(getEnv("SHUTDOWN_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("config: SHUTDOWN_TIMEOUT: %w", err)
	}

	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "console"),
		ShutdownTimeout:    shutdown,
		MaxUploadSizeBytes: getEnvInt64("MAX_UPLOAD_BYTES", 10<<20),

		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", StoreMemory)),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		GCPProject:  getEnv("GCP_PROJECT", ""),
		BQDataset:   getEnv("BQ_DATASET", "finance"),

		ArtifactDriver: strings.ToLower(getEnv("ARTIFACT_DRIVER", ArtifactLocal)),
		UploadDir:      getEnv("UPLOAD_DIR", "./uploads"),
		UploadURL:      getEnv("UPLOAD_URL_PREFIX", "/uploads/"),
		GCSBucket:      getEnv("GCS_BUCKET", ""),
		GCSPrefix:      getEnv("GCS_PREFIX", "uploads"),

		OCREnabled:    getEnvBool("OCR_ENABLED", false),
		StatementMode: getEnv("STATEMENT_MODE", "heuristic"),
		ReceiptMode:   getEnv("RECEIPT_MODE", "heuristic"),

		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiModel:    getEnv("GEMINI_MODEL", ""),
		GeminiVertex:   getEnvBool("GEMINI_USE_VERTEX", false),
		GeminiLocation: getEnv("GEMINI_LOCATION", ""),

		JWTSecret:    getEnv("JWT_SECRET", ""),
		AuthDisabled: getEnvBool("AUTH_DISABLED", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks driver names and the settings each driver requires.
// Load calls it.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: DATABASE_URL is required for the postgres store")
		}
	case StoreBigQuery:
		if c.GCPProject == "" {
			return fmt.Errorf("config: GCP_PROJECT is required for the bigquery store")
		}
	default:
		return fmt.Errorf("config: unknown STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.ArtifactDriver {
	case ArtifactLocal:
	case ArtifactGCS:
		if c.GCSBucket == "" {
			return fmt.Errorf("config: GCS_BUCKET is required for the gcs artifact store")
		}
	default:
		return fmt.Errorf("config: unknown ARTIFACT_DRIVER %q", c.ArtifactDriver)
	}

	if c.MaxUploadSizeBytes <= 0 {
		return fmt.Errorf("config: MAX_UPLOAD_BYTES must be positive")
	}
	return nil
}

// ValidateServer adds the checks only the HTTP server needs.
func (c *Config) ValidateServer() error {
	if !c.AuthDisabled && c.JWTSecret == "" {
		return fmt.Errorf("config: JWT_SECRET is required unless AUTH_DISABLED=true")
	}
	return nil
}

// AIConfigured reports whether enough is set to build a model client.
func (c *Config) AIConfigured() bool {
	if c.GeminiVertex {
		return c.GCPProject != ""
	}
	return c.GeminiAPIKey != ""
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvInt64(key string, fallback int64) int64 {
	v, err := strconv.ParseInt(getEnv(key, ""), 10, 64)
	if err != nil {
		return fallback
	}
	return v
}
