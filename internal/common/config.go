package common

import (
	"errors"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration. It is loaded once at startup
// and passed explicitly into constructors; pipeline code never reads the
// environment itself.
type Config struct {
	Server    ServerConfig
	LLM       LLMConfig
	Templates TemplatesConfig
	Storage   StorageConfig
	Artifacts ArtifactsConfig
	Pipeline  PipelineConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr           string
	MaxUploadBytes int64
}

// LLMConfig holds completion-service configuration.
type LLMConfig struct {
	APIKey              string
	BaseURL             string
	Model               string
	Temperature         float32
	Timeout             time.Duration
	CharBudget          int
	MaxParseAttempts    int
	MaxUpstreamAttempts int
	BackoffInitial      time.Duration
	BackoffMax          time.Duration
}

// TemplatesConfig holds spreadsheet-template configuration.
type TemplatesConfig struct {
	Dir string
}

// StorageConfig holds artifact storage configuration.
type StorageConfig struct {
	OutputDir string
}

// ArtifactsConfig holds the artifact registry configuration.
type ArtifactsConfig struct {
	DBPath string
}

// PipelineConfig holds per-stage timeouts. The structuring timeout covers
// the structuring call including its internal retries.
type PipelineConfig struct {
	ExtractTimeout   time.Duration
	StructureTimeout time.Duration
	FillTimeout      time.Duration
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           getEnv("HTTP_ADDR", ":8000"),
			MaxUploadBytes: getEnvAsInt64("MAX_UPLOAD_BYTES", 10*1024*1024),
		},
		LLM: LLMConfig{
			APIKey:              getEnv("OPENAI_API_KEY", ""),
			BaseURL:             getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			Model:               getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			Temperature:         getEnvAsFloat32("OPENAI_TEMPERATURE", 0.1),
			Timeout:             getEnvAsDuration("OPENAI_TIMEOUT", 45*time.Second),
			CharBudget:          getEnvAsInt("LLM_CHAR_BUDGET", 12000),
			MaxParseAttempts:    getEnvAsInt("LLM_MAX_PARSE_ATTEMPTS", 3),
			MaxUpstreamAttempts: getEnvAsInt("LLM_MAX_UPSTREAM_ATTEMPTS", 4),
			BackoffInitial:      getEnvAsDuration("LLM_BACKOFF_INITIAL", 500*time.Millisecond),
			BackoffMax:          getEnvAsDuration("LLM_BACKOFF_MAX", 8*time.Second),
		},
		Templates: TemplatesConfig{
			Dir: getEnv("TEMPLATES_DIR", "templates"),
		},
		Storage: StorageConfig{
			OutputDir: getEnv("OUTPUT_DIR", "output"),
		},
		Artifacts: ArtifactsConfig{
			DBPath: getEnv("ARTIFACTS_DB_PATH", "output/artifacts.db"),
		},
		Pipeline: PipelineConfig{
			ExtractTimeout:   getEnvAsDuration("EXTRACT_TIMEOUT", 15*time.Second),
			StructureTimeout: getEnvAsDuration("STRUCTURE_TIMEOUT", 4*time.Minute),
			FillTimeout:      getEnvAsDuration("FILL_TIMEOUT", 15*time.Second),
		},
	}
}

// Validate validates the loaded configuration.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return errors.New("config: OPENAI_API_KEY is required")
	}
	if c.Templates.Dir == "" {
		return errors.New("config: TEMPLATES_DIR is required")
	}
	if c.LLM.MaxParseAttempts < 1 || c.LLM.MaxUpstreamAttempts < 1 {
		return errors.New("config: retry ceilings must be at least 1")
	}
	return nil
}

// Helper functions for environment variable parsing.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
