// Package config loads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// ErrMissingAPIKey is returned by Validate when no OpenAI key is configured.
var ErrMissingAPIKey = errors.New("OPENAI_API_KEY environment variable is required")

// Config holds every setting the binaries read from the environment.
type Config struct {
	QdrantHost       string
	QdrantPort       int
	QdrantCollection string

	OpenAIAPIKey       string
	EmbeddingModel     string
	EmbeddingCacheSize int
	LLMModel           string

	Port       string
	ServerMode bool

	TopK int

	SessionMaxTurns    int
	SessionMaxSessions int
	SessionTTL         time.Duration

	WeightDirect  float64
	WeightLog     float64
	WeightKeyword float64
	WeightTheme   float64

	GitHubToken string
	ProjectPath string
}

// Load reads a .env file if present, then the process environment.
// Unset or malformed values take their defaults.
func Load() *Config {
	// .env is optional; production sets the environment directly.
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the current process environment.
func FromEnv() *Config {
	return &Config{
		QdrantHost:       getEnv("QDRANT_HOST", "localhost"),
		QdrantPort:       getEnvInt("QDRANT_PORT", 6334),
		QdrantCollection: getEnv("QDRANT_COLLECTION", "java_code_analysis"),

		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		EmbeddingModel:     getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingCacheSize: getEnvInt("EMBEDDING_CACHE_SIZE", 2048),
		LLMModel:           getEnv("LLM_MODEL", "gpt-4o"),

		Port:       getEnv("PORT", "8080"),
		ServerMode: getEnv("SERVER_MODE", "false") == "true",

		TopK: getEnvInt("TOP_K", 10),

		SessionMaxTurns:    getEnvInt("SESSION_MAX_TURNS", 50),
		SessionMaxSessions: getEnvInt("SESSION_MAX_SESSIONS", 1000),
		SessionTTL:         getEnvDuration("SESSION_TTL", 24*time.Hour),

		WeightDirect:  getEnvFloat("WEIGHT_DIRECT", 1.5),
		WeightLog:     getEnvFloat("WEIGHT_LOG", 1.0),
		WeightKeyword: getEnvFloat("WEIGHT_KEYWORD", 1.2),
		WeightTheme:   getEnvFloat("WEIGHT_THEME", 0.8),

		GitHubToken: os.Getenv("GITHUB_TOKEN"),
		ProjectPath: os.Getenv("PROJECT_PATH"),
	}
}

// Validate checks settings required by commands that call OpenAI.
func (c *Config) Validate() error {
	if c.OpenAIAPIKey == "" {
		return ErrMissingAPIKey
	}
	if c.TopK <= 0 {
		return fmt.Errorf("TOP_K must be positive, got %d", c.TopK)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		var i int
		if _, err := fmt.Sscanf(v, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		var f float64
		if _, err := fmt.Sscanf(v, "%g", &f); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}
