// Package config provides centralized configuration for the catalog server.
// All configurable values are loaded from environment variables with sensible defaults.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all server configuration values.
type Config struct {
	// Port is the HTTP server listen port.
	Port string

	// DBPath is the path to the SQLite database file.
	DBPath string

	// StorageDir is the directory uploaded images are stored in.
	StorageDir string

	// Provider selects which classifier backend to use: "openai" or "gemini".
	Provider string

	// OpenAIKey is the API key for the OpenAI service.
	OpenAIKey string

	// OpenAIModel is the model identifier for OpenAI classification.
	OpenAIModel string

	// GeminiKey is the API key for the Google Gemini service.
	GeminiKey string

	// GeminiModel is the model identifier for Gemini classification.
	GeminiModel string

	// MaxConcurrent bounds the number of item jobs classified at once.
	MaxConcurrent int

	// HTTPTimeout is the timeout for outgoing classifier requests.
	HTTPTimeout time.Duration

	// CORSOrigin is the allowed CORS origin. Defaults to "*".
	CORSOrigin string
}

// Load reads configuration from environment variables, applying defaults.
func Load() Config {
	return Config{
		Port:          envOr("PORT", "8080"),
		DBPath:        envOr("DB_PATH", "catalog.db"),
		StorageDir:    envOr("STORAGE_DIR", "storage"),
		Provider:      envOr("AI_PROVIDER", "openai"),
		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:   envOr("OPENAI_MODEL", "gpt-4o-mini"),
		GeminiKey:     os.Getenv("GEMINI_API_KEY"),
		GeminiModel:   envOr("GEMINI_MODEL", "gemini-2.0-flash"),
		MaxConcurrent: envInt("MAX_CONCURRENT", 4),
		HTTPTimeout:   envDuration("HTTP_TIMEOUT", 60*time.Second),
		CORSOrigin:    envOr("CORS_ORIGIN", "*"),
	}
}

// UseStubs returns true when no API key is configured for the selected provider.
func (c Config) UseStubs() bool {
	switch c.Provider {
	case "gemini":
		return c.GeminiKey == ""
	default:
		return c.OpenAIKey == ""
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
