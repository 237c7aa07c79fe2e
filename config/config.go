// Package config provides configuration for the agent loop service.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the service configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Database
	DatabaseURL string

	// LLM settings
	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string
	LLMTimeout time.Duration

	// Orchestration limits
	ApprovalTimeout     time.Duration
	MaxIterations       int
	ConfidenceThreshold float64

	// Store retention
	SessionTTL    time.Duration
	StoreMaxBytes int64
	SweepInterval time.Duration

	// Tool output
	MaxToolOutput int

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		HTTPPort:            getEnvInt("HTTP_PORT", 8080),
		DatabaseURL:         getEnv("DATABASE_URL", "file:agentloop.db?cache=shared&mode=rwc"),
		LLMBaseURL:          getEnv("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMAPIKey:           getEnv("LLM_API_KEY", ""),
		LLMModel:            getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMTimeout:          time.Duration(getEnvInt("LLM_TIMEOUT_MS", 120000)) * time.Millisecond,
		ApprovalTimeout:     time.Duration(getEnvInt("APPROVAL_TIMEOUT_MS", 600000)) * time.Millisecond,
		MaxIterations:       getEnvInt("MAX_ITERATIONS", 10),
		ConfidenceThreshold: getEnvFloat("CONFIDENCE_THRESHOLD", 0.7),
		SessionTTL:          time.Duration(getEnvInt("SESSION_TTL_MS", 86400000)) * time.Millisecond,
		StoreMaxBytes:       int64(getEnvInt("STORE_MAX_BYTES", 0)),
		SweepInterval:       time.Duration(getEnvInt("SWEEP_INTERVAL_MS", 60000)) * time.Millisecond,
		MaxToolOutput:       getEnvInt("MAX_TOOL_OUTPUT", 32768),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
