// Package config loads Unica configuration from the environment.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Provider identifies an LLM/embedding backend.
type Provider string

const (
	ProviderOllama    Provider = "ollama"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// Config holds all configuration values.
type Config struct {
	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// Embeddings
	EmbedProvider  Provider
	EmbedModel     string
	EmbedDimension int

	// Chat LLM
	LLMProvider Provider
	LLMModel    string

	// Provider credentials/hosts
	OllamaHost      string
	OpenAIAPIKey    string
	AnthropicAPIKey string

	// Indexing pipeline
	IndexWorkers    int
	EmbedBatchSize  int
	ChunkSize       int
	ChunkOverlap    int
	JobStaleAfter   time.Duration
	WatchdogSweep   time.Duration
	ContextBudget   int

	// HTTP gateway
	ServerPort string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables.
func Load() Config {
	return Config{
		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "unica"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "core"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		EmbedProvider:  Provider(getEnv("UNICA_EMBED_PROVIDER", string(ProviderOllama))),
		EmbedModel:     getEnv("UNICA_EMBED_MODEL", "all-minilm:l6-v2"),
		EmbedDimension: getEnvInt("UNICA_EMBED_DIMENSION", 384),

		LLMProvider: Provider(getEnv("UNICA_LLM_PROVIDER", string(ProviderOllama))),
		LLMModel:    getEnv("UNICA_LLM_MODEL", "llama3.1"),

		OllamaHost:      getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),

		IndexWorkers:   getEnvInt("UNICA_INDEX_WORKERS", 4),
		EmbedBatchSize: getEnvInt("UNICA_EMBED_BATCH_SIZE", 16),
		ChunkSize:      getEnvInt("UNICA_CHUNK_SIZE", 1000),
		ChunkOverlap:   getEnvInt("UNICA_CHUNK_OVERLAP", 100),
		JobStaleAfter:  getEnvDuration("UNICA_JOB_STALE_AFTER", 2*time.Hour),
		WatchdogSweep:  getEnvDuration("UNICA_WATCHDOG_SWEEP", 5*time.Minute),
		ContextBudget:  getEnvInt("UNICA_CONTEXT_BUDGET", 12000),

		ServerPort: getEnv("UNICA_SERVER_PORT", "8585"),

		LogFile:  getEnv("UNICA_LOG_FILE", "/tmp/unica.log"),
		LogLevel: parseLogLevel(getEnv("UNICA_LOG_LEVEL", "INFO")),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
