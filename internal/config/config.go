package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/kapu/persona-globe-go/internal/constants"
)

type Config struct {
	Server   ServerConfig
	LLM      LLMConfig
	Analysis AnalysisConfig
	Redis    RedisConfig
	Postgres PostgresConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Host        string
	Port        int
	CORSOrigins []string
	Mode        string
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type LLMConfig struct {
	Provider         string
	FallbackProvider string
	EnableFallback   bool
	OpenAIAPIKey     string
	OpenAIModel      string
	AnthropicAPIKey  string
	AnthropicModel   string
	GeminiAPIKey     string
	GeminiModel      string
	Temperature      float64
	MaxTokens        int
}

// APIKey returns the credential configured for provider.
func (c LLMConfig) APIKey(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return c.OpenAIAPIKey
	case ProviderAnthropic:
		return c.AnthropicAPIKey
	case ProviderGemini:
		return c.GeminiAPIKey
	}
	return ""
}

// Model returns the model name configured for provider.
func (c LLMConfig) Model(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return c.OpenAIModel
	case ProviderAnthropic:
		return c.AnthropicModel
	case ProviderGemini:
		return c.GeminiModel
	}
	return ""
}

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// AnalysisConfig drives the engine. UseRealLLM is read once at start and
// only overridden per request.
type AnalysisConfig struct {
	APIBase            string
	Timeout            time.Duration
	RetryCount         int
	UseRealLLM         bool
	DefaultMaxPersonas int
	Seed               int64
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type PostgresConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

type LoggingConfig struct {
	Level string
	File  string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:        getEnv("SERVER_HOST", "0.0.0.0"),
			Port:        getEnvInt("SERVER_PORT", 8000),
			CORSOrigins: parseCommaSeparated(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:5173")),
			Mode:        getEnv("GIN_MODE", "release"),
		},
		LLM: LLMConfig{
			Provider:         strings.ToLower(getEnv("LLM_PROVIDER", ProviderOpenAI)),
			FallbackProvider: strings.ToLower(getEnv("LLM_FALLBACK_PROVIDER", "")),
			EnableFallback:   getEnvBool("LLM_ENABLE_FALLBACK", true),
			OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
			OpenAIModel:      getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			AnthropicAPIKey:  getEnv("ANTHROPIC_API_KEY", ""),
			AnthropicModel:   getEnv("ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),
			GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
			GeminiModel:      getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
			Temperature:      getEnvFloat("LLM_TEMPERATURE", 0.7),
			MaxTokens:        getEnvInt("LLM_MAX_TOKENS", 2000),
		},
		Analysis: AnalysisConfig{
			APIBase:            strings.TrimRight(getEnv("ANALYSIS_API_BASE", constants.APIConfig.DefaultBaseURL), "/"),
			Timeout:            time.Duration(getEnvInt("ANALYSIS_TIMEOUT_MS", int(constants.APIConfig.DefaultTimeout/time.Millisecond))) * time.Millisecond,
			RetryCount:         getEnvInt("ANALYSIS_RETRY_COUNT", constants.APIConfig.DefaultRetries),
			UseRealLLM:         getEnvBool("USE_REAL_LLM", false),
			DefaultMaxPersonas: getEnvInt("ANALYSIS_DEFAULT_MAX_PERSONAS", constants.AnalysisDefaults.MaxPersonas),
			Seed:               int64(getEnvInt("ANALYSIS_SEED", 0)),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", false),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Postgres: PostgresConfig{
			Enabled:  getEnvBool("POSTGRES_ENABLED", false),
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnvInt("POSTGRES_PORT", 5432),
			User:     getEnv("POSTGRES_USER", "persona"),
			Password: getEnv("POSTGRES_PASSWORD", ""),
			Database: getEnv("POSTGRES_DB", "persona_globe"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			File:  getEnv("LOG_FILE", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate rejects configurations the server cannot start with. A missing
// LLM key is not fatal: the rank endpoint reports 503 and the engine stays on
// the mock strategy.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535")
	}
	if !isKnownProvider(c.LLM.Provider) {
		return fmt.Errorf("LLM_PROVIDER must be one of openai, anthropic, gemini (got %q)", c.LLM.Provider)
	}
	if c.LLM.FallbackProvider != "" && !isKnownProvider(c.LLM.FallbackProvider) {
		return fmt.Errorf("LLM_FALLBACK_PROVIDER must be one of openai, anthropic, gemini (got %q)", c.LLM.FallbackProvider)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("LLM_TEMPERATURE must be within [0, 2]")
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("LLM_MAX_TOKENS must be positive")
	}
	if c.Analysis.APIBase == "" {
		return fmt.Errorf("ANALYSIS_API_BASE is required")
	}
	if c.Analysis.Timeout <= 0 {
		return fmt.Errorf("ANALYSIS_TIMEOUT_MS must be positive")
	}
	if c.Analysis.RetryCount < 0 {
		return fmt.Errorf("ANALYSIS_RETRY_COUNT must not be negative")
	}
	if c.Analysis.DefaultMaxPersonas <= 0 {
		return fmt.Errorf("ANALYSIS_DEFAULT_MAX_PERSONAS must be positive")
	}
	if c.Postgres.Enabled && c.Postgres.Database == "" {
		return fmt.Errorf("POSTGRES_DB is required when POSTGRES_ENABLED is set")
	}
	return nil
}

func isKnownProvider(name string) bool {
	switch name {
	case ProviderOpenAI, ProviderAnthropic, ProviderGemini:
		return true
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func parseCommaSeparated(value string) []string {
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
