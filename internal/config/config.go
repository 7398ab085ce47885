package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Storage
	DatabaseURL    string
	UseMemoryStore bool
	RedisAddr      string
	RedisPassword  string
	TurnLockTTL    time.Duration

	// AI provider selection (anthropic, openai or google) plus an optional
	// secondary provider tried when the primary fails.
	AIProvider         string
	AIFallbackProvider string
	AITemperature      float32
	AIMaxTokens        int
	LLMTimeout         time.Duration

	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	BedrockModelID     string

	OpenAIAPIKey string
	OpenAIModel  string

	GoogleAPIKey string
	GoogleModel  string

	// Business rules
	Procedures     []string
	OpeningTime    string
	ClosingTime    string
	MaxBookingDays int

	// Evolution API (WhatsApp) delivery
	EvolutionAPIURL   string
	EvolutionAPIKey   string
	EvolutionInstance string
	DeliveryTimeout   time.Duration
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DatabaseURL:    getEnv("DATABASE_URL", ""),
		UseMemoryStore: getEnvAsBool("USE_MEMORY_STORE", false),
		RedisAddr:      getEnv("REDIS_ADDR", ""),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		TurnLockTTL:    getEnvAsDuration("TURN_LOCK_TTL", 30*time.Second),

		AIProvider:         strings.ToLower(strings.TrimSpace(getEnv("AI_PROVIDER", "anthropic"))),
		AIFallbackProvider: strings.ToLower(strings.TrimSpace(getEnv("AI_FALLBACK_PROVIDER", ""))),
		AITemperature:      getEnvAsFloat32("AI_TEMPERATURE", 0.4),
		AIMaxTokens:        getEnvAsInt("AI_MAX_TOKENS", 200),
		LLMTimeout:         getEnvAsDuration("LLM_TIMEOUT", 15*time.Second),

		AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		BedrockModelID:     getEnv("BEDROCK_MODEL_ID", "anthropic.claude-3-haiku-20240307-v1:0"),

		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:  getEnv("OPENAI_MODEL", "gpt-4o-mini"),

		GoogleAPIKey: getEnv("GOOGLE_API_KEY", ""),
		GoogleModel:  getEnv("GOOGLE_MODEL", "gemini-2.5-flash"),

		Procedures: getEnvAsList("PROCEDURES",
			"limpeza,consulta,avaliacao,ortodontia,restauracao,canal,extracao,clareamento,implante"),
		OpeningTime:    getEnv("OPENING_TIME", "08:00"),
		ClosingTime:    getEnv("CLOSING_TIME", "18:00"),
		MaxBookingDays: getEnvAsInt("MAX_BOOKING_DAYS", 90),

		EvolutionAPIURL:   getEnv("EVOLUTION_API_URL", ""),
		EvolutionAPIKey:   getEnv("EVOLUTION_API_KEY", ""),
		EvolutionInstance: getEnv("EVOLUTION_INSTANCE", "clinic"),
		DeliveryTimeout:   getEnvAsDuration("DELIVERY_TIMEOUT", 30*time.Second),
	}
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 32); err == nil {
			return float32(parsed)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvAsList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
