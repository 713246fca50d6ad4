package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// StoreDriverPostgres persists goals in Postgres
	StoreDriverPostgres = "postgres"
	// StoreDriverMemory keeps goals in process memory (development and tests)
	StoreDriverMemory = "memory"
)

// Config holds application configuration
type Config struct {
	DatabaseURL     string
	StoreDriver     string
	ServerPort      string
	BaseURL         string
	FrontendURL     string
	EnableHSTS      bool
	LogFormat       string
	ServerDebugMode bool

	SessionSecret string
	SessionCookie string
	SessionTTL    time.Duration

	RedisURL      string
	GoalsCacheTTL time.Duration
	RateLimit     string

	OpenAIKey string
	AIModel   string
	AIBaseURL string

	ElevenLabsKey     string
	ElevenLabsVoiceID string
	ElevenLabsModel   string
	ElevenLabsBaseURL string

	GoogleClientID      string
	GoogleClientSecret  string
	GoogleRedirectURI   string
	CalendarAPIBaseURL  string
	CalendarSyncTimeout time.Duration

	OTELEnabled  bool
	OTELEndpoint string
	OTELInsecure bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		StoreDriver:     getEnv("STORE_DRIVER", StoreDriverPostgres),
		ServerPort:      getEnv("SERVER_PORT", "8080"),
		BaseURL:         getEnv("BASE_URL", "http://localhost:8080"),
		FrontendURL:     getEnv("FRONTEND_URL", "http://localhost:3000"),
		EnableHSTS:      getEnvBool("ENABLE_HSTS", false),
		LogFormat:       getEnv("LOG_FORMAT", "json"),
		ServerDebugMode: getEnvBool("SERVER_DEBUG_MODE", false),

		SessionSecret: getEnv("SESSION_SECRET", ""),
		SessionCookie: getEnv("SESSION_COOKIE", "nextstep-session"),
		SessionTTL:    getEnvDuration("SESSION_TTL", 7*24*time.Hour),

		RedisURL:      getEnv("REDIS_URL", ""),
		GoalsCacheTTL: getEnvDuration("GOALS_CACHE_TTL", time.Minute),
		RateLimit:     getEnv("RATE_LIMIT", "20-S"),

		OpenAIKey: getEnv("OPENAI_API_KEY", ""),
		AIModel:   getEnv("AI_MODEL", ""),
		AIBaseURL: getEnv("AI_BASE_URL", ""),

		ElevenLabsKey:     getEnv("ELEVENLABS_API_KEY", ""),
		ElevenLabsVoiceID: getEnv("ELEVENLABS_VOICE_ID", "21m00Tcm4TlvDq8ikWAM"),
		ElevenLabsModel:   getEnv("ELEVENLABS_MODEL", "eleven_multilingual_v2"),
		ElevenLabsBaseURL: getEnv("ELEVENLABS_BASE_URL", "https://api.elevenlabs.io"),

		GoogleClientID:      getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:  getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURI:   getEnv("GOOGLE_REDIRECT_URI", ""),
		CalendarAPIBaseURL:  getEnv("CALENDAR_API_BASE_URL", "https://www.googleapis.com/calendar/v3"),
		CalendarSyncTimeout: getEnvDuration("CALENDAR_SYNC_TIMEOUT", 10*time.Second),

		OTELEnabled:  getEnvBool("OTEL_ENABLED", false),
		OTELEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure: getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", false),
	}

	switch cfg.StoreDriver {
	case StoreDriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	case StoreDriverMemory:
	default:
		return nil, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreDriverPostgres, StoreDriverMemory, cfg.StoreDriver)
	}

	if cfg.SessionSecret == "" {
		return nil, fmt.Errorf("SESSION_SECRET is required to verify session tokens")
	}
	if len(cfg.SessionSecret) < 32 {
		return nil, fmt.Errorf("SESSION_SECRET must be at least 32 bytes")
	}

	return cfg, nil
}

// CalendarEnabled reports whether Google OAuth credentials are configured
func (c *Config) CalendarEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != "" && c.GoogleRedirectURI != ""
}

// AllowedOrigins splits FrontendURL into CORS origins
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.FrontendURL, ",") {
		if trimmed := strings.TrimSpace(o); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s") or a bare number of seconds
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs := getEnvInt(key, -1); secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
