package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Gate modes. Only one is enforced at a time.
const (
	GateModeList   = "list"
	GateModeDetail = "detail"
)

// Config holds all configuration values for the application
type Config struct {
	Port           string
	AllowedOrigins []string
	LogLevel       string
	Environment    string

	DatabaseURL string
	RedisURL    string

	SupabaseURL       string
	SupabaseAnonKey   string
	SupabaseJWTSecret string

	NocoDBAPIURL      string
	NocoDBAPIToken    string
	NocoDBFileBaseURL string

	GateMode          string
	GateQuotaList     float64
	GateQuotaDetail   int
	GateModalDelay    time.Duration
	GateTimezone      *time.Location
	GateSuppressFor   time.Duration
	AnalyticsInterval time.Duration
	RateLimitPerMin   int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	quotaList, err := getFloatEnv("GATE_QUOTA_LIST", 0.4)
	if err != nil {
		return nil, err
	}
	quotaDetail, err := getIntEnv("GATE_QUOTA_DETAIL", 3)
	if err != nil {
		return nil, err
	}
	modalDelayMs, err := getIntEnv("GATE_MODAL_DELAY_MS", 500)
	if err != nil {
		return nil, err
	}
	suppressMs, err := getIntEnv("GATE_SUPPRESS_MS", 30*60*1000)
	if err != nil {
		return nil, err
	}
	flushMs, err := getIntEnv("ANALYTICS_FLUSH_INTERVAL_MS", 5000)
	if err != nil {
		return nil, err
	}

	ratePerMin, err := getIntEnv("RATE_LIMIT_PER_MINUTE", 60)
	if err != nil {
		return nil, err
	}

	mode, err := validateGateMode(getEnv("GATE_MODE", GateModeList))
	if err != nil {
		return nil, err
	}

	location := time.Local
	if tz := getEnv("GATE_TIMEZONE", ""); tz != "" {
		location, err = time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("invalid GATE_TIMEZONE %q: %w", tz, err)
		}
	}

	nocoURL := getEnv("NOCODB_API_URL", "")

	return &Config{
		Port:              getEnv("PORT", "8080"),
		AllowedOrigins:    parseOrigins(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		Environment:       getEnv("ENVIRONMENT", "production"),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		RedisURL:          getEnv("REDIS_URL", ""),
		SupabaseURL:       getEnv("SUPABASE_URL", ""),
		SupabaseAnonKey:   getEnv("SUPABASE_ANON_KEY", ""),
		SupabaseJWTSecret: getEnv("SUPABASE_JWT_SECRET", ""),
		NocoDBAPIURL:      nocoURL,
		NocoDBAPIToken:    getEnv("NOCODB_API_TOKEN", ""),
		NocoDBFileBaseURL: getEnv("NOCODB_FILE_BASE_URL", deriveFileBaseURL(nocoURL)),
		GateMode:          mode,
		GateQuotaList:     quotaList,
		GateQuotaDetail:   quotaDetail,
		GateModalDelay:    time.Duration(modalDelayMs) * time.Millisecond,
		GateTimezone:      location,
		GateSuppressFor:   time.Duration(suppressMs) * time.Millisecond,
		AnalyticsInterval: time.Duration(flushMs) * time.Millisecond,
		RateLimitPerMin:   ratePerMin,
	}, nil
}

// IsDevelopment reports whether unapproved assets may be shown for review
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getFloatEnv(key string, fallback float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number for environment variable %s: %s", key, value)
	}
	return parsed, nil
}

func getIntEnv(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid integer for environment variable %s: %s", key, value)
	}
	return parsed, nil
}

func validateGateMode(mode string) (string, error) {
	if mode == GateModeList || mode == GateModeDetail {
		return mode, nil
	}
	return "", fmt.Errorf("invalid GATE_MODE: %s. Must be 'list' or 'detail'", mode)
}

// deriveFileBaseURL turns a records endpoint into the host root that
// relative attachment paths are served from.
func deriveFileBaseURL(apiURL string) string {
	if apiURL == "" {
		return ""
	}
	if idx := strings.Index(apiURL, "/api/"); idx > 0 {
		return apiURL[:idx]
	}
	return strings.TrimRight(apiURL, "/")
}

// parseOrigins parses comma-separated origins into a slice
func parseOrigins(origins string) []string {
	if origins == "" {
		return []string{}
	}

	parts := strings.Split(origins, ",")
	result := make([]string, 0, len(parts))

	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
