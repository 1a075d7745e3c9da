package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig is the process configuration read from the environment.
type AppConfig struct {
	// Server
	Port        string
	Environment string
	AllowOrigin string

	// Backend API
	BackendBaseURL string
	BackendTimeout time.Duration
	ServiceKey     string

	// Session
	SessionSecret string
	SessionTTL    time.Duration
	CookieName    string
	CookieSecure  bool

	// Redis (empty URL selects the in-memory stores)
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Audit database
	AuditEnabled bool

	// Card processor
	StripeSecretKey     string
	StripeWebhookSecret string
	Currency            string

	// Geocoding
	GeocodeBaseURL string
	GeocodeAPIKey  string

	// Rate limiting on auth routes
	RateLimitRPS   float64
	RateLimitBurst int

	// Housekeeping
	JanitorInterval time.Duration
	SliceIdleTTL    time.Duration

	// Monitoring
	EnableMetrics bool
}

// Load reads .env (if present) and returns the typed configuration.
func Load() *AppConfig {
	LoadEnvFile(".env")

	return &AppConfig{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		AllowOrigin: getEnv("ALLOW_ORIGIN", "*"),

		BackendBaseURL: strings.TrimRight(getEnv("BACKEND_BASE_URL", "http://localhost:8081/api"), "/"),
		BackendTimeout: getEnvAsDuration("BACKEND_TIMEOUT", "15s"),
		ServiceKey:     getEnv("BACKEND_SERVICE_KEY", ""),

		SessionSecret: getEnv("JWT_SECRET", "change-me-in-production"),
		SessionTTL:    getEnvAsDuration("SESSION_TTL", "12h"),
		CookieName:    getEnv("SESSION_COOKIE", "admin_session"),
		CookieSecure:  getEnvAsBool("COOKIE_SECURE", false),

		RedisURL:      getEnv("REDIS_URL", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		AuditEnabled: getEnvAsBool("AUDIT_ENABLED", false),

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		Currency:            strings.ToLower(getEnv("PAYMENT_CURRENCY", "usd")),

		GeocodeBaseURL: getEnv("GEOCODE_BASE_URL", "https://api.geoapify.com/v1/geocode/autocomplete"),
		GeocodeAPIKey:  getEnv("GEOCODE_API_KEY", ""),

		RateLimitRPS:   getEnvAsFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst: getEnvAsInt("RATE_LIMIT_BURST", 10),

		JanitorInterval: getEnvAsDuration("JANITOR_INTERVAL", "5m"),
		SliceIdleTTL:    getEnvAsDuration("SLICE_IDLE_TTL", "1h"),

		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
	}
}

// IsProduction reports whether ENVIRONMENT is production
func (c *AppConfig) IsProduction() bool {
	return c.Environment == "production"
}

// LoadEnvFile loads variables from the working directory, then next to the executable.
// Variables already set in the environment win.
func LoadEnvFile(filename string) string {
	if err := godotenv.Load(filename); err == nil {
		return filename
	}
	if execPath, err := os.Executable(); err == nil {
		envPath := filepath.Join(filepath.Dir(execPath), filename)
		if err := godotenv.Load(envPath); err == nil {
			return envPath
		}
	}
	return ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
