package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// PollingConfig holds the tunable polling policy. The concrete numbers are
// operational policy, not invariants; only interval monotonicity and the
// attempt ceiling are relied upon.
type PollingConfig struct {
	ShortInterval     time.Duration
	MediumInterval    time.Duration
	LongInterval      time.Duration
	ShortPhase        time.Duration
	MediumPhase       time.Duration
	BoostWindow       time.Duration
	MaxAttempts       int
	TransientFailures int
	QueryTimeout      time.Duration
	LeaseSeconds      int
	ClaimBatchSize    int
	QueuedGraceSecs   int
	ResubmitAttempts  int
}

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv          string
	Port            string
	DatabaseURL     string
	RedisURL        string
	JWTSecret       string
	CallbackBaseURL string
	CallbackToken   string
	StoragePath     string
	AllowedOrigins  []string
	DefaultLocale   string

	KlingAPIKey     string
	KlingBaseURL    string
	KlingHTTPWait   time.Duration
	SubmitTimeout   time.Duration

	Polling PollingConfig

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:          getEnv("APP_ENV", "development"),
		Port:            getEnv("PORT", "8080"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisURL:        getEnv("REDIS_URL", "redis://localhost:6379/0"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		CallbackBaseURL: getEnv("CALLBACK_BASE_URL", "http://localhost:8080"),
		CallbackToken:   os.Getenv("CALLBACK_TOKEN"),
		StoragePath:     getEnv("STORAGE_PATH", "./storage"),
		AllowedOrigins:  splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		DefaultLocale:   getEnv("DEFAULT_LOCALE", "en"),

		KlingAPIKey:   os.Getenv("KLING_API_KEY"),
		KlingBaseURL:  getEnv("KLING_BASE_URL", "https://api.klingai.com/v1"),
		KlingHTTPWait: time.Second * time.Duration(getEnvInt("KLING_QUERY_TIMEOUT_SECONDS", 20)),
		SubmitTimeout: time.Second * time.Duration(getEnvInt("KLING_SUBMIT_TIMEOUT_SECONDS", 30)),

		Polling: PollingConfig{
			ShortInterval:     time.Second * time.Duration(getEnvInt("POLL_SHORT_INTERVAL_SECONDS", 2)),
			MediumInterval:    time.Second * time.Duration(getEnvInt("POLL_MEDIUM_INTERVAL_SECONDS", 5)),
			LongInterval:      time.Second * time.Duration(getEnvInt("POLL_LONG_INTERVAL_SECONDS", 10)),
			ShortPhase:        time.Minute * time.Duration(getEnvInt("POLL_SHORT_PHASE_MINUTES", 2)),
			MediumPhase:       time.Minute * time.Duration(getEnvInt("POLL_MEDIUM_PHASE_MINUTES", 10)),
			BoostWindow:       time.Second * time.Duration(getEnvInt("POLL_BOOST_WINDOW_SECONDS", 15)),
			MaxAttempts:       getEnvInt("POLL_MAX_ATTEMPTS", 400),
			TransientFailures: getEnvInt("POLL_TRANSIENT_FAILURES", 3),
			QueryTimeout:      time.Second * time.Duration(getEnvInt("POLL_QUERY_TIMEOUT_SECONDS", 20)),
			LeaseSeconds:      getEnvInt("POLL_LEASE_SECONDS", 120),
			ClaimBatchSize:    getEnvInt("POLL_CLAIM_BATCH", 10),
			QueuedGraceSecs:   getEnvInt("POLL_QUEUED_GRACE_SECONDS", 60),
			ResubmitAttempts:  getEnvInt("POLL_RESUBMIT_ATTEMPTS", 5),
		},

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
