package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the dealerdial server.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Telephony TelephonyConfig
	AI        AIConfig
	Outreach  OutreachConfig
	Archive   ArchiveConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrationsPath  string
}

type RedisConfig struct {
	URL string
}

type TelephonyConfig struct {
	Provider        string // "http" or "simulated"
	BaseURL         string
	APIKey          string
	WebhookSecret   string
	CallbackBaseURL string
	Timeout         time.Duration
	DialRatePerSec  float64
	DialBurst       int
	DefaultRegion   string
}

type AIConfig struct {
	Provider          string
	InferenceTimeout  time.Duration
	FallbackHeuristic bool
	OpenAI            OpenAIConfig
}

// OpenAIConfig also covers Ollama and vLLM through their OpenAI-compatible
// endpoints; set BaseURL accordingly.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type OutreachConfig struct {
	ConcurrencyLimit int
	TaskTimeout      time.Duration
	RunDeadline      time.Duration
	CancelGrace      time.Duration
	PublishTimeout   time.Duration
	StreamBuffer     int
	TopN             int
	WeightsFile      string
}

// ArchiveConfig is optional; an empty Endpoint disables transcript archiving.
type ArchiveConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type RateLimitConfig struct {
	RequestsPerMinute int
	AnalyzePerHour    int
}

var validAIProviders = map[string]bool{
	"openai":    true,
	"heuristic": true,
}

var validTelephonyProviders = map[string]bool{
	"http":      true,
	"simulated": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// A .env file in the working directory is loaded first when present; real
// environment variables take precedence over it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("DEALERDIAL_PORT", 8080),
			Env:  envString("DEALERDIAL_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			MigrationsPath:  envString("DATABASE_MIGRATIONS_PATH", "migrations"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Telephony: TelephonyConfig{
			Provider:        envString("TELEPHONY_PROVIDER", "http"),
			BaseURL:         os.Getenv("TELEPHONY_BASE_URL"),
			APIKey:          os.Getenv("TELEPHONY_API_KEY"),
			WebhookSecret:   os.Getenv("TELEPHONY_WEBHOOK_SECRET"),
			CallbackBaseURL: os.Getenv("TELEPHONY_CALLBACK_BASE_URL"),
			Timeout:         envDuration("TELEPHONY_TIMEOUT", 30*time.Second),
			DialRatePerSec:  envFloat("TELEPHONY_DIAL_RATE_PER_SEC", 1),
			DialBurst:       envInt("TELEPHONY_DIAL_BURST", 3),
			DefaultRegion:   envString("TELEPHONY_DEFAULT_REGION", "US"),
		},
		AI: AIConfig{
			Provider:          envString("AI_PROVIDER", "heuristic"),
			InferenceTimeout:  envDurationSecs("AI_INFERENCE_TIMEOUT_SECS", 60*time.Second),
			FallbackHeuristic: envBool("AI_FALLBACK_HEURISTIC", true),
			OpenAI: OpenAIConfig{
				APIKey:  os.Getenv("OPENAI_API_KEY"),
				Model:   envString("OPENAI_MODEL", "gpt-4o-mini"),
				BaseURL: os.Getenv("OPENAI_BASE_URL"),
			},
		},
		Outreach: OutreachConfig{
			ConcurrencyLimit: envInt("OUTREACH_CONCURRENCY_LIMIT", 3),
			TaskTimeout:      envDuration("OUTREACH_TASK_TIMEOUT", 10*time.Minute),
			RunDeadline:      envDuration("OUTREACH_RUN_DEADLINE", 30*time.Minute),
			CancelGrace:      envDuration("OUTREACH_CANCEL_GRACE", 5*time.Second),
			PublishTimeout:   envDuration("OUTREACH_PUBLISH_TIMEOUT", 5*time.Second),
			StreamBuffer:     envInt("OUTREACH_STREAM_BUFFER", 64),
			TopN:             envInt("OUTREACH_TOP_N", 3),
			WeightsFile:      os.Getenv("RANKING_WEIGHTS_FILE"),
		},
		Archive: ArchiveConfig{
			Endpoint:  os.Getenv("ARCHIVE_ENDPOINT"),
			AccessKey: os.Getenv("ARCHIVE_ACCESS_KEY"),
			SecretKey: os.Getenv("ARCHIVE_SECRET_KEY"),
			Bucket:    envString("ARCHIVE_BUCKET", "call-transcripts"),
			UseSSL:    envBool("ARCHIVE_USE_SSL", false),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: envInt("RATE_LIMIT_REQUESTS_PER_MINUTE", 120),
			AnalyzePerHour:    envInt("RATE_LIMIT_ANALYZE_PER_HOUR", 20),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if !validTelephonyProviders[c.Telephony.Provider] {
		return fmt.Errorf("TELEPHONY_PROVIDER must be one of http, simulated; got %q", c.Telephony.Provider)
	}
	if c.Telephony.Provider == "http" {
		if c.Telephony.BaseURL == "" {
			return fmt.Errorf("TELEPHONY_BASE_URL is required when TELEPHONY_PROVIDER is http")
		}
		if !isHTTPURL(c.Telephony.BaseURL) {
			return fmt.Errorf("TELEPHONY_BASE_URL must start with http:// or https://, got %q", c.Telephony.BaseURL)
		}
		if c.Telephony.WebhookSecret == "" {
			return fmt.Errorf("TELEPHONY_WEBHOOK_SECRET is required when TELEPHONY_PROVIDER is http")
		}
	}
	if c.Telephony.DialRatePerSec <= 0 {
		return fmt.Errorf("TELEPHONY_DIAL_RATE_PER_SEC must be positive, got %v", c.Telephony.DialRatePerSec)
	}
	if c.Telephony.DialBurst < 1 {
		return fmt.Errorf("TELEPHONY_DIAL_BURST must be at least 1, got %d", c.Telephony.DialBurst)
	}

	if !validAIProviders[c.AI.Provider] {
		return fmt.Errorf("AI_PROVIDER must be one of openai, heuristic; got %q", c.AI.Provider)
	}
	if c.AI.Provider == "openai" && c.AI.OpenAI.APIKey == "" && c.AI.OpenAI.BaseURL == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER is openai and OPENAI_BASE_URL is unset")
	}

	if c.Outreach.ConcurrencyLimit < 1 {
		return fmt.Errorf("OUTREACH_CONCURRENCY_LIMIT must be at least 1, got %d", c.Outreach.ConcurrencyLimit)
	}
	if c.Outreach.TopN < 1 {
		return fmt.Errorf("OUTREACH_TOP_N must be at least 1, got %d", c.Outreach.TopN)
	}
	if c.Outreach.TaskTimeout <= 0 || c.Outreach.RunDeadline <= 0 {
		return fmt.Errorf("OUTREACH_TASK_TIMEOUT and OUTREACH_RUN_DEADLINE must be positive")
	}
	if c.Outreach.RunDeadline < c.Outreach.TaskTimeout {
		return fmt.Errorf("OUTREACH_RUN_DEADLINE (%s) must not be shorter than OUTREACH_TASK_TIMEOUT (%s)",
			c.Outreach.RunDeadline, c.Outreach.TaskTimeout)
	}

	if c.Archive.Endpoint != "" && (c.Archive.AccessKey == "" || c.Archive.SecretKey == "") {
		return fmt.Errorf("ARCHIVE_ACCESS_KEY and ARCHIVE_SECRET_KEY are required when ARCHIVE_ENDPOINT is set")
	}

	return nil
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
