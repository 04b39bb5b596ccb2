package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// generateWorkerID creates a unique worker ID using hostname and PID
func generateWorkerID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "worker"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

type Config struct {
	Port        string
	Environment string
	LogLevel    string

	// Database
	DatabaseURL string
	RedisURL    string

	// Service auth
	ServiceTokenSecret string

	// Credential encryption
	EncryptionKey string

	// OAuth (XOAUTH2 mailboxes)
	OAuthClientID     string
	OAuthClientSecret string
	OAuthTokenURL     string

	// OpenAI
	OpenAIAPIKey   string
	LLMModel       string
	LLMMaxTokens   int
	LLMTemperature float64
	LLMTimeoutSec  int
	LLMMaxRetries  int

	// Sync
	SyncInterval       time.Duration
	MailboxTimeout     time.Duration
	MailboxConcurrency int
	StaleRunAge        time.Duration

	// Mailbox failure backoff
	CooldownBase time.Duration
	CooldownMax  time.Duration

	// Dispatch
	DispatchMaxAttempts int
	DispatchRetryBase   time.Duration
	DispatchRetryMax    time.Duration
	DispatchSweep       time.Duration

	// SMTP
	SMTPTimeout time.Duration

	// Worker
	WorkerID        string
	WorkerMin       int
	WorkerMax       int
	WorkerQueueSize int

	// Consumer (Redis Stream)
	ConsumerBatchSize       int
	ConsumerBlockMS         int
	ConsumerMaxRetries      int
	ConsumerPendingCheckSec int
	ConsumerRetryDelaySec   int

	// Scheduler
	SchedulerEnabled bool
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),

		// Service auth
		ServiceTokenSecret: getEnv("SERVICE_TOKEN_SECRET", ""),

		// Credential encryption
		EncryptionKey: getEnv("CREDENTIAL_ENCRYPTION_KEY", ""),

		// OAuth
		OAuthClientID:     getEnv("OAUTH_CLIENT_ID", ""),
		OAuthClientSecret: getEnv("OAUTH_CLIENT_SECRET", ""),
		OAuthTokenURL:     getEnv("OAUTH_TOKEN_URL", "https://oauth2.googleapis.com/token"),

		// OpenAI
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		LLMModel:       getEnv("LLM_MODEL", "gpt-4o-mini"),
		LLMMaxTokens:   getEnvInt("LLM_MAX_TOKENS", 1024),
		LLMTemperature: getEnvFloat("LLM_TEMPERATURE", 0.3),
		LLMTimeoutSec:  getEnvInt("LLM_TIMEOUT_SEC", 60),
		LLMMaxRetries:  getEnvInt("LLM_MAX_RETRIES", 3),

		// Sync
		SyncInterval:       getEnvDuration("SYNC_INTERVAL", 7*time.Second),
		MailboxTimeout:     getEnvDuration("MAILBOX_TIMEOUT", 60*time.Second),
		MailboxConcurrency: getEnvInt("MAILBOX_CONCURRENCY", 4),
		StaleRunAge:        getEnvDuration("STALE_RUN_AGE", 10*time.Minute),

		// Mailbox failure backoff
		CooldownBase: getEnvDuration("MAILBOX_COOLDOWN_BASE", 30*time.Second),
		CooldownMax:  getEnvDuration("MAILBOX_COOLDOWN_MAX", 10*time.Minute),

		// Dispatch
		DispatchMaxAttempts: getEnvInt("DISPATCH_MAX_ATTEMPTS", 5),
		DispatchRetryBase:   getEnvDuration("DISPATCH_RETRY_BASE", 15*time.Second),
		DispatchRetryMax:    getEnvDuration("DISPATCH_RETRY_MAX", 10*time.Minute),
		DispatchSweep:       getEnvDuration("DISPATCH_SWEEP_INTERVAL", 30*time.Second),

		// SMTP
		SMTPTimeout: getEnvDuration("SMTP_TIMEOUT", 30*time.Second),

		// Worker
		WorkerID:        getEnv("WORKER_ID", generateWorkerID()),
		WorkerMin:       getEnvInt("WORKER_MIN", 2),
		WorkerMax:       getEnvInt("WORKER_MAX", 10),
		WorkerQueueSize: getEnvInt("WORKER_QUEUE_SIZE", 500),

		// Consumer
		ConsumerBatchSize:       getEnvInt("CONSUMER_BATCH_SIZE", 20),
		ConsumerBlockMS:         getEnvInt("CONSUMER_BLOCK_MS", 5000),
		ConsumerMaxRetries:      getEnvInt("CONSUMER_MAX_RETRIES", 3),
		ConsumerPendingCheckSec: getEnvInt("CONSUMER_PENDING_CHECK_SEC", 60),
		ConsumerRetryDelaySec:   getEnvInt("CONSUMER_RETRY_DELAY_SEC", 5),

		// Scheduler
		SchedulerEnabled: getEnvBool("SCHEDULER_ENABLED", true),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.EncryptionKey == "" {
		return nil, fmt.Errorf("CREDENTIAL_ENCRYPTION_KEY is required")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
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

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
