package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port           string
	Env            string
	LogLevel       string
	DatabaseURL    string
	UseMemoryQueue bool

	EngineQueueURL      string
	AWSRegion           string
	AWSEndpointOverride string

	SchedulerCron        string
	SchedulerWorkers     int
	DispatcherWorkers    int
	WebhookWorkers       int
	AutoDispatchInterval time.Duration
	DispatchBatchSize    int

	AttributionWindow        time.Duration
	ChurnSaveRetriggerWindow time.Duration

	PlatformAPIKey  string
	PlatformBaseURL string

	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string

	RedisAddr      string
	RedisPassword  string
	AccessCacheTTL time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		UseMemoryQueue: getEnvAsBool("USE_MEMORY_QUEUE", false),

		EngineQueueURL:      getEnv("ENGINE_QUEUE_URL", ""),
		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		SchedulerCron:        getEnv("SCHEDULER_CRON", "*/1 * * * *"),
		SchedulerWorkers:     getEnvAsInt("SCHEDULER_WORKERS", 1),
		DispatcherWorkers:    getEnvAsInt("DISPATCHER_WORKERS", 5),
		WebhookWorkers:       getEnvAsInt("WEBHOOK_WORKERS", 10),
		AutoDispatchInterval: getEnvAsDuration("AUTO_DISPATCH_INTERVAL", 30*time.Second),
		DispatchBatchSize:    getEnvAsInt("DISPATCH_BATCH_SIZE", 100),

		AttributionWindow:        getEnvAsDuration("ATTRIBUTION_WINDOW", 7*24*time.Hour),
		ChurnSaveRetriggerWindow: getEnvAsDuration("CHURNSAVE_RETRIGGER_WINDOW", 7*24*time.Hour),

		PlatformAPIKey:  getEnv("PLATFORM_API_KEY", ""),
		PlatformBaseURL: getEnv("PLATFORM_BASE_URL", ""),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "RevenueAngel"),

		RedisAddr:      getEnv("REDIS_ADDR", ""),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		AccessCacheTTL: getEnvAsDuration("ACCESS_CACHE_TTL", 5*time.Minute),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
