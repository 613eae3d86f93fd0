package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/benvon/smart-tasks/internal/consolidation"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	DatabaseURL         string        `yaml:"database_url"`
	RedisURL            string        `yaml:"redis_url"`
	RedisCacheKey       string        `yaml:"redis_cache_key"`
	RabbitMQURL         string        `yaml:"rabbitmq_url"`
	RabbitMQPrefetch    int           `yaml:"rabbitmq_prefetch"`
	OpenAIKey           string        `yaml:"openai_api_key"`
	AIProvider          string        `yaml:"ai_provider"`
	AIModel             string        `yaml:"ai_model"`
	AIBaseURL           string        `yaml:"ai_base_url"`
	AIRequestsPerSecond float64       `yaml:"ai_requests_per_second"`
	ClusterBatchSize    int           `yaml:"cluster_batch_size"`
	ClusterThreshold    float64       `yaml:"cluster_threshold"`
	QuickFilterLow      float64       `yaml:"quick_filter_low"`
	QuickFilterHigh     float64       `yaml:"quick_filter_high"`
	ClusterStrategy     string        `yaml:"cluster_strategy"`
	HealthPort          string        `yaml:"health_port"`
	CORSAllowedOrigins  []string      `yaml:"cors_allowed_origins"`
	HTTPRateLimit       string        `yaml:"http_rate_limit"`
	WorkerDebugMode     bool          `yaml:"worker_debug_mode"`
	DevelopmentLogging  bool          `yaml:"development_logging"`
	OTELEnabled         bool          `yaml:"otel_enabled"`
	OTELEndpoint        string        `yaml:"otel_endpoint"`
	DLQRetention        time.Duration `yaml:"dlq_retention"`
	DLQGCInterval       time.Duration `yaml:"dlq_gc_interval"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	defaults := consolidation.DefaultConfig()
	cfg := &Config{
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		RedisURL:            getEnv("REDIS_URL", ""),
		RedisCacheKey:       getEnv("REDIS_CACHE_KEY", "smart-tasks:similarity"),
		RabbitMQURL:         getEnv("RABBITMQ_URL", ""),
		RabbitMQPrefetch:    getEnvInt("RABBITMQ_PREFETCH", 1),
		OpenAIKey:           getEnv("OPENAI_API_KEY", ""),
		AIProvider:          getEnv("AI_PROVIDER", "openai"),
		AIModel:             getEnv("AI_MODEL", ""),
		AIBaseURL:           getEnv("AI_BASE_URL", ""),
		AIRequestsPerSecond: getEnvFloat("AI_REQUESTS_PER_SECOND", 5),
		ClusterBatchSize:    getEnvInt("CLUSTER_BATCH_SIZE", defaults.BatchSize),
		ClusterThreshold:    getEnvFloat("CLUSTER_THRESHOLD", defaults.ClusterThreshold),
		QuickFilterLow:      getEnvFloat("QUICK_FILTER_LOW", defaults.QuickFilterLow),
		QuickFilterHigh:     getEnvFloat("QUICK_FILTER_HIGH", defaults.QuickFilterHigh),
		ClusterStrategy:     getEnv("CLUSTER_STRATEGY", string(defaults.Strategy)),
		HealthPort:          getEnv("HEALTH_PORT", "8081"),
		CORSAllowedOrigins:  getEnvList("CORS_ALLOWED_ORIGINS"),
		HTTPRateLimit:       getEnv("HTTP_RATE_LIMIT", "20-S"),
		WorkerDebugMode:     getEnvBool("WORKER_DEBUG_MODE", false),
		DevelopmentLogging:  getEnvBool("DEVELOPMENT_LOGGING", false),
		OTELEnabled:         getEnvBool("OTEL_ENABLED", false),
		OTELEndpoint:        getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		DLQRetention:        getEnvDuration("DLQ_RETENTION", 7*24*time.Hour),
		DLQGCInterval:       getEnvDuration("DLQ_GC_INTERVAL", time.Hour),
	}

	if err := cfg.EngineConfig().Validate(); err != nil {
		return nil, fmt.Errorf("invalid consolidation settings: %w", err)
	}

	return cfg, nil
}

// LoadFile loads the environment configuration and overlays the YAML file at path.
// Keys missing from the file keep their environment value.
func LoadFile(path string) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.EngineConfig().Validate(); err != nil {
		return nil, fmt.Errorf("invalid consolidation settings: %w", err)
	}
	return cfg, nil
}

// ValidateWorker checks the settings the queue worker cannot run without
func (c *Config) ValidateWorker() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.RabbitMQURL == "" {
		return fmt.Errorf("RABBITMQ_URL is required for job queueing")
	}
	if c.AIProvider == "openai" && c.OpenAIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER is openai")
	}
	return nil
}

// ClassifierSettings returns the provider registry settings for the configured classifier
func (c *Config) ClassifierSettings() map[string]string {
	return map[string]string{
		"api_key":             c.OpenAIKey,
		"base_url":            c.AIBaseURL,
		"model":               c.AIModel,
		"requests_per_second": strconv.FormatFloat(c.AIRequestsPerSecond, 'f', -1, 64),
		"burst":               strconv.Itoa(c.ClusterBatchSize),
		"debug":               strconv.FormatBool(c.WorkerDebugMode),
	}
}

// EngineConfig returns the consolidation settings
func (c *Config) EngineConfig() consolidation.Config {
	return consolidation.Config{
		BatchSize:        c.ClusterBatchSize,
		ClusterThreshold: c.ClusterThreshold,
		QuickFilterLow:   c.QuickFilterLow,
		QuickFilterHigh:  c.QuickFilterHigh,
		Strategy:         consolidation.Strategy(c.ClusterStrategy),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping blanks and duplicates
func getEnvList(key string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(os.Getenv(key), ",") {
		part = strings.TrimSpace(part)
		if part == "" || seen[part] {
			continue
		}
		seen[part] = true
		out = append(out, part)
	}
	return out
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

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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
