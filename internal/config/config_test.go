package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benvon/smart-tasks/internal/consolidation"
)

// These tests mutate the process environment with t.Setenv and therefore do not run in parallel.

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"DATABASE_URL", "RABBITMQ_URL", "REDIS_URL", "CLUSTER_BATCH_SIZE", "CLUSTER_THRESHOLD",
		"QUICK_FILTER_LOW", "QUICK_FILTER_HIGH", "CLUSTER_STRATEGY", "AI_PROVIDER", "DLQ_RETENTION",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if cfg.ClusterBatchSize != 5 {
		t.Errorf("Expected default ClusterBatchSize 5, got %d", cfg.ClusterBatchSize)
	}
	if cfg.ClusterThreshold != 0.8 {
		t.Errorf("Expected default ClusterThreshold 0.8, got %v", cfg.ClusterThreshold)
	}
	if cfg.QuickFilterLow != 0.3 || cfg.QuickFilterHigh != 0.9 {
		t.Errorf("Expected quick filter bounds 0.3/0.9, got %v/%v", cfg.QuickFilterLow, cfg.QuickFilterHigh)
	}
	if cfg.ClusterStrategy != "anchor" {
		t.Errorf("Expected default strategy anchor, got %s", cfg.ClusterStrategy)
	}
	if cfg.AIProvider != "openai" {
		t.Errorf("Expected default AI provider openai, got %s", cfg.AIProvider)
	}
	if cfg.DLQRetention != 7*24*time.Hour {
		t.Errorf("Expected default DLQ retention of 7 days, got %v", cfg.DLQRetention)
	}
	if cfg.RedisURL != "" {
		t.Errorf("Expected Redis cache to be disabled by default, got %q", cfg.RedisURL)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("CLUSTER_BATCH_SIZE", "8")
	t.Setenv("CLUSTER_THRESHOLD", "0.75")
	t.Setenv("CLUSTER_STRATEGY", "transitive")
	t.Setenv("WORKER_DEBUG_MODE", "yes")
	t.Setenv("DLQ_GC_INTERVAL", "15m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	engine := cfg.EngineConfig()
	if engine.BatchSize != 8 {
		t.Errorf("Expected BatchSize 8, got %d", engine.BatchSize)
	}
	if engine.ClusterThreshold != 0.75 {
		t.Errorf("Expected threshold 0.75, got %v", engine.ClusterThreshold)
	}
	if engine.Strategy != consolidation.StrategyTransitive {
		t.Errorf("Expected transitive strategy, got %s", engine.Strategy)
	}
	if !cfg.WorkerDebugMode {
		t.Error("Expected WorkerDebugMode to be true")
	}
	if cfg.DLQGCInterval != 15*time.Minute {
		t.Errorf("Expected DLQ GC interval 15m, got %v", cfg.DLQGCInterval)
	}
}

func TestLoad_InvalidEngineSettings(t *testing.T) {
	t.Setenv("CLUSTER_STRATEGY", "kmeans")

	if _, err := Load(); err == nil {
		t.Error("Expected error for unknown cluster strategy")
	}
}

func TestLoad_InvalidNumbersFallBackToDefaults(t *testing.T) {
	t.Setenv("CLUSTER_BATCH_SIZE", "five")
	t.Setenv("CLUSTER_STRATEGY", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.ClusterBatchSize != 5 {
		t.Errorf("Expected fallback BatchSize 5, got %d", cfg.ClusterBatchSize)
	}
}

func TestConfig_ValidateWorker(t *testing.T) {
	tests := []struct {
		name        string
		cfg         Config
		expectError bool
	}{
		{
			name:        "missing database",
			cfg:         Config{RabbitMQURL: "amqp://localhost", AIProvider: "offline"},
			expectError: true,
		},
		{
			name:        "missing rabbitmq",
			cfg:         Config{DatabaseURL: "postgres://localhost/db", AIProvider: "offline"},
			expectError: true,
		},
		{
			name:        "openai without key",
			cfg:         Config{DatabaseURL: "postgres://localhost/db", RabbitMQURL: "amqp://localhost", AIProvider: "openai"},
			expectError: true,
		},
		{
			name: "complete",
			cfg: Config{
				DatabaseURL: "postgres://localhost/db",
				RabbitMQURL: "amqp://localhost",
				AIProvider:  "openai",
				OpenAIKey:   "sk-test",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.ValidateWorker()
			if tt.expectError && err == nil {
				t.Error("Expected error but got nil")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestLoadFile_OverlaysYAML(t *testing.T) {
	t.Setenv("CLUSTER_STRATEGY", "")
	t.Setenv("AI_MODEL", "gpt-4o-mini")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "ai_provider: offline\ncluster_batch_size: 3\ncluster_strategy: transitive\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.AIProvider != "offline" {
		t.Errorf("Expected ai_provider from file, got %s", cfg.AIProvider)
	}
	if cfg.ClusterBatchSize != 3 {
		t.Errorf("Expected batch size from file, got %d", cfg.ClusterBatchSize)
	}
	if cfg.AIModel != "gpt-4o-mini" {
		t.Errorf("Expected AI model from environment, got %s", cfg.AIModel)
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_FLOAT", "0.42")
	t.Setenv("TEST_BAD_DURATION", "soon")

	if got := getEnvFloat("TEST_FLOAT", 1); got != 0.42 {
		t.Errorf("getEnvFloat() = %v, want 0.42", got)
	}
	if got := getEnvDuration("TEST_BAD_DURATION", time.Second); got != time.Second {
		t.Errorf("getEnvDuration() = %v, want fallback 1s", got)
	}
	if got := getEnv("TEST_KEY_NOT_SET_ANYWHERE", "default"); got != "default" {
		t.Errorf("getEnv() = %q, want default", got)
	}
}

func TestConfig_ClassifierSettings(t *testing.T) {
	cfg := &Config{OpenAIKey: "sk-test", AIModel: "gpt-4o-mini", AIRequestsPerSecond: 2.5, ClusterBatchSize: 5, WorkerDebugMode: true}

	got := cfg.ClassifierSettings()
	if got["api_key"] != "sk-test" || got["model"] != "gpt-4o-mini" {
		t.Errorf("unexpected settings %v", got)
	}
	if got["requests_per_second"] != "2.5" {
		t.Errorf("requests_per_second = %q", got["requests_per_second"])
	}
	if got["debug"] != "true" {
		t.Errorf("debug = %q", got["debug"])
	}
	if got["burst"] != "5" {
		t.Errorf("burst = %q, want the cluster batch size", got["burst"])
	}
}

func TestGetEnvList(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  []string
	}{
		{name: "unset", value: "", want: nil},
		{name: "single", value: "https://ops.example.com", want: []string{"https://ops.example.com"}},
		{name: "trims and dedups", value: " https://a.example.com, ,https://b.example.com,https://a.example.com ", want: []string{"https://a.example.com", "https://b.example.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_ENV_LIST", tt.value)
			got := getEnvList("TEST_ENV_LIST")
			if len(got) != len(tt.want) {
				t.Fatalf("getEnvList() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("getEnvList()[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestLoad_HTTPSettings(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://ops.example.com")
	t.Setenv("HTTP_RATE_LIMIT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "https://ops.example.com" {
		t.Errorf("Expected one allowed origin, got %v", cfg.CORSAllowedOrigins)
	}
	if cfg.HTTPRateLimit != "20-S" {
		t.Errorf("Expected default rate limit 20-S, got %s", cfg.HTTPRateLimit)
	}
}
