// Package config loads the daemon's configuration from a YAML file, then
// applies environment variable overrides, following the teacher's
// daemon.Config pattern of DefaultConfig + LoadConfig(path) + env overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config groups the control plane's tunables by concern, mirroring the
// teacher's grouped-by-comment-section struct layout.
type Config struct {
	// Required
	DatabaseURL string `yaml:"database_url"`
	ListenAddr  string `yaml:"listen_addr"`

	// Timing
	WorkerPoolSize       int           `yaml:"worker_pool_size"`
	SchedulerTickSeconds int           `yaml:"scheduler_tick_seconds"`
	DefaultStepTimeout   time.Duration `yaml:"default_step_timeout"`

	// Redis (optional — in-process fallback used when unset)
	RedisAddr string `yaml:"redis_addr"`

	// Safety
	ApprovalTimeoutMinutes int `yaml:"approval_timeout_minutes"`

	// Global circuit breaker — tripped by failures across every runbook on
	// a server, independent of any single runbook's own breaker.
	GlobalBreakerFailureThreshold     int `yaml:"global_breaker_failure_threshold"`
	GlobalBreakerFailureWindowMinutes int `yaml:"global_breaker_failure_window_minutes"`
	GlobalBreakerOpenDurationMinutes  int `yaml:"global_breaker_open_duration_minutes"`

	// LLM analyzer (optional — /api/alerts/{id}/analyze 404s when unset)
	LLMAnalyzerEndpoint string `yaml:"llm_analyzer_endpoint"`

	// Auth
	APIBearerToken string `yaml:"api_bearer_token"`
	WebhookToken   string `yaml:"webhook_token"`

	// Secrets
	MasterKeyHex string `yaml:"-"`

	// Logging
	Production bool `yaml:"production"`

	// Migrations
	MigrationsPath string `yaml:"migrations_path"`
}

// Default returns the built-in defaults, overridden by file and environment
// in Load.
func Default() *Config {
	return &Config{
		ListenAddr:             ":8443",
		WorkerPoolSize:         8,
		SchedulerTickSeconds:   30,
		DefaultStepTimeout:     5 * time.Minute,
		ApprovalTimeoutMinutes: 60,
		MigrationsPath:         "internal/store/migrations",

		GlobalBreakerFailureThreshold:     10,
		GlobalBreakerFailureWindowMinutes: 15,
		GlobalBreakerOpenDurationMinutes:  30,
	}
}

// Load reads path (if non-empty) as YAML over the defaults, loads a
// .env file from the working directory if present, then applies environment variable
// overrides — the same three-layer precedence as the teacher's
// LoadConfig.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	_ = godotenv.Load() // optional .env; absence is not an error

	applyEnvOverrides(cfg)

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database_url is required (set in config file or DATABASE_URL env)")
	}
	if cfg.MasterKeyHex == "" {
		return nil, fmt.Errorf("REMEDIATOR_MASTER_KEY is required")
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("API_BEARER_TOKEN"); v != "" {
		cfg.APIBearerToken = v
	}
	if v := os.Getenv("WEBHOOK_TOKEN"); v != "" {
		cfg.WebhookToken = v
	}
	if v := os.Getenv("REMEDIATOR_MASTER_KEY"); v != "" {
		cfg.MasterKeyHex = v
	}
	if v := os.Getenv("WORKER_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WorkerPoolSize = n
		}
	}
	if v := os.Getenv("REMEDIATOR_ENV"); v != "" {
		cfg.Production = v == "production"
	}
	if v := os.Getenv("LLM_ANALYZER_ENDPOINT"); v != "" {
		cfg.LLMAnalyzerEndpoint = v
	}
}
