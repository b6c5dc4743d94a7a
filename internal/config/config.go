package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all engine configuration.
type Config struct {
	Engine   EngineConfig
	Security SecurityConfig
	Logging  LogConfig
}

// EngineConfig holds script-execution tunables.
type EngineConfig struct {
	PoolSize           int    `envconfig:"ENGINE_POOL_SIZE" default:"8" toml:"pool_size"`
	AcquireWaitMs      int64  `envconfig:"ENGINE_ACQUIRE_WAIT_MS" default:"100" toml:"acquire_wait_ms"`
	SearchTimeoutMs    int64  `envconfig:"ENGINE_SEARCH_TIMEOUT_MS" default:"30000" toml:"search_timeout_ms"`
	DetailTimeoutMs    int64  `envconfig:"ENGINE_DETAIL_TIMEOUT_MS" default:"20000" toml:"detail_timeout_ms"`
	MaxTimeoutMs       int64  `envconfig:"ENGINE_MAX_TIMEOUT_MS" default:"120000" toml:"max_timeout_ms"`
	InstructionCeiling int64  `envconfig:"ENGINE_INSTRUCTION_CEILING" default:"2000000" toml:"instruction_ceiling"`
	BatchParallelism   int    `envconfig:"ENGINE_BATCH_PARALLELISM" default:"6" toml:"batch_parallelism"`
	SelfTestKeyword    string `envconfig:"ENGINE_SELFTEST_KEYWORD" default:"the" toml:"selftest_keyword"`
}

// SecurityConfig holds sandbox and policy tunables.
type SecurityConfig struct {
	SandboxRoot     string   `envconfig:"SECURITY_SANDBOX_ROOT" default:"/var/lib/papyr/sandbox" toml:"sandbox_root"`
	StateFile       string   `envconfig:"SECURITY_STATE_FILE" default:"/var/lib/papyr/policy.toml" toml:"state_file"`
	BlockedDomains  []string `envconfig:"SECURITY_BLOCKED_DOMAINS" toml:"blocked_domains"`
	MaxResponseSize int64    `envconfig:"SECURITY_MAX_RESPONSE_SIZE" default:"10485760" toml:"max_response_size"`
	MaxHTTPRequests int64    `envconfig:"SECURITY_MAX_HTTP_REQUESTS" default:"100" toml:"max_http_requests"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info" toml:"level"`
	Development bool   `envconfig:"LOG_DEV" default:"false" toml:"development"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadFile loads configuration from environment, then overlays the TOML
// file at path. File values win over environment values.
func LoadFile(path string) (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			PoolSize:           8,
			AcquireWaitMs:      100,
			SearchTimeoutMs:    30000,
			DetailTimeoutMs:    20000,
			MaxTimeoutMs:       120000,
			InstructionCeiling: 2000000,
			BatchParallelism:   6,
			SelfTestKeyword:    "the",
		},
		Security: SecurityConfig{
			SandboxRoot:     "/var/lib/papyr/sandbox",
			StateFile:       "/var/lib/papyr/policy.toml",
			MaxResponseSize: 10 * 1024 * 1024,
			MaxHTTPRequests: 100,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
	}
}
