package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Browser   BrowserConfig   `yaml:"browser" toml:"browser"`
	Pool      PoolConfig      `yaml:"pool" toml:"pool"`
	Executor  ExecutorConfig  `yaml:"executor" toml:"executor"`
	Fetch     FetchConfig     `yaml:"fetch" toml:"fetch"`
	Cache     CacheConfig     `yaml:"cache" toml:"cache"`
	History   HistoryConfig   `yaml:"history" toml:"history"`
	Logging   LogConfig       `yaml:"logging" toml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit" toml:"rate_limit"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"5000" yaml:"port" toml:"port"`
	Host string `envconfig:"HOST" default:"0.0.0.0" yaml:"host" toml:"host"`

	// AllowedHosts restricts navigation targets; glob patterns, "*" allows all.
	AllowedHosts []string `envconfig:"ALLOWED_HOSTS" default:"*" yaml:"allowed_hosts" toml:"allowed_hosts"`
}

// BrowserConfig holds headless browser configuration.
type BrowserConfig struct {
	// Binary overrides browser discovery; empty probes well-known names on PATH.
	Binary         string        `envconfig:"BROWSER_BIN" yaml:"binary" toml:"binary"`
	Headless       bool          `envconfig:"BROWSER_HEADLESS" default:"true" yaml:"headless" toml:"headless"`
	UserAgent      string        `envconfig:"BROWSER_USER_AGENT" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36" yaml:"user_agent" toml:"user_agent"`
	ExtraArgs      []string      `envconfig:"BROWSER_ARGS" yaml:"extra_args" toml:"extra_args"`
	DebugPortBase  int           `envconfig:"BROWSER_DEBUG_PORT" default:"9222" yaml:"debug_port_base" toml:"debug_port_base"`
	StartupTimeout time.Duration `envconfig:"BROWSER_STARTUP_TIMEOUT" default:"20s" yaml:"startup_timeout" toml:"startup_timeout"`
}

// PoolConfig holds browser session pool configuration.
type PoolConfig struct {
	MaxSessions              int           `envconfig:"POOL_MAX_SESSIONS" default:"4" yaml:"max_sessions" toml:"max_sessions"`
	WarmSessions             int           `envconfig:"POOL_WARM_SESSIONS" default:"0" yaml:"warm_sessions" toml:"warm_sessions"`
	AcquireTimeout           time.Duration `envconfig:"POOL_ACQUIRE_TIMEOUT" default:"30s" yaml:"acquire_timeout" toml:"acquire_timeout"`
	IdleTimeout              time.Duration `envconfig:"POOL_IDLE_TIMEOUT" default:"5m" yaml:"idle_timeout" toml:"idle_timeout"`
	MaxFailuresBeforeRecycle int           `envconfig:"POOL_MAX_FAILURES" default:"1" yaml:"max_failures_before_recycle" toml:"max_failures_before_recycle"`
}

// ExecutorConfig holds task execution configuration.
type ExecutorConfig struct {
	StepTimeout    time.Duration `envconfig:"TASK_STEP_TIMEOUT" default:"10s" yaml:"step_timeout" toml:"step_timeout"`
	TaskTimeout    time.Duration `envconfig:"TASK_TIMEOUT" default:"60s" yaml:"task_timeout" toml:"task_timeout"`
	RetryTransient bool          `envconfig:"TASK_RETRY_TRANSIENT" default:"true" yaml:"retry_transient" toml:"retry_transient"`
}

// FetchConfig holds the static HTTP fetch path configuration.
type FetchConfig struct {
	Timeout      time.Duration `envconfig:"FETCH_TIMEOUT" default:"30s" yaml:"timeout" toml:"timeout"`
	RetryMax     int           `envconfig:"FETCH_RETRY_MAX" default:"3" yaml:"retry_max" toml:"retry_max"`
	TikTokCookie string        `envconfig:"TIKTOK_COOKIE" yaml:"tiktok_cookie" toml:"tiktok_cookie"`
}

// CacheConfig holds extraction result cache configuration.
type CacheConfig struct {
	Enabled       bool          `envconfig:"CACHE_ENABLED" default:"false" yaml:"enabled" toml:"enabled"`
	RedisAddr     string        `envconfig:"REDIS_ADDR" default:"localhost:6379" yaml:"redis_addr" toml:"redis_addr"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD" yaml:"redis_password" toml:"redis_password"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0" yaml:"redis_db" toml:"redis_db"`
	TTL           time.Duration `envconfig:"CACHE_TTL" default:"15m" yaml:"ttl" toml:"ttl"`
}

// HistoryConfig holds task history storage configuration.
type HistoryConfig struct {
	Enabled bool   `envconfig:"HISTORY_ENABLED" default:"true" yaml:"enabled" toml:"enabled"`
	Path    string `envconfig:"HISTORY_DB" default:"data/history.db" yaml:"path" toml:"path"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info" yaml:"level" toml:"level"`
	Development bool   `envconfig:"LOG_DEV" default:"false" yaml:"development" toml:"development"`
	FilePath    string `envconfig:"LOG_FILE" yaml:"file_path" toml:"file_path"`
}

// RateLimitConfig holds per-client rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100" yaml:"requests_per_second" toml:"requests_per_second"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200" yaml:"burst" toml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true" yaml:"enabled" toml:"enabled"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Validate rejects values the pool and executor cannot operate with.
func (c *Config) Validate() error {
	if c.Pool.MaxSessions < 1 {
		return fmt.Errorf("invalid config: POOL_MAX_SESSIONS must be >= 1, got %d", c.Pool.MaxSessions)
	}
	if c.Pool.WarmSessions < 0 || c.Pool.WarmSessions > c.Pool.MaxSessions {
		return fmt.Errorf("invalid config: POOL_WARM_SESSIONS must be within [0, %d], got %d", c.Pool.MaxSessions, c.Pool.WarmSessions)
	}
	if c.Pool.MaxFailuresBeforeRecycle < 0 {
		return fmt.Errorf("invalid config: POOL_MAX_FAILURES must be >= 0, got %d", c.Pool.MaxFailuresBeforeRecycle)
	}
	if c.Pool.AcquireTimeout <= 0 || c.Pool.IdleTimeout <= 0 {
		return fmt.Errorf("invalid config: pool timeouts must be positive")
	}
	if c.Browser.StartupTimeout <= 0 {
		return fmt.Errorf("invalid config: BROWSER_STARTUP_TIMEOUT must be positive")
	}
	if c.Executor.StepTimeout <= 0 || c.Executor.TaskTimeout <= 0 {
		return fmt.Errorf("invalid config: task timeouts must be positive")
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         "5000",
			Host:         "0.0.0.0",
			AllowedHosts: []string{"*"},
		},
		Browser: BrowserConfig{
			Headless:       true,
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
			DebugPortBase:  9222,
			StartupTimeout: 20 * time.Second,
		},
		Pool: PoolConfig{
			MaxSessions:              4,
			WarmSessions:             0,
			AcquireTimeout:           30 * time.Second,
			IdleTimeout:              5 * time.Minute,
			MaxFailuresBeforeRecycle: 1,
		},
		Executor: ExecutorConfig{
			StepTimeout:    10 * time.Second,
			TaskTimeout:    60 * time.Second,
			RetryTransient: true,
		},
		Fetch: FetchConfig{
			Timeout:  30 * time.Second,
			RetryMax: 3,
		},
		Cache: CacheConfig{
			Enabled:   false,
			RedisAddr: "localhost:6379",
			TTL:       15 * time.Minute,
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    "data/history.db",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
