package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service configuration
type Config struct {
	Service   ServiceConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Engine    EngineConfig
	LLM       LLMConfig
	Security  SecurityConfig
	Scheduler SchedulerConfig
	RateLimit RateLimitConfig
	Telemetry TelemetryConfig
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
}

// DatabaseConfig holds Postgres connection settings.
// An empty Host selects the in-memory store.
type DatabaseConfig struct {
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// RedisConfig holds Redis connection settings.
// An empty Host disables event publishing.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// EngineConfig bounds a single workflow run
type EngineConfig struct {
	MaxSteps           int
	MaxWaitDuration    time.Duration
	CodeTimeout        time.Duration
	CodePayloadLimitMB int
	HTTPTimeout        time.Duration
}

// LLMConfig holds settings for the LLM-backed nodes
type LLMConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// SecurityConfig holds API auth and outbound request policy
type SecurityConfig struct {
	AuthToken         string
	AllowPrivateHosts bool
	BlockedHosts      []string
}

// SchedulerConfig holds cron trigger settings
type SchedulerConfig struct {
	Enabled      bool
	PollInterval time.Duration
}

// RateLimitConfig bounds run admissions. Only effective when Redis is
// configured; the counters live there.
type RateLimitConfig struct {
	Enabled      bool
	GlobalPerMin int64
}

// TelemetryConfig holds profiling settings. PprofPort 0 disables the
// pprof listener.
type TelemetryConfig struct {
	PprofPort int
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"), // Default to text for development
		},
		Database: DatabaseConfig{
			Host:        getEnv("POSTGRES_HOST", ""),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "flow"),
			User:        getEnv("POSTGRES_USER", "flow"),
			Password:    getEnv("POSTGRES_PASSWORD", "flow"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 20),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 2),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", 1*time.Hour),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", ""),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Engine: EngineConfig{
			MaxSteps:           getEnvInt("ENGINE_MAX_STEPS", 1000),
			MaxWaitDuration:    getEnvDuration("ENGINE_MAX_WAIT", 5*time.Minute),
			CodeTimeout:        getEnvDuration("ENGINE_CODE_TIMEOUT", 5*time.Second),
			CodePayloadLimitMB: getEnvInt("ENGINE_CODE_PAYLOAD_LIMIT_MB", 128),
			HTTPTimeout:        getEnvDuration("ENGINE_HTTP_TIMEOUT", 30*time.Second),
		},
		LLM: LLMConfig{
			APIKey:  getEnv("GOOGLE_AI_API_KEY", getEnv("WORKFLOW_LLM_API_KEY", "")),
			BaseURL: getEnv("WORKFLOW_LLM_BASE_URL", "https://generativelanguage.googleapis.com/v1beta/openai/"),
			Model:   getEnv("WORKFLOW_LLM_MODEL", "gemini-2.0-flash"),
		},
		Security: SecurityConfig{
			AuthToken:         getEnv("WORKFLOW_AUTH_TOKEN", ""),
			AllowPrivateHosts: getEnvBool("WORKFLOW_ALLOW_PRIVATE_HOSTS", true),
			BlockedHosts:      getEnvSlice("WORKFLOW_BLOCKED_HOSTS", nil),
		},
		Scheduler: SchedulerConfig{
			Enabled:      getEnvBool("SCHEDULER_ENABLED", false),
			PollInterval: getEnvDuration("SCHEDULER_POLL_INTERVAL", 1*time.Minute),
		},
		RateLimit: RateLimitConfig{
			Enabled:      getEnvBool("RATE_LIMIT_ENABLED", false),
			GlobalPerMin: int64(getEnvInt("RATE_LIMIT_GLOBAL_PER_MIN", 100)),
		},
		Telemetry: TelemetryConfig{
			PprofPort: getEnvInt("PPROF_PORT", 0),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.Database.Host != "" && c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns must be >= min_conns")
	}

	if c.Engine.MaxSteps < 1 {
		return fmt.Errorf("engine max steps must be positive")
	}

	if c.Engine.MaxWaitDuration <= 0 {
		return fmt.Errorf("engine max wait must be positive")
	}

	if c.Engine.CodeTimeout <= 0 {
		return fmt.Errorf("engine code timeout must be positive")
	}

	return nil
}

// HasDatabase reports whether a Postgres store is configured
func (c *Config) HasDatabase() bool {
	return c.Database.Host != ""
}

// HasRedis reports whether event publishing is configured
func (c *Config) HasRedis() bool {
	return c.Redis.Host != ""
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// RedisAddr returns the Redis host:port address
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out
	}
	return defaultValue
}
