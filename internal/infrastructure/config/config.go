package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	NATS     NATSConfig     `mapstructure:"nats"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Security SecurityConfig `mapstructure:"security"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Chat     ChatConfig     `mapstructure:"chat"`
	Events   EventsConfig   `mapstructure:"events"`
}

// AppConfig holds application-specific configuration
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	Host         string        `mapstructure:"host"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`
}

// RedisConfig holds configuration for the shared key/value store that
// backs the idempotency ledger and the chat rate limiter.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// NATSConfig holds event bus configuration
type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	StreamMaxAge  time.Duration `mapstructure:"stream_max_age"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret    string        `mapstructure:"secret"`
	ExpiresIn time.Duration `mapstructure:"expires_in"`
	Issuer    string        `mapstructure:"issuer"`
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	CORSAllowedOrigins string        `mapstructure:"cors_allowed_origins"`
	IPRateLimit        int           `mapstructure:"ip_rate_limit"`
	RateLimitRequests  int           `mapstructure:"rate_limit_requests"`
	RateLimitWindow    time.Duration `mapstructure:"rate_limit_window"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// ChatConfig holds the reasoning shell and chat cycle knobs.
type ChatConfig struct {
	IntentConfidenceThreshold float64           `mapstructure:"intent_confidence_threshold"`
	MaxAmbiguityAttempts      int               `mapstructure:"max_ambiguity_attempts"`
	ContextWindowSize         int               `mapstructure:"context_window_size"`
	ToolResponseTimeout       time.Duration     `mapstructure:"tool_response_timeout"`
	ResponseTemplates         map[string]string `mapstructure:"response_templates"`
}

// EventsConfig holds consumer-side event handling configuration.
type EventsConfig struct {
	Source          string        `mapstructure:"source"`
	IdempotencyTTL  time.Duration `mapstructure:"idempotency_ttl"`
	RetryAttempts   int           `mapstructure:"retry_attempts"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`
	TaskTopic       string        `mapstructure:"task_topic"`
	ReminderTopic   string        `mapstructure:"reminder_topic"`
	RecurrenceTopic string        `mapstructure:"recurrence_topic"`
	NotifyTopic     string        `mapstructure:"notify_topic"`
}

// Load loads configuration from various sources
func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors)
	_ = godotenv.Load()

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()
	bindEnvVars()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	// App defaults
	viper.SetDefault("app.name", "TaskForge")
	viper.SetDefault("app.version", "1.0.0")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("app.debug", false)

	// Server defaults
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.name", "taskforge")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 10)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("database.conn_max_idle_time", "30s")
	viper.SetDefault("database.query_timeout", "30s")

	// Redis defaults
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// NATS defaults
	viper.SetDefault("nats.url", "nats://localhost:4222")
	viper.SetDefault("nats.stream_max_age", "168h")
	viper.SetDefault("nats.reconnect_wait", "2s")

	// JWT defaults
	viper.SetDefault("jwt.secret", "change-me")
	viper.SetDefault("jwt.expires_in", "24h")
	viper.SetDefault("jwt.issuer", "taskforge-api")

	// Logger defaults
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.format", "json")
	viper.SetDefault("logger.output", "stdout")

	// Security defaults
	viper.SetDefault("security.cors_allowed_origins", "*")
	viper.SetDefault("security.ip_rate_limit", 100)
	viper.SetDefault("security.rate_limit_requests", 10)
	viper.SetDefault("security.rate_limit_window", "60s")

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)

	// Chat defaults
	viper.SetDefault("chat.intent_confidence_threshold", 0.6)
	viper.SetDefault("chat.max_ambiguity_attempts", 3)
	viper.SetDefault("chat.context_window_size", 10)
	viper.SetDefault("chat.tool_response_timeout", "30s")
	viper.SetDefault("chat.response_templates", map[string]string{})

	// Events defaults
	viper.SetDefault("events.source", "taskforge-api")
	viper.SetDefault("events.idempotency_ttl", "168h")
	viper.SetDefault("events.retry_attempts", 3)
	viper.SetDefault("events.retry_backoff", "1s")
	viper.SetDefault("events.task_topic", "task.events")
	viper.SetDefault("events.reminder_topic", "reminder.events")
	viper.SetDefault("events.recurrence_topic", "recurrence.events")
	viper.SetDefault("events.notify_topic", "notification.events")
}

func bindEnvVars() {
	// App
	viper.BindEnv("app.name", "APP_NAME")
	viper.BindEnv("app.version", "APP_VERSION")
	viper.BindEnv("app.environment", "APP_ENVIRONMENT")
	viper.BindEnv("app.debug", "APP_DEBUG")

	// Server
	viper.BindEnv("server.port", "SERVER_PORT")
	viper.BindEnv("server.host", "SERVER_HOST")
	viper.BindEnv("server.read_timeout", "SERVER_READ_TIMEOUT")
	viper.BindEnv("server.write_timeout", "SERVER_WRITE_TIMEOUT")
	viper.BindEnv("server.idle_timeout", "SERVER_IDLE_TIMEOUT")

	// Database
	viper.BindEnv("database.host", "DB_HOST")
	viper.BindEnv("database.port", "DB_PORT")
	viper.BindEnv("database.name", "DB_NAME")
	viper.BindEnv("database.user", "DB_USER")
	viper.BindEnv("database.password", "DB_PASSWORD")
	viper.BindEnv("database.ssl_mode", "DB_SSL_MODE")
	viper.BindEnv("database.max_open_conns", "DB_MAX_OPEN_CONNS")
	viper.BindEnv("database.max_idle_conns", "DB_MAX_IDLE_CONNS")
	viper.BindEnv("database.conn_max_lifetime", "DB_CONN_MAX_LIFETIME")
	viper.BindEnv("database.conn_max_idle_time", "DB_CONN_MAX_IDLE_TIME")
	viper.BindEnv("database.query_timeout", "DB_QUERY_TIMEOUT")

	// Redis
	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	// NATS
	viper.BindEnv("nats.url", "NATS_URL")
	viper.BindEnv("nats.stream_max_age", "NATS_STREAM_MAX_AGE")
	viper.BindEnv("nats.reconnect_wait", "NATS_RECONNECT_WAIT")

	// JWT
	viper.BindEnv("jwt.secret", "JWT_SECRET")
	viper.BindEnv("jwt.expires_in", "JWT_EXPIRES_IN")
	viper.BindEnv("jwt.issuer", "JWT_ISSUER")

	// Logger
	viper.BindEnv("logger.level", "LOG_LEVEL")
	viper.BindEnv("logger.format", "LOG_FORMAT")
	viper.BindEnv("logger.output", "LOG_OUTPUT")

	// Security
	viper.BindEnv("security.cors_allowed_origins", "CORS_ALLOWED_ORIGINS")
	viper.BindEnv("security.ip_rate_limit", "IP_RATE_LIMIT")
	viper.BindEnv("security.rate_limit_requests", "RATE_LIMIT_REQUESTS")
	viper.BindEnv("security.rate_limit_window", "RATE_LIMIT_WINDOW")

	// Metrics
	viper.BindEnv("metrics.enabled", "ENABLE_METRICS")

	// Chat
	viper.BindEnv("chat.intent_confidence_threshold", "CHAT_INTENT_CONFIDENCE_THRESHOLD")
	viper.BindEnv("chat.max_ambiguity_attempts", "CHAT_MAX_AMBIGUITY_ATTEMPTS")
	viper.BindEnv("chat.context_window_size", "CHAT_CONTEXT_WINDOW_SIZE")
	viper.BindEnv("chat.tool_response_timeout", "CHAT_TOOL_RESPONSE_TIMEOUT")

	// Events
	viper.BindEnv("events.source", "EVENTS_SOURCE")
	viper.BindEnv("events.idempotency_ttl", "EVENTS_IDEMPOTENCY_TTL")
	viper.BindEnv("events.retry_attempts", "EVENTS_RETRY_ATTEMPTS")
	viper.BindEnv("events.retry_backoff", "EVENTS_RETRY_BACKOFF")
	viper.BindEnv("events.task_topic", "EVENTS_TASK_TOPIC")
	viper.BindEnv("events.reminder_topic", "EVENTS_REMINDER_TOPIC")
	viper.BindEnv("events.recurrence_topic", "EVENTS_RECURRENCE_TOPIC")
	viper.BindEnv("events.notify_topic", "EVENTS_NOTIFY_TOPIC")
}

func validateConfig(cfg *Config) error {
	if cfg.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if cfg.Database.Name == "" {
		return fmt.Errorf("database name is required")
	}

	if cfg.JWT.Secret == "" || cfg.JWT.Secret == "change-me" {
		return fmt.Errorf("JWT secret must be set and should not use default value")
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535")
	}

	if cfg.Chat.IntentConfidenceThreshold < 0 || cfg.Chat.IntentConfidenceThreshold > 1 {
		return fmt.Errorf("chat intent confidence threshold must be within [0,1]")
	}

	if cfg.Events.RetryAttempts < 1 {
		return fmt.Errorf("events retry attempts must be at least 1")
	}

	return nil
}

// GetDSN returns the database connection string
func (cfg *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Name,
		cfg.SSLMode,
	)
}

// GetAddr returns the Redis address
func (cfg *RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
}

// IsDevelopment returns true if the environment is development
func (cfg *AppConfig) IsDevelopment() bool {
	return cfg.Environment == "development"
}

// IsProduction returns true if the environment is production
func (cfg *AppConfig) IsProduction() bool {
	return cfg.Environment == "production"
}
