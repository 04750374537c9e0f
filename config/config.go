package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"

	pkgerrors "github.com/alexander-mattos/baileys/pkg/errors"
)

// Backplane drivers supported by the broadcast hub
const (
	BackplaneMemory   = "memory"
	BackplaneKafka    = "kafka"
	BackplaneRedis    = "redis"
	BackplaneRabbitMQ = "rabbitmq"
)

// Config holds all configuration for the session sync service
type Config struct {
	Service   ServiceConfig
	Logging   LoggingConfig
	Database  DatabaseConfig
	Bridge    BridgeConfig
	Auth      AuthConfig
	Websocket WebsocketConfig
	Broadcast BroadcastConfig
	Kafka     KafkaConfig
	Redis     RedisConfig
	RabbitMQ  RabbitMQConfig
	RateLimit RateLimitConfig
}

// ServiceConfig holds service configuration
type ServiceConfig struct {
	Name            string
	Port            string
	ShutdownTimeout time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host           string
	Port           string
	User           string
	Password       string
	DBName         string
	SSLMode        string
	MigrationsPath string
}

// BridgeConfig holds WhatsApp bridge (Baileys API) client configuration
type BridgeConfig struct {
	BaseURL           string
	APIKey            string
	RequestTimeout    time.Duration
	JIDSuffix         string
	StatusListenerURL string // optional; empty disables terminal status notifications
}

// AuthConfig holds the auth gate configuration
type AuthConfig struct {
	SkipAuth      bool
	JWTSecret     string
	DefaultTenant string
}

// WebsocketConfig holds websocket gateway configuration
type WebsocketConfig struct {
	Port           string
	AllowedOrigins []string // "*" allows any origin
}

// BroadcastConfig holds event hub configuration
type BroadcastConfig struct {
	Backplane        string
	SubscriberBuffer int
}

// KafkaConfig holds Kafka backplane configuration
type KafkaConfig struct {
	Brokers     []string
	Topic       string
	GroupPrefix string
}

// RedisConfig holds Redis backplane configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// RabbitMQConfig holds RabbitMQ backplane configuration
type RabbitMQConfig struct {
	URL      string
	Exchange string
}

// RateLimitConfig throttles bridge-invasive commands per session
type RateLimitConfig struct {
	CommandsPerMinute int
	Burst             int
}

// Result is fx.Out struct for providing config dependencies
type Result struct {
	fx.Out

	Config          *Config
	ServiceConfig   *ServiceConfig
	LoggingConfig   *LoggingConfig
	DatabaseConfig  *DatabaseConfig
	BridgeConfig    *BridgeConfig
	AuthConfig      *AuthConfig
	WebsocketConfig *WebsocketConfig
	BroadcastConfig *BroadcastConfig
	KafkaConfig     *KafkaConfig
	RedisConfig     *RedisConfig
	RabbitMQConfig  *RabbitMQConfig
	RateLimitConfig *RateLimitConfig
}

// Out returns fx-compatible config result
func Out() (Result, error) {
	cfg, err := Load()
	if err != nil {
		return Result{}, err
	}

	return Result{
		Config:          cfg,
		ServiceConfig:   &cfg.Service,
		LoggingConfig:   &cfg.Logging,
		DatabaseConfig:  &cfg.Database,
		BridgeConfig:    &cfg.Bridge,
		AuthConfig:      &cfg.Auth,
		WebsocketConfig: &cfg.Websocket,
		BroadcastConfig: &cfg.Broadcast,
		KafkaConfig:     &cfg.Kafka,
		RedisConfig:     &cfg.Redis,
		RabbitMQConfig:  &cfg.RabbitMQ,
		RateLimitConfig: &cfg.RateLimit,
	}, nil
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Service: ServiceConfig{
			Name:            getEnv("SERVICE_NAME", "session-sync"),
			Port:            getEnv("SERVICE_PORT", "8080"),
			ShutdownTimeout: getEnvDuration("SERVICE_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			Host:           getEnv("DATABASE_HOST", "localhost"),
			Port:           getEnv("DATABASE_PORT", "5432"),
			User:           getEnv("DATABASE_USER", "helpdesk"),
			Password:       getEnv("DATABASE_PASSWORD", "helpdesk"),
			DBName:         getEnv("DATABASE_NAME", "helpdesk"),
			SSLMode:        getEnv("DATABASE_SSLMODE", "disable"),
			MigrationsPath: getEnv("DATABASE_MIGRATIONS_PATH", "file://migrations"),
		},
		Bridge: BridgeConfig{
			BaseURL:           strings.TrimSpace(getEnv("BAILEYS_API_URL", "")),
			APIKey:            getEnv("BAILEYS_API_KEY", ""),
			RequestTimeout:    getEnvDuration("BAILEYS_REQUEST_TIMEOUT", 15*time.Second),
			JIDSuffix:         getEnv("BAILEYS_JID_SUFFIX", "@s.whatsapp.net"),
			StatusListenerURL: getEnv("SESSION_STATUS_LISTENER_URL", ""),
		},
		Auth: AuthConfig{
			SkipAuth:      getEnvBool("SKIP_AUTH", false),
			JWTSecret:     getEnv("AUTH_JWT_SECRET", ""),
			DefaultTenant: getEnv("DEFAULT_TENANT", "company-1"),
		},
		Websocket: WebsocketConfig{
			Port:           getEnv("WEBSOCKET_PORT", "8081"),
			AllowedOrigins: getEnvList("FRONTEND_URL", []string{"*"}),
		},
		Broadcast: BroadcastConfig{
			Backplane:        strings.ToLower(getEnv("BROADCAST_BACKPLANE", BackplaneMemory)),
			SubscriberBuffer: getEnvInt("BROADCAST_SUBSCRIBER_BUFFER", 64),
		},
		Kafka: KafkaConfig{
			Brokers:     getEnvList("KAFKA_BROKERS", nil),
			Topic:       getEnv("KAFKA_BROADCAST_TOPIC", "whatsapp.session.broadcast"),
			GroupPrefix: getEnv("KAFKA_GROUP_PREFIX", "session-sync"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			Channel:  getEnv("REDIS_BROADCAST_CHANNEL", "session-sync:broadcast"),
		},
		RabbitMQ: RabbitMQConfig{
			URL:      getEnv("RABBITMQ_URL", ""),
			Exchange: getEnv("RABBITMQ_EXCHANGE", "session-sync.broadcast"),
		},
		RateLimit: RateLimitConfig{
			CommandsPerMinute: getEnvInt("QR_COMMANDS_PER_MINUTE", 6),
			Burst:             getEnvInt("QR_COMMANDS_BURST", 2),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Bridge.Validate(); err != nil {
		return err
	}

	if !c.Auth.SkipAuth && c.Auth.JWTSecret == "" {
		return pkgerrors.NewConfigurationError("AUTH_JWT_SECRET is required unless SKIP_AUTH=true")
	}

	if c.Database.Host == "" || c.Database.DBName == "" {
		return pkgerrors.NewConfigurationError("DATABASE_HOST and DATABASE_NAME are required")
	}

	if c.Broadcast.SubscriberBuffer <= 0 {
		return pkgerrors.NewConfigurationErrorf("BROADCAST_SUBSCRIBER_BUFFER must be positive, got %d", c.Broadcast.SubscriberBuffer)
	}

	switch c.Broadcast.Backplane {
	case BackplaneMemory:
	case BackplaneKafka:
		if len(c.Kafka.Brokers) == 0 {
			return pkgerrors.NewConfigurationError("KAFKA_BROKERS is required for the kafka backplane")
		}
	case BackplaneRedis:
		if c.Redis.Addr == "" {
			return pkgerrors.NewConfigurationError("REDIS_ADDR is required for the redis backplane")
		}
	case BackplaneRabbitMQ:
		if c.RabbitMQ.URL == "" {
			return pkgerrors.NewConfigurationError("RABBITMQ_URL is required for the rabbitmq backplane")
		}
	default:
		return pkgerrors.NewConfigurationErrorf("unknown BROADCAST_BACKPLANE %q", c.Broadcast.Backplane)
	}

	return nil
}

// Validate checks that the bridge endpoint and credential are present
func (c *BridgeConfig) Validate() error {
	if c.BaseURL == "" {
		return pkgerrors.NewConfigurationError("BAILEYS_API_URL is required")
	}

	if c.APIKey == "" {
		return pkgerrors.NewConfigurationError("BAILEYS_API_KEY is required")
	}

	if c.RequestTimeout < time.Second || c.RequestTimeout > time.Minute {
		return pkgerrors.NewConfigurationErrorf("BAILEYS_REQUEST_TIMEOUT must be between 1s and 60s, got %s", c.RequestTimeout)
	}

	return nil
}

// GetDSN returns database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// AllowsOrigin reports whether a browser origin is in the allow-list
func (c *WebsocketConfig) AllowsOrigin(origin string) bool {
	if origin == "" {
		return true
	}
	for _, allowed := range c.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(strings.TrimRight(allowed, "/"), strings.TrimRight(origin, "/")) {
			return true
		}
	}
	return false
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvDuration gets environment variable as duration with default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

// getEnvList splits a comma separated variable, dropping empty items
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}
