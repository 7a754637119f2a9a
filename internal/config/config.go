package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/arnabghosh/blazingmq-session/internal/domain"
)

// Config holds the application configuration
type Config struct {
	Broker  BrokerConfig  `yaml:"broker" toml:"broker"`
	Session SessionConfig `yaml:"session" toml:"session"`
	Server  ServerConfig  `yaml:"server" toml:"server"`
	Storage StorageConfig `yaml:"storage" toml:"storage"`
	Health  HealthConfig  `yaml:"health" toml:"health"`
	Log     LogConfig     `yaml:"log" toml:"log"`
}

// BrokerConfig holds broker connection configuration
type BrokerConfig struct {
	URI            string        `yaml:"uri" toml:"uri"`
	ClientID       string        `yaml:"client_id" toml:"client_id"`
	PollInterval   time.Duration `yaml:"poll_interval" toml:"poll_interval"`
	PrefetchCount  int           `yaml:"prefetch_count" toml:"prefetch_count"`
	RedisKeyPrefix string        `yaml:"redis_key_prefix" toml:"redis_key_prefix"`
	HighWatermark  int           `yaml:"high_watermark" toml:"high_watermark"`
	LowWatermark   int           `yaml:"low_watermark" toml:"low_watermark"`
	MaxQueueDepth  int           `yaml:"max_queue_depth" toml:"max_queue_depth"`
}

// SessionConfig holds session configuration
type SessionConfig struct {
	Timeouts          domain.Timeouts `yaml:"timeouts" toml:"timeouts"`
	Compression       string          `yaml:"compression" toml:"compression"`
	StatsDumpInterval time.Duration   `yaml:"stats_dump_interval" toml:"stats_dump_interval"`
}

// ServerConfig holds development broker server configuration
type ServerConfig struct {
	Host            string        `yaml:"host" toml:"host"`
	Port            int           `yaml:"port" toml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" toml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" toml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
	SessionTTL      time.Duration `yaml:"session_ttl" toml:"session_ttl"`
	MaxQueueDepth   int           `yaml:"max_queue_depth" toml:"max_queue_depth"`
	Debug           bool          `yaml:"debug" toml:"debug"`
}

// StorageConfig holds ack journal configuration
type StorageConfig struct {
	Type            string `yaml:"type" toml:"type"`
	MongoURI        string `yaml:"mongo_uri" toml:"mongo_uri"`
	MongoDatabase   string `yaml:"mongo_database" toml:"mongo_database"`
	MongoCollection string `yaml:"mongo_collection" toml:"mongo_collection"`
}

// HealthConfig holds host health monitoring configuration
type HealthConfig struct {
	Type     string        `yaml:"type" toml:"type"`
	RedisURL string        `yaml:"redis_url" toml:"redis_url"`
	Host     string        `yaml:"host" toml:"host"`
	Interval time.Duration `yaml:"interval" toml:"interval"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		Broker: BrokerConfig{
			URI:            DefaultBrokerURI,
			ClientID:       DefaultClientID,
			PollInterval:   DefaultPollInterval,
			PrefetchCount:  DefaultPrefetchCount,
			RedisKeyPrefix: DefaultRedisKeyPrefix,
			HighWatermark:  DefaultHighWatermark,
			LowWatermark:   DefaultLowWatermark,
			MaxQueueDepth:  DefaultMaxQueueDepth,
		},
		Session: SessionConfig{
			Timeouts:          domain.DefaultTimeouts(),
			Compression:       DefaultCompression,
			StatsDumpInterval: DefaultStatsDumpInterval,
		},
		Server: ServerConfig{
			Host:            DefaultQueueServiceHost,
			Port:            DefaultQueueServicePort,
			ReadTimeout:     DefaultReadTimeout,
			WriteTimeout:    DefaultWriteTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
			SessionTTL:      DefaultSessionTTL,
			MaxQueueDepth:   DefaultMaxQueueDepth,
		},
		Storage: StorageConfig{
			Type:            DefaultStorageType,
			MongoURI:        DefaultMongoURI,
			MongoDatabase:   DefaultMongoDatabase,
			MongoCollection: DefaultMongoCollection,
		},
		Health: HealthConfig{
			Type:     DefaultHealthType,
			RedisURL: DefaultHealthRedisURL,
			Interval: DefaultHealthInterval,
		},
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	config := Default()
	applyEnv(config)
	return config, nil
}

// LoadFile loads configuration from a YAML (.yaml, .yml) or TOML (.toml)
// file. Environment variables override values from the file.
func LoadFile(path string) (*Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), config); err != nil {
			return nil, fmt.Errorf("failed to parse TOML config %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension %q, expected .yaml, .yml or .toml", filepath.Ext(path))
	}

	applyEnv(config)
	return config, nil
}

// applyEnv overrides config with the environment variables that are set
func applyEnv(c *Config) {
	c.Broker.URI = GetEnv("BMQ_BROKER_URI", c.Broker.URI)
	c.Broker.ClientID = GetEnv("BMQ_CLIENT_ID", c.Broker.ClientID)
	c.Broker.PollInterval = GetEnvAsDuration("BMQ_POLL_INTERVAL", c.Broker.PollInterval)
	c.Broker.PrefetchCount = GetEnvAsInt("BMQ_PREFETCH_COUNT", c.Broker.PrefetchCount)
	c.Broker.RedisKeyPrefix = GetEnv("BMQ_REDIS_KEY_PREFIX", c.Broker.RedisKeyPrefix)
	c.Broker.HighWatermark = GetEnvAsInt("BMQ_HIGH_WATERMARK", c.Broker.HighWatermark)
	c.Broker.LowWatermark = GetEnvAsInt("BMQ_LOW_WATERMARK", c.Broker.LowWatermark)
	c.Broker.MaxQueueDepth = GetEnvAsInt("BMQ_MAX_QUEUE_DEPTH", c.Broker.MaxQueueDepth)

	t := &c.Session.Timeouts
	t.Connect = GetEnvAsDuration("BMQ_CONNECT_TIMEOUT", t.Connect)
	t.Disconnect = GetEnvAsDuration("BMQ_DISCONNECT_TIMEOUT", t.Disconnect)
	t.OpenQueue = GetEnvAsDuration("BMQ_OPEN_QUEUE_TIMEOUT", t.OpenQueue)
	t.ConfigureQueue = GetEnvAsDuration("BMQ_CONFIGURE_QUEUE_TIMEOUT", t.ConfigureQueue)
	t.CloseQueue = GetEnvAsDuration("BMQ_CLOSE_QUEUE_TIMEOUT", t.CloseQueue)
	c.Session.Compression = GetEnv("BMQ_COMPRESSION", c.Session.Compression)
	c.Session.StatsDumpInterval = GetEnvAsDuration("BMQ_STATS_DUMP_INTERVAL", c.Session.StatsDumpInterval)

	c.Server.Host = GetEnv("SERVER_HOST", c.Server.Host)
	c.Server.Port = GetEnvAsInt("SERVER_PORT", c.Server.Port)
	c.Server.ReadTimeout = GetEnvAsDuration("SERVER_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = GetEnvAsDuration("SERVER_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.ShutdownTimeout = GetEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)
	c.Server.SessionTTL = GetEnvAsDuration("SERVER_SESSION_TTL", c.Server.SessionTTL)
	c.Server.MaxQueueDepth = GetEnvAsInt("SERVER_MAX_QUEUE_DEPTH", c.Server.MaxQueueDepth)
	c.Server.Debug = GetEnvAsBool("SERVER_DEBUG", c.Server.Debug)

	c.Storage.Type = GetEnv("STORAGE_TYPE", c.Storage.Type)
	c.Storage.MongoURI = GetEnv("MONGO_URI", c.Storage.MongoURI)
	c.Storage.MongoDatabase = GetEnv("MONGO_DATABASE", c.Storage.MongoDatabase)
	c.Storage.MongoCollection = GetEnv("MONGO_COLLECTION", c.Storage.MongoCollection)

	c.Health.Type = GetEnv("HOST_HEALTH_TYPE", c.Health.Type)
	c.Health.RedisURL = GetEnv("HOST_HEALTH_REDIS_URL", c.Health.RedisURL)
	c.Health.Host = GetEnv("HOST_HEALTH_HOST", c.Health.Host)
	c.Health.Interval = GetEnvAsDuration("HOST_HEALTH_INTERVAL", c.Health.Interval)

	c.Log.Level = GetEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = GetEnv("LOG_FORMAT", c.Log.Format)
}

// GetEnv gets an environment variable or returns a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvAsInt gets an environment variable as int or returns a default value
func GetEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// GetEnvAsBool gets an environment variable as bool or returns a default value
func GetEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// GetEnvAsDuration gets an environment variable as duration or returns a default value
func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// CompressionAlgorithm returns the parsed session compression setting
func (c *Config) CompressionAlgorithm() (domain.CompressionAlgorithm, error) {
	return domain.ParseCompression(c.Session.Compression)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	u, err := url.Parse(c.Broker.URI)
	if err != nil || u.Scheme == "" {
		return fmt.Errorf("invalid broker URI: %q", c.Broker.URI)
	}

	if c.Broker.HighWatermark < 0 || c.Broker.LowWatermark < 0 || c.Broker.LowWatermark > c.Broker.HighWatermark {
		return fmt.Errorf("invalid watermarks: low %d, high %d", c.Broker.LowWatermark, c.Broker.HighWatermark)
	}

	if c.Broker.MaxQueueDepth < 0 {
		return fmt.Errorf("invalid max queue depth: %d", c.Broker.MaxQueueDepth)
	}

	if err := c.Session.Timeouts.Validate(); err != nil {
		return fmt.Errorf("invalid session timeouts: %w", err)
	}

	if _, err := c.CompressionAlgorithm(); err != nil {
		return fmt.Errorf("invalid compression: %w", err)
	}

	if c.Session.StatsDumpInterval < 0 {
		return fmt.Errorf("invalid stats dump interval: %s, must be nonnegative", c.Session.StatsDumpInterval)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Storage.Type {
	case "inmemory", "mongodb":
	default:
		return fmt.Errorf("invalid storage type: %q", c.Storage.Type)
	}

	switch c.Health.Type {
	case "none", "basic", "redis":
	default:
		return fmt.Errorf("invalid host health type: %q", c.Health.Type)
	}

	switch strings.ToLower(c.Log.Format) {
	case "json", "text", "console":
	default:
		return fmt.Errorf("invalid log format: %q", c.Log.Format)
	}

	return nil
}
