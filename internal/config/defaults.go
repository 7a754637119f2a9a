package config

import "time"

// Default configuration values for all services
const (
	// Broker defaults
	DefaultBrokerURI      = "http://localhost:30114"
	DefaultClientID       = "bmq-client"
	DefaultPollInterval   = 100 * time.Millisecond
	DefaultPrefetchCount  = 100
	DefaultRedisKeyPrefix = "bmq"
	DefaultHighWatermark  = 10000
	DefaultLowWatermark   = 5000

	// Session defaults
	DefaultCompression       = "none"
	DefaultStatsDumpInterval = 0

	// Queue Service defaults
	DefaultQueueServiceHost = "0.0.0.0"
	DefaultQueueServicePort = 30114
	DefaultReadTimeout      = 15 * time.Second
	DefaultWriteTimeout     = 15 * time.Second
	DefaultShutdownTimeout  = 30 * time.Second
	DefaultSessionTTL       = 2 * time.Minute
	DefaultMaxQueueDepth    = 0

	// API Gateway defaults
	DefaultAPIPort     = "8080"
	DefaultIdleTimeout = 60 * time.Second

	// Storage defaults
	DefaultStorageType     = "inmemory"
	DefaultMongoURI        = "mongodb://localhost:27017"
	DefaultMongoDatabase   = "bmq"
	DefaultMongoCollection = "acks"

	// Host health defaults
	DefaultHealthType     = "none"
	DefaultHealthRedisURL = "redis://localhost:6379"
	DefaultHealthInterval = 5 * time.Second

	// Logging defaults
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)
