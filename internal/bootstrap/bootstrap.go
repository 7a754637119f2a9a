// Package bootstrap wires configuration into the components shared by the
// client binaries.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/arnabghosh/blazingmq-session/internal/config"
	"github.com/arnabghosh/blazingmq-session/internal/health"
	"github.com/arnabghosh/blazingmq-session/internal/logger"
	"github.com/arnabghosh/blazingmq-session/internal/mq"
	"github.com/arnabghosh/blazingmq-session/internal/session"
	"github.com/arnabghosh/blazingmq-session/internal/storage"
	"github.com/arnabghosh/blazingmq-session/internal/storage/inmemory"
	"github.com/arnabghosh/blazingmq-session/internal/storage/mongodb"
)

// LoadConfig loads the configuration from path, or from the environment
// alone when path is empty, and validates it
func LoadConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewLogger creates the logger described by cfg and installs it as the
// default
func NewLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	log, err := logger.New(cfg.Log.Format, cfg.Log.Level, w)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(log)
	return log, nil
}

// DialConfig maps the broker and session sections to connection settings
func DialConfig(cfg *config.Config) (mq.DialConfig, error) {
	compression, err := cfg.CompressionAlgorithm()
	if err != nil {
		return mq.DialConfig{}, err
	}
	return mq.DialConfig{
		ClientID:      cfg.Broker.ClientID,
		Compression:   compression,
		HighWatermark: cfg.Broker.HighWatermark,
		LowWatermark:  cfg.Broker.LowWatermark,
		MaxQueueDepth: cfg.Broker.MaxQueueDepth,
		HTTP: mq.HTTPConnectionConfig{
			PrefetchCount: cfg.Broker.PrefetchCount,
			PollInterval:  cfg.Broker.PollInterval,
		},
		Redis: mq.RedisConnectionConfig{
			KeyPrefix: cfg.Broker.RedisKeyPrefix,
		},
	}, nil
}

// NewSession dials the configured broker and creates an unstarted session.
// opts supplies the handlers and monitor; the rest comes from cfg.
func NewSession(cfg *config.Config, opts session.Options, logger *slog.Logger) (*session.Session, error) {
	dialConfig, err := DialConfig(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := mq.Dial(cfg.Broker.URI, dialConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to dial broker: %w", err)
	}

	opts.Timeouts = cfg.Session.Timeouts
	opts.Compression = dialConfig.Compression
	opts.StatsDumpInterval = cfg.Session.StatsDumpInterval
	opts.Logger = logger

	s, err := session.New(conn, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return s, nil
}

// NewHostHealthMonitor builds the configured host health monitor. It
// returns a nil monitor for type "none". The redis monitor polls until ctx
// is done; the returned function releases its client.
func NewHostHealthMonitor(ctx context.Context, cfg config.HealthConfig, logger *slog.Logger) (health.Monitor, func(), error) {
	switch cfg.Type {
	case "", "none":
		return nil, func() {}, nil

	case "basic":
		return health.NewBasicMonitor(), func() {}, nil

	case "redis":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse host health Redis URL: %w", err)
		}
		rdb := redis.NewClient(opts)

		monitorOpts := []health.RedisOption{health.WithLogger(logger)}
		if cfg.Interval > 0 {
			monitorOpts = append(monitorOpts, health.WithInterval(cfg.Interval))
		}
		if cfg.Host != "" {
			monitorOpts = append(monitorOpts, health.WithHost(cfg.Host))
		}
		monitor := health.NewRedisMonitor(rdb, monitorOpts...)
		go monitor.Run(ctx)

		logger.Info("Host health monitored through Redis", "key", monitor.Key(), "interval", cfg.Interval)
		return monitor, func() { rdb.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unknown host health type: %q", cfg.Type)
	}
}

// NewAckJournal opens the configured ack journal. The returned function
// releases it.
func NewAckJournal(cfg config.StorageConfig, logger *slog.Logger) (storage.AckRepository, func(), error) {
	switch cfg.Type {
	case "", "inmemory":
		logger.Info("Using in-memory ack journal")
		return inmemory.NewAckRepository(), func() {}, nil

	case "mongodb":
		logger.Info("Using MongoDB ack journal",
			"database", cfg.MongoDatabase,
			"collection", cfg.MongoCollection,
		)
		repo, err := mongodb.NewAckRepository(cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		return repo, func() {
			if err := repo.Close(context.Background()); err != nil {
				logger.Warn("Failed to close MongoDB ack journal", "error", err)
			}
		}, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage type: %q", cfg.Type)
	}
}
