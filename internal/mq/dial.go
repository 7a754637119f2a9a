package mq

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/arnabghosh/blazingmq-session/internal/domain"
)

// DialConfig holds the settings shared by every connection kind
type DialConfig struct {
	ClientID      string
	Compression   domain.CompressionAlgorithm
	HighWatermark int
	LowWatermark  int
	MaxQueueDepth int
	HTTP          HTTPConnectionConfig
	Redis         RedisConnectionConfig
}

// Dial builds the Connection matching the scheme of brokerURI:
// loopback://, http(s):// or redis(s)://.
func Dial(brokerURI string, config DialConfig, logger *slog.Logger) (Connection, error) {
	u, err := url.Parse(brokerURI)
	if err != nil {
		return nil, domain.NewValidationError(domain.ErrInvalidOptions, "broker", "invalid broker URI %q: %v", brokerURI, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "loopback":
		return NewLoopback(LoopbackConfig{
			HighWatermark: config.HighWatermark,
			LowWatermark:  config.LowWatermark,
			MaxQueueDepth: config.MaxQueueDepth,
		}, logger), nil

	case "http", "https":
		httpConfig := config.HTTP
		httpConfig.BaseURL = brokerURI
		httpConfig.ClientID = config.ClientID
		httpConfig.Compression = config.Compression
		httpConfig.HighWatermark = config.HighWatermark
		httpConfig.LowWatermark = config.LowWatermark
		return NewHTTPConnection(httpConfig, logger), nil

	case "redis", "rediss":
		redisConfig := config.Redis
		redisConfig.RedisURL = brokerURI
		redisConfig.Compression = config.Compression
		redisConfig.HighWatermark = config.HighWatermark
		redisConfig.LowWatermark = config.LowWatermark
		redisConfig.MaxQueueDepth = config.MaxQueueDepth
		conn, err := NewRedisConnection(redisConfig, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis connection: %w", err)
		}
		return conn, nil

	default:
		return nil, domain.NewValidationError(domain.ErrInvalidOptions, "broker",
			"unsupported broker scheme %q, expected loopback, http(s) or redis(s)", u.Scheme)
	}
}
