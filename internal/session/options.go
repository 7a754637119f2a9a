package session

import (
	"log/slog"
	"time"

	"github.com/arnabghosh/blazingmq-session/internal/domain"
	"github.com/arnabghosh/blazingmq-session/internal/health"
)

// MessageHandler receives every message delivered to a queue opened in
// read mode. handle is used to confirm the message.
type MessageHandler func(msg *domain.Message, handle *MessageHandle)

// Options configures a Session. It is fixed at construction.
type Options struct {
	// OnSessionEvent receives session and queue notifications.
	// Defaults to logging every event.
	OnSessionEvent domain.SessionEventHandler

	// OnMessage receives deliveries. Required to open a queue for reading.
	OnMessage MessageHandler

	// Timeouts are the default deadlines of blocking operations, used
	// when the caller's context carries none.
	Timeouts domain.Timeouts

	// Compression is requested for every posted message.
	Compression domain.CompressionAlgorithm

	// HostHealthMonitor enables suspending queues while the host is
	// unhealthy. Required by queues with SuspendsOnBadHostHealth.
	HostHealthMonitor health.Monitor

	// StatsDumpInterval is how often statistics are logged. Zero disables
	// periodic dumps; a final dump is always logged on stop.
	StatsDumpInterval time.Duration

	Logger *slog.Logger
}

// PostOptions are the optional parts of a posted message.
type PostOptions struct {
	// Properties are encoded with inferred types.
	Properties map[string]any

	// PropertyTypeOverrides force the type of existing properties.
	PropertyTypeOverrides map[string]domain.PropertyType

	// OnAck is invoked exactly once with the broker's acknowledgment.
	// Without it negative acknowledgments are only logged.
	OnAck domain.AckHandler
}

// validate normalizes o and rejects invalid settings.
func (o Options) validate() (Options, error) {
	if err := o.Timeouts.Validate(); err != nil {
		return o, err
	}
	if o.StatsDumpInterval < 0 {
		return o, domain.NewValidationError(domain.ErrInvalidOptions, "stats_dump_interval",
			"must be nonnegative, got %s", o.StatsDumpInterval)
	}
	switch o.Compression {
	case domain.CompressionNone, domain.CompressionZlib:
	default:
		return o, domain.NewValidationError(domain.ErrInvalidOptions, "compression",
			"unsupported compression algorithm %d", int(o.Compression))
	}

	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.OnSessionEvent == nil {
		o.OnSessionEvent = domain.LogSessionEvent(o.Logger)
	}
	o.Timeouts = o.Timeouts.WithDefaults()
	return o, nil
}
