package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arnabghosh/blazingmq-session/internal/domain"
	"github.com/arnabghosh/blazingmq-session/internal/mq"
	"github.com/arnabghosh/blazingmq-session/internal/session"
)

// QueueSession is the part of a session the consumer drives.
// *session.Session implements it.
type QueueSession interface {
	OpenQueue(ctx context.Context, uri string, flags mq.QueueFlags, opts domain.QueueOptions) error
	ConfigureQueue(ctx context.Context, uri string, opts domain.QueueOptions) error
	CloseQueue(ctx context.Context, uri string) error
}

// Consumer processes and confirms the messages of one queue
type Consumer struct {
	config *Config
	logger *slog.Logger

	done     chan struct{}
	doneOnce sync.Once

	// Statistics
	messagesReceived  atomic.Int64
	messagesConfirmed atomic.Int64
	messagesErrors    atomic.Int64
	bytesReceived     atomic.Int64
}

// NewConsumer creates a new consumer
func NewConsumer(config *Config, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}

	return &Consumer{
		config: config,
		logger: logger.With("component", "consumer", "instance_id", config.InstanceID),
		done:   make(chan struct{}),
	}
}

// Start opens the queue for reading and consumes until ctx is cancelled or
// MaxMessages have been confirmed. Deliveries are stopped before the queue
// is closed so no confirm races the close.
func (c *Consumer) Start(ctx context.Context, sess QueueSession) error {
	c.logger.Info("Starting consumer",
		"queue_uri", c.config.QueueURI,
		"max_unconfirmed", c.config.MaxUnconfirmedMessages,
		"priority", c.config.ConsumerPriority,
	)

	if err := sess.OpenQueue(ctx, c.config.QueueURI, mq.FlagRead, c.config.QueueOptions()); err != nil {
		return fmt.Errorf("failed to open queue: %w", err)
	}

	c.logger.Info("Opened queue for reading", "queue_uri", c.config.QueueURI)

	// Start statistics reporter
	statsCtx, stopStats := context.WithCancel(ctx)
	defer stopStats()
	go c.reportStats(statsCtx)

	select {
	case <-ctx.Done():
	case <-c.done:
		c.logger.Info("Message limit reached", "max_messages", c.config.MaxMessages)
	}

	c.logger.Info("Consumer shutting down",
		"messages_received", c.messagesReceived.Load(),
		"messages_confirmed", c.messagesConfirmed.Load(),
		"errors", c.messagesErrors.Load(),
	)

	drainCtx, cancel := context.WithTimeout(context.Background(), c.drainTimeout())
	defer cancel()

	if err := sess.ConfigureQueue(drainCtx, c.config.QueueURI, domain.QueueOptions{
		MaxUnconfirmedMessages: domain.Int(0),
	}); err != nil {
		c.logger.Warn("Failed to stop deliveries", "error", err)
	}

	if err := sess.CloseQueue(drainCtx, c.config.QueueURI); err != nil {
		return fmt.Errorf("failed to close queue: %w", err)
	}

	return ctx.Err()
}

// HandleMessage processes a single delivered message and confirms it.
// It is the session's message handler.
func (c *Consumer) HandleMessage(msg *domain.Message, handle *session.MessageHandle) {
	c.messagesReceived.Add(1)
	c.bytesReceived.Add(int64(len(msg.Data)))

	c.logger.Debug("Received message",
		"guid", msg.GUID.String(),
		"queue_uri", msg.QueueURI,
		"size", len(msg.Data),
		"properties", msg.Properties,
	)

	if c.config.ProcessingDelay > 0 {
		time.Sleep(c.config.ProcessingDelay)
	}

	if err := handle.Confirm(context.Background()); err != nil {
		c.messagesErrors.Add(1)
		c.logger.Warn("Failed to confirm message",
			"guid", msg.GUID.String(),
			"error", err,
		)
		return
	}

	confirmed := c.messagesConfirmed.Add(1)
	if c.config.MaxMessages > 0 && confirmed >= int64(c.config.MaxMessages) {
		c.doneOnce.Do(func() { close(c.done) })
	}
}

// Done is closed once MaxMessages have been confirmed
func (c *Consumer) Done() <-chan struct{} {
	return c.done
}

func (c *Consumer) drainTimeout() time.Duration {
	if c.config.DrainTimeout > 0 {
		return c.config.DrainTimeout
	}
	return 30 * time.Second
}

// reportStats periodically logs statistics
func (c *Consumer) reportStats(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.logger.Info("Consumer statistics",
				"messages_received", c.messagesReceived.Load(),
				"messages_confirmed", c.messagesConfirmed.Load(),
				"messages_errors", c.messagesErrors.Load(),
				"bytes_received", c.bytesReceived.Load(),
			)
		}
	}
}

// Stats returns current consumer statistics
func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{
		MessagesReceived:  c.messagesReceived.Load(),
		MessagesConfirmed: c.messagesConfirmed.Load(),
		MessagesErrors:    c.messagesErrors.Load(),
		BytesReceived:     c.bytesReceived.Load(),
	}
}

// ConsumerStats holds consumer statistics
type ConsumerStats struct {
	MessagesReceived  int64
	MessagesConfirmed int64
	MessagesErrors    int64
	BytesReceived     int64
}
