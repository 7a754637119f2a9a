package producer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/arnabghosh/blazingmq-session/internal/domain"
	"github.com/arnabghosh/blazingmq-session/internal/parser"
	"github.com/arnabghosh/blazingmq-session/internal/session"
	"github.com/arnabghosh/blazingmq-session/internal/storage"
)

// lockExtendEvery is the number of posts between batch lock extensions
const lockExtendEvery = 1000

// Poster posts messages to an open queue. *session.Session implements it.
type Poster interface {
	Post(ctx context.Context, uri string, payload []byte, opts session.PostOptions) (domain.MessageGUID, error)
}

// Producer posts messages in passes and journals every acknowledgment
type Producer struct {
	config    *Config
	poster    Poster
	journal   storage.AckRepository
	batchLock *BatchLock // Distributed lock for one pass over the queue
	logger    *slog.Logger

	outstanding sync.WaitGroup

	posted     atomic.Int64
	acked      atomic.Int64
	nacked     atomic.Int64
	journaled  atomic.Int64
	errorCount atomic.Int64
}

// NewProducer creates a new producer. journal and batchLock are optional.
func NewProducer(config *Config, poster Poster, journal storage.AckRepository, batchLock *BatchLock, logger *slog.Logger) *Producer {
	if logger == nil {
		logger = slog.Default()
	}

	return &Producer{
		config:    config,
		poster:    poster,
		journal:   journal,
		batchLock: batchLock,
		logger:    logger.With("component", "producer", "instance_id", config.InstanceID),
	}
}

// Start posts passes until the last pass completes or ctx is cancelled
func (p *Producer) Start(ctx context.Context) error {
	p.logger.Info("Starting producer",
		"queue_uri", p.config.QueueURI,
		"file", p.config.FilePath,
		"interval", p.config.PostInterval,
		"loop_mode", p.config.LoopMode,
	)

	// Start statistics reporter
	go p.reportStats(ctx)

	for {
		err := p.runPass(ctx)
		switch {
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			p.logger.Info("Producer shutting down", "posted", p.posted.Load(), "errors", p.errorCount.Load())
			return err
		case err != nil:
			p.logger.Error("Error posting batch", "error", err)
			p.errorCount.Add(1)
			if !p.config.LoopMode {
				return err
			}
		case !p.config.LoopMode:
			p.logger.Info("Stream completed (loop mode disabled)", "posted", p.posted.Load())
			return nil
		}

		p.logger.Info("Batch complete, waiting before next batch",
			"posted", p.posted.Load(),
			"wait_time", p.config.LoopDelay,
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.config.LoopDelay):
		}
	}
}

// runPass posts one batch while holding the batch lock
func (p *Producer) runPass(ctx context.Context) error {
	if p.batchLock != nil {
		p.logger.Info("Attempting to acquire batch lock...")
		if err := p.batchLock.AcquireLock(ctx); err != nil {
			return err
		}
		defer func() {
			if err := p.batchLock.ReleaseLock(context.Background()); err != nil {
				p.logger.Warn("Failed to release batch lock", "error", err)
			}
		}()
	}

	batchID := uuid.NewString()
	p.logger.Info("Batch processing started", "batch_id", batchID)

	if p.config.FilePath != "" {
		return p.streamFile(ctx, batchID)
	}
	return p.postSynthetic(ctx, batchID)
}

// streamFile posts every record of the message file. Unparsable rows are
// skipped.
func (p *Producer) streamFile(ctx context.Context, batchID string) error {
	file, err := os.Open(p.config.FilePath)
	if err != nil {
		return fmt.Errorf("failed to open message file %s: %w", p.config.FilePath, err)
	}
	defer file.Close()

	reader, err := parser.NewStreamReader(file)
	if err != nil {
		return fmt.Errorf("failed to create stream reader: %w", err)
	}

	published, failed := 0, 0
	for {
		record, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			p.logger.Warn("Failed to parse row", "row", reader.Row(), "error", err)
			p.errorCount.Add(1)
			failed++
			continue
		}

		uri := record.QueueURI
		if uri == "" {
			uri = p.config.QueueURI
		}
		if err := p.post(ctx, uri, record.Payload, record.Properties, record.Types); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.Warn("Failed to post record", "row", record.Row, "queue_uri", uri, "error", err)
			p.errorCount.Add(1)
			failed++
			continue
		}
		published++

		if err := p.pace(ctx, published); err != nil {
			return err
		}
	}

	p.logger.Info("Batch processing complete",
		"batch_id", batchID,
		"published", published,
		"errors", failed,
	)
	return nil
}

// postSynthetic posts Count generated messages to the configured queue
func (p *Producer) postSynthetic(ctx context.Context, batchID string) error {
	for i := 0; i < p.config.Count; i++ {
		payload := syntheticPayload(i, p.config.PayloadSize)
		props := map[string]any{
			"producer": p.config.InstanceID,
			"batch_id": batchID,
			"seq":      int64(i),
		}
		if err := p.post(ctx, p.config.QueueURI, payload, props, nil); err != nil {
			return err
		}
		if err := p.pace(ctx, i+1); err != nil {
			return err
		}
	}

	p.logger.Info("Batch processing complete", "batch_id", batchID, "published", p.config.Count)
	return nil
}

// post sends one message and registers its acknowledgment as outstanding
func (p *Producer) post(ctx context.Context, uri string, payload []byte, props map[string]any, types map[string]domain.PropertyType) error {
	postedAt := time.Now()

	p.outstanding.Add(1)
	guid, err := p.poster.Post(ctx, uri, payload, session.PostOptions{
		Properties:            props,
		PropertyTypeOverrides: types,
		OnAck: func(ack *domain.Ack) {
			p.handleAck(ack, postedAt)
		},
	})
	if err != nil {
		p.outstanding.Done()
		return fmt.Errorf("failed to post message: %w", err)
	}

	p.posted.Add(1)
	p.logger.Debug("Posted message",
		"queue_uri", uri,
		"guid", guid.String(),
		"size", len(payload),
	)
	return nil
}

// pace waits between posts and keeps the batch lock alive
func (p *Producer) pace(ctx context.Context, n int) error {
	if p.batchLock != nil && n%lockExtendEvery == 0 {
		if err := p.batchLock.ExtendLock(ctx); err != nil {
			p.logger.Warn("Failed to extend batch lock", "error", err)
		}
	}
	if p.config.PostInterval <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.config.PostInterval):
		return nil
	}
}

// handleAck counts and journals one acknowledgment
func (p *Producer) handleAck(ack *domain.Ack, postedAt time.Time) {
	defer p.outstanding.Done()

	if ack.Success() {
		p.acked.Add(1)
	} else {
		p.nacked.Add(1)
		p.logger.Warn("Message not accepted by broker",
			"guid", ack.GUID.String(),
			"queue_uri", ack.QueueURI,
			"status", ack.Status.String(),
		)
	}

	if p.journal == nil {
		return
	}
	if err := p.journal.Store(domain.NewAckRecord(ack, p.config.InstanceID, postedAt)); err != nil {
		p.errorCount.Add(1)
		p.logger.Error("Failed to journal ack",
			"guid", ack.GUID.String(),
			"error", err,
		)
		return
	}
	p.journaled.Add(1)
}

// WaitForAcks blocks until every posted message has been acknowledged or
// ctx is done
func (p *Producer) WaitForAcks(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.outstanding.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for %d acks: %w", p.posted.Load()-p.acked.Load()-p.nacked.Load(), ctx.Err())
	}
}

// reportStats periodically logs statistics
func (p *Producer) reportStats(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := p.Stats()
			p.logger.Info("Producer statistics",
				"posted", stats.Posted,
				"acked", stats.Acked,
				"nacked", stats.Nacked,
				"journaled", stats.Journaled,
				"errors", stats.Errors,
			)
		}
	}
}

// Stats returns current producer statistics
func (p *Producer) Stats() ProducerStats {
	return ProducerStats{
		Posted:    p.posted.Load(),
		Acked:     p.acked.Load(),
		Nacked:    p.nacked.Load(),
		Journaled: p.journaled.Load(),
		Errors:    p.errorCount.Load(),
	}
}

// ProducerStats holds producer statistics
type ProducerStats struct {
	Posted    int64
	Acked     int64
	Nacked    int64
	Journaled int64
	Errors    int64
}

func syntheticPayload(seq, size int) []byte {
	body := fmt.Sprintf("message-%d", seq)
	if len(body) < size {
		body += strings.Repeat(".", size-len(body))
	}
	return []byte(body)
}
