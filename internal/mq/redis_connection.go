package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/arnabghosh/blazingmq-session/internal/domain"
)

var (
	ErrRedisConnection = errors.New("redis connection failed")
)

// RedisConnection implements Connection using Redis as the broker.
// Each queue URI is a Redis list; deliveries are moved atomically into a
// per-handle processing list and removed from it on confirm.
type RedisConnection struct {
	client *redis.Client
	config RedisConnectionConfig
	logger *slog.Logger
	connID string

	mu        sync.RWMutex
	connected bool
	events    *eventQueue
	nextID    QueueID
	queues    map[QueueID]*redisQueue

	wg sync.WaitGroup

	totalPosted    atomic.Int64
	totalPushed    atomic.Int64
	totalConfirmed atomic.Int64
	totalAcks      atomic.Int64
}

type redisQueue struct {
	id            QueueID
	uri           string
	flags         QueueFlags
	queueKey      string
	processingKey string

	mu               sync.Mutex
	settings         domain.QueueSettings
	unconfirmed      map[domain.MessageGUID]string
	unconfirmedBytes int
	resume           chan struct{}

	cancel   context.CancelFunc
	doneChan chan struct{}
}

// redisMessage is the JSON form of a message stored in a queue list
type redisMessage struct {
	GUID        string               `json:"guid"`
	Payload     []byte               `json:"payload"`
	Properties  []domain.RawProperty `json:"properties,omitempty"`
	Compression int                  `json:"compression,omitempty"`
	Timestamp   time.Time            `json:"timestamp"`
}

// RedisConnectionConfig configuration for the Redis connection
type RedisConnectionConfig struct {
	RedisURL      string
	KeyPrefix     string
	PoolSize      int
	PopTimeout    time.Duration
	MaxQueueDepth int
	Compression   domain.CompressionAlgorithm
	HighWatermark int
	LowWatermark  int
}

// NewRedisConnection creates a new Redis-backed broker connection
func NewRedisConnection(config RedisConnectionConfig, logger *slog.Logger) (*RedisConnection, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "bmq"
	}
	if config.PoolSize == 0 {
		config.PoolSize = 10
	}
	if config.PopTimeout == 0 {
		config.PopTimeout = time.Second
	}

	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opts.PoolSize = config.PoolSize

	return &RedisConnection{
		client: redis.NewClient(opts),
		config: config,
		logger: logger.With("component", "redis_connection"),
		connID: uuid.New().String(),
		queues: make(map[QueueID]*redisQueue),
	}, nil
}

// Connect verifies the Redis server is reachable and starts event delivery
func (c *RedisConnection) Connect(ctx context.Context, handler EventHandler) Status {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return StatusOf(domain.ResultNotSupported, "already connected")
	}
	c.mu.Unlock()

	if err := c.client.Ping(ctx).Err(); err != nil {
		return c.statusFromErr(ctx, fmt.Errorf("%w: %v", ErrRedisConnection, err))
	}

	events := newEventQueue(c.config.HighWatermark, c.config.LowWatermark, c.logger)

	c.mu.Lock()
	c.connected = true
	c.events = events
	c.mu.Unlock()

	events.start(handler)
	events.pushSession(SessionEvent{Type: SessionEventConnected})

	c.logger.Info("Connected to Redis broker",
		"conn_id", c.connID,
		"key_prefix", c.config.KeyPrefix,
	)
	return Success
}

// Disconnect stops all consume loops, requeues unconfirmed messages and
// closes the Redis client
func (c *RedisConnection) Disconnect(ctx context.Context) {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return
	}
	c.connected = false
	queues := make([]*redisQueue, 0, len(c.queues))
	for _, q := range c.queues {
		queues = append(queues, q)
	}
	c.queues = make(map[QueueID]*redisQueue)
	events := c.events
	c.mu.Unlock()

	for _, q := range queues {
		c.stopConsumer(ctx, q)
		c.requeue(ctx, q)
	}
	c.wg.Wait()

	events.pushSession(SessionEvent{Type: SessionEventDisconnected})
	if err := events.stop(ctx); err != nil {
		c.logger.Warn("Timed out waiting for event delivery to finish", "error", err)
	}

	if err := c.client.Close(); err != nil {
		c.logger.Error("Failed to close Redis client", "error", err)
	}

	c.logger.Info("Disconnected from Redis broker",
		"total_posted", c.totalPosted.Load(),
		"total_pushed", c.totalPushed.Load(),
		"total_confirmed", c.totalConfirmed.Load(),
	)
}

// OpenQueue registers a handle and starts a consume loop for read queues
func (c *RedisConnection) OpenQueue(ctx context.Context, uri string, flags QueueFlags, settings domain.QueueSettings) (QueueID, domain.QueueSettings, Status) {
	if ctx.Err() != nil {
		return 0, settings, StatusOf(domain.ResultTimeout, "open timed out")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return 0, settings, StatusOf(domain.ResultNotConnected, "not connected")
	}
	if flags&(FlagRead|FlagWrite) == 0 {
		return 0, settings, StatusOf(domain.ResultInvalidArgument, "queue must be opened for read or write")
	}

	c.nextID++
	q := &redisQueue{
		id:            c.nextID,
		uri:           uri,
		flags:         flags,
		queueKey:      fmt.Sprintf("%s:queue:%s", c.config.KeyPrefix, uri),
		processingKey: fmt.Sprintf("%s:processing:%s:%s:%d", c.config.KeyPrefix, uri, c.connID, c.nextID),
		settings:      settings,
		unconfirmed:   make(map[domain.MessageGUID]string),
		resume:        make(chan struct{}, 1),
		doneChan:      make(chan struct{}),
	}
	c.queues[q.id] = q

	if flags.Has(FlagRead) {
		loopCtx, cancel := context.WithCancel(context.Background())
		q.cancel = cancel
		c.wg.Add(1)
		go c.consumeLoop(loopCtx, q)
	} else {
		close(q.doneChan)
	}

	return q.id, settings, Success
}

// ConfigureQueue updates the flow control limits of a handle
func (c *RedisConnection) ConfigureQueue(ctx context.Context, id QueueID, settings domain.QueueSettings) (domain.QueueSettings, Status) {
	if ctx.Err() != nil {
		return settings, StatusOf(domain.ResultTimeout, "configure timed out")
	}
	q, status := c.lookup(id)
	if !status.OK() {
		return settings, status
	}

	q.mu.Lock()
	q.settings = settings
	q.mu.Unlock()
	q.signal()

	return settings, Success
}

// CloseQueue stops delivery and requeues unconfirmed messages
func (c *RedisConnection) CloseQueue(ctx context.Context, id QueueID) Status {
	q, status := c.lookup(id)
	if !status.OK() {
		return status
	}

	c.stopConsumer(ctx, q)
	if ctx.Err() != nil {
		return StatusOf(domain.ResultTimeout, "close timed out")
	}
	c.requeue(ctx, q)

	c.mu.Lock()
	delete(c.queues, id)
	c.mu.Unlock()
	return Success
}

// Post pushes a message onto the queue list
func (c *RedisConnection) Post(ctx context.Context, msg *OutboundMessage) Status {
	q, status := c.lookup(msg.QueueID)
	if !status.OK() {
		return status
	}
	if !q.flags.Has(FlagWrite) {
		return StatusOf(domain.ResultInvalidArgument, "queue not opened for write")
	}

	algo := msg.Compression
	if algo == domain.CompressionNone {
		algo = c.config.Compression
	}
	payload, applied, err := CompressPayload(algo, msg.Payload)
	if err != nil {
		return StatusOf(domain.ResultInvalidArgument, err.Error())
	}

	data, err := json.Marshal(redisMessage{
		GUID:        msg.GUID.String(),
		Payload:     payload,
		Properties:  msg.Properties,
		Compression: int(applied),
		Timestamp:   time.Now(),
	})
	if err != nil {
		return StatusOf(domain.ResultInvalidArgument, fmt.Sprintf("failed to marshal message: %v", err))
	}

	ackStatus := int(domain.AckSuccess)
	if c.config.MaxQueueDepth > 0 {
		depth, err := c.client.LLen(ctx, q.queueKey).Result()
		if err != nil {
			return c.statusFromErr(ctx, err)
		}
		if depth >= int64(c.config.MaxQueueDepth) {
			ackStatus = int(domain.AckLimitMessages)
		}
	}

	if ackStatus == int(domain.AckSuccess) {
		if err := c.client.LPush(ctx, q.queueKey, data).Err(); err != nil {
			return c.statusFromErr(ctx, err)
		}
		c.totalPosted.Add(1)
	}

	if msg.WantAck || ackStatus != int(domain.AckSuccess) {
		c.totalAcks.Add(1)
		c.pushMessage(MessageEvent{
			Type: MessageEventAck,
			Acks: []AckMessage{{QueueURI: q.uri, GUID: msg.GUID, Status: ackStatus}},
		})
	}
	return Success
}

// Confirm removes a delivered message from the processing list
func (c *RedisConnection) Confirm(ctx context.Context, id QueueID, guid domain.MessageGUID) Status {
	q, status := c.lookup(id)
	if !status.OK() {
		return status
	}

	q.mu.Lock()
	raw, ok := q.unconfirmed[guid]
	q.mu.Unlock()
	if !ok {
		c.logger.Debug("Confirm for unknown message", "queue_uri", q.uri, "guid", guid.String())
		return Success
	}

	if err := c.client.LRem(ctx, q.processingKey, 1, raw).Err(); err != nil {
		return c.statusFromErr(ctx, err)
	}

	q.mu.Lock()
	if _, still := q.unconfirmed[guid]; still {
		delete(q.unconfirmed, guid)
		q.unconfirmedBytes -= len(raw)
	}
	q.mu.Unlock()
	q.signal()

	c.totalConfirmed.Add(1)
	return Success
}

// Stats returns connection statistics
func (c *RedisConnection) Stats() ConnectionStats {
	c.mu.RLock()
	open := len(c.queues)
	c.mu.RUnlock()

	return ConnectionStats{
		TotalPosted:    c.totalPosted.Load(),
		TotalPushed:    c.totalPushed.Load(),
		TotalConfirmed: c.totalConfirmed.Load(),
		TotalAcks:      c.totalAcks.Load(),
		OpenQueues:     open,
	}
}

func (c *RedisConnection) lookup(id QueueID) (*redisQueue, Status) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.connected {
		return nil, StatusOf(domain.ResultNotConnected, "not connected")
	}
	q, ok := c.queues[id]
	if !ok {
		return nil, StatusOf(domain.ResultInvalidArgument, fmt.Sprintf("unknown queue id %d", id))
	}
	return q, Success
}

func (c *RedisConnection) pushMessage(ev MessageEvent) {
	c.mu.RLock()
	events := c.events
	c.mu.RUnlock()
	if events != nil {
		events.pushMessage(ev)
	}
}

func (c *RedisConnection) statusFromErr(ctx context.Context, err error) Status {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return StatusOf(domain.ResultTimeout, err.Error())
	}
	return StatusOf(domain.ResultNotConnected, err.Error())
}

func (c *RedisConnection) stopConsumer(ctx context.Context, q *redisQueue) {
	if q.cancel != nil {
		q.cancel()
	}
	select {
	case <-q.doneChan:
	case <-ctx.Done():
		c.logger.Warn("Timed out waiting for consume loop to stop", "queue_uri", q.uri)
	}
}

// requeue moves everything left in the processing list back to the
// consuming end of the queue list
func (c *RedisConnection) requeue(ctx context.Context, q *redisQueue) {
	if !q.flags.Has(FlagRead) {
		return
	}
	for {
		err := c.client.LMove(ctx, q.processingKey, q.queueKey, "LEFT", "RIGHT").Err()
		if err == redis.Nil {
			break
		}
		if err != nil {
			c.logger.Error("Failed to requeue unconfirmed message",
				"queue_uri", q.uri,
				"error", err,
			)
			break
		}
	}

	q.mu.Lock()
	q.unconfirmed = make(map[domain.MessageGUID]string)
	q.unconfirmedBytes = 0
	q.mu.Unlock()
}

func (q *redisQueue) signal() {
	select {
	case q.resume <- struct{}{}:
	default:
	}
}

func (q *redisQueue) hasCapacity() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.unconfirmed) >= q.settings.MaxUnconfirmedMessages {
		return false
	}
	return len(q.unconfirmed) == 0 || q.unconfirmedBytes < q.settings.MaxUnconfirmedBytes
}

// consumeLoop moves messages into the processing list while the handle has
// unconfirmed capacity
func (c *RedisConnection) consumeLoop(ctx context.Context, q *redisQueue) {
	defer c.wg.Done()
	defer close(q.doneChan)

	c.logger.Info("Starting consume loop",
		"queue_uri", q.uri,
		"queue_key", q.queueKey,
		"processing_key", q.processingKey,
	)

	for {
		if !q.hasCapacity() {
			select {
			case <-ctx.Done():
				return
			case <-q.resume:
				continue
			}
		}

		result, err := c.client.BRPopLPush(ctx, q.queueKey, q.processingKey, c.config.PopTimeout).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			c.logger.Error("Failed to pop message from Redis",
				"queue_uri", q.uri,
				"error", err,
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(100 * time.Millisecond):
			}
			continue
		}

		push, err := decodeRedisMessage(q, result)
		if err != nil {
			c.logger.Error("Failed to unmarshal message",
				"queue_uri", q.uri,
				"error", err,
			)
			c.client.LRem(ctx, q.processingKey, 1, result)
			continue
		}

		q.mu.Lock()
		q.unconfirmed[push.GUID] = result
		q.unconfirmedBytes += len(result)
		q.mu.Unlock()

		c.totalPushed.Add(1)
		c.pushMessage(MessageEvent{Type: MessageEventPush, Pushes: []PushMessage{push}})
	}
}

func decodeRedisMessage(q *redisQueue, raw string) (PushMessage, error) {
	var msg redisMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return PushMessage{}, err
	}
	guid, err := domain.ParseGUIDHex(msg.GUID)
	if err != nil {
		return PushMessage{}, err
	}
	payload, err := DecompressPayload(domain.CompressionAlgorithm(msg.Compression), msg.Payload)
	if err != nil {
		return PushMessage{}, err
	}
	return PushMessage{
		QueueID:    q.id,
		QueueURI:   q.uri,
		GUID:       guid,
		Payload:    payload,
		Properties: msg.Properties,
	}, nil
}
