package queueservice

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/arnabghosh/blazingmq-session/internal/domain"
)

// Queue holds the messages of one queue URI and delivers them to competing
// consumers. Only consumers at the highest consumer priority with room
// under their unconfirmed limits receive messages.
type Queue struct {
	uri                 string
	maxDepth            int
	maxDeliveryAttempts int
	logger              *slog.Logger

	mu        sync.Mutex
	messages  []*Message
	consumers map[uint64]*Consumer
	pending   *PendingList
	sequence  uint64

	posted    int64
	delivered int64
	confirmed int64
	requeued  int64
	rejected  int64
	poisoned  int64
}

// Consumer represents one read handle attached to a queue
type Consumer struct {
	HandleID     uint64
	SessionID    string
	Settings     domain.QueueSettings
	LastActivity time.Time

	unconfirmedMessages int
	unconfirmedBytes    int
}

// QueueStats is a snapshot of one queue
type QueueStats struct {
	URI       string `json:"uri"`
	Depth     int    `json:"depth"`
	Pending   int    `json:"pending"`
	Consumers int    `json:"consumers"`
	Posted    int64  `json:"posted"`
	Delivered int64  `json:"delivered"`
	Confirmed int64  `json:"confirmed"`
	Requeued  int64  `json:"requeued"`
	Rejected  int64  `json:"rejected"`
	Poisoned  int64  `json:"poisoned"`
}

func newQueue(uri string, maxDepth, maxDeliveryAttempts int, logger *slog.Logger) *Queue {
	return &Queue{
		uri:                 uri,
		maxDepth:            maxDepth,
		maxDeliveryAttempts: maxDeliveryAttempts,
		logger:              logger,
		consumers:           make(map[uint64]*Consumer),
		pending:             NewPendingList(),
	}
}

// Post appends a message, or rejects it with LIMIT_MESSAGES when the
// queue is at its configured depth.
func (q *Queue) Post(msg *Message) domain.AckStatus {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.maxDepth > 0 && len(q.messages) >= q.maxDepth {
		q.rejected++
		q.logger.Warn("Queue depth limit reached, rejecting message",
			"queue_uri", q.uri,
			"guid", msg.GUID,
			"max_depth", q.maxDepth,
		)
		return domain.AckLimitMessages
	}

	q.messages = append(q.messages, msg)
	q.posted++
	return domain.AckSuccess
}

// AddConsumer attaches a read handle
func (q *Queue) AddConsumer(sessionID string, handleID uint64, settings domain.QueueSettings) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.consumers[handleID] = &Consumer{
		HandleID:     handleID,
		SessionID:    sessionID,
		Settings:     settings,
		LastActivity: time.Now(),
	}

	q.logger.Info("Consumer registered",
		"queue_uri", q.uri,
		"handle_id", handleID,
		"session_id", sessionID,
		"consumer_priority", settings.ConsumerPriority,
	)
}

// Configure replaces the settings of a read handle
func (q *Queue) Configure(handleID uint64, settings domain.QueueSettings) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	consumer, exists := q.consumers[handleID]
	if !exists {
		return fmt.Errorf("%w: handle %d is not a consumer of %s", ErrNotReadable, handleID, q.uri)
	}
	consumer.Settings = settings
	consumer.LastActivity = time.Now()
	return nil
}

// RemoveConsumer detaches a read handle and puts its unconfirmed messages
// back at the head of the queue. It returns the number requeued.
func (q *Queue) RemoveConsumer(handleID uint64) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.consumers[handleID]; !exists {
		return 0
	}
	delete(q.consumers, handleID)

	entries := q.pending.RemoveByHandle(handleID)
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Sequence < entries[j].Sequence
	})

	requeue := make([]*Message, 0, len(entries)+len(q.messages))
	for _, entry := range entries {
		requeue = append(requeue, entry.Message)
	}
	q.messages = append(requeue, q.messages...)
	q.requeued += int64(len(entries))

	q.logger.Info("Consumer unregistered",
		"queue_uri", q.uri,
		"handle_id", handleID,
		"requeued", len(entries),
	)
	return len(entries)
}

// Fetch assigns up to limit messages to a consumer
func (q *Queue) Fetch(handleID uint64, limit int) ([]*Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	consumer, exists := q.consumers[handleID]
	if !exists {
		return nil, fmt.Errorf("%w: handle %d is not a consumer of %s", ErrNotReadable, handleID, q.uri)
	}
	consumer.LastActivity = time.Now()

	if !q.eligible(consumer) {
		return nil, nil
	}

	var out []*Message
	for len(out) < limit && len(q.messages) > 0 && consumer.hasCapacity() {
		msg := q.messages[0]
		q.messages[0] = nil
		q.messages = q.messages[1:]

		msg.DeliveryCount++
		if q.maxDeliveryAttempts > 0 && msg.DeliveryCount > q.maxDeliveryAttempts {
			q.poisoned++
			q.logger.Warn("Dropping message that exceeded max delivery attempts",
				"queue_uri", q.uri,
				"guid", msg.GUID,
				"delivery_count", msg.DeliveryCount-1,
			)
			continue
		}

		q.sequence++
		q.pending.Add(msg.GUID, &PendingEntry{
			Message:      msg,
			SessionID:    consumer.SessionID,
			HandleID:     handleID,
			DeliveryTime: time.Now(),
			Sequence:     q.sequence,
		})
		consumer.unconfirmedMessages++
		consumer.unconfirmedBytes += msg.Size()
		q.delivered++
		out = append(out, msg)
	}

	if len(out) > 0 {
		q.logger.Debug("Messages delivered to consumer",
			"queue_uri", q.uri,
			"handle_id", handleID,
			"count", len(out),
			"unconfirmed", consumer.unconfirmedMessages,
		)
	}
	return out, nil
}

// Confirm releases a delivered message. Confirming a message that is not
// pending for this handle is a no-op.
func (q *Queue) Confirm(handleID uint64, guid string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry := q.pending.Get(guid)
	if entry == nil || entry.HandleID != handleID {
		return false
	}
	q.pending.Remove(guid)

	if consumer, exists := q.consumers[handleID]; exists {
		consumer.unconfirmedMessages--
		consumer.unconfirmedBytes -= entry.Message.Size()
		consumer.LastActivity = time.Now()
	}
	q.confirmed++
	return true
}

// eligible reports whether consumer is among the highest-priority
// consumers currently accepting messages.
func (q *Queue) eligible(consumer *Consumer) bool {
	if consumer.Settings.MaxUnconfirmedMessages <= 0 {
		return false
	}
	for _, other := range q.consumers {
		if other.Settings.MaxUnconfirmedMessages > 0 &&
			other.Settings.ConsumerPriority > consumer.Settings.ConsumerPriority {
			return false
		}
	}
	return true
}

func (c *Consumer) hasCapacity() bool {
	return c.unconfirmedMessages < c.Settings.MaxUnconfirmedMessages &&
		c.unconfirmedBytes < c.Settings.MaxUnconfirmedBytes
}

// Stats returns a snapshot of the queue
func (q *Queue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	return QueueStats{
		URI:       q.uri,
		Depth:     len(q.messages),
		Pending:   q.pending.Count(),
		Consumers: len(q.consumers),
		Posted:    q.posted,
		Delivered: q.delivered,
		Confirmed: q.confirmed,
		Requeued:  q.requeued,
		Rejected:  q.rejected,
		Poisoned:  q.poisoned,
	}
}

// PendingList tracks delivered messages awaiting confirmation
type PendingList struct {
	entries map[string]*PendingEntry
	mu      sync.RWMutex
}

// NewPendingList creates a new pending list
func NewPendingList() *PendingList {
	return &PendingList{
		entries: make(map[string]*PendingEntry),
	}
}

// Add adds an entry to the pending list
func (pl *PendingList) Add(guid string, entry *PendingEntry) {
	pl.mu.Lock()
	defer pl.mu.Unlock()
	pl.entries[guid] = entry
}

// Remove removes an entry from the pending list
func (pl *PendingList) Remove(guid string) bool {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	if _, exists := pl.entries[guid]; exists {
		delete(pl.entries, guid)
		return true
	}
	return false
}

// Get retrieves an entry from the pending list
func (pl *PendingList) Get(guid string) *PendingEntry {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	return pl.entries[guid]
}

// RemoveByHandle removes and returns every entry delivered to a handle
func (pl *PendingList) RemoveByHandle(handleID uint64) []*PendingEntry {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	var removed []*PendingEntry
	for guid, entry := range pl.entries {
		if entry.HandleID == handleID {
			removed = append(removed, entry)
			delete(pl.entries, guid)
		}
	}
	return removed
}

// Count returns the number of pending messages
func (pl *PendingList) Count() int {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	return len(pl.entries)
}
