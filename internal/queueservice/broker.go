package queueservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/arnabghosh/blazingmq-session/internal/domain"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrQueueNotFound    = errors.New("queue not found")
	ErrQueueAlreadyOpen = errors.New("queue already open in session")
	ErrNotReadable      = errors.New("queue not opened for reading")
	ErrNotWritable      = errors.New("queue not opened for writing")
	ErrInvalidQueueURI  = errors.New("invalid queue URI")
	ErrBrokerShutdown   = errors.New("broker is shutting down")
)

// ResultCodeOf maps a broker error to the result code reported to clients
func ResultCodeOf(err error) domain.ResultCode {
	switch {
	case err == nil:
		return domain.ResultSuccess
	case errors.Is(err, ErrSessionNotFound):
		return domain.ResultNotConnected
	case errors.Is(err, ErrQueueNotFound), errors.Is(err, ErrInvalidQueueURI), errors.Is(err, ErrQueueAlreadyOpen):
		return domain.ResultInvalidArgument
	case errors.Is(err, ErrNotReadable), errors.Is(err, ErrNotWritable):
		return domain.ResultNotSupported
	case errors.Is(err, ErrBrokerShutdown):
		return domain.ResultNotReady
	default:
		return domain.ResultUnknown
	}
}

// Config for the broker
type Config struct {
	// MaxQueueDepth rejects posts with LIMIT_MESSAGES once a queue holds
	// this many undelivered messages. Zero means unbounded.
	MaxQueueDepth int
	// SessionTTL expires sessions that made no request for this long.
	SessionTTL time.Duration
	// MaxDeliveryAttempts drops a message after this many deliveries.
	// Zero means unlimited.
	MaxDeliveryAttempts int
	ExpiryCheckInterval time.Duration
}

// Broker is an in-process development broker: sessions open handles on
// queues identified by URI, post to them and consume from them.
type Broker struct {
	config Config
	logger *slog.Logger

	mu       sync.RWMutex
	queues   map[string]*Queue
	sessions map[string]*clientSession

	nextHandleID    atomic.Uint64
	sessionsCreated atomic.Int64
	sessionsExpired atomic.Int64
	shutdownChan    chan struct{}
	shutdownOnce    sync.Once
}

type clientSession struct {
	id        string
	clientID  string
	createdAt time.Time
	lastSeen  time.Time
	handles   map[uint64]*queueHandle
}

type queueHandle struct {
	id    uint64
	uri   string
	read  bool
	write bool
}

// Stats is a snapshot of the broker
type Stats struct {
	Sessions        int          `json:"sessions"`
	SessionsCreated int64        `json:"sessions_created"`
	SessionsExpired int64        `json:"sessions_expired"`
	Queues          []QueueStats `json:"queues"`
}

// NewBroker creates a new broker instance
func NewBroker(config Config, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}

	if config.SessionTTL == 0 {
		config.SessionTTL = 2 * time.Minute
	}

	if config.ExpiryCheckInterval == 0 {
		config.ExpiryCheckInterval = 10 * time.Second
	}

	return &Broker{
		config:       config,
		logger:       logger.With("component", "broker"),
		queues:       make(map[string]*Queue),
		sessions:     make(map[string]*clientSession),
		shutdownChan: make(chan struct{}),
	}
}

// Start begins the broker background processes
func (b *Broker) Start(ctx context.Context) error {
	b.logger.Info("Starting broker",
		"session_ttl", b.config.SessionTTL,
		"max_queue_depth", b.config.MaxQueueDepth,
		"max_delivery_attempts", b.config.MaxDeliveryAttempts,
	)

	go b.sessionExpiryChecker(ctx)

	return nil
}

// CreateSession registers a new client session
func (b *Broker) CreateSession(clientID string) (string, error) {
	if b.isShutdown() {
		return "", ErrBrokerShutdown
	}

	now := time.Now()
	s := &clientSession{
		id:        uuid.New().String(),
		clientID:  clientID,
		createdAt: now,
		lastSeen:  now,
		handles:   make(map[uint64]*queueHandle),
	}

	b.mu.Lock()
	b.sessions[s.id] = s
	b.mu.Unlock()
	b.sessionsCreated.Add(1)

	b.logger.Info("Session created",
		"session_id", s.id,
		"client_id", clientID,
	)
	return s.id, nil
}

// CloseSession closes every handle of a session and forgets it
func (b *Broker) CloseSession(sessionID string) error {
	b.mu.Lock()
	s, exists := b.sessions[sessionID]
	if exists {
		delete(b.sessions, sessionID)
	}
	b.mu.Unlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	requeued := b.releaseHandles(s)
	b.logger.Info("Session closed",
		"session_id", sessionID,
		"handles", len(s.handles),
		"requeued", requeued,
	)
	return nil
}

// Heartbeat records activity on a session
func (b *Broker) Heartbeat(sessionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, err := b.touchLocked(sessionID)
	return err
}

// OpenQueue opens a handle on uri within a session. Read handles become
// consumers with the given settings.
func (b *Broker) OpenQueue(sessionID, uri string, read, write bool, settings domain.QueueSettings) (uint64, domain.QueueSettings, error) {
	if !strings.HasPrefix(uri, "bmq://") {
		return 0, settings, fmt.Errorf("%w: %q", ErrInvalidQueueURI, uri)
	}
	if !read && !write {
		return 0, settings, fmt.Errorf("%w: handle must be opened for read or write", ErrInvalidQueueURI)
	}

	b.mu.Lock()
	s, err := b.touchLocked(sessionID)
	if err != nil {
		b.mu.Unlock()
		return 0, settings, err
	}
	for _, h := range s.handles {
		if h.uri == uri {
			b.mu.Unlock()
			return 0, settings, fmt.Errorf("%w: %s", ErrQueueAlreadyOpen, uri)
		}
	}

	q, exists := b.queues[uri]
	if !exists {
		q = newQueue(uri, b.config.MaxQueueDepth, b.config.MaxDeliveryAttempts, b.logger)
		b.queues[uri] = q
		b.logger.Info("Queue created", "queue_uri", uri)
	}

	h := &queueHandle{id: b.nextHandleID.Add(1), uri: uri, read: read, write: write}
	s.handles[h.id] = h
	if read {
		q.AddConsumer(sessionID, h.id, settings)
	}
	b.mu.Unlock()

	b.logger.Debug("Queue opened",
		"session_id", sessionID,
		"queue_uri", uri,
		"handle_id", h.id,
		"read", read,
		"write", write,
	)
	return h.id, settings, nil
}

// ConfigureQueue changes the consumer settings of a read handle
func (b *Broker) ConfigureQueue(sessionID string, handleID uint64, settings domain.QueueSettings) (domain.QueueSettings, error) {
	h, q, err := b.resolve(sessionID, handleID)
	if err != nil {
		return settings, err
	}
	if !h.read {
		return settings, fmt.Errorf("%w: %s", ErrNotReadable, h.uri)
	}
	if err := q.Configure(handleID, settings); err != nil {
		return settings, err
	}
	return settings, nil
}

// CloseQueue closes a handle, requeueing its unconfirmed messages
func (b *Broker) CloseQueue(sessionID string, handleID uint64) error {
	b.mu.Lock()
	s, err := b.touchLocked(sessionID)
	if err != nil {
		b.mu.Unlock()
		return err
	}
	h, exists := s.handles[handleID]
	if !exists {
		b.mu.Unlock()
		return fmt.Errorf("%w: handle %d", ErrQueueNotFound, handleID)
	}
	delete(s.handles, handleID)
	q := b.queues[h.uri]
	b.mu.Unlock()

	if h.read && q != nil {
		q.RemoveConsumer(handleID)
	}
	return nil
}

// Post appends a message through a write handle and returns the ack status
func (b *Broker) Post(sessionID string, handleID uint64, msg *Message) (domain.AckStatus, error) {
	h, q, err := b.resolve(sessionID, handleID)
	if err != nil {
		return domain.AckUnknown, err
	}
	if !h.write {
		return domain.AckUnknown, fmt.Errorf("%w: %s", ErrNotWritable, h.uri)
	}

	msg.QueueURI = h.uri
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	return q.Post(msg), nil
}

// Fetch returns up to limit messages for a read handle
func (b *Broker) Fetch(sessionID string, handleID uint64, limit int) ([]*Message, error) {
	h, q, err := b.resolve(sessionID, handleID)
	if err != nil {
		return nil, err
	}
	if !h.read {
		return nil, fmt.Errorf("%w: %s", ErrNotReadable, h.uri)
	}
	return q.Fetch(handleID, limit)
}

// Confirm releases a message delivered to a read handle
func (b *Broker) Confirm(sessionID string, handleID uint64, guid string) error {
	h, q, err := b.resolve(sessionID, handleID)
	if err != nil {
		return err
	}
	if !h.read {
		return fmt.Errorf("%w: %s", ErrNotReadable, h.uri)
	}
	if !q.Confirm(handleID, guid) {
		b.logger.Debug("Ignoring confirm for message not pending on handle",
			"queue_uri", h.uri,
			"handle_id", handleID,
			"guid", guid,
		)
	}
	return nil
}

// Stats returns broker statistics
func (b *Broker) Stats() Stats {
	b.mu.RLock()
	sessions := len(b.sessions)
	queues := make([]*Queue, 0, len(b.queues))
	for _, q := range b.queues {
		queues = append(queues, q)
	}
	b.mu.RUnlock()

	stats := Stats{
		Sessions:        sessions,
		SessionsCreated: b.sessionsCreated.Load(),
		SessionsExpired: b.sessionsExpired.Load(),
		Queues:          make([]QueueStats, 0, len(queues)),
	}
	for _, q := range queues {
		stats.Queues = append(stats.Queues, q.Stats())
	}
	sort.Slice(stats.Queues, func(i, j int) bool {
		return stats.Queues[i].URI < stats.Queues[j].URI
	})
	return stats
}

// Shutdown stops background processes and closes all sessions
func (b *Broker) Shutdown(ctx context.Context) error {
	b.logger.Info("Shutting down broker")
	b.shutdownOnce.Do(func() { close(b.shutdownChan) })

	b.mu.Lock()
	sessions := make([]*clientSession, 0, len(b.sessions))
	for _, s := range b.sessions {
		sessions = append(sessions, s)
	}
	b.sessions = make(map[string]*clientSession)
	b.mu.Unlock()

	for _, s := range sessions {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("broker shutdown interrupted: %w", err)
		}
		b.releaseHandles(s)
	}
	return nil
}

// String returns a debug string representation
func (b *Broker) String() string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return fmt.Sprintf("Broker{sessions=%d, queues=%d, session_ttl=%v}",
		len(b.sessions), len(b.queues), b.config.SessionTTL)
}

func (b *Broker) isShutdown() bool {
	select {
	case <-b.shutdownChan:
		return true
	default:
		return false
	}
}

// touchLocked looks up a session and records activity. Callers hold b.mu.
func (b *Broker) touchLocked(sessionID string) (*clientSession, error) {
	s, exists := b.sessions[sessionID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	s.lastSeen = time.Now()
	return s, nil
}

func (b *Broker) resolve(sessionID string, handleID uint64) (*queueHandle, *Queue, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, err := b.touchLocked(sessionID)
	if err != nil {
		return nil, nil, err
	}
	h, exists := s.handles[handleID]
	if !exists {
		return nil, nil, fmt.Errorf("%w: handle %d", ErrQueueNotFound, handleID)
	}
	return h, b.queues[h.uri], nil
}

// releaseHandles detaches every read handle of a session that has already
// been removed from b.sessions.
func (b *Broker) releaseHandles(s *clientSession) int {
	b.mu.RLock()
	queues := make(map[uint64]*Queue, len(s.handles))
	for id, h := range s.handles {
		if h.read {
			queues[id] = b.queues[h.uri]
		}
	}
	b.mu.RUnlock()

	requeued := 0
	for id, q := range queues {
		if q != nil {
			requeued += q.RemoveConsumer(id)
		}
	}
	return requeued
}

// sessionExpiryChecker expires sessions whose client stopped polling
func (b *Broker) sessionExpiryChecker(ctx context.Context) {
	ticker := time.NewTicker(b.config.ExpiryCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.expireSessions(time.Now())
		case <-ctx.Done():
			return
		case <-b.shutdownChan:
			return
		}
	}
}

// expireSessions closes sessions idle for longer than the session TTL
func (b *Broker) expireSessions(now time.Time) int {
	b.mu.Lock()
	var expired []*clientSession
	for id, s := range b.sessions {
		if now.Sub(s.lastSeen) > b.config.SessionTTL {
			expired = append(expired, s)
			delete(b.sessions, id)
		}
	}
	b.mu.Unlock()

	for _, s := range expired {
		requeued := b.releaseHandles(s)
		b.sessionsExpired.Add(1)
		b.logger.Warn("Session expired",
			"session_id", s.id,
			"client_id", s.clientID,
			"idle", now.Sub(s.lastSeen),
			"requeued", requeued,
		)
	}
	return len(expired)
}
