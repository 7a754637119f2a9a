package mq

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/arnabghosh/blazingmq-session/internal/domain"
)

// Op names a Loopback request, for scripting results and blocking.
type Op string

const (
	OpConnect   Op = "connect"
	OpOpen      Op = "open"
	OpConfigure Op = "configure"
	OpClose     Op = "close"
	OpPost      Op = "post"
	OpConfirm   Op = "confirm"
	OpReopen    Op = "reopen"
)

// LoopbackConfig holds configuration for the in-process broker
type LoopbackConfig struct {
	// HighWatermark is the number of undelivered events that raises a
	// slow consumer warning. Zero disables watermark events.
	HighWatermark int

	// LowWatermark is the number of undelivered events at which the
	// warning is cleared.
	LowWatermark int

	// MaxQueueDepth limits stored messages per queue URI. Posts beyond it
	// are rejected with LIMIT_MESSAGES. Zero means unlimited.
	MaxQueueDepth int

	// AdjustSettings, if set, is applied to requested queue settings to
	// model a broker that negotiates different values.
	AdjustSettings func(domain.QueueSettings) domain.QueueSettings
}

// DefaultLoopbackConfig returns default configuration
func DefaultLoopbackConfig() LoopbackConfig {
	return LoopbackConfig{
		HighWatermark: 10000,
		LowWatermark:  5000,
	}
}

type storedMessage struct {
	guid       domain.MessageGUID
	payload    []byte
	properties []domain.RawProperty
}

type loopbackQueue struct {
	id               QueueID
	uri              string
	flags            QueueFlags
	settings         domain.QueueSettings
	unconfirmed      map[domain.MessageGUID]storedMessage
	unconfirmedBytes int
}

// Loopback is an in-process broker implementing Connection. Posts to a
// queue URI are delivered to the reader of the same URI on this
// connection, within its unconfirmed limits.
type Loopback struct {
	config LoopbackConfig
	logger *slog.Logger

	// mu guards broker state. It is never held while calling the handler.
	mu        sync.Mutex
	connected bool
	nextID    QueueID
	queues    map[QueueID]*loopbackQueue
	stored    map[string][]storedMessage

	// scripting
	results  map[Op][]Status
	blockers map[Op]chan struct{}

	// events is replaced on every Connect after a Disconnect
	events       *eventQueue
	eventsClosed bool

	totalPosted    atomic.Int64
	totalPushed    atomic.Int64
	totalConfirmed atomic.Int64
	totalAcks      atomic.Int64
}

// NewLoopback creates a new in-process broker connection
func NewLoopback(config LoopbackConfig, logger *slog.Logger) *Loopback {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loopback{
		config:   config,
		logger:   logger.With("component", "loopback_broker"),
		queues:   make(map[QueueID]*loopbackQueue),
		stored:   make(map[string][]storedMessage),
		results:  make(map[Op][]Status),
		blockers: make(map[Op]chan struct{}),
	}
	l.events = newEventQueue(config.HighWatermark, config.LowWatermark, l.logger)
	return l
}

// SetResult scripts the result of the next request of kind op. A non-success
// status is returned without performing the request.
func (l *Loopback) SetResult(op Op, status Status) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.results[op] = append(l.results[op], status)
}

// Block makes requests of kind op hang until Unblock is called or their
// context is done.
func (l *Loopback) Block(op Op) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.blockers[op]; !ok {
		l.blockers[op] = make(chan struct{})
	}
}

// Unblock releases requests blocked by Block.
func (l *Loopback) Unblock(op Op) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ch, ok := l.blockers[op]; ok {
		close(ch)
		delete(l.blockers, op)
	}
}

// InjectSessionEvent queues a session event for delivery.
func (l *Loopback) InjectSessionEvent(ev SessionEvent) {
	l.enqueueSession(ev)
}

// InjectMessageEvent queues a message event for delivery.
func (l *Loopback) InjectMessageEvent(ev MessageEvent) {
	l.enqueueMessage(ev)
}

// SimulateConnectionLost emits the event sequence of a dropped and
// re-established connection: ConnectionLost, Reconnected, one reopen
// result per open queue and StateRestored.
func (l *Loopback) SimulateConnectionLost() {
	l.mu.Lock()
	ids := make([]QueueID, 0, len(l.queues))
	for id := range l.queues {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	evs := []SessionEvent{
		{Type: SessionEventConnectionLost},
		{Type: SessionEventReconnected},
	}
	for _, id := range ids {
		status := l.popResultLocked(OpReopen)
		evs = append(evs, SessionEvent{
			Type:             SessionEventQueueReopenResult,
			StatusCode:       status.Code,
			ErrorDescription: status.Description,
			QueueURI:         l.queues[id].uri,
		})
	}
	l.mu.Unlock()

	evs = append(evs, SessionEvent{Type: SessionEventStateRestored})
	for _, ev := range evs {
		l.enqueueSession(ev)
	}
}

// Connect starts the delivery goroutine and emits CONNECTED
func (l *Loopback) Connect(ctx context.Context, handler EventHandler) Status {
	if status, ok := l.prepare(ctx, OpConnect); !ok {
		return status
	}

	l.mu.Lock()
	if l.connected {
		l.mu.Unlock()
		return StatusOf(domain.ResultNotSupported, "already connected")
	}
	l.connected = true
	if l.eventsClosed {
		l.events = newEventQueue(l.config.HighWatermark, l.config.LowWatermark, l.logger)
		l.eventsClosed = false
	}
	events := l.events
	l.mu.Unlock()

	events.start(handler)
	events.pushSession(SessionEvent{Type: SessionEventConnected})

	l.logger.Info("Loopback broker connected",
		"high_watermark", l.config.HighWatermark,
		"max_queue_depth", l.config.MaxQueueDepth,
	)
	return Success
}

// Disconnect emits DISCONNECTED and stops the delivery goroutine
func (l *Loopback) Disconnect(ctx context.Context) {
	l.mu.Lock()
	if !l.connected {
		l.mu.Unlock()
		return
	}
	l.connected = false
	for _, q := range l.queues {
		l.requeueLocked(q)
	}
	l.queues = make(map[QueueID]*loopbackQueue)
	events := l.events
	l.eventsClosed = true
	l.mu.Unlock()

	events.pushSession(SessionEvent{Type: SessionEventDisconnected})
	if err := events.stop(ctx); err != nil {
		l.logger.Warn("Timed out waiting for event delivery to finish", "error", err)
		return
	}

	l.logger.Info("Loopback broker disconnected",
		"total_posted", l.totalPosted.Load(),
		"total_pushed", l.totalPushed.Load(),
		"total_confirmed", l.totalConfirmed.Load(),
	)
}

// OpenQueue registers a queue handle and starts delivery if it reads
func (l *Loopback) OpenQueue(ctx context.Context, uri string, flags QueueFlags, settings domain.QueueSettings) (QueueID, domain.QueueSettings, Status) {
	if status, ok := l.prepare(ctx, OpOpen); !ok {
		return 0, settings, status
	}

	l.mu.Lock()
	if !l.connected {
		l.mu.Unlock()
		return 0, settings, StatusOf(domain.ResultNotConnected, "not connected")
	}
	if flags&(FlagRead|FlagWrite) == 0 {
		l.mu.Unlock()
		return 0, settings, StatusOf(domain.ResultInvalidArgument, "queue must be opened for read or write")
	}
	for _, q := range l.queues {
		if q.uri == uri {
			l.mu.Unlock()
			return 0, settings, StatusOf(domain.ResultInvalidArgument, "queue already opened")
		}
	}

	l.nextID++
	q := &loopbackQueue{
		id:          l.nextID,
		uri:         uri,
		flags:       flags,
		settings:    l.negotiate(settings),
		unconfirmed: make(map[domain.MessageGUID]storedMessage),
	}
	l.queues[q.id] = q
	l.emitPushesLocked(l.pumpLocked(uri))
	l.mu.Unlock()

	l.logger.Debug("Queue opened", "queue_uri", uri, "queue_id", q.id, "flags", int(flags))
	return q.id, q.settings, Success
}

// ConfigureQueue updates consumer settings and resumes delivery
func (l *Loopback) ConfigureQueue(ctx context.Context, id QueueID, settings domain.QueueSettings) (domain.QueueSettings, Status) {
	if status, ok := l.prepare(ctx, OpConfigure); !ok {
		return settings, status
	}

	l.mu.Lock()
	q, status := l.lookupLocked(id)
	if !status.OK() {
		l.mu.Unlock()
		return settings, status
	}
	q.settings = l.negotiate(settings)
	negotiated := q.settings
	l.emitPushesLocked(l.pumpLocked(q.uri))
	l.mu.Unlock()

	return negotiated, Success
}

// CloseQueue removes the handle and requeues its unconfirmed messages
func (l *Loopback) CloseQueue(ctx context.Context, id QueueID) Status {
	if status, ok := l.prepare(ctx, OpClose); !ok {
		return status
	}

	l.mu.Lock()
	q, status := l.lookupLocked(id)
	if !status.OK() {
		l.mu.Unlock()
		return status
	}
	delete(l.queues, id)
	l.requeueLocked(q)
	l.emitPushesLocked(l.pumpLocked(q.uri))
	l.mu.Unlock()

	return Success
}

// Post stores the message and delivers it to a reader if one has capacity
func (l *Loopback) Post(ctx context.Context, msg *OutboundMessage) Status {
	if status, ok := l.prepare(ctx, OpPost); !ok {
		return status
	}

	l.mu.Lock()
	q, status := l.lookupLocked(msg.QueueID)
	if !status.OK() {
		l.mu.Unlock()
		return status
	}
	if !q.flags.Has(FlagWrite) {
		l.mu.Unlock()
		return StatusOf(domain.ResultInvalidArgument, "queue not opened for write")
	}

	ackStatus := int(domain.AckSuccess)
	var pushes []PushMessage
	if l.config.MaxQueueDepth > 0 && l.depthLocked(q.uri) >= l.config.MaxQueueDepth {
		ackStatus = int(domain.AckLimitMessages)
	} else {
		l.stored[q.uri] = append(l.stored[q.uri], storedMessage{
			guid:       msg.GUID,
			payload:    append([]byte(nil), msg.Payload...),
			properties: msg.Properties,
		})
		l.totalPosted.Add(1)
		pushes = l.pumpLocked(q.uri)
	}

	if msg.WantAck || ackStatus != int(domain.AckSuccess) {
		l.totalAcks.Add(1)
		l.events.pushMessage(MessageEvent{
			Type: MessageEventAck,
			Acks: []AckMessage{{QueueURI: q.uri, GUID: msg.GUID, Status: ackStatus}},
		})
	}
	l.emitPushesLocked(pushes)
	l.mu.Unlock()
	return Success
}

// Confirm releases an unconfirmed message and delivers more if possible
func (l *Loopback) Confirm(ctx context.Context, id QueueID, guid domain.MessageGUID) Status {
	if status, ok := l.prepare(ctx, OpConfirm); !ok {
		return status
	}

	l.mu.Lock()
	q, status := l.lookupLocked(id)
	if !status.OK() {
		l.mu.Unlock()
		return status
	}
	if m, ok := q.unconfirmed[guid]; ok {
		delete(q.unconfirmed, guid)
		q.unconfirmedBytes -= len(m.payload)
		l.totalConfirmed.Add(1)
		l.emitPushesLocked(l.pumpLocked(q.uri))
	} else {
		l.logger.Debug("Confirm for unknown message", "queue_uri", q.uri, "guid", guid.String())
	}
	l.mu.Unlock()

	return Success
}

// Stats returns current connection statistics
func (l *Loopback) Stats() ConnectionStats {
	l.mu.Lock()
	open := len(l.queues)
	l.mu.Unlock()

	return ConnectionStats{
		TotalPosted:    l.totalPosted.Load(),
		TotalPushed:    l.totalPushed.Load(),
		TotalConfirmed: l.totalConfirmed.Load(),
		TotalAcks:      l.totalAcks.Load(),
		OpenQueues:     open,
	}
}

// Depth returns the number of stored messages for uri, delivered or not.
func (l *Loopback) Depth(uri string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.depthLocked(uri)
}

// prepare applies scripting for op. It returns false with the status to
// report when the request must not proceed.
func (l *Loopback) prepare(ctx context.Context, op Op) (Status, bool) {
	l.mu.Lock()
	blocker := l.blockers[op]
	l.mu.Unlock()

	if blocker != nil {
		select {
		case <-blocker:
		case <-ctx.Done():
			return StatusOf(domain.ResultTimeout, fmt.Sprintf("%s timed out", op)), false
		}
	}
	if ctx.Err() != nil {
		return StatusOf(domain.ResultTimeout, fmt.Sprintf("%s timed out", op)), false
	}

	l.mu.Lock()
	status := l.popResultLocked(op)
	l.mu.Unlock()
	return status, status.OK()
}

func (l *Loopback) popResultLocked(op Op) Status {
	scripted := l.results[op]
	if len(scripted) == 0 {
		return Success
	}
	l.results[op] = scripted[1:]
	return scripted[0]
}

func (l *Loopback) lookupLocked(id QueueID) (*loopbackQueue, Status) {
	if !l.connected {
		return nil, StatusOf(domain.ResultNotConnected, "not connected")
	}
	q, ok := l.queues[id]
	if !ok {
		return nil, StatusOf(domain.ResultInvalidArgument, fmt.Sprintf("unknown queue id %d", id))
	}
	return q, Success
}

func (l *Loopback) negotiate(settings domain.QueueSettings) domain.QueueSettings {
	if l.config.AdjustSettings != nil {
		return l.config.AdjustSettings(settings)
	}
	return settings
}

func (l *Loopback) depthLocked(uri string) int {
	n := len(l.stored[uri])
	for _, q := range l.queues {
		if q.uri == uri {
			n += len(q.unconfirmed)
		}
	}
	return n
}

func (l *Loopback) requeueLocked(q *loopbackQueue) {
	if len(q.unconfirmed) == 0 {
		return
	}
	requeued := make([]storedMessage, 0, len(q.unconfirmed)+len(l.stored[q.uri]))
	for _, m := range q.unconfirmed {
		requeued = append(requeued, m)
	}
	l.stored[q.uri] = append(requeued, l.stored[q.uri]...)
	q.unconfirmed = make(map[domain.MessageGUID]storedMessage)
	q.unconfirmedBytes = 0
}

// pumpLocked moves stored messages to the reader of uri while it has
// unconfirmed capacity, and returns the resulting deliveries.
func (l *Loopback) pumpLocked(uri string) []PushMessage {
	reader := l.readerLocked(uri)
	if reader == nil {
		return nil
	}

	var pushes []PushMessage
	for len(l.stored[uri]) > 0 && reader.hasCapacity(len(l.stored[uri][0].payload)) {
		m := l.stored[uri][0]
		l.stored[uri] = l.stored[uri][1:]
		reader.unconfirmed[m.guid] = m
		reader.unconfirmedBytes += len(m.payload)
		pushes = append(pushes, PushMessage{
			QueueID:    reader.id,
			QueueURI:   reader.uri,
			GUID:       m.guid,
			Payload:    m.payload,
			Properties: m.properties,
		})
	}
	if len(l.stored[uri]) == 0 {
		delete(l.stored, uri)
	}
	return pushes
}

func (l *Loopback) readerLocked(uri string) *loopbackQueue {
	for _, q := range l.queues {
		if q.uri == uri && q.flags.Has(FlagRead) {
			return q
		}
	}
	return nil
}

// hasCapacity reports whether a message of size bytes may be delivered.
// A single message larger than the byte limit is still delivered when
// nothing else is outstanding.
func (q *loopbackQueue) hasCapacity(size int) bool {
	if len(q.unconfirmed) >= q.settings.MaxUnconfirmedMessages {
		return false
	}
	return len(q.unconfirmed) == 0 || q.unconfirmedBytes+size <= q.settings.MaxUnconfirmedBytes
}

// emitPushesLocked enqueues pushes in the order they were pumped. Called
// with l.mu held; the event queue only takes its own lock.
func (l *Loopback) emitPushesLocked(pushes []PushMessage) {
	if len(pushes) == 0 {
		return
	}
	l.totalPushed.Add(int64(len(pushes)))
	l.events.pushMessage(MessageEvent{Type: MessageEventPush, Pushes: pushes})
}

func (l *Loopback) enqueueSession(ev SessionEvent) {
	l.mu.Lock()
	events := l.events
	l.mu.Unlock()
	events.pushSession(ev)
}

func (l *Loopback) enqueueMessage(ev MessageEvent) {
	l.mu.Lock()
	events := l.events
	l.mu.Unlock()
	events.pushMessage(ev)
}
