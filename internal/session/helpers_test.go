package session

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arnabghosh/blazingmq-session/internal/domain"
	"github.com/arnabghosh/blazingmq-session/internal/mq"
)

const waitTimeout = 2 * time.Second

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// eventRecorder captures session events
type eventRecorder struct {
	mu     sync.Mutex
	events []domain.SessionEvent
}

func (r *eventRecorder) handle(ev domain.SessionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) all() []domain.SessionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.SessionEvent(nil), r.events...)
}

func (r *eventRecorder) ofType(eventType domain.SessionEventType) []domain.SessionEvent {
	var out []domain.SessionEvent
	for _, ev := range r.all() {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func (r *eventRecorder) types() []domain.SessionEventType {
	var out []domain.SessionEventType
	for _, ev := range r.all() {
		out = append(out, ev.Type)
	}
	return out
}

// waitFor blocks until an event of the given type has been recorded
func (r *eventRecorder) waitFor(t *testing.T, eventType domain.SessionEventType) domain.SessionEvent {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(r.ofType(eventType)) > 0
	}, waitTimeout, 5*time.Millisecond, "no %s event", eventType)
	return r.ofType(eventType)[0]
}

// messageRecorder captures delivered messages
type messageRecorder struct {
	mu       sync.Mutex
	messages []*domain.Message
	handles  []*MessageHandle
}

func (r *messageRecorder) handle(msg *domain.Message, handle *MessageHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	r.handles = append(r.handles, handle)
}

func (r *messageRecorder) all() []*domain.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*domain.Message(nil), r.messages...)
}

func (r *messageRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

// syncBuffer is a bytes.Buffer safe for concurrent log writes
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// noAckConn is a loopback broker that never acknowledges posts
type noAckConn struct {
	*mq.Loopback
}

func (c noAckConn) Post(ctx context.Context, msg *mq.OutboundMessage) mq.Status {
	copied := *msg
	copied.WantAck = false
	return c.Loopback.Post(ctx, &copied)
}

type testSession struct {
	*Session
	loop     *mq.Loopback
	events   *eventRecorder
	messages *messageRecorder
}

// newTestSession creates an unstarted session over a fresh loopback broker.
// OnSessionEvent, OnMessage and Logger default to recorders.
func newTestSession(t *testing.T, opts Options) *testSession {
	t.Helper()
	loop := mq.NewLoopback(mq.DefaultLoopbackConfig(), testLogger())
	return newTestSessionOn(t, loop, loop, opts)
}

// newTestSessionOn creates an unstarted session over conn, which wraps loop
func newTestSessionOn(t *testing.T, loop *mq.Loopback, conn mq.Connection, opts Options) *testSession {
	t.Helper()
	ts := &testSession{loop: loop, events: &eventRecorder{}, messages: &messageRecorder{}}
	if opts.OnSessionEvent == nil {
		opts.OnSessionEvent = ts.events.handle
	}
	if opts.OnMessage == nil {
		opts.OnMessage = ts.messages.handle
	}
	if opts.Logger == nil {
		opts.Logger = testLogger()
	}

	s, err := New(conn, opts)
	require.NoError(t, err)
	ts.Session = s
	t.Cleanup(s.Stop)
	return ts
}

// startTestSession creates and starts a session over a fresh loopback broker
func startTestSession(t *testing.T, opts Options) *testSession {
	t.Helper()
	ts := newTestSession(t, opts)
	require.NoError(t, ts.Start(context.Background()))
	return ts
}

func readWrite() mq.QueueFlags {
	return mq.FlagRead | mq.FlagWrite
}

func newBufferLogger(buf *syncBuffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
