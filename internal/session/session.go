package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arnabghosh/blazingmq-session/internal/domain"
	"github.com/arnabghosh/blazingmq-session/internal/mq"
)

// State is the lifecycle state of a Session
type State int32

const (
	StateUninitialized State = iota
	StateStarting
	StateStarted
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateStarting:
		return "starting"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Session is a client session with a broker. All methods are safe for
// concurrent use. Blocking methods never hold the state lock while
// waiting on the broker, so events can be delivered while they wait.
type Session struct {
	conn   mq.Connection
	opts   Options
	logger *slog.Logger

	// stateMu guards state. Operations hold it for reading only while
	// checking liveness and registering as in flight.
	stateMu  sync.RWMutex
	state    State
	inflight sync.WaitGroup
	stopped  chan struct{}

	handles *handleTable
	pending *registry
	router  *router

	// closed is set once pending callbacks have been cancelled, after
	// which no callback is invoked.
	closed atomic.Bool

	// healthMu is held for writing during a host health transition and
	// for reading by opens and configures, which decide on suspension.
	healthMu    sync.RWMutex
	hostHealthy atomic.Bool
	healthWake  chan struct{}
	unsubscribe func()

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup

	stats stats
}

// New creates a session over conn. It does not contact the broker.
func New(conn mq.Connection, opts Options) (*Session, error) {
	if conn == nil {
		return nil, domain.NewValidationError(domain.ErrInvalidOptions, "connection", "connection is required")
	}
	opts, err := opts.validate()
	if err != nil {
		return nil, err
	}

	s := &Session{
		conn:       conn,
		opts:       opts,
		logger:     opts.Logger.With("component", "session"),
		stopped:    make(chan struct{}),
		handles:    newHandleTable(),
		pending:    newRegistry(),
		healthWake: make(chan struct{}, 1),
	}
	s.router = &router{s: s}
	s.hostHealthy.Store(true)
	return s, nil
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// Start connects to the broker. It may only be called once. On failure
// the session stays uninitialized.
func (s *Session) Start(ctx context.Context) error {
	s.stateMu.Lock()
	if s.state != StateUninitialized {
		state := s.state
		s.stateMu.Unlock()
		if state == StateStopped {
			return &domain.StateError{Op: "start session", Err: domain.ErrSessionStopped}
		}
		return &domain.StateError{Op: "start session", Err: fmt.Errorf("%w: session is %s", domain.ErrSessionStarted, state)}
	}
	s.state = StateStarting
	s.stateMu.Unlock()

	s.logger.Info("Starting session", "connect_timeout", s.opts.Timeouts.Connect)

	connectCtx, cancel := withDefaultTimeout(ctx, s.opts.Timeouts.Connect)
	status := s.conn.Connect(connectCtx, s.router)
	cancel()

	s.stateMu.Lock()
	if s.state == StateStopped {
		// Stopped while connecting
		s.stateMu.Unlock()
		if status.OK() {
			s.disconnect()
		}
		return &domain.StateError{Op: "start session", Err: domain.ErrSessionStopped}
	}
	if !status.OK() {
		s.state = StateUninitialized
		s.stateMu.Unlock()
		s.logger.Error("Failed to start session", "result", status.Code.String(), "description", status.Description)
		return statusError("start session", "", status)
	}
	s.state = StateStarted
	s.startBackground()
	s.stateMu.Unlock()

	s.logger.Info("Session started")
	return nil
}

// Stop disconnects from the broker. It is idempotent; concurrent callers
// return once the session is fully stopped. Acks still pending are
// delivered to their callbacks with status CANCELED before Stop returns.
//
// Stop must not be called from a handler: it waits for event delivery to
// finish and would block until the disconnect timeout.
func (s *Session) Stop() {
	s.stop(false)
}

// Close stops the session if the application did not. Closing a started
// session logs a warning, since Stop should have been called first.
func (s *Session) Close() error {
	s.stop(true)
	return nil
}

func (s *Session) stop(warnIfStarted bool) {
	s.stateMu.Lock()
	prev := s.state
	if prev == StateStopped {
		s.stateMu.Unlock()
		<-s.stopped
		return
	}
	s.state = StateStopped
	s.stateMu.Unlock()

	if prev != StateStarted {
		s.closed.Store(true)
		close(s.stopped)
		s.logger.Debug("Session stopped before start", "previous_state", prev.String())
		return
	}

	if warnIfStarted {
		s.logger.Warn("Session closed while started; Stop was not called first")
	}
	s.logger.Info("Stopping session")

	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	if s.bgCancel != nil {
		s.bgCancel()
	}
	s.waitInflight(s.opts.Timeouts.Disconnect)
	s.disconnect()
	s.bgWG.Wait()

	// Pending acks can no longer arrive; end their callbacks now
	cancelled := s.pending.drain()
	for guid, p := range cancelled {
		s.invokeAck(p, &domain.Ack{
			GUID:              guid,
			Status:            domain.AckCanceled,
			StatusDescription: domain.AckCanceled.String(),
			QueueURI:          p.queueURI,
		})
	}
	s.closed.Store(true)

	s.dumpStats("Final session statistics")
	s.handles.clear()
	s.logger.Info("Session stopped", "cancelled_acks", len(cancelled))
	close(s.stopped)
}

// startBackground launches host health and stats goroutines. It is
// called with stateMu held, so stop observes their cancel functions.
func (s *Session) startBackground() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel
	s.startHostHealth(ctx)
	s.startStatsDump(ctx)
}

func (s *Session) disconnect() {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.Timeouts.Disconnect)
	defer cancel()
	s.conn.Disconnect(ctx)
}

// waitInflight waits for operations that passed the liveness gate, up to d.
func (s *Session) waitInflight(d time.Duration) {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		s.logger.Warn("Timed out waiting for in-flight operations", "timeout", d)
	}
}

// acquire checks that the session is started and registers an operation
// in flight. The returned release must be called when it completes.
func (s *Session) acquire(op, uri string) (release func(), err error) {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	switch s.state {
	case StateStarted:
	case StateStopped:
		return nil, &domain.StateError{Op: op, URI: uri, Err: domain.ErrSessionStopped}
	default:
		return nil, &domain.StateError{Op: op, URI: uri, Err: domain.ErrSessionNotStarted}
	}
	s.inflight.Add(1)
	return s.inflight.Done, nil
}

// withDefaultTimeout bounds ctx by d unless it already has a deadline.
func withDefaultTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// statusError converts a failed broker status into a typed error.
func statusError(op, uri string, status mq.Status) error {
	if status.Code == domain.ResultTimeout {
		return &domain.TimeoutError{Op: op, URI: uri}
	}
	return &domain.ProtocolError{Op: op, URI: uri, Code: status.Code, Description: status.Description}
}
