package mq

import (
	"context"
	"log/slog"
	"sync"
)

type queuedEvent struct {
	session *SessionEvent
	message *MessageEvent
}

// eventQueue is an unbounded FIFO of events drained by one delivery
// goroutine. Pushing never blocks, so a connection can enqueue events
// while a request is waiting on one of them.
type eventQueue struct {
	logger        *slog.Logger
	highWatermark int
	lowWatermark  int

	mu      sync.Mutex
	events  []queuedEvent
	slow    bool
	started bool

	wake chan struct{}
	quit chan struct{}
	done chan struct{}
	once sync.Once
}

func newEventQueue(highWatermark, lowWatermark int, logger *slog.Logger) *eventQueue {
	if lowWatermark > highWatermark {
		lowWatermark = highWatermark / 2
	}
	return &eventQueue{
		logger:        logger,
		highWatermark: highWatermark,
		lowWatermark:  lowWatermark,
		wake:          make(chan struct{}, 1),
		quit:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// start launches the delivery goroutine. Events pushed earlier are kept.
func (q *eventQueue) start(handler EventHandler) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.mu.Unlock()

	go q.run(handler)
}

func (q *eventQueue) pushSession(ev SessionEvent) {
	q.push(queuedEvent{session: &ev})
}

func (q *eventQueue) pushMessage(ev MessageEvent) {
	q.push(queuedEvent{message: &ev})
}

func (q *eventQueue) push(ev queuedEvent) {
	q.mu.Lock()
	q.events = append(q.events, ev)
	if q.highWatermark > 0 && !q.slow && len(q.events) >= q.highWatermark {
		q.slow = true
		q.events = append(q.events, queuedEvent{session: &SessionEvent{Type: SessionEventSlowConsumerHighWatermark}})
	}
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// stop delivers what is already queued and waits for the goroutine to
// exit, or for ctx to be done.
func (q *eventQueue) stop(ctx context.Context) error {
	q.once.Do(func() { close(q.quit) })

	q.mu.Lock()
	started := q.started
	q.mu.Unlock()
	if !started {
		return nil
	}

	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *eventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

func (q *eventQueue) run(handler EventHandler) {
	defer close(q.done)

	for {
		q.mu.Lock()
		batch := q.events
		q.events = nil
		q.mu.Unlock()

		for _, ev := range batch {
			q.dispatch(handler, ev)
		}

		q.mu.Lock()
		if q.slow && len(q.events) <= q.lowWatermark {
			q.slow = false
			q.events = append(q.events, queuedEvent{session: &SessionEvent{Type: SessionEventSlowConsumerNormal}})
		}
		pending := len(q.events)
		q.mu.Unlock()

		if pending > 0 {
			continue
		}

		select {
		case <-q.wake:
		case <-q.quit:
			q.mu.Lock()
			rest := q.events
			q.events = nil
			q.mu.Unlock()
			for _, ev := range rest {
				q.dispatch(handler, ev)
			}
			return
		}
	}
}

func (q *eventQueue) dispatch(handler EventHandler, ev queuedEvent) {
	if handler == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("Event handler panicked", "panic", r)
		}
	}()

	switch {
	case ev.session != nil:
		handler.OnSessionEvent(*ev.session)
	case ev.message != nil:
		handler.OnMessageEvent(*ev.message)
	}
}
