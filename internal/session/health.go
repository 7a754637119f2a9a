package session

import (
	"context"

	"github.com/arnabghosh/blazingmq-session/internal/domain"
	"github.com/arnabghosh/blazingmq-session/internal/mq"
)

// startHostHealth subscribes to the host health monitor and starts the
// goroutine applying transitions. Transitions are coalesced: only the
// latest health is acted on.
func (s *Session) startHostHealth(ctx context.Context) {
	monitor := s.opts.HostHealthMonitor
	if monitor == nil {
		return
	}

	s.unsubscribe = monitor.Subscribe(func(bool) { s.wakeHealth() })
	if !monitor.Healthy() {
		s.wakeHealth()
	}

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.healthWake:
				s.applyHostHealth(ctx, monitor.Healthy())
			}
		}
	}()
}

func (s *Session) wakeHealth() {
	select {
	case s.healthWake <- struct{}{}:
	default:
	}
}

// applyHostHealth moves the session to the given host health, suspending
// or resuming every queue that suspends on bad host health. It holds
// healthMu for writing, so no open or configure runs concurrently. Events
// are emitted once the lock is released.
func (s *Session) applyHostHealth(ctx context.Context, healthy bool) {
	if s.hostHealthy.Load() == healthy {
		return
	}

	release, err := s.acquire("apply host health", "")
	if err != nil {
		return
	}
	defer release()

	for _, ev := range s.transitionHostHealth(ctx, healthy) {
		s.emit(ev)
	}
}

func (s *Session) transitionHostHealth(ctx context.Context, healthy bool) []domain.SessionEvent {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()

	if s.hostHealthy.Load() == healthy {
		return nil
	}

	var events []domain.SessionEvent
	if !healthy {
		s.hostHealthy.Store(false)
		s.logger.Warn("Host became unhealthy; suspending queues")
		events = append(events, domain.SessionEvent{Type: domain.EventHostUnhealthy})
		for _, h := range s.handles.snapshot() {
			if h.valid && h.settings.SuspendsOnBadHostHealth && !h.suspended {
				events = append(events, s.suspendQueue(ctx, h))
			}
		}
		return events
	}

	s.logger.Info("Host health restored; resuming queues")
	for _, h := range s.handles.snapshot() {
		if h.valid && h.suspended {
			events = append(events, s.resumeQueue(ctx, h))
		}
	}
	s.hostHealthy.Store(true)
	return append(events, domain.SessionEvent{Type: domain.EventHostHealthRestored})
}

// suspendQueue stops consumption on a read queue. The handle keeps the
// application's settings so that resuming can request them again.
func (s *Session) suspendQueue(ctx context.Context, h queueHandle) domain.SessionEvent {
	if h.flags.Has(mq.FlagRead) {
		_, status := s.configureForHealth(ctx, h, suspendedSettings(h.settings))
		if !status.OK() {
			return domain.SessionEvent{
				Type:     domain.EventQueueSuspendFailed,
				QueueURI: h.uri,
				Message:  describeStatus(status.Description, status.Code),
			}
		}
	}
	s.handles.setSuspended(h.uri, h.id, true)
	return domain.SessionEvent{Type: domain.EventQueueSuspended, QueueURI: h.uri}
}

// resumeQueue requests the application's settings again and stores what
// the broker negotiated.
func (s *Session) resumeQueue(ctx context.Context, h queueHandle) domain.SessionEvent {
	negotiated := h.settings
	if h.flags.Has(mq.FlagRead) {
		var status mq.Status
		negotiated, status = s.configureForHealth(ctx, h, h.settings)
		if !status.OK() {
			return domain.SessionEvent{
				Type:     domain.EventQueueResumeFailed,
				QueueURI: h.uri,
				Message:  describeStatus(status.Description, status.Code),
			}
		}
	}
	s.handles.update(h.uri, h.id, negotiated, false)
	return domain.SessionEvent{Type: domain.EventQueueResumed, QueueURI: h.uri}
}

func (s *Session) configureForHealth(ctx context.Context, h queueHandle, settings domain.QueueSettings) (domain.QueueSettings, mq.Status) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeouts.ConfigureQueue)
	defer cancel()
	return s.conn.ConfigureQueue(ctx, h.id, settings)
}
