package session

import (
	"fmt"
	"strings"

	"github.com/arnabghosh/blazingmq-session/internal/domain"
	"github.com/arnabghosh/blazingmq-session/internal/mq"
)

// sessionEventTypes maps broker session events onto application events.
// Codes not listed are reported as interface errors.
var sessionEventTypes = map[mq.SessionEventCode]domain.SessionEventType{
	mq.SessionEventError:                     domain.EventError,
	mq.SessionEventConnected:                 domain.EventConnected,
	mq.SessionEventDisconnected:              domain.EventDisconnected,
	mq.SessionEventConnectionLost:            domain.EventConnectionLost,
	mq.SessionEventReconnected:               domain.EventReconnected,
	mq.SessionEventStateRestored:             domain.EventStateRestored,
	mq.SessionEventConnectionTimeout:         domain.EventConnectionTimeout,
	mq.SessionEventQueueReopenResult:         domain.EventQueueReopened,
	mq.SessionEventSlowConsumerNormal:        domain.EventSlowConsumerNormal,
	mq.SessionEventSlowConsumerHighWatermark: domain.EventSlowConsumerHighWaterMark,
	mq.SessionEventHostUnhealthy:             domain.EventHostUnhealthy,
	mq.SessionEventHostHealthRestored:        domain.EventHostHealthRestored,
	mq.SessionEventQueueSuspended:            domain.EventQueueSuspended,
	mq.SessionEventQueueResumed:              domain.EventQueueResumed,
}

// router receives connection events on the delivery goroutine and routes
// them to the application's handlers.
type router struct {
	s *Session
}

// OnSessionEvent implements mq.EventHandler
func (r *router) OnSessionEvent(ev mq.SessionEvent) {
	r.s.emit(translateSessionEvent(ev))
}

// translateSessionEvent converts a broker session event. A non-success
// status turns a queue event into its failure variant and is appended to
// the message.
func translateSessionEvent(ev mq.SessionEvent) domain.SessionEvent {
	eventType, ok := sessionEventTypes[ev.Type]
	if !ok {
		return domain.SessionEvent{
			Type:    domain.EventInterfaceError,
			Message: "Unexpected event type: " + ev.Type.String(),
		}
	}

	message := ev.ErrorDescription
	if ev.StatusCode != domain.ResultSuccess {
		message = describeStatus(ev.ErrorDescription, ev.StatusCode)
		eventType = eventType.Failed()
	}

	out := domain.SessionEvent{Type: eventType, Message: message}
	if eventType.IsQueueEvent() {
		out.QueueURI = ev.QueueURI
	}
	return out
}

// describeStatus formats a failed result as "description: NAME (code)".
func describeStatus(description string, code domain.ResultCode) string {
	status := fmt.Sprintf("%s (%d)", code, int(code))
	if description == "" {
		return status
	}
	return description + ": " + status
}

// OnMessageEvent implements mq.EventHandler
func (r *router) OnMessageEvent(ev mq.MessageEvent) {
	if r.s.closed.Load() {
		r.s.logger.Debug("Dropping message event after stop", "type", ev.Type.String())
		return
	}

	switch ev.Type {
	case mq.MessageEventPush:
		r.deliverPushes(ev.Pushes)
	case mq.MessageEventAck:
		r.deliverAcks(ev.Acks)
	default:
		r.s.emit(domain.SessionEvent{
			Type:    domain.EventInterfaceError,
			Message: fmt.Sprintf("Received an unexpected message event of type %d (%s)", int(ev.Type), ev.Type),
		})
	}
}

// deliverPushes hands each message to the message handler in order.
// Property decoding errors are reported once, after the whole batch.
func (r *router) deliverPushes(pushes []mq.PushMessage) {
	s := r.s
	if s.opts.OnMessage == nil {
		s.emit(domain.SessionEvent{
			Type:    domain.EventInterfaceError,
			Message: "Messages received but no callback configured",
		})
		return
	}

	var propertyErrors []string
	for _, push := range pushes {
		values, types, errs := domain.DecodeProperties(push.Properties)
		propertyErrors = append(propertyErrors, errs...)

		msg := &domain.Message{
			Data:          push.Payload,
			GUID:          push.GUID,
			QueueURI:      push.QueueURI,
			Properties:    values,
			PropertyTypes: types,
		}
		handle := &MessageHandle{session: s, queueURI: push.QueueURI, guid: push.GUID}

		s.stats.delivered.Add(1)
		s.invoke("message", func() { s.opts.OnMessage(msg, handle) })
	}

	if len(propertyErrors) > 0 {
		s.emit(domain.SessionEvent{
			Type:    domain.EventInterfaceError,
			Message: strings.Join(propertyErrors, "\n"),
		})
	}
}

// deliverAcks resolves each ack against the pending registry. Negative
// acks for messages posted without a callback are logged and counted.
func (r *router) deliverAcks(acks []mq.AckMessage) {
	s := r.s
	for _, a := range acks {
		status := domain.AckStatusFromCode(a.Status)
		ack := &domain.Ack{
			GUID:              a.GUID,
			Status:            status,
			StatusDescription: status.String(),
			QueueURI:          a.QueueURI,
		}
		if ack.Success() {
			s.stats.acked.Add(1)
		} else {
			s.stats.nacked.Add(1)
		}

		p, ok := s.pending.take(a.GUID)
		if !ok {
			if !ack.Success() {
				s.stats.droppedNacks.Add(1)
				s.logger.Warn("Dropping negative acknowledgment for message posted without callback",
					"queue_uri", a.QueueURI,
					"guid", a.GUID.String(),
					"status", status.String(),
				)
			}
			continue
		}
		s.invokeAck(p, ack)
	}
}

// emit delivers a session event to the application. A panicking handler
// is logged and otherwise ignored.
func (s *Session) emit(ev domain.SessionEvent) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Session event handler panicked", "event", ev.String(), "panic", r)
		}
	}()
	s.opts.OnSessionEvent(ev)
}

// invoke runs an application callback. A panic is reported to the
// session event handler as an interface error.
func (s *Session) invoke(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Application callback panicked", "callback", kind, "panic", r)
			s.emit(domain.SessionEvent{
				Type:    domain.EventInterfaceError,
				Message: fmt.Sprintf("%s callback panicked: %v", kind, r),
			})
		}
	}()
	fn()
}

func (s *Session) invokeAck(p pendingAck, ack *domain.Ack) {
	s.invoke("ack", func() { p.onAck(ack) })
}
