package domain

import (
	"context"
	"fmt"
	"log/slog"
)

// SessionEventType enumerates the notifications delivered to the
// application's session event handler.
type SessionEventType int

const (
	EventError SessionEventType = iota
	EventInterfaceError
	EventConnected
	EventDisconnected
	EventConnectionLost
	EventReconnected
	EventStateRestored
	EventConnectionTimeout
	EventHostUnhealthy
	EventHostHealthRestored
	EventQueueSuspended
	EventQueueSuspendFailed
	EventQueueResumed
	EventQueueResumeFailed
	EventQueueReopened
	EventQueueReopenFailed
	EventSlowConsumerNormal
	EventSlowConsumerHighWaterMark
)

var sessionEventTypeNames = map[SessionEventType]string{
	EventError:                     "Error",
	EventInterfaceError:            "InterfaceError",
	EventConnected:                 "Connected",
	EventDisconnected:              "Disconnected",
	EventConnectionLost:            "ConnectionLost",
	EventReconnected:               "Reconnected",
	EventStateRestored:             "StateRestored",
	EventConnectionTimeout:         "ConnectionTimeout",
	EventHostUnhealthy:             "HostUnhealthy",
	EventHostHealthRestored:        "HostHealthRestored",
	EventQueueSuspended:            "QueueSuspended",
	EventQueueSuspendFailed:        "QueueSuspendFailed",
	EventQueueResumed:              "QueueResumed",
	EventQueueResumeFailed:         "QueueResumeFailed",
	EventQueueReopened:             "QueueReopened",
	EventQueueReopenFailed:         "QueueReopenFailed",
	EventSlowConsumerNormal:        "SlowConsumerNormal",
	EventSlowConsumerHighWaterMark: "SlowConsumerHighWaterMark",
}

func (t SessionEventType) String() string {
	if name, ok := sessionEventTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("SessionEventType(%d)", int(t))
}

// IsQueueEvent reports whether events of this type carry a queue URI.
func (t SessionEventType) IsQueueEvent() bool {
	switch t {
	case EventQueueSuspended, EventQueueSuspendFailed,
		EventQueueResumed, EventQueueResumeFailed,
		EventQueueReopened, EventQueueReopenFailed:
		return true
	}
	return false
}

// Failed returns the failure variant of a queue event type.
func (t SessionEventType) Failed() SessionEventType {
	switch t {
	case EventQueueReopened:
		return EventQueueReopenFailed
	case EventQueueResumed:
		return EventQueueResumeFailed
	case EventQueueSuspended:
		return EventQueueSuspendFailed
	}
	return t
}

// Level is the log level used by LogSessionEvent for this event type.
func (t SessionEventType) Level() slog.Level {
	switch t {
	case EventConnected, EventDisconnected, EventStateRestored,
		EventSlowConsumerNormal, EventQueueReopened,
		EventHostUnhealthy, EventHostHealthRestored,
		EventQueueSuspended, EventQueueResumed:
		return slog.LevelInfo
	case EventConnectionLost, EventReconnected, EventSlowConsumerHighWaterMark:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// SessionEvent is a notification about the session or one of its queues.
type SessionEvent struct {
	Type     SessionEventType
	QueueURI string
	Message  string
}

func (e SessionEvent) String() string {
	switch {
	case e.QueueURI != "" && e.Message != "":
		return fmt.Sprintf("<%s: %s %s>", e.Type, e.QueueURI, e.Message)
	case e.QueueURI != "":
		return fmt.Sprintf("<%s: %s>", e.Type, e.QueueURI)
	case e.Message != "":
		return fmt.Sprintf("<%s: %s>", e.Type, e.Message)
	default:
		return fmt.Sprintf("<%s>", e.Type)
	}
}

// SessionEventHandler receives session events.
type SessionEventHandler func(SessionEvent)

// LogSessionEvent returns a handler that logs every event at the level
// matching its type.
func LogSessionEvent(logger *slog.Logger) SessionEventHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(event SessionEvent) {
		logger.Log(context.Background(), event.Type.Level(), "Received session event",
			"event", event.String(),
		)
	}
}
