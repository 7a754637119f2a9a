package mq

import (
	"fmt"

	"github.com/arnabghosh/blazingmq-session/internal/domain"
)

// SessionEventCode is the broker's numbering of session events.
type SessionEventCode int

const (
	SessionEventError                     SessionEventCode = -1
	SessionEventUndefined                 SessionEventCode = 0
	SessionEventConnected                 SessionEventCode = 1
	SessionEventDisconnected              SessionEventCode = 2
	SessionEventConnectionLost            SessionEventCode = 3
	SessionEventReconnected               SessionEventCode = 4
	SessionEventStateRestored             SessionEventCode = 5
	SessionEventConnectionTimeout         SessionEventCode = 6
	SessionEventQueueOpenResult           SessionEventCode = 7
	SessionEventQueueReopenResult         SessionEventCode = 8
	SessionEventQueueCloseResult          SessionEventCode = 9
	SessionEventSlowConsumerNormal        SessionEventCode = 10
	SessionEventSlowConsumerHighWatermark SessionEventCode = 11
	SessionEventQueueConfigureResult      SessionEventCode = 12
	SessionEventHostUnhealthy             SessionEventCode = 13
	SessionEventHostHealthRestored        SessionEventCode = 14
	SessionEventQueueSuspended            SessionEventCode = 15
	SessionEventQueueResumed              SessionEventCode = 16
)

var sessionEventCodeNames = map[SessionEventCode]string{
	SessionEventError:                     "ERROR",
	SessionEventUndefined:                 "UNDEFINED",
	SessionEventConnected:                 "CONNECTED",
	SessionEventDisconnected:              "DISCONNECTED",
	SessionEventConnectionLost:            "CONNECTION_LOST",
	SessionEventReconnected:               "RECONNECTED",
	SessionEventStateRestored:             "STATE_RESTORED",
	SessionEventConnectionTimeout:         "CONNECTION_TIMEOUT",
	SessionEventQueueOpenResult:           "QUEUE_OPEN_RESULT",
	SessionEventQueueReopenResult:         "QUEUE_REOPEN_RESULT",
	SessionEventQueueCloseResult:          "QUEUE_CLOSE_RESULT",
	SessionEventSlowConsumerNormal:        "SLOWCONSUMER_NORMAL",
	SessionEventSlowConsumerHighWatermark: "SLOWCONSUMER_HIGHWATERMARK",
	SessionEventQueueConfigureResult:      "QUEUE_CONFIGURE_RESULT",
	SessionEventHostUnhealthy:             "HOST_UNHEALTHY",
	SessionEventHostHealthRestored:        "HOST_HEALTH_RESTORED",
	SessionEventQueueSuspended:            "QUEUE_SUSPENDED",
	SessionEventQueueResumed:              "QUEUE_RESUMED",
}

func (c SessionEventCode) String() string {
	if name, ok := sessionEventCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("(* UNKNOWN %d *)", int(c))
}

// SessionEvent is a session-level notification from the broker.
type SessionEvent struct {
	Type             SessionEventCode
	StatusCode       domain.ResultCode
	ErrorDescription string
	QueueURI         string
}

// MessageEventType is the broker's numbering of message events.
type MessageEventType int

const (
	MessageEventUndefined MessageEventType = 0
	MessageEventAck       MessageEventType = 1
	MessageEventPut       MessageEventType = 2
	MessageEventPush      MessageEventType = 3
)

func (t MessageEventType) String() string {
	switch t {
	case MessageEventUndefined:
		return "UNDEFINED"
	case MessageEventAck:
		return "ACK"
	case MessageEventPut:
		return "PUT"
	case MessageEventPush:
		return "PUSH"
	default:
		return fmt.Sprintf("(* UNKNOWN %d *)", int(t))
	}
}

// PushMessage is a single delivery inside a PUSH event.
type PushMessage struct {
	QueueID    QueueID
	QueueURI   string
	GUID       domain.MessageGUID
	Payload    []byte
	Properties []domain.RawProperty
}

// AckMessage is a single acknowledgment inside an ACK event.
type AckMessage struct {
	QueueURI string
	GUID     domain.MessageGUID
	Status   int
}

// MessageEvent is a batch of deliveries or acknowledgments.
type MessageEvent struct {
	Type   MessageEventType
	Pushes []PushMessage
	Acks   []AckMessage
}

// OutboundMessage is a message handed to Connection.Post. The GUID is
// assigned by the caller before sending so acks can be correlated.
type OutboundMessage struct {
	QueueID     QueueID
	QueueURI    string
	GUID        domain.MessageGUID
	Payload     []byte
	Properties  []domain.RawProperty
	Compression domain.CompressionAlgorithm
	WantAck     bool
}

// Size returns the accounted size of the message payload.
func (m *OutboundMessage) Size() int {
	return len(m.Payload)
}
