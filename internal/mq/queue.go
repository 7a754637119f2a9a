package mq

import (
	"context"

	"github.com/arnabghosh/blazingmq-session/internal/domain"
)

// QueueID is the connection-level identifier of an open queue.
type QueueID uint64

// QueueFlags selects the open mode of a queue.
type QueueFlags uint8

const (
	FlagRead QueueFlags = 1 << iota
	FlagWrite
	FlagAck
)

// Has reports whether all bits of f2 are set.
func (f QueueFlags) Has(f2 QueueFlags) bool { return f&f2 == f2 }

// Status is the result of a broker request.
type Status struct {
	Code        domain.ResultCode
	Description string
}

// OK reports whether the request succeeded.
func (s Status) OK() bool { return s.Code == domain.ResultSuccess }

// StatusOf builds a Status from a result code and a formatted description.
func StatusOf(code domain.ResultCode, description string) Status {
	return Status{Code: code, Description: description}
}

// Success is the zero-cost successful status.
var Success = Status{Code: domain.ResultSuccess}

// EventHandler receives events from a Connection. Implementations are
// called from a single delivery goroutine per connection.
type EventHandler interface {
	OnSessionEvent(SessionEvent)
	OnMessageEvent(MessageEvent)
}

// Connection is a connection to a broker. Every request blocks until the
// broker answers or ctx is done; a done context yields a TIMEOUT status.
//
// Implementations must deliver events to the handler passed to Connect
// without holding locks the request methods need, so a request can wait on
// an event without deadlocking.
type Connection interface {
	// Connect performs the handshake and registers the event handler.
	Connect(ctx context.Context, handler EventHandler) Status

	// Disconnect tears the connection down. It is best-effort and
	// returns once the delivery goroutine has exited or ctx is done.
	Disconnect(ctx context.Context)

	// OpenQueue opens uri and returns its id and the negotiated settings.
	OpenQueue(ctx context.Context, uri string, flags QueueFlags, settings domain.QueueSettings) (QueueID, domain.QueueSettings, Status)

	// ConfigureQueue changes the consumer settings of an open queue.
	ConfigureQueue(ctx context.Context, id QueueID, settings domain.QueueSettings) (domain.QueueSettings, Status)

	// CloseQueue closes an open queue.
	CloseQueue(ctx context.Context, id QueueID) Status

	// Post packs and sends a message. It does not wait for the ack.
	Post(ctx context.Context, msg *OutboundMessage) Status

	// Confirm tells the broker a delivered message has been processed.
	Confirm(ctx context.Context, id QueueID, guid domain.MessageGUID) Status
}

// ConnectionStats represents statistics about a connection
type ConnectionStats struct {
	// TotalPosted is the number of messages handed to the broker
	TotalPosted int64

	// TotalPushed is the number of messages delivered to the handler
	TotalPushed int64

	// TotalConfirmed is the number of confirms sent to the broker
	TotalConfirmed int64

	// TotalAcks is the number of acks delivered to the handler
	TotalAcks int64

	// OpenQueues is the current number of open queues
	OpenQueues int
}

// StatsProvider is implemented by connections that track statistics.
type StatsProvider interface {
	Stats() ConnectionStats
}
