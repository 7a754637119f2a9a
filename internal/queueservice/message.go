package queueservice

import (
	"time"

	"github.com/arnabghosh/blazingmq-session/internal/domain"
)

// Message represents a message stored in a queue
type Message struct {
	GUID          string               `json:"guid"`
	QueueURI      string               `json:"queue_uri"`
	Payload       []byte               `json:"payload"`
	Properties    []domain.RawProperty `json:"properties,omitempty"`
	Compression   string               `json:"compression,omitempty"`
	Timestamp     time.Time            `json:"timestamp"`
	DeliveryCount int                  `json:"delivery_count"`
}

// Size returns the number of payload bytes counted against consumer limits
func (m *Message) Size() int {
	return len(m.Payload)
}

// PendingEntry represents a delivered message awaiting confirmation
type PendingEntry struct {
	Message      *Message
	SessionID    string
	HandleID     uint64
	DeliveryTime time.Time
	Sequence     uint64
}
