package domain

import "fmt"

// Message is a message delivered to a consumer.
type Message struct {
	Data          []byte
	GUID          MessageGUID
	QueueURI      string
	Properties    map[string]any
	PropertyTypes map[string]PropertyType
}

func (m *Message) String() string {
	return fmt.Sprintf("<Message[%s] for %s>", m.GUID, m.QueueURI)
}

// Ack is the broker's acknowledgment of a posted message.
type Ack struct {
	GUID              MessageGUID
	Status            AckStatus
	StatusDescription string
	QueueURI          string
}

// Success reports whether the message was accepted by the broker.
func (a *Ack) Success() bool {
	return a.Status == AckSuccess
}

func (a *Ack) String() string {
	id := ""
	if !a.GUID.IsZero() {
		id = "[" + a.GUID.String() + "]"
	}
	return fmt.Sprintf("<Ack%s %s for %s>", id, a.Status, a.QueueURI)
}

// AckHandler receives the acknowledgment of a single posted message.
type AckHandler func(*Ack)
