package domain

import (
	"fmt"
	"time"
)

// AckRecord is one journaled acknowledgment of a posted message
type AckRecord struct {
	// GUID is the hex message GUID assigned at post time
	GUID string `json:"guid" bson:"guid"`

	QueueURI string `json:"queue_uri" bson:"queue_uri"`

	// Status is the raw ack status; StatusName its readable form
	Status     AckStatus `json:"status" bson:"status"`
	StatusName string    `json:"status_name" bson:"status_name"`

	// ClientID identifies the producer that posted the message
	ClientID string `json:"client_id,omitempty" bson:"client_id,omitempty"`

	PostedAt time.Time `json:"posted_at" bson:"posted_at"`
	AckedAt  time.Time `json:"acked_at" bson:"acked_at"`
}

// NewAckRecord builds a record from a delivered acknowledgment
func NewAckRecord(ack *Ack, clientID string, postedAt time.Time) *AckRecord {
	return &AckRecord{
		GUID:       ack.GUID.String(),
		QueueURI:   ack.QueueURI,
		Status:     ack.Status,
		StatusName: ack.Status.String(),
		ClientID:   clientID,
		PostedAt:   postedAt,
		AckedAt:    time.Now(),
	}
}

// Success reports whether the broker accepted the message
func (r *AckRecord) Success() bool {
	return r.Status == AckSuccess
}

// Validate checks the fields required to store a record
func (r *AckRecord) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil record", ErrInvalidAckRecord)
	}
	if r.GUID == "" {
		return fmt.Errorf("%w: guid is required", ErrInvalidAckRecord)
	}
	if r.QueueURI == "" {
		return fmt.Errorf("%w: queue_uri is required", ErrInvalidAckRecord)
	}
	return nil
}
