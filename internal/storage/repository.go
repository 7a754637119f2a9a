package storage

import (
	"time"

	"github.com/arnabghosh/blazingmq-session/internal/domain"
)

// AckFilter represents optional filters for querying journaled acks
type AckFilter struct {
	StartTime *time.Time
	EndTime   *time.Time

	// FailedOnly restricts results to negative acknowledgments
	FailedOnly bool

	// Limit caps the number of results; zero means no limit
	Limit int
}

// AckRepository defines the interface for the ack journal
type AckRepository interface {
	// Store persists an ack record, replacing any record with the same GUID
	Store(record *domain.AckRecord) error

	// BulkStore persists multiple ack records, skipping invalid ones
	BulkStore(records []*domain.AckRecord) error

	// GetByGUID retrieves the record of one message
	GetByGUID(guid string) (*domain.AckRecord, error)

	// ListByQueue retrieves the records of a queue ordered by ack time
	ListByQueue(queueURI string, filter AckFilter) ([]*domain.AckRecord, error)

	// Count returns the total number of records stored
	Count() int64
}
