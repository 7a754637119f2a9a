package inmemory

import (
	"sort"
	"sync"

	"github.com/arnabghosh/blazingmq-session/internal/domain"
	"github.com/arnabghosh/blazingmq-session/internal/storage"
)

// AckRepository is an in-memory implementation of the ack journal.
// Uses Go maps with mutex protection for thread-safety.
type AckRepository struct {
	mu      sync.RWMutex
	byGUID  map[string]*domain.AckRecord
	byQueue map[string][]string // key: queue URI, value: GUIDs in insertion order
}

// NewAckRepository creates a new in-memory ack repository
func NewAckRepository() *AckRepository {
	return &AckRepository{
		byGUID:  make(map[string]*domain.AckRecord),
		byQueue: make(map[string][]string),
	}
}

// Store persists an ack record
// Thread-safe for concurrent writes
func (r *AckRepository) Store(record *domain.AckRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.storeLocked(record)
	return nil
}

// BulkStore persists multiple ack records
func (r *AckRepository) BulkStore(records []*domain.AckRecord) error {
	if len(records) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, record := range records {
		if record.Validate() != nil {
			continue // Skip invalid entries
		}
		r.storeLocked(record)
	}
	return nil
}

func (r *AckRepository) storeLocked(record *domain.AckRecord) {
	copied := *record
	previous, exists := r.byGUID[record.GUID]
	if exists && previous.QueueURI != record.QueueURI {
		r.removeFromQueue(previous.QueueURI, previous.GUID)
	}
	if !exists || previous.QueueURI != record.QueueURI {
		r.byQueue[record.QueueURI] = append(r.byQueue[record.QueueURI], record.GUID)
	}
	r.byGUID[record.GUID] = &copied
}

func (r *AckRepository) removeFromQueue(queueURI, guid string) {
	guids := r.byQueue[queueURI]
	for i, g := range guids {
		if g == guid {
			r.byQueue[queueURI] = append(guids[:i], guids[i+1:]...)
			return
		}
	}
}

// GetByGUID retrieves the record of one message
func (r *AckRepository) GetByGUID(guid string) (*domain.AckRecord, error) {
	if guid == "" {
		return nil, domain.ErrInvalidAckRecord
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	record, exists := r.byGUID[guid]
	if !exists {
		return nil, domain.ErrNotFound
	}
	copied := *record
	return &copied, nil
}

// ListByQueue retrieves the records of a queue, ordered by ack time
// Thread-safe for concurrent reads
func (r *AckRepository) ListByQueue(queueURI string, filter storage.AckFilter) ([]*domain.AckRecord, error) {
	if queueURI == "" {
		return nil, domain.ErrInvalidAckRecord
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	guids := r.byQueue[queueURI]
	filtered := make([]*domain.AckRecord, 0, len(guids))
	for _, guid := range guids {
		record := r.byGUID[guid]
		if filter.FailedOnly && record.Success() {
			continue
		}
		if filter.StartTime != nil && record.AckedAt.Before(*filter.StartTime) {
			continue
		}
		if filter.EndTime != nil && record.AckedAt.After(*filter.EndTime) {
			continue
		}
		copied := *record
		filtered = append(filtered, &copied)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].AckedAt.Before(filtered[j].AckedAt)
	})

	if filter.Limit > 0 && len(filtered) > filter.Limit {
		filtered = filtered[:filter.Limit]
	}
	return filtered, nil
}

// Count returns the total number of records stored
func (r *AckRepository) Count() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.byGUID))
}

// Clear removes all records from the repository
// Useful for testing
func (r *AckRepository) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byGUID = make(map[string]*domain.AckRecord)
	r.byQueue = make(map[string][]string)
}

var _ storage.AckRepository = (*AckRepository)(nil)
