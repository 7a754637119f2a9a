package session

import (
	"sync"

	"github.com/arnabghosh/blazingmq-session/internal/domain"
)

// pendingAck is a posted message awaiting its acknowledgment
type pendingAck struct {
	queueURI string
	onAck    domain.AckHandler
}

// registry correlates message GUIDs with ack callbacks. Every entry is
// taken at most once, so a callback runs at most once.
type registry struct {
	mu      sync.Mutex
	entries map[domain.MessageGUID]pendingAck
}

func newRegistry() *registry {
	return &registry{entries: make(map[domain.MessageGUID]pendingAck)}
}

// insert adds an entry. It returns false if guid is already pending.
func (r *registry) insert(guid domain.MessageGUID, p pendingAck) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[guid]; exists {
		return false
	}
	r.entries[guid] = p
	return true
}

// take removes and returns the entry for guid.
func (r *registry) take(guid domain.MessageGUID) (pendingAck, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.entries[guid]
	if ok {
		delete(r.entries, guid)
	}
	return p, ok
}

// drain removes and returns every entry.
func (r *registry) drain() map[domain.MessageGUID]pendingAck {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := r.entries
	r.entries = make(map[domain.MessageGUID]pendingAck)
	return entries
}

func (r *registry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
