package session

import (
	"sort"
	"sync"

	"github.com/arnabghosh/blazingmq-session/internal/domain"
	"github.com/arnabghosh/blazingmq-session/internal/mq"
)

// queueHandle is an open queue as seen by the session
type queueHandle struct {
	uri      string
	id       mq.QueueID
	flags    mq.QueueFlags
	settings domain.QueueSettings

	// opening is set while the open request is in flight
	opening bool

	// valid is cleared once a close request has been issued
	valid bool

	// suspended is set while the host is unhealthy and the queue
	// suspends on bad host health
	suspended bool
}

// handleTable maps queue URIs to handles. Lookups return copies, so callers
// never observe a handle mid-update.
type handleTable struct {
	mu      sync.RWMutex
	handles map[string]*queueHandle
}

func newHandleTable() *handleTable {
	return &handleTable{handles: make(map[string]*queueHandle)}
}

// reserve inserts a placeholder for an open in progress. A placeholder is
// invisible to lookup.
func (t *handleTable) reserve(uri string, flags mq.QueueFlags) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.handles[uri]; exists {
		return domain.ErrQueueAlreadyOpened
	}
	t.handles[uri] = &queueHandle{uri: uri, flags: flags, opening: true}
	return nil
}

// commit turns a placeholder into an open handle.
func (t *handleTable) commit(uri string, id mq.QueueID, settings domain.QueueSettings, suspended bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.handles[uri]
	if !ok {
		return
	}
	h.id = id
	h.settings = settings
	h.opening = false
	h.valid = true
	h.suspended = suspended
}

// remove deletes the handle or placeholder for uri.
func (t *handleTable) remove(uri string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.handles, uri)
}

// lookup returns a copy of the open handle for uri.
func (t *handleTable) lookup(uri string) (queueHandle, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.handles[uri]
	if !ok || h.opening {
		return queueHandle{}, false
	}
	return *h, true
}

// update stores newly negotiated settings. It is a no-op if the handle
// has been closed meanwhile.
func (t *handleTable) update(uri string, id mq.QueueID, settings domain.QueueSettings, suspended bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.handles[uri]
	if !ok || h.opening || h.id != id {
		return
	}
	h.settings = settings
	h.suspended = suspended
}

// setSuspended flips the suspended flag of an open handle.
func (t *handleTable) setSuspended(uri string, id mq.QueueID, suspended bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.handles[uri]
	if !ok || h.opening || h.id != id {
		return
	}
	h.suspended = suspended
}

// invalidate marks the handle as closing and returns its copy. It fails
// if the queue is not open or already closing.
func (t *handleTable) invalidate(uri string) (queueHandle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.handles[uri]
	if !ok || h.opening {
		return queueHandle{}, domain.ErrQueueNotOpened
	}
	if !h.valid {
		return queueHandle{}, domain.ErrQueueClosing
	}
	h.valid = false
	return *h, nil
}

// revalidate undoes invalidate after a failed close.
func (t *handleTable) revalidate(uri string, id mq.QueueID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if h, ok := t.handles[uri]; ok && h.id == id {
		h.valid = true
	}
}

// snapshot returns copies of every open handle, ordered by URI.
func (t *handleTable) snapshot() []queueHandle {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]queueHandle, 0, len(t.handles))
	for _, h := range t.handles {
		if !h.opening {
			out = append(out, *h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].uri < out[j].uri })
	return out
}

// clear removes every handle.
func (t *handleTable) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handles = make(map[string]*queueHandle)
}

func (t *handleTable) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, h := range t.handles {
		if !h.opening {
			n++
		}
	}
	return n
}
