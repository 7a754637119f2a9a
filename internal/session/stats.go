package session

import (
	"context"
	"sync/atomic"
	"time"
)

// stats are the session counters
type stats struct {
	posted       atomic.Int64
	acked        atomic.Int64
	nacked       atomic.Int64
	droppedNacks atomic.Int64
	delivered    atomic.Int64
	confirmed    atomic.Int64
}

// Stats represents statistics about a session
type Stats struct {
	// Posted is the number of messages accepted by Post
	Posted int64 `json:"posted"`

	// Acked and Nacked count positive and negative acknowledgments
	Acked  int64 `json:"acked"`
	Nacked int64 `json:"nacked"`

	// DroppedNacks counts negative acknowledgments for messages posted
	// without a callback
	DroppedNacks int64 `json:"dropped_nacks"`

	// Delivered is the number of messages handed to the message handler
	Delivered int64 `json:"delivered"`

	// Confirmed is the number of successful confirms
	Confirmed int64 `json:"confirmed"`

	OpenQueues  int `json:"open_queues"`
	PendingAcks int `json:"pending_acks"`
}

// Stats returns current session statistics
func (s *Session) Stats() Stats {
	return Stats{
		Posted:       s.stats.posted.Load(),
		Acked:        s.stats.acked.Load(),
		Nacked:       s.stats.nacked.Load(),
		DroppedNacks: s.stats.droppedNacks.Load(),
		Delivered:    s.stats.delivered.Load(),
		Confirmed:    s.stats.confirmed.Load(),
		OpenQueues:   s.handles.len(),
		PendingAcks:  s.pending.len(),
	}
}

// startStatsDump logs statistics every StatsDumpInterval until ctx is done.
func (s *Session) startStatsDump(ctx context.Context) {
	if s.opts.StatsDumpInterval <= 0 {
		return
	}

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		ticker := time.NewTicker(s.opts.StatsDumpInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.dumpStats("Session statistics")
			}
		}
	}()
}

func (s *Session) dumpStats(msg string) {
	st := s.Stats()
	s.logger.Info(msg,
		"posted", st.Posted,
		"acked", st.Acked,
		"nacked", st.Nacked,
		"dropped_nacks", st.DroppedNacks,
		"delivered", st.Delivered,
		"confirmed", st.Confirmed,
		"open_queues", st.OpenQueues,
		"pending_acks", st.PendingAcks,
	)
}
