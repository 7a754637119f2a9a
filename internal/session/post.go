package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/arnabghosh/blazingmq-session/internal/domain"
	"github.com/arnabghosh/blazingmq-session/internal/mq"
)

// errConfirmOnClosingQueue is returned when confirming on a queue whose
// close has been issued. Deliveries must be stopped first.
var errConfirmOnClosingQueue = fmt.Errorf("%w: attempting to confirm message on a closing queue; "+
	"configure the queue with 0 max unconfirmed messages before closing it", domain.ErrQueueClosing)

// Post sends payload to an open queue and returns the GUID assigned to the
// message. A nil error means the session accepted the message for
// transmission, not that the broker stored it; the outcome is reported to
// opts.OnAck.
//
// If Post fails, OnAck is never invoked.
func (s *Session) Post(ctx context.Context, uri string, payload []byte, opts PostOptions) (domain.MessageGUID, error) {
	release, err := s.acquire("post", uri)
	if err != nil {
		return domain.MessageGUID{}, err
	}
	defer release()

	h, err := s.validHandle("post", uri)
	if err != nil {
		return domain.MessageGUID{}, err
	}
	if h.suspended {
		return domain.MessageGUID{}, &domain.StateError{Op: "post", URI: uri, Err: domain.ErrQueueSuspended}
	}

	properties, err := domain.EncodeProperties(opts.Properties, opts.PropertyTypeOverrides)
	if err != nil {
		return domain.MessageGUID{}, err
	}

	msg := &mq.OutboundMessage{
		QueueID:     h.id,
		QueueURI:    uri,
		GUID:        domain.NewGUID(),
		Payload:     payload,
		Properties:  properties,
		Compression: s.opts.Compression,
		WantAck:     opts.OnAck != nil,
	}

	if opts.OnAck != nil {
		if !s.pending.insert(msg.GUID, pendingAck{queueURI: uri, onAck: opts.OnAck}) {
			return domain.MessageGUID{}, fmt.Errorf("failed to post to %s queue: duplicate message GUID %s", uri, msg.GUID)
		}
	}

	status := s.conn.Post(ctx, msg)
	if !status.OK() {
		if opts.OnAck != nil {
			s.pending.take(msg.GUID)
		}
		s.logger.Warn("Failed to post message",
			"queue_uri", uri,
			"result", status.Code.String(),
			"description", status.Description,
		)
		return domain.MessageGUID{}, statusError("post", uri, status)
	}

	s.stats.posted.Add(1)
	return msg.GUID, nil
}

// Confirm tells the broker that the message with the given GUID has been
// processed. id must be exactly domain.GUIDLength bytes.
func (s *Session) Confirm(ctx context.Context, uri string, id []byte) error {
	release, err := s.acquire("confirm", uri)
	if err != nil {
		return err
	}
	defer release()

	guid, err := domain.ParseGUID(id)
	if err != nil {
		return err
	}

	h, err := s.validHandle("confirm", uri)
	if err != nil {
		if errors.Is(err, domain.ErrQueueClosing) {
			return &domain.StateError{Op: "confirm", URI: uri, Err: errConfirmOnClosingQueue}
		}
		return err
	}

	status := s.conn.Confirm(ctx, h.id, guid)
	if !status.OK() {
		return statusError("confirm", uri, status)
	}

	s.stats.confirmed.Add(1)
	return nil
}

// MessageHandle identifies a delivered message for confirmation
type MessageHandle struct {
	session  *Session
	queueURI string
	guid     domain.MessageGUID
}

// QueueURI returns the queue the message was delivered on
func (h *MessageHandle) QueueURI() string { return h.queueURI }

// GUID returns the GUID of the delivered message
func (h *MessageHandle) GUID() domain.MessageGUID { return h.guid }

// Confirm confirms the delivered message.
func (h *MessageHandle) Confirm(ctx context.Context) error {
	return h.session.Confirm(ctx, h.queueURI, h.guid.Bytes())
}
