package session

import (
	"context"

	"github.com/arnabghosh/blazingmq-session/internal/domain"
	"github.com/arnabghosh/blazingmq-session/internal/mq"
)

// OpenQueue opens uri with the given flags and blocks until the broker
// answers or the open timeout elapses. Only the fields set in opts differ
// from the broker defaults. A queue that fails to open is not registered.
func (s *Session) OpenQueue(ctx context.Context, uri string, flags mq.QueueFlags, opts domain.QueueOptions) error {
	if uri == "" {
		return domain.NewValidationError(domain.ErrInvalidOptions, "queue_uri", "queue URI is required")
	}
	if flags&(mq.FlagRead|mq.FlagWrite) == 0 {
		return domain.NewValidationError(domain.ErrInvalidOptions, "flags", "queue %s must be opened for read or write", uri)
	}
	if flags.Has(mq.FlagRead) && s.opts.OnMessage == nil {
		return domain.NewValidationError(domain.ErrMissingHandler, "on_message",
			"can't open queue %s in read mode: no message handler configured", uri)
	}
	if err := opts.Validate(); err != nil {
		return err
	}
	settings := opts.Apply(domain.DefaultQueueSettings())
	if err := s.checkHostHealthSupport(settings); err != nil {
		return err
	}

	release, err := s.acquire("open", uri)
	if err != nil {
		return err
	}
	defer release()
	s.healthMu.RLock()
	defer s.healthMu.RUnlock()

	if err := s.handles.reserve(uri, flags); err != nil {
		return &domain.StateError{Op: "open", URI: uri, Err: err}
	}

	suspend := settings.SuspendsOnBadHostHealth && !s.hostHealthy.Load()
	wire := settings
	if suspend && flags.Has(mq.FlagRead) {
		wire = suspendedSettings(settings)
	}

	ctx, cancel := withDefaultTimeout(ctx, s.opts.Timeouts.OpenQueue)
	defer cancel()

	id, negotiated, status := s.conn.OpenQueue(ctx, uri, flags, wire)
	if !status.OK() {
		s.handles.remove(uri)
		s.logger.Warn("Failed to open queue",
			"queue_uri", uri,
			"result", status.Code.String(),
			"description", status.Description,
		)
		return statusError("open", uri, status)
	}
	if suspend && flags.Has(mq.FlagRead) {
		// The broker saw the suspended settings; keep the requested ones
		// until the queue resumes.
		negotiated = settings
	}
	s.handles.commit(uri, id, negotiated, suspend)

	s.logger.Info("Queue opened",
		"queue_uri", uri,
		"read", flags.Has(mq.FlagRead),
		"write", flags.Has(mq.FlagWrite),
		"max_unconfirmed_messages", negotiated.MaxUnconfirmedMessages,
		"suspended", suspend,
	)
	return nil
}

// ConfigureQueue changes the consumer settings of an open queue. Only the
// fields set in opts change. On failure the previous settings are kept.
func (s *Session) ConfigureQueue(ctx context.Context, uri string, opts domain.QueueOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}

	release, err := s.acquire("configure", uri)
	if err != nil {
		return err
	}
	defer release()
	s.healthMu.RLock()
	defer s.healthMu.RUnlock()

	h, err := s.validHandle("configure", uri)
	if err != nil {
		return err
	}
	settings := opts.Apply(h.settings)
	if err := s.checkHostHealthSupport(settings); err != nil {
		return err
	}

	suspend := settings.SuspendsOnBadHostHealth && !s.hostHealthy.Load()
	wire := settings
	if suspend && h.flags.Has(mq.FlagRead) {
		wire = suspendedSettings(settings)
	}

	ctx, cancel := withDefaultTimeout(ctx, s.opts.Timeouts.ConfigureQueue)
	defer cancel()

	negotiated, status := s.conn.ConfigureQueue(ctx, h.id, wire)
	if !status.OK() {
		s.logger.Warn("Failed to configure queue",
			"queue_uri", uri,
			"result", status.Code.String(),
			"description", status.Description,
		)
		return statusError("configure", uri, status)
	}
	if suspend && h.flags.Has(mq.FlagRead) {
		negotiated = settings
	}
	s.handles.update(uri, h.id, negotiated, suspend)

	s.logger.Debug("Queue configured",
		"queue_uri", uri,
		"max_unconfirmed_messages", negotiated.MaxUnconfirmedMessages,
		"max_unconfirmed_bytes", negotiated.MaxUnconfirmedBytes,
		"consumer_priority", negotiated.ConsumerPriority,
	)
	return nil
}

// CloseQueue closes an open queue. From the moment it is called the queue
// no longer accepts confirms; if the broker rejects the close the queue
// becomes usable again.
func (s *Session) CloseQueue(ctx context.Context, uri string) error {
	release, err := s.acquire("close", uri)
	if err != nil {
		return err
	}
	defer release()

	h, err := s.handles.invalidate(uri)
	if err != nil {
		return &domain.StateError{Op: "close", URI: uri, Err: err}
	}

	ctx, cancel := withDefaultTimeout(ctx, s.opts.Timeouts.CloseQueue)
	defer cancel()

	status := s.conn.CloseQueue(ctx, h.id)
	if !status.OK() {
		s.handles.revalidate(uri, h.id)
		s.logger.Warn("Failed to close queue",
			"queue_uri", uri,
			"result", status.Code.String(),
			"description", status.Description,
		)
		return statusError("close", uri, status)
	}
	s.handles.remove(uri)

	s.logger.Info("Queue closed", "queue_uri", uri)
	return nil
}

// GetQueueOptions returns the negotiated settings of an open queue. It does
// not contact the broker.
func (s *Session) GetQueueOptions(uri string) (domain.QueueSettings, error) {
	release, err := s.acquire("get options of", uri)
	if err != nil {
		return domain.QueueSettings{}, err
	}
	defer release()

	h, ok := s.handles.lookup(uri)
	if !ok {
		return domain.QueueSettings{}, &domain.StateError{Op: "get options of", URI: uri, Err: domain.ErrQueueNotOpened}
	}
	return h.settings, nil
}

// validHandle returns the open, not closing, handle for uri.
func (s *Session) validHandle(op, uri string) (queueHandle, error) {
	h, ok := s.handles.lookup(uri)
	if !ok {
		return h, &domain.StateError{Op: op, URI: uri, Err: domain.ErrQueueNotOpened}
	}
	if !h.valid {
		return h, &domain.StateError{Op: op, URI: uri, Err: domain.ErrQueueClosing}
	}
	return h, nil
}

func (s *Session) checkHostHealthSupport(settings domain.QueueSettings) error {
	if settings.SuspendsOnBadHostHealth && s.opts.HostHealthMonitor == nil {
		return domain.NewValidationError(domain.ErrInvalidOptions, "suspends_on_bad_host_health",
			"queues cannot suspend on bad host health without a host health monitor")
	}
	return nil
}

// suspendedSettings are sent to the broker to stop deliveries to a
// suspended queue. The application's settings are kept locally.
func suspendedSettings(settings domain.QueueSettings) domain.QueueSettings {
	settings.MaxUnconfirmedMessages = 0
	settings.MaxUnconfirmedBytes = 0
	return settings
}
