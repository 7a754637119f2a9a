package domain

import "time"

// Broker-defined queue defaults.
const (
	DefaultMaxUnconfirmedMessages  = 1000
	DefaultMaxUnconfirmedBytes     = 33554432
	DefaultConsumerPriority        = 0
	DefaultSuspendsOnBadHostHealth = false
)

// Default operation timeouts.
const (
	DefaultConnectTimeout        = 60 * time.Second
	DefaultDisconnectTimeout     = 30 * time.Second
	DefaultOpenQueueTimeout      = 5 * time.Minute
	DefaultConfigureQueueTimeout = 5 * time.Minute
	DefaultCloseQueueTimeout     = 5 * time.Minute
)

// QueueSettings are the negotiated options of an open queue.
type QueueSettings struct {
	MaxUnconfirmedMessages  int  `json:"max_unconfirmed_messages" yaml:"max_unconfirmed_messages"`
	MaxUnconfirmedBytes     int  `json:"max_unconfirmed_bytes" yaml:"max_unconfirmed_bytes"`
	ConsumerPriority        int  `json:"consumer_priority" yaml:"consumer_priority"`
	SuspendsOnBadHostHealth bool `json:"suspends_on_bad_host_health" yaml:"suspends_on_bad_host_health"`
}

// DefaultQueueSettings returns the broker defaults.
func DefaultQueueSettings() QueueSettings {
	return QueueSettings{
		MaxUnconfirmedMessages:  DefaultMaxUnconfirmedMessages,
		MaxUnconfirmedBytes:     DefaultMaxUnconfirmedBytes,
		ConsumerPriority:        DefaultConsumerPriority,
		SuspendsOnBadHostHealth: DefaultSuspendsOnBadHostHealth,
	}
}

// QueueOptions holds caller overrides. A nil field keeps the current value.
type QueueOptions struct {
	MaxUnconfirmedMessages  *int
	MaxUnconfirmedBytes     *int
	ConsumerPriority        *int
	SuspendsOnBadHostHealth *bool
}

// Int returns a pointer to v, for use in QueueOptions literals.
func Int(v int) *int { return &v }

// Bool returns a pointer to v, for use in QueueOptions literals.
func Bool(v bool) *bool { return &v }

// Apply returns base with every overridden field replaced.
func (o QueueOptions) Apply(base QueueSettings) QueueSettings {
	if o.MaxUnconfirmedMessages != nil {
		base.MaxUnconfirmedMessages = *o.MaxUnconfirmedMessages
	}
	if o.MaxUnconfirmedBytes != nil {
		base.MaxUnconfirmedBytes = *o.MaxUnconfirmedBytes
	}
	if o.ConsumerPriority != nil {
		base.ConsumerPriority = *o.ConsumerPriority
	}
	if o.SuspendsOnBadHostHealth != nil {
		base.SuspendsOnBadHostHealth = *o.SuspendsOnBadHostHealth
	}
	return base
}

// Validate rejects negative limits.
func (o QueueOptions) Validate() error {
	if o.MaxUnconfirmedMessages != nil && *o.MaxUnconfirmedMessages < 0 {
		return NewValidationError(ErrInvalidOptions, "max_unconfirmed_messages", "must not be negative, got %d", *o.MaxUnconfirmedMessages)
	}
	if o.MaxUnconfirmedBytes != nil && *o.MaxUnconfirmedBytes < 0 {
		return NewValidationError(ErrInvalidOptions, "max_unconfirmed_bytes", "must not be negative, got %d", *o.MaxUnconfirmedBytes)
	}
	return nil
}

// Timeouts configures the default deadline of each blocking operation.
// A zero field selects the default.
type Timeouts struct {
	Connect        time.Duration `yaml:"connect" toml:"connect"`
	Disconnect     time.Duration `yaml:"disconnect" toml:"disconnect"`
	OpenQueue      time.Duration `yaml:"open_queue" toml:"open_queue"`
	ConfigureQueue time.Duration `yaml:"configure_queue" toml:"configure_queue"`
	CloseQueue     time.Duration `yaml:"close_queue" toml:"close_queue"`
}

// DefaultTimeouts returns the default operation timeouts.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Connect:        DefaultConnectTimeout,
		Disconnect:     DefaultDisconnectTimeout,
		OpenQueue:      DefaultOpenQueueTimeout,
		ConfigureQueue: DefaultConfigureQueueTimeout,
		CloseQueue:     DefaultCloseQueueTimeout,
	}
}

// QueueOperationTimeouts applies one timeout to open, configure and close.
func QueueOperationTimeouts(d time.Duration) Timeouts {
	t := DefaultTimeouts()
	t.OpenQueue = d
	t.ConfigureQueue = d
	t.CloseQueue = d
	return t
}

// Validate rejects negative timeouts.
func (t Timeouts) Validate() error {
	fields := []struct {
		name string
		d    time.Duration
	}{
		{"connect", t.Connect},
		{"disconnect", t.Disconnect},
		{"open_queue", t.OpenQueue},
		{"configure_queue", t.ConfigureQueue},
		{"close_queue", t.CloseQueue},
	}
	for _, f := range fields {
		if f.d < 0 {
			return NewValidationError(ErrInvalidOptions, f.name+"_timeout", "timeout must be greater than 0, got %s", f.d)
		}
	}
	return nil
}

// WithDefaults fills zero fields with default values.
func (t Timeouts) WithDefaults() Timeouts {
	d := DefaultTimeouts()
	if t.Connect == 0 {
		t.Connect = d.Connect
	}
	if t.Disconnect == 0 {
		t.Disconnect = d.Disconnect
	}
	if t.OpenQueue == 0 {
		t.OpenQueue = d.OpenQueue
	}
	if t.ConfigureQueue == 0 {
		t.ConfigureQueue = d.ConfigureQueue
	}
	if t.CloseQueue == 0 {
		t.CloseQueue = d.CloseQueue
	}
	return t
}
