package domain

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageGUID_ParseAndString(t *testing.T) {
	g := NewGUID()
	assert.False(t, g.IsZero())

	parsed, err := ParseGUID(g.Bytes())
	require.NoError(t, err)
	assert.Equal(t, g, parsed)

	s := g.String()
	assert.Len(t, s, 32)
	assert.Equal(t, strings.ToUpper(s), s)

	fromHex, err := ParseGUIDHex(s)
	require.NoError(t, err)
	assert.Equal(t, g, fromHex)
}

func TestMessageGUID_WrongLength(t *testing.T) {
	_, err := ParseGUID([]byte{1, 2, 3})
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.ErrorIs(t, err, ErrInvalidGUID)
}

func TestAckStatusFromCode(t *testing.T) {
	assert.Equal(t, AckSuccess, AckStatusFromCode(0))
	assert.Equal(t, AckLimitMessages, AckStatusFromCode(-100))
	assert.Equal(t, AckStorageFailure, AckStatusFromCode(-104))
	assert.Equal(t, AckUnrecognized, AckStatusFromCode(-102))
	assert.Equal(t, "UNRECOGNIZED", AckStatusFromCode(77).String())
}

func TestQueueOptions_ApplyOnlyOverridden(t *testing.T) {
	base := DefaultQueueSettings()
	got := QueueOptions{ConsumerPriority: Int(5)}.Apply(base)

	assert.Equal(t, 5, got.ConsumerPriority)
	assert.Equal(t, DefaultMaxUnconfirmedMessages, got.MaxUnconfirmedMessages)
	assert.Equal(t, DefaultMaxUnconfirmedBytes, got.MaxUnconfirmedBytes)
	assert.False(t, got.SuspendsOnBadHostHealth)
}

func TestQueueOptions_Validate(t *testing.T) {
	assert.NoError(t, QueueOptions{MaxUnconfirmedMessages: Int(0)}.Validate())
	err := QueueOptions{MaxUnconfirmedBytes: Int(-1)}.Validate()
	require.Error(t, err)
	assert.True(t, IsValidation(err))
}

func TestTimeouts_Defaults(t *testing.T) {
	got := Timeouts{OpenQueue: time.Second}.WithDefaults()
	assert.Equal(t, time.Second, got.OpenQueue)
	assert.Equal(t, DefaultConnectTimeout, got.Connect)
	assert.Equal(t, DefaultCloseQueueTimeout, got.CloseQueue)

	q := QueueOperationTimeouts(2 * time.Second)
	assert.Equal(t, 2*time.Second, q.OpenQueue)
	assert.Equal(t, 2*time.Second, q.ConfigureQueue)
	assert.Equal(t, 2*time.Second, q.CloseQueue)
	assert.Equal(t, DefaultDisconnectTimeout, q.Disconnect)

	err := Timeouts{Connect: -time.Second}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout must be greater than 0")
}

func TestSessionEventType_FailedVariant(t *testing.T) {
	assert.Equal(t, EventQueueReopenFailed, EventQueueReopened.Failed())
	assert.Equal(t, EventQueueResumeFailed, EventQueueResumed.Failed())
	assert.Equal(t, EventQueueSuspendFailed, EventQueueSuspended.Failed())
	assert.Equal(t, EventConnected, EventConnected.Failed())
}

func TestLogSessionEvent_Levels(t *testing.T) {
	tests := []struct {
		event SessionEvent
		level string
	}{
		{SessionEvent{Type: EventConnected}, "INFO"},
		{SessionEvent{Type: EventQueueResumed, QueueURI: "bmq://x/y"}, "INFO"},
		{SessionEvent{Type: EventConnectionLost}, "WARN"},
		{SessionEvent{Type: EventSlowConsumerHighWaterMark}, "WARN"},
		{SessionEvent{Type: EventInterfaceError, Message: "boom"}, "ERROR"},
		{SessionEvent{Type: EventQueueSuspendFailed, QueueURI: "bmq://x/y"}, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.event.Type.String(), func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

			LogSessionEvent(logger)(tt.event)

			assert.Contains(t, buf.String(), "level="+tt.level)
			assert.Contains(t, buf.String(), tt.event.Type.String())
		})
	}
}

func TestSessionEvent_String(t *testing.T) {
	assert.Equal(t, "<Connected>", SessionEvent{Type: EventConnected}.String())
	assert.Equal(t, "<Error: bad>", SessionEvent{Type: EventError, Message: "bad"}.String())
	assert.Equal(t, "<QueueSuspended: bmq://d/q>", SessionEvent{Type: EventQueueSuspended, QueueURI: "bmq://d/q"}.String())
}

func TestErrors_Classification(t *testing.T) {
	perr := &ProtocolError{Op: "open", URI: "bmq://d/q", Code: ResultRefused, Description: "nope"}
	assert.Equal(t, "failed to open bmq://d/q queue: REFUSED: nope", perr.Error())
	assert.True(t, IsProtocol(perr))
	assert.False(t, IsTimeout(perr))

	terr := &TimeoutError{Op: "open", URI: "bmq://d/q"}
	assert.True(t, IsTimeout(terr))

	serr := &StateError{Op: "confirm", URI: "bmq://d/q", Err: ErrQueueNotOpened}
	assert.True(t, IsState(serr))
	assert.True(t, errors.Is(serr, ErrQueueNotOpened))
}
