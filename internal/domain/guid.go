package domain

import (
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// GUIDLength is the size in bytes of a message identifier.
const GUIDLength = 16

// MessageGUID identifies a posted or delivered message.
type MessageGUID [GUIDLength]byte

// NewGUID generates a random message identifier.
func NewGUID() MessageGUID {
	return MessageGUID(uuid.New())
}

// ParseGUID builds a MessageGUID from its binary form.
func ParseGUID(b []byte) (MessageGUID, error) {
	var g MessageGUID
	if len(b) != GUIDLength {
		return g, NewValidationError(ErrInvalidGUID, "guid", "expected %d bytes, got %d", GUIDLength, len(b))
	}
	copy(g[:], b)
	return g, nil
}

// ParseGUIDHex builds a MessageGUID from its hex string form.
func ParseGUIDHex(s string) (MessageGUID, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return MessageGUID{}, NewValidationError(ErrInvalidGUID, "guid", "%v", err)
	}
	return ParseGUID(b)
}

// Bytes returns a copy of the binary identifier.
func (g MessageGUID) Bytes() []byte {
	b := make([]byte, GUIDLength)
	copy(b, g[:])
	return b
}

// IsZero reports whether g is unset.
func (g MessageGUID) IsZero() bool {
	return g == MessageGUID{}
}

func (g MessageGUID) String() string {
	return strings.ToUpper(hex.EncodeToString(g[:]))
}
