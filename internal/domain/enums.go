package domain

import (
	"fmt"
	"strings"
)

// ResultCode is a generic broker result code.
type ResultCode int

const (
	ResultSuccess         ResultCode = 0
	ResultUnknown         ResultCode = -1
	ResultTimeout         ResultCode = -2
	ResultNotConnected    ResultCode = -3
	ResultCanceled        ResultCode = -4
	ResultNotSupported    ResultCode = -5
	ResultRefused         ResultCode = -6
	ResultInvalidArgument ResultCode = -7
	ResultNotReady        ResultCode = -8
)

var resultCodeNames = map[ResultCode]string{
	ResultSuccess:         "SUCCESS",
	ResultUnknown:         "UNKNOWN",
	ResultTimeout:         "TIMEOUT",
	ResultNotConnected:    "NOT_CONNECTED",
	ResultCanceled:        "CANCELED",
	ResultNotSupported:    "NOT_SUPPORTED",
	ResultRefused:         "REFUSED",
	ResultInvalidArgument: "INVALID_ARGUMENT",
	ResultNotReady:        "NOT_READY",
}

func (c ResultCode) String() string {
	if name, ok := resultCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("(* UNKNOWN %d *)", int(c))
}

// AckStatus is the outcome of a post as reported by the broker.
type AckStatus int

const (
	AckSuccess         AckStatus = 0
	AckUnknown         AckStatus = -1
	AckTimeout         AckStatus = -2
	AckNotConnected    AckStatus = -3
	AckCanceled        AckStatus = -4
	AckNotSupported    AckStatus = -5
	AckRefused         AckStatus = -6
	AckInvalidArgument AckStatus = -7
	AckNotReady        AckStatus = -8
	AckLimitMessages   AckStatus = -100
	AckLimitBytes      AckStatus = -101
	AckStorageFailure  AckStatus = -104

	// AckUnrecognized is used for any code the client does not know about.
	AckUnrecognized AckStatus = -1000
)

var ackStatusNames = map[AckStatus]string{
	AckSuccess:         "SUCCESS",
	AckUnknown:         "UNKNOWN",
	AckTimeout:         "TIMEOUT",
	AckNotConnected:    "NOT_CONNECTED",
	AckCanceled:        "CANCELED",
	AckNotSupported:    "NOT_SUPPORTED",
	AckRefused:         "REFUSED",
	AckInvalidArgument: "INVALID_ARGUMENT",
	AckNotReady:        "NOT_READY",
	AckLimitMessages:   "LIMIT_MESSAGES",
	AckLimitBytes:      "LIMIT_BYTES",
	AckStorageFailure:  "STORAGE_FAILURE",
	AckUnrecognized:    "UNRECOGNIZED",
}

// AckStatusFromCode maps a wire ack code onto a known AckStatus.
func AckStatusFromCode(code int) AckStatus {
	status := AckStatus(code)
	if _, ok := ackStatusNames[status]; ok {
		return status
	}
	return AckUnrecognized
}

func (s AckStatus) String() string {
	if name, ok := ackStatusNames[s]; ok {
		return name
	}
	return ackStatusNames[AckUnrecognized]
}

// CompressionAlgorithm selects how outgoing payloads are compressed.
type CompressionAlgorithm int

const (
	CompressionNone CompressionAlgorithm = iota
	CompressionZlib
)

func (c CompressionAlgorithm) String() string {
	switch c {
	case CompressionNone:
		return "NONE"
	case CompressionZlib:
		return "ZLIB"
	default:
		return fmt.Sprintf("CompressionAlgorithm(%d)", int(c))
	}
}

// ParseCompression parses a compression algorithm name.
func ParseCompression(s string) (CompressionAlgorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CompressionNone, nil
	case "zlib":
		return CompressionZlib, nil
	default:
		return CompressionNone, NewValidationError(ErrInvalidOptions, "compression", "unknown algorithm %q", s)
	}
}

// PropertyType is the wire type of a message property.
type PropertyType int

const (
	PropertyUndefined PropertyType = 0
	PropertyBool      PropertyType = 1
	PropertyChar      PropertyType = 2
	PropertyShort     PropertyType = 3
	PropertyInt32     PropertyType = 4
	PropertyInt64     PropertyType = 5
	PropertyString    PropertyType = 6
	PropertyBinary    PropertyType = 7
)

var propertyTypeNames = map[PropertyType]string{
	PropertyUndefined: "UNDEFINED",
	PropertyBool:      "BOOL",
	PropertyChar:      "CHAR",
	PropertyShort:     "SHORT",
	PropertyInt32:     "INT32",
	PropertyInt64:     "INT64",
	PropertyString:    "STRING",
	PropertyBinary:    "BINARY",
}

func (t PropertyType) String() string {
	if name, ok := propertyTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("PropertyType(%d)", int(t))
}

// Valid reports whether t is a concrete property type.
func (t PropertyType) Valid() bool {
	return t >= PropertyBool && t <= PropertyBinary
}
