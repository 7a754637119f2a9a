package domain

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"unicode/utf8"
)

// RawProperty is the wire form of a single message property. Integer
// values are big-endian.
type RawProperty struct {
	Name  string       `json:"name"`
	Type  PropertyType `json:"type"`
	Value []byte       `json:"value"`
}

// InferPropertyType returns the default wire type for a Go value.
func InferPropertyType(v any) (PropertyType, bool) {
	switch v.(type) {
	case bool:
		return PropertyBool, true
	case int, int8, int16, int32, int64, uint8, uint16, uint32:
		return PropertyInt64, true
	case string:
		return PropertyString, true
	case []byte:
		return PropertyBinary, true
	}
	return PropertyUndefined, false
}

// EncodeProperties converts application property values to their wire form.
// Types are inferred from the values; overrides may only name existing keys.
// Properties are returned sorted by name.
func EncodeProperties(values map[string]any, overrides map[string]PropertyType) ([]RawProperty, error) {
	if len(values) == 0 && len(overrides) == 0 {
		return nil, nil
	}

	types := make(map[string]PropertyType, len(values))
	for name, v := range values {
		t, ok := InferPropertyType(v)
		if !ok {
			return nil, NewValidationError(ErrInvalidProperty, name, "property values of type %T are not supported", v)
		}
		types[name] = t
	}
	for name, t := range overrides {
		if _, ok := types[name]; !ok {
			return nil, NewValidationError(ErrInvalidProperty, name, "received override for non-existent property %q", name)
		}
		if !t.Valid() {
			return nil, NewValidationError(ErrInvalidProperty, name, "unsupported property type %d (%s)", int(t), t)
		}
		types[name] = t
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]RawProperty, 0, len(names))
	for _, name := range names {
		raw, err := encodeProperty(name, types[name], values[name])
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}

func encodeProperty(name string, t PropertyType, v any) (RawProperty, error) {
	raw := RawProperty{Name: name, Type: t}

	switch t {
	case PropertyBool:
		b, ok := v.(bool)
		if !ok {
			return raw, typeMismatch(name, v, "bool")
		}
		raw.Value = []byte{0}
		if b {
			raw.Value[0] = 1
		}

	case PropertyChar:
		switch c := v.(type) {
		case byte:
			raw.Value = []byte{c}
		case []byte:
			if len(c) != 1 {
				return raw, NewValidationError(ErrInvalidProperty, name, "'%s' value does not have exactly 1 byte, %d bytes provided.", name, len(c))
			}
			raw.Value = []byte{c[0]}
		default:
			return raw, typeMismatch(name, v, "bytes")
		}

	case PropertyShort:
		n, err := integerInRange(name, v, math.MinInt16, math.MaxInt16)
		if err != nil {
			return raw, err
		}
		raw.Value = binary.BigEndian.AppendUint16(nil, uint16(int16(n)))

	case PropertyInt32:
		n, err := integerInRange(name, v, math.MinInt32, math.MaxInt32)
		if err != nil {
			return raw, err
		}
		raw.Value = binary.BigEndian.AppendUint32(nil, uint32(int32(n)))

	case PropertyInt64:
		n, err := integerInRange(name, v, math.MinInt64, math.MaxInt64)
		if err != nil {
			return raw, err
		}
		raw.Value = binary.BigEndian.AppendUint64(nil, uint64(n))

	case PropertyString:
		var s []byte
		switch x := v.(type) {
		case string:
			s = []byte(x)
		case []byte:
			s = append([]byte(nil), x...)
		default:
			return raw, typeMismatch(name, v, "str")
		}
		if !utf8.Valid(s) {
			return raw, NewValidationError(ErrInvalidProperty, name, "STRING property '%s' has non-UTF-8 data", name)
		}
		raw.Value = s

	case PropertyBinary:
		switch x := v.(type) {
		case []byte:
			raw.Value = append([]byte(nil), x...)
		case string:
			raw.Value = []byte(x)
		default:
			return raw, typeMismatch(name, v, "bytes")
		}

	default:
		return raw, NewValidationError(ErrInvalidProperty, name, "unsupported property type %d (%s)", int(t), t)
	}
	return raw, nil
}

func typeMismatch(name string, v any, expected string) error {
	return NewValidationError(ErrInvalidProperty, name, "'%s' value of type %T, '%s' expected.", name, v, expected)
}

func integerInRange(name string, v any, lo, hi int64) (int64, error) {
	var n int64
	switch x := v.(type) {
	case int:
		n = int64(x)
	case int8:
		n = int64(x)
	case int16:
		n = int64(x)
	case int32:
		n = int64(x)
	case int64:
		n = x
	case uint8:
		n = int64(x)
	case uint16:
		n = int64(x)
	case uint32:
		n = int64(x)
	default:
		return 0, typeMismatch(name, v, "int")
	}
	if n < lo || n > hi {
		return 0, NewValidationError(ErrInvalidProperty, name, "Property %s value must be between [%d, %d], inclusive", name, lo, hi)
	}
	return n, nil
}

// DecodeProperties converts wire properties into application values. A
// property that cannot be decoded is skipped and described in errs; the
// remaining properties are still returned.
func DecodeProperties(raw []RawProperty) (values map[string]any, types map[string]PropertyType, errs []string) {
	values = make(map[string]any, len(raw))
	types = make(map[string]PropertyType, len(raw))

	for _, p := range raw {
		var v any
		switch p.Type {
		case PropertyBool:
			if len(p.Value) != 1 {
				errs = append(errs, malformed(p, 1))
				continue
			}
			v = p.Value[0] != 0
		case PropertyChar:
			if len(p.Value) != 1 {
				errs = append(errs, malformed(p, 1))
				continue
			}
			v = p.Value[0]
		case PropertyShort:
			if len(p.Value) != 2 {
				errs = append(errs, malformed(p, 2))
				continue
			}
			v = int16(binary.BigEndian.Uint16(p.Value))
		case PropertyInt32:
			if len(p.Value) != 4 {
				errs = append(errs, malformed(p, 4))
				continue
			}
			v = int32(binary.BigEndian.Uint32(p.Value))
		case PropertyInt64:
			if len(p.Value) != 8 {
				errs = append(errs, malformed(p, 8))
				continue
			}
			v = int64(binary.BigEndian.Uint64(p.Value))
		case PropertyString:
			if !utf8.Valid(p.Value) {
				errs = append(errs, fmt.Sprintf("STRING property '%s' has non-UTF-8 data", p.Name))
				continue
			}
			v = string(p.Value)
		case PropertyBinary:
			v = append([]byte(nil), p.Value...)
		default:
			errs = append(errs, fmt.Sprintf("'%s' property type is unrecognized, type %d received.", p.Name, int(p.Type)))
			continue
		}
		values[p.Name] = v
		types[p.Name] = p.Type
	}
	return values, types, errs
}

func malformed(p RawProperty, want int) string {
	return fmt.Sprintf("%s property '%s' has %d bytes, %d expected", p.Type, p.Name, len(p.Value), want)
}
