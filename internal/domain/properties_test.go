package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeProperties_InfersTypes(t *testing.T) {
	raw, err := EncodeProperties(map[string]any{
		"flag":  true,
		"count": 42,
		"name":  "orders",
		"blob":  []byte{0x00, 0xff},
	}, nil)
	require.NoError(t, err)
	require.Len(t, raw, 4)

	byName := make(map[string]RawProperty)
	for _, p := range raw {
		byName[p.Name] = p
	}
	assert.Equal(t, PropertyBool, byName["flag"].Type)
	assert.Equal(t, PropertyInt64, byName["count"].Type)
	assert.Equal(t, PropertyString, byName["name"].Type)
	assert.Equal(t, PropertyBinary, byName["blob"].Type)
	assert.Len(t, byName["count"].Value, 8)
}

func TestEncodeProperties_SortedByName(t *testing.T) {
	raw, err := EncodeProperties(map[string]any{"b": 1, "a": 2, "c": 3}, nil)
	require.NoError(t, err)
	require.Len(t, raw, 3)
	assert.Equal(t, "a", raw[0].Name)
	assert.Equal(t, "b", raw[1].Name)
	assert.Equal(t, "c", raw[2].Name)
}

func TestEncodeProperties_Overrides(t *testing.T) {
	raw, err := EncodeProperties(
		map[string]any{"short": 7, "int": -9, "char": []byte("x")},
		map[string]PropertyType{"short": PropertyShort, "int": PropertyInt32, "char": PropertyChar},
	)
	require.NoError(t, err)

	values, types, errs := DecodeProperties(raw)
	assert.Empty(t, errs)
	assert.Equal(t, int16(7), values["short"])
	assert.Equal(t, int32(-9), values["int"])
	assert.Equal(t, byte('x'), values["char"])
	assert.Equal(t, PropertyShort, types["short"])
	assert.Equal(t, PropertyInt32, types["int"])
	assert.Equal(t, PropertyChar, types["char"])
}

func TestEncodeProperties_OverrideForMissingKey(t *testing.T) {
	_, err := EncodeProperties(
		map[string]any{"a": 1},
		map[string]PropertyType{"b": PropertyShort},
	)
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.ErrorIs(t, err, ErrInvalidProperty)
}

func TestEncodeProperties_RangeChecks(t *testing.T) {
	tests := []struct {
		name     string
		value    any
		propType PropertyType
		wantMsg  string
	}{
		{"short overflow", 40000, PropertyShort, "Property k value must be between [-32768, 32767], inclusive"},
		{"short underflow", -40000, PropertyShort, "Property k value must be between [-32768, 32767], inclusive"},
		{"int32 overflow", int64(1) << 40, PropertyInt32, "Property k value must be between [-2147483648, 2147483647], inclusive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EncodeProperties(
				map[string]any{"k": tt.value},
				map[string]PropertyType{"k": tt.propType},
			)
			require.Error(t, err)
			assert.True(t, IsValidation(err))
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestEncodeProperties_CharMustBeOneByte(t *testing.T) {
	_, err := EncodeProperties(
		map[string]any{"c": []byte("ab")},
		map[string]PropertyType{"c": PropertyChar},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not have exactly 1 byte, 2 bytes provided")
}

func TestEncodeProperties_RejectsNonUTF8String(t *testing.T) {
	_, err := EncodeProperties(
		map[string]any{"s": []byte{0xff, 0xfe}},
		map[string]PropertyType{"s": PropertyString},
	)
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Contains(t, err.Error(), "STRING property 's' has non-UTF-8 data")
}

func TestEncodeProperties_UnsupportedValue(t *testing.T) {
	_, err := EncodeProperties(map[string]any{"f": 1.5}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "property values of type float64 are not supported")
}

func TestEncodeProperties_TypeMismatch(t *testing.T) {
	_, err := EncodeProperties(
		map[string]any{"b": "yes"},
		map[string]PropertyType{"b": PropertyBool},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "'bool' expected")
}

func TestDecodeProperties_SkipsBadEntries(t *testing.T) {
	raw := []RawProperty{
		{Name: "good", Type: PropertyString, Value: []byte("ok")},
		{Name: "bad", Type: PropertyString, Value: []byte{0xc3, 0x28}},
		{Name: "weird", Type: PropertyType(42), Value: []byte{1}},
		{Name: "short", Type: PropertyInt64, Value: []byte{1, 2}},
	}

	values, types, errs := DecodeProperties(raw)

	assert.Equal(t, map[string]any{"good": "ok"}, values)
	assert.Equal(t, map[string]PropertyType{"good": PropertyString}, types)
	require.Len(t, errs, 3)
	assert.Equal(t, "STRING property 'bad' has non-UTF-8 data", errs[0])
	assert.Equal(t, "'weird' property type is unrecognized, type 42 received.", errs[1])
	assert.Contains(t, errs[2], "'short'")
}

func TestDecodeProperties_RoundTripsNegativeIntegers(t *testing.T) {
	raw, err := EncodeProperties(map[string]any{"n": -1}, nil)
	require.NoError(t, err)

	values, _, errs := DecodeProperties(raw)
	assert.Empty(t, errs)
	assert.Equal(t, int64(-1), values["n"])
}
