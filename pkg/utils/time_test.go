package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	got, err := ParseTimestamp("2026-03-04T05:06:07+01:00")
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2026, 3, 4, 4, 6, 7, 0, time.UTC)))
}

func TestParseOptionalTimestamp(t *testing.T) {
	got, err := ParseOptionalTimestamp("")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = ParseOptionalTimestamp("2026-01-01T00:00:00Z")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2026, got.Year())

	_, err = ParseOptionalTimestamp("yesterday")
	assert.ErrorContains(t, err, "RFC3339")
}
