package mq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arnabghosh/blazingmq-session/internal/domain"
)

func TestDial_SelectsByScheme(t *testing.T) {
	tests := []struct {
		name string
		uri  string
		want any
	}{
		{"loopback", "loopback://local", &Loopback{}},
		{"http", "http://localhost:30114", &HTTPConnection{}},
		{"redis", "redis://localhost:6379/0", &RedisConnection{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, err := Dial(tt.uri, DialConfig{}, nil)
			require.NoError(t, err)
			assert.IsType(t, tt.want, conn)
		})
	}
}

func TestDial_RejectsUnsupportedScheme(t *testing.T) {
	_, err := Dial("tcp://localhost:30114", DialConfig{}, nil)
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
	assert.Contains(t, err.Error(), "unsupported broker scheme")
}
