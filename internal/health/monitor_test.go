package health

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBasicMonitor_StartsHealthy(t *testing.T) {
	m := NewBasicMonitor()
	assert.True(t, m.Healthy())
}

func TestBasicMonitor_NotifiesOnTransition(t *testing.T) {
	m := NewBasicMonitor()

	var mu sync.Mutex
	var seen []bool
	unsubscribe := m.Subscribe(func(healthy bool) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, healthy)
	})

	m.SetUnhealthy()
	m.SetUnhealthy() // no transition
	m.SetHealthy()

	mu.Lock()
	assert.Equal(t, []bool{false, true}, seen)
	mu.Unlock()
	assert.True(t, m.Healthy())

	unsubscribe()
	unsubscribe()
	m.SetUnhealthy()

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, 2, "unsubscribed callback must not be called")
	assert.False(t, m.Healthy())
}

func TestBasicMonitor_MultipleSubscribers(t *testing.T) {
	m := NewBasicMonitor()

	var a, b int
	m.Subscribe(func(bool) { a++ })
	m.Subscribe(func(bool) { b++ })

	m.SetUnhealthy()
	require.Equal(t, 1, a)
	require.Equal(t, 1, b)
}

func TestBasicMonitor_ImplementsMonitor(t *testing.T) {
	var _ Monitor = NewBasicMonitor()
	var _ Monitor = (*RedisMonitor)(nil)
}
