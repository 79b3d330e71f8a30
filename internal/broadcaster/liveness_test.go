package broadcaster

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type reconnectingRegistry struct {
	*InMemoryRegistry
	onSnapshot func()
}

func (r *reconnectingRegistry) Connections() []*Connection {
	connections := r.InMemoryRegistry.Connections()
	r.onSnapshot()

	return connections
}

func TestLivenessMonitor_Sweep(t *testing.T) {
	t.Run("evicts stale connections only", func(t *testing.T) {
		registry, metrics := newTestRegistry()
		monitor := NewLivenessMonitor(zap.NewNop(), registry, metrics, time.Second, 120*time.Second)

		stale := &fakeStream{}
		fresh := &fakeStream{}
		staleConnection := registry.Admit("stale", stale)
		freshConnection := registry.Admit("fresh", fresh)

		now := staleConnection.ConnectedAt.Add(150 * time.Second)
		registry.now = func() time.Time { return now.Add(-10 * time.Second) }
		registry.Touch("fresh")
		monitor.now = func() time.Time { return now }

		assert.Equal(t, 1, monitor.Sweep())

		_, ok := registry.Lookup("stale")
		assert.False(t, ok)
		assert.Equal(t, []CloseReason{CloseHeartbeatTimeout}, stale.Closes())

		found, ok := registry.Lookup("fresh")
		require.True(t, ok)
		assert.Same(t, freshConnection, found)
		assert.Empty(t, fresh.Closes())
	})

	t.Run("heartbeat exactly at the timeout is kept", func(t *testing.T) {
		registry, metrics := newTestRegistry()
		monitor := NewLivenessMonitor(zap.NewNop(), registry, metrics, time.Second, 120*time.Second)
		connection := registry.Admit("u1", &fakeStream{})
		monitor.now = func() time.Time { return connection.LastHeartbeat().Add(120 * time.Second) }

		assert.Equal(t, 0, monitor.Sweep())
	})

	t.Run("reconnect during sweep survives", func(t *testing.T) {
		inner, metrics := newTestRegistry()
		replacement := &fakeStream{}
		registry := &reconnectingRegistry{
			InMemoryRegistry: inner,
			onSnapshot:       func() { inner.Admit("u1", replacement) },
		}
		monitor := NewLivenessMonitor(zap.NewNop(), registry, metrics, time.Second, time.Second)

		old := &fakeStream{}
		connection := inner.Admit("u1", old)
		monitor.now = func() time.Time { return connection.ConnectedAt.Add(time.Hour) }

		assert.Equal(t, 0, monitor.Sweep())

		found, ok := inner.Lookup("u1")
		require.True(t, ok)
		assert.NotSame(t, connection, found)
		assert.Empty(t, replacement.Closes())
		assert.Equal(t, []CloseReason{CloseReplaced}, old.Closes())
	})
}

func TestLivenessMonitor_Serve(t *testing.T) {
	registry, metrics := newTestRegistry()
	monitor := NewLivenessMonitor(zap.NewNop(), registry, metrics, 10*time.Millisecond, time.Second)

	stream := &fakeStream{}
	connection := registry.Admit("u1", stream)
	monitor.now = func() time.Time { return connection.ConnectedAt.Add(time.Minute) }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- monitor.Serve(ctx) }()

	assert.Eventually(t, func() bool {
		return len(stream.Closes()) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
