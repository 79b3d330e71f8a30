package broadcaster

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRegistry() (*InMemoryRegistry, *Metrics) {
	metrics := NewMetrics()

	return NewInMemoryRegistry(zap.NewNop(), metrics), metrics
}

func TestInMemoryRegistry(t *testing.T) {
	t.Run("admit and lookup", func(t *testing.T) {
		registry, metrics := newTestRegistry()
		stream := &fakeStream{}

		connection := registry.Admit("u1", stream)

		found, ok := registry.Lookup("u1")
		require.True(t, ok)
		assert.Same(t, connection, found)
		assert.Equal(t, "u1", connection.UserId)
		assert.NotEmpty(t, connection.Id)
		assert.True(t, connection.ConnectedAt.Equal(connection.LastHeartbeat()))
		assert.Equal(t, float64(1), testutil.ToFloat64(metrics.connectionsActive))

		_, ok = registry.Lookup("u2")
		assert.False(t, ok)
	})

	t.Run("second admit evicts the first", func(t *testing.T) {
		registry, metrics := newTestRegistry()
		first := &fakeStream{}
		second := &fakeStream{}

		firstConnection := registry.Admit("u1", first)
		secondConnection := registry.Admit("u1", second)

		assert.NotEqual(t, firstConnection.Id, secondConnection.Id)
		assert.Equal(t, []CloseReason{CloseReplaced}, first.Closes())
		assert.Empty(t, second.Closes())

		found, ok := registry.Lookup("u1")
		require.True(t, ok)
		assert.Same(t, secondConnection, found)
		assert.Len(t, registry.Connections(), 1)
		assert.Equal(t, float64(1), testutil.ToFloat64(metrics.connectionsEvicted.WithLabelValues(EvictionReplaced)))
	})

	t.Run("remove is idempotent and does not close", func(t *testing.T) {
		registry, _ := newTestRegistry()
		stream := &fakeStream{}
		registry.Admit("u1", stream)

		registry.Remove("u1")
		registry.Remove("u1")

		_, ok := registry.Lookup("u1")
		assert.False(t, ok)
		assert.Empty(t, stream.Closes())
	})

	t.Run("release only removes the current connection", func(t *testing.T) {
		registry, _ := newTestRegistry()
		old := registry.Admit("u1", &fakeStream{})
		current := registry.Admit("u1", &fakeStream{})

		assert.False(t, registry.Release(old))

		found, ok := registry.Lookup("u1")
		require.True(t, ok)
		assert.Same(t, current, found)

		assert.True(t, registry.Release(current))
		_, ok = registry.Lookup("u1")
		assert.False(t, ok)
	})

	t.Run("evict closes and removes", func(t *testing.T) {
		registry, _ := newTestRegistry()
		stream := &fakeStream{}
		connection := registry.Admit("u1", stream)

		assert.True(t, registry.Evict(connection, CloseHeartbeatTimeout))
		assert.False(t, registry.Evict(connection, CloseHeartbeatTimeout))
		assert.Equal(t, []CloseReason{CloseHeartbeatTimeout}, stream.Closes())
	})

	t.Run("touch refreshes heartbeat", func(t *testing.T) {
		registry, _ := newTestRegistry()
		connection := registry.Admit("u1", &fakeStream{})
		later := connection.ConnectedAt.Add(time.Minute)
		registry.now = func() time.Time { return later }

		registry.Touch("u1")
		registry.Touch("missing")

		assert.True(t, connection.LastHeartbeat().Equal(later))
		assert.True(t, connection.ConnectedAt.Before(later))
	})

	t.Run("connections is a snapshot", func(t *testing.T) {
		registry, _ := newTestRegistry()
		registry.Admit("u1", &fakeStream{})
		registry.Admit("u2", &fakeStream{})

		snapshot := registry.Connections()
		registry.Remove("u1")

		assert.Len(t, snapshot, 2)
		assert.Len(t, registry.Connections(), 1)
	})

	t.Run("close all", func(t *testing.T) {
		registry, _ := newTestRegistry()
		first := &fakeStream{}
		second := &fakeStream{}
		registry.Admit("u1", first)
		registry.Admit("u2", second)

		registry.CloseAll(CloseShutdown)

		assert.Empty(t, registry.Connections())
		assert.Equal(t, []CloseReason{CloseShutdown}, first.Closes())
		assert.Equal(t, []CloseReason{CloseShutdown}, second.Closes())
	})

	t.Run("concurrent admits leave one live connection per user", func(t *testing.T) {
		registry, _ := newTestRegistry()
		streams := make([]*fakeStream, 50)

		var wg sync.WaitGroup
		for i := range streams {
			streams[i] = &fakeStream{}

			wg.Add(1)
			go func(stream *fakeStream) {
				defer wg.Done()
				registry.Admit("u1", stream)
			}(streams[i])
		}
		wg.Wait()

		require.Len(t, registry.Connections(), 1)

		open := 0
		for _, stream := range streams {
			closes := stream.Closes()
			assert.LessOrEqual(t, len(closes), 1)
			if len(closes) == 0 {
				open++
			}
		}
		assert.Equal(t, 1, open)
	})
}

func TestCollectStats(t *testing.T) {
	registry, _ := newTestRegistry()
	now := time.Now()

	for i := 0; i < 3; i++ {
		registry.Admit(fmt.Sprintf("u%d", i), &fakeStream{})
	}

	stats := CollectStats(registry, now.Add(90*time.Second))

	assert.Equal(t, 3, stats.TotalConnections)
	assert.Equal(t, []string{"u0", "u1", "u2"}, stats.ConnectedUsers)
	assert.Len(t, stats.HeartbeatStatus, 3)
	assert.InDelta(t, 90, stats.HeartbeatStatus["u1"].AgeSeconds, 1)
}
