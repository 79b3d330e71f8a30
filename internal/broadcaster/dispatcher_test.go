package broadcaster

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAudience(t *testing.T) {
	assert.Equal(t, []string{"owner", "b"}, Audience([]string{"owner", "a", "b", "owner", ""}, "a"))
	assert.Empty(t, Audience([]string{"a", "a"}, "a"))
	assert.Empty(t, Audience(nil, "a"))
}

func TestDispatcher_Deliver(t *testing.T) {
	registry, metrics := newTestRegistry()
	dispatcher := NewDispatcher(zap.NewNop(), registry, metrics, 1, 8)

	online := &fakeStream{}
	slow := &fakeStream{full: true}
	registry.Admit("online", online)
	registry.Admit("slow", slow)

	message := NewMessage(TypeTaskUpdated, map[string]string{"taskId": "t1"})
	unreachable := dispatcher.Deliver([]string{"online", "offline", "slow"}, message)

	assert.ElementsMatch(t, []string{"offline", "slow"}, unreachable)
	assert.Equal(t, []Message{message}, online.Messages())

	_, ok := registry.Lookup("slow")
	assert.False(t, ok)
	assert.Equal(t, []CloseReason{CloseSlowConsumer}, slow.Closes())

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.notifications.WithLabelValues(TypeTaskUpdated, OutcomeDelivered)))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.notifications.WithLabelValues(TypeTaskUpdated, OutcomeUnreachable)))
}

func TestDispatcher_Notify(t *testing.T) {
	registry, metrics := newTestRegistry()
	dispatcher := NewDispatcher(zap.NewNop(), registry, metrics, 2, 16)

	owner := &fakeStream{}
	editor := &fakeStream{}
	viewer := &fakeStream{}
	registry.Admit("owner", owner)
	registry.Admit("editor", editor)
	registry.Admit("viewer", viewer)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- dispatcher.Serve(ctx) }()

	dispatcher.NotifyUpdated("t1", "editor", []string{"owner", "editor", "viewer", "viewer"})

	assert.Eventually(t, func() bool {
		return len(owner.Messages()) == 1 && len(viewer.Messages()) == 1
	}, time.Second, 5*time.Millisecond)

	message := owner.Messages()[0]
	assert.Equal(t, TypeTaskUpdated, message.Type)
	assert.Equal(t, "t1", message.Data["taskId"])
	assert.Equal(t, "editor", message.Data["updatedBy"])
	assert.NotEmpty(t, message.Data["timestamp"])
	assert.Empty(t, editor.Messages())

	dispatcher.NotifyDeleted("t1", "owner", []string{"owner", "editor", "viewer"})
	dispatcher.NotifyShared("viewer", "t2", "owner")
	dispatcher.NotifyShareRemoved("editor", "t3", "owner")

	assert.Eventually(t, func() bool {
		return len(editor.Messages()) == 2 && len(viewer.Messages()) == 3
	}, time.Second, 5*time.Millisecond)

	types := map[string]bool{}
	for _, m := range viewer.Messages() {
		types[m.Type] = true
	}
	assert.True(t, types[TypeTaskDeleted])
	assert.True(t, types[TypeTaskShared])
	assert.Len(t, owner.Messages(), 1)

	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop")
	}
}

func TestDispatcher_QueueFull(t *testing.T) {
	registry, metrics := newTestRegistry()
	dispatcher := NewDispatcher(zap.NewNop(), registry, metrics, 1, 1)

	require.True(t, dispatcher.enqueue([]string{"u1"}, NewMessage(TypeTaskShared, nil)))
	assert.False(t, dispatcher.enqueue([]string{"u1"}, NewMessage(TypeTaskShared, nil)))
	assert.True(t, dispatcher.enqueue(nil, NewMessage(TypeTaskShared, nil)))

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.notificationsDropped.WithLabelValues(TypeTaskShared)))
}
