package server

import (
	"context"
	"errors"
	"testing"

	"github.com/goevery/collabtodo/internal/broadcaster"
	"github.com/goevery/collabtodo/internal/handler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type panickingPingHandler struct{}

func (panickingPingHandler) Handle() broadcaster.Message {
	panic("boom")
}

type failingTypingHandler struct{}

func (failingTypingHandler) Handle(ctx context.Context, req handler.TypingRequest) error {
	return errors.New("delivery failed")
}

func TestRouter_Route(t *testing.T) {
	logger := zap.NewNop()
	registry := broadcaster.NewInMemoryRegistry(logger, broadcaster.NewMetrics())

	router := NewRouter(
		logger,
		panickingPingHandler{},
		handler.NewHeartbeatHandler(registry),
		failingTypingHandler{},
		handler.NewReadHandler(),
		handler.NewAckHandler(),
	)

	ctx := context.Background()

	t.Run("handler panic", func(t *testing.T) {
		reply := router.Route(ctx, broadcaster.NewMessage(broadcaster.TypePing, nil))
		require.NotNil(t, reply)

		assert.Equal(t, broadcaster.TypeError, reply.Type)
		assert.Equal(t, "Failed to process message", reply.Data["message"])
	})

	t.Run("handler error", func(t *testing.T) {
		reply := router.Route(ctx, broadcaster.NewMessage(broadcaster.TypeTypingStart, map[string]string{"taskId": "task-1"}))
		require.NotNil(t, reply)

		assert.Equal(t, broadcaster.TypeError, reply.Type)
	})

	t.Run("heartbeat", func(t *testing.T) {
		reply := router.Route(ctx, broadcaster.NewMessage(broadcaster.TypeHeartbeat, nil))
		require.NotNil(t, reply)

		assert.Equal(t, broadcaster.TypeHeartbeatAck, reply.Type)
	})

	t.Run("read without task", func(t *testing.T) {
		assert.Nil(t, router.Route(ctx, broadcaster.NewMessage(broadcaster.TypeMessageRead, nil)))
	})

	t.Run("unknown", func(t *testing.T) {
		reply := router.Route(ctx, broadcaster.NewMessage("SYNC", nil))
		require.NotNil(t, reply)

		assert.Equal(t, "SYNC_ACK", reply.Type)
		assert.Equal(t, "SYNC", reply.Data["originalType"])
	})
}

func TestInboundLabel(t *testing.T) {
	assert.Equal(t, broadcaster.TypePing, inboundLabel(broadcaster.TypePing))
	assert.Equal(t, "OTHER", inboundLabel("SOMETHING_ELSE"))
}

func TestSessionState_String(t *testing.T) {
	assert.Equal(t, "OPEN", SessionOpen.String())
	assert.Equal(t, "CLOSED", SessionClosed.String())
}
