package handler

import (
	"context"

	"github.com/goevery/collabtodo/internal/broadcaster"
)

type HeartbeatHandlerInterface interface {
	Handle(ctx context.Context) broadcaster.Message
}

type HeartbeatHandler struct {
	registry broadcaster.Registry
}

func NewHeartbeatHandler(registry broadcaster.Registry) *HeartbeatHandler {
	return &HeartbeatHandler{
		registry,
	}
}

func (h *HeartbeatHandler) Handle(ctx context.Context) broadcaster.Message {
	if connection, ok := broadcaster.ConnectionFromContext(ctx); ok {
		h.registry.Touch(connection.UserId)
	}

	return broadcaster.NewMessage(broadcaster.TypeHeartbeatAck, map[string]string{
		"timestamp": broadcaster.NowMillis(),
	})
}
