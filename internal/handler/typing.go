package handler

import (
	"context"
	"errors"

	"github.com/goevery/collabtodo/internal/broadcaster"
	"github.com/goevery/collabtodo/internal/ierr"
	"go.uber.org/zap"
)

type Deliverer interface {
	Deliver(recipients []string, message broadcaster.Message) []string
}

type TypingRequest struct {
	TaskId string
	Typing bool
}

type TypingHandlerInterface interface {
	Handle(ctx context.Context, req TypingRequest) error
}

// TypingHandler relays typing indicators to every other connected user.
type TypingHandler struct {
	logger    *zap.Logger
	registry  broadcaster.Registry
	deliverer Deliverer
}

func NewTypingHandler(
	logger *zap.Logger,
	registry broadcaster.Registry,
	deliverer Deliverer,
) *TypingHandler {
	return &TypingHandler{
		logger,
		registry,
		deliverer,
	}
}

func (h *TypingHandler) Handle(ctx context.Context, req TypingRequest) error {
	connection, ok := broadcaster.ConnectionFromContext(ctx)
	if !ok {
		return ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("connection not found"))
	}

	if req.TaskId == "" {
		return nil
	}

	messageType := broadcaster.TypeUserStoppedTyping
	if req.Typing {
		messageType = broadcaster.TypeUserTyping
	}

	var recipients []string
	for _, other := range h.registry.Connections() {
		if other.UserId != connection.UserId {
			recipients = append(recipients, other.UserId)
		}
	}

	if len(recipients) == 0 {
		return nil
	}

	unreachable := h.deliverer.Deliver(recipients, broadcaster.NewMessage(messageType, map[string]string{
		"userId":    connection.UserId,
		"taskId":    req.TaskId,
		"timestamp": broadcaster.NowMillis(),
	}))

	if len(unreachable) > 0 {
		h.logger.Debug("typing indicator not delivered to all users",
			zap.String("type", messageType),
			zap.Strings("unreachable", unreachable))
	}

	return nil
}
