package server

import (
	"context"
	"fmt"

	"github.com/goevery/collabtodo/internal/broadcaster"
	"github.com/goevery/collabtodo/internal/handler"
	"go.uber.org/zap"
)

const processingFailedMessage = "Failed to process message"

type MessageRouter interface {
	Route(ctx context.Context, message broadcaster.Message) *broadcaster.Message
}

type Router struct {
	logger *zap.Logger

	pingHandler      handler.PingHandlerInterface
	heartbeatHandler handler.HeartbeatHandlerInterface
	typingHandler    handler.TypingHandlerInterface
	readHandler      handler.ReadHandlerInterface
	ackHandler       handler.AckHandlerInterface
}

func NewRouter(
	logger *zap.Logger,
	pingHandler handler.PingHandlerInterface,
	heartbeatHandler handler.HeartbeatHandlerInterface,
	typingHandler handler.TypingHandlerInterface,
	readHandler handler.ReadHandlerInterface,
	ackHandler handler.AckHandlerInterface,
) *Router {
	return &Router{
		logger,
		pingHandler,
		heartbeatHandler,
		typingHandler,
		readHandler,
		ackHandler,
	}
}

// Route handles one inbound message and returns the reply for its sender,
// if any. Handler failures are reported to the sender as an ERROR message.
func (r *Router) Route(ctx context.Context, message broadcaster.Message) (response *broadcaster.Message) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("panic while handling message",
				zap.String("type", message.Type),
				zap.String("panic", fmt.Sprint(p)))

			response = r.failure()
		}
	}()

	response, err := r.Handle(ctx, message)
	if err != nil {
		r.logger.Error("failed to handle message",
			zap.String("type", message.Type),
			zap.Error(err))

		return r.failure()
	}

	return response
}

func (r *Router) Handle(ctx context.Context, message broadcaster.Message) (*broadcaster.Message, error) {
	switch event := broadcaster.ParseEvent(message).(type) {
	case broadcaster.PingEvent:
		return reply(r.pingHandler.Handle()), nil
	case broadcaster.HeartbeatEvent:
		return reply(r.heartbeatHandler.Handle(ctx)), nil
	case broadcaster.TypingStartEvent:
		return nil, r.typingHandler.Handle(ctx, handler.TypingRequest{TaskId: event.TaskId, Typing: true})
	case broadcaster.TypingEndEvent:
		return nil, r.typingHandler.Handle(ctx, handler.TypingRequest{TaskId: event.TaskId})
	case broadcaster.MessageReadEvent:
		return r.readHandler.Handle(event.TaskId), nil
	case broadcaster.UnknownEvent:
		return reply(r.ackHandler.Handle(event.Type)), nil
	default:
		return reply(r.ackHandler.Handle(message.Type)), nil
	}
}

func (r *Router) failure() *broadcaster.Message {
	return reply(broadcaster.NewErrorMessage(processingFailedMessage))
}

func reply(message broadcaster.Message) *broadcaster.Message {
	return &message
}
