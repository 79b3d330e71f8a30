package handler

import (
	"github.com/goevery/collabtodo/internal/broadcaster"
)

type ReadHandlerInterface interface {
	Handle(taskId string) *broadcaster.Message
}

type ReadHandler struct{}

func NewReadHandler() *ReadHandler {
	return &ReadHandler{}
}

// Handle acknowledges a read receipt to its sender. Receipts without a task
// are ignored.
func (h *ReadHandler) Handle(taskId string) *broadcaster.Message {
	if taskId == "" {
		return nil
	}

	message := broadcaster.NewMessage(broadcaster.TypeMessageReadAck, map[string]string{
		"taskId": taskId,
		"readAt": broadcaster.NowMillis(),
	})

	return &message
}
