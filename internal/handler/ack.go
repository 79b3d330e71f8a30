package handler

import "github.com/goevery/collabtodo/internal/broadcaster"

type AckHandlerInterface interface {
	Handle(messageType string) broadcaster.Message
}

type AckHandler struct{}

func NewAckHandler() *AckHandler {
	return &AckHandler{}
}

func (h *AckHandler) Handle(messageType string) broadcaster.Message {
	return broadcaster.NewMessage(messageType+"_ACK", map[string]string{
		"received":     "true",
		"originalType": messageType,
	})
}
