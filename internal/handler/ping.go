package handler

import "github.com/goevery/collabtodo/internal/broadcaster"

type PingHandlerInterface interface {
	Handle() broadcaster.Message
}

type PingHandler struct{}

func NewPingHandler() *PingHandler {
	return &PingHandler{}
}

func (h *PingHandler) Handle() broadcaster.Message {
	return broadcaster.NewMessage(broadcaster.TypePong, map[string]string{
		"timestamp": broadcaster.NowMillis(),
	})
}
