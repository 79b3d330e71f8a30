package server

import (
	"context"
	"net/http"

	"github.com/goevery/collabtodo/internal/auth"
	"github.com/goevery/collabtodo/internal/broadcaster"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type RequestAuthenticator interface {
	AuthenticateRequest(r *http.Request) (*auth.Authentication, error)
}

type WebSocketServer struct {
	logger        *zap.Logger
	upgrader      *websocket.Upgrader
	authenticator RequestAuthenticator
	registry      broadcaster.Registry
	router        MessageRouter
	metrics       *broadcaster.Metrics

	sendBufferSize int
}

func NewWebSocketServer(
	logger *zap.Logger,
	upgrader *websocket.Upgrader,
	authenticator RequestAuthenticator,
	registry broadcaster.Registry,
	router MessageRouter,
	metrics *broadcaster.Metrics,
	sendBufferSize int,
) *WebSocketServer {
	return &WebSocketServer{
		logger,
		upgrader,
		authenticator,
		registry,
		router,
		metrics,
		sendBufferSize,
	}
}

// Register mounts the /ws endpoint. Sessions end when ctx is done.
func (s *WebSocketServer) Register(ctx context.Context, router *mux.Router) {
	router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Debug("websocket upgrade failed", zap.Error(err))
			return
		}

		logger := s.logger.With(zap.String("remoteAddr", r.RemoteAddr))
		session := NewSession(logger, conn, s.registry, s.router, s.metrics, s.sendBufferSize)

		authentication, err := s.authenticator.AuthenticateRequest(r)
		if err != nil {
			logger.Info("websocket authentication failed", zap.Error(err))

			session.Reject(broadcaster.CloseUnauthenticated)

			return
		}

		logger.Info("websocket connection established", zap.String("userId", authentication.UserId))

		session.Serve(ctx, authentication.UserId)
	})
}
