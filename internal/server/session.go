package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goevery/collabtodo/internal/broadcaster"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024

	welcomeMessage       = "WebSocket connection established"
	invalidFormatMessage = "Invalid message format"
	otherMessageType     = "OTHER"
)

type SessionState int32

const (
	SessionConnecting SessionState = iota
	SessionOpen
	SessionClosing
	SessionClosed
)

func (s SessionState) String() string {
	switch s {
	case SessionConnecting:
		return "CONNECTING"
	case SessionOpen:
		return "OPEN"
	case SessionClosing:
		return "CLOSING"
	case SessionClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("SessionState(%d)", int32(s))
	}
}

var knownMessageTypes = map[string]struct{}{
	broadcaster.TypePing:        {},
	broadcaster.TypeHeartbeat:   {},
	broadcaster.TypeTypingStart: {},
	broadcaster.TypeTypingEnd:   {},
	broadcaster.TypeMessageRead: {},
}

// Session owns one WebSocket connection. The reader runs in Serve and a
// single writer goroutine drains the send queue, so the socket is never
// written concurrently.
type Session struct {
	logger   *zap.Logger
	conn     *websocket.Conn
	registry broadcaster.Registry
	router   MessageRouter
	metrics  *broadcaster.Metrics

	state       atomic.Int32
	send        chan broadcaster.Message
	done        chan struct{}
	closeOnce   sync.Once
	closeReason broadcaster.CloseReason
}

func NewSession(
	logger *zap.Logger,
	conn *websocket.Conn,
	registry broadcaster.Registry,
	router MessageRouter,
	metrics *broadcaster.Metrics,
	sendBufferSize int,
) *Session {
	if sendBufferSize < 1 {
		sendBufferSize = 1
	}

	return &Session{
		logger:   logger,
		conn:     conn,
		registry: registry,
		router:   router,
		metrics:  metrics,
		send:     make(chan broadcaster.Message, sendBufferSize),
		done:     make(chan struct{}),
	}
}

func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// Send queues message for the writer without blocking.
func (s *Session) Send(message broadcaster.Message) error {
	select {
	case <-s.done:
		return broadcaster.ErrStreamClosed
	default:
	}

	select {
	case s.send <- message:
		return nil
	case <-s.done:
		return broadcaster.ErrStreamClosed
	default:
		return broadcaster.ErrSendBufferFull
	}
}

// Close asks the writer to send reason and close the socket. Only the first
// call has an effect. A zero reason closes without a close frame.
func (s *Session) Close(reason broadcaster.CloseReason) {
	s.closeOnce.Do(func() {
		s.closeReason = reason
		s.state.Store(int32(SessionClosing))
		close(s.done)
	})
}

// Reject closes a connection that never passed authentication.
func (s *Session) Reject(reason broadcaster.CloseReason) {
	s.state.Store(int32(SessionClosed))

	_ = s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(reason.Code, reason.Text),
		time.Now().Add(writeWait),
	)

	_ = s.conn.Close()
}

// Serve admits the session as the live connection of userId and processes
// inbound frames until the peer leaves, the connection is evicted or ctx is
// done.
func (s *Session) Serve(ctx context.Context, userId string) {
	connection := s.registry.Admit(userId, s)
	s.state.Store(int32(SessionOpen))

	logger := s.logger.With(
		zap.String("userId", userId),
		zap.String("connectionId", connection.Id))

	ctx = broadcaster.WithConnection(ctx, connection)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writePump(ctx, logger)
	}()

	defer func() {
		if p := recover(); p != nil {
			logger.Error("panic in websocket session", zap.String("panic", fmt.Sprint(p)))

			s.Close(broadcaster.CloseInternalError)
		}

		s.registry.Release(connection)
		s.Close(broadcaster.CloseReason{})

		<-writerDone
		s.state.Store(int32(SessionClosed))

		logger.Info("websocket connection closed")
	}()

	s.reply(connection, logger, broadcaster.NewMessage(broadcaster.TypeConnected, map[string]string{
		"userId":    userId,
		"timestamp": broadcaster.NowMillis(),
		"message":   welcomeMessage,
	}))

	s.readPump(ctx, connection, logger)
}

func (s *Session) readPump(ctx context.Context, connection *broadcaster.Connection, logger *zap.Logger) {
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Warn("websocket read failed", zap.Error(err))
			}

			return
		}

		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
		s.registry.Touch(connection.UserId)

		message, ok := broadcaster.Decode(raw)
		if !ok {
			s.metrics.IncDecodeErrors()
			s.reply(connection, logger, broadcaster.NewErrorMessage(invalidFormatMessage))

			continue
		}

		s.metrics.IncInboundMessages(inboundLabel(message.Type))

		if response := s.router.Route(ctx, message); response != nil {
			s.reply(connection, logger, *response)
		}
	}
}

func (s *Session) reply(connection *broadcaster.Connection, logger *zap.Logger, message broadcaster.Message) {
	err := s.Send(message)
	if errors.Is(err, broadcaster.ErrSendBufferFull) {
		logger.Warn("send buffer is full, closing connection", zap.String("type", message.Type))

		s.registry.Evict(connection, broadcaster.CloseSlowConsumer)
		s.Close(broadcaster.CloseSlowConsumer)
	}
}

func (s *Session) writePump(ctx context.Context, logger *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message := <-s.send:
			if err := s.write(message); err != nil {
				logger.Warn("websocket write failed", zap.Error(err))

				s.Close(broadcaster.CloseReason{})
				_ = s.conn.Close()

				return
			}
		case <-ticker.C:
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			if err != nil {
				logger.Debug("websocket ping failed", zap.Error(err))

				s.Close(broadcaster.CloseReason{})
				_ = s.conn.Close()

				return
			}
		case <-ctx.Done():
			s.Close(broadcaster.CloseShutdown)
			s.shutdown(logger)

			return
		case <-s.done:
			s.shutdown(logger)

			return
		}
	}
}

// shutdown flushes queued messages, sends the close frame and closes the
// socket, which also unblocks the reader.
func (s *Session) shutdown(logger *zap.Logger) {
	for flushing := true; flushing; {
		select {
		case message := <-s.send:
			if err := s.write(message); err != nil {
				flushing = false
			}
		default:
			flushing = false
		}
	}

	reason := s.closeReason
	if reason.Code != 0 {
		err := s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(reason.Code, reason.Text),
			time.Now().Add(writeWait),
		)
		if err != nil {
			logger.Debug("failed to write close frame", zap.Error(err))
		}
	}

	_ = s.conn.Close()
}

func (s *Session) write(message broadcaster.Message) error {
	payload, err := broadcaster.Encode(message)
	if err != nil {
		return err
	}

	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))

	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

func inboundLabel(messageType string) string {
	if _, ok := knownMessageTypes[messageType]; ok {
		return messageType
	}

	return otherMessageType
}
