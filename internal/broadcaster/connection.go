package broadcaster

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

var (
	ErrStreamClosed   = errors.New("stream closed")
	ErrSendBufferFull = errors.New("send buffer full")
)

// CloseReason is the close frame sent to a peer. Cause labels server
// initiated evictions in metrics.
type CloseReason struct {
	Code  int
	Text  string
	Cause string
}

var (
	CloseReplaced = CloseReason{
		Code:  websocket.CloseNormalClosure,
		Text:  "New connection established",
		Cause: EvictionReplaced,
	}
	CloseHeartbeatTimeout = CloseReason{
		Code:  websocket.CloseNormalClosure,
		Text:  "Heartbeat timeout",
		Cause: EvictionStale,
	}
	CloseSlowConsumer = CloseReason{
		Code:  websocket.CloseTryAgainLater,
		Text:  "Send buffer full",
		Cause: EvictionSlowConsumer,
	}
	CloseShutdown = CloseReason{
		Code:  websocket.CloseGoingAway,
		Text:  "Server shutting down",
		Cause: EvictionShutdown,
	}
	CloseUnauthenticated = CloseReason{
		Code: websocket.ClosePolicyViolation,
		Text: "Authentication required",
	}
	CloseInternalError = CloseReason{
		Code: websocket.CloseInternalServerErr,
		Text: "Internal error",
	}
)

// Stream is the outbound half of a live connection. Implementations must not
// block in either method.
type Stream interface {
	Send(message Message) error
	Close(reason CloseReason)
}

type Connection struct {
	Id          string
	UserId      string
	ConnectedAt time.Time

	stream        Stream
	lastHeartbeat atomic.Int64
}

func newConnection(userId string, stream Stream, now time.Time) *Connection {
	id, err := gonanoid.New()
	if err != nil {
		id = userId + "-" + now.Format(time.RFC3339Nano)
	}

	connection := &Connection{
		Id:          id,
		UserId:      userId,
		ConnectedAt: now,
		stream:      stream,
	}
	connection.lastHeartbeat.Store(now.UnixNano())

	return connection
}

func (c *Connection) Send(message Message) error {
	return c.stream.Send(message)
}

func (c *Connection) LastHeartbeat() time.Time {
	return time.Unix(0, c.lastHeartbeat.Load())
}

func (c *Connection) touch(now time.Time) {
	c.lastHeartbeat.Store(now.UnixNano())
}

type contextKey string

const connectionKey contextKey = "connection"

func WithConnection(ctx context.Context, conn *Connection) context.Context {
	return context.WithValue(ctx, connectionKey, conn)
}

func ConnectionFromContext(ctx context.Context) (*Connection, bool) {
	conn, ok := ctx.Value(connectionKey).(*Connection)

	return conn, ok
}
