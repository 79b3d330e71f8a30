package broadcaster

import (
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

const (
	TypeConnected         = "CONNECTED"
	TypePing              = "PING"
	TypePong              = "PONG"
	TypeHeartbeat         = "HEARTBEAT"
	TypeHeartbeatAck      = "HEARTBEAT_ACK"
	TypeTypingStart       = "TYPING_START"
	TypeTypingEnd         = "TYPING_END"
	TypeUserTyping        = "USER_TYPING"
	TypeUserStoppedTyping = "USER_STOPPED_TYPING"
	TypeMessageRead       = "MESSAGE_READ"
	TypeMessageReadAck    = "MESSAGE_READ_ACK"
	TypeError             = "ERROR"
	TypeTaskUpdated       = "TASK_UPDATED"
	TypeTaskDeleted       = "TASK_DELETED"
	TypeTaskShared        = "TASK_SHARED"
	TypeShareRemoved      = "SHARE_REMOVED"
)

// Message is the envelope of every frame exchanged over a WebSocket
// connection. Data values are always strings.
type Message struct {
	Type      string            `json:"type"`
	Data      map[string]string `json:"data"`
	Timestamp int64             `json:"timestamp"`
}

func NewMessage(messageType string, data map[string]string) Message {
	if data == nil {
		data = map[string]string{}
	}

	return Message{
		Type:      messageType,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
}

func NowMillis() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10)
}

func NewErrorMessage(text string) Message {
	return NewMessage(TypeError, map[string]string{
		"message":   text,
		"timestamp": NowMillis(),
	})
}

type wireMessage struct {
	Type      *string           `json:"type"`
	Data      map[string]string `json:"data"`
	Timestamp *int64            `json:"timestamp"`
}

// Encode serializes a message. Map keys are emitted in sorted order so the
// output is deterministic.
func Encode(message Message) ([]byte, error) {
	if message.Data == nil {
		message.Data = map[string]string{}
	}

	return json.Marshal(message)
}

// Decode parses a frame. It reports false when the frame is not a JSON
// object, has no type, or carries non-string data values. Unknown fields are
// ignored.
func Decode(raw []byte) (Message, bool) {
	var wire wireMessage
	if err := json.Unmarshal(raw, &wire); err != nil {
		return Message{}, false
	}

	if wire.Type == nil {
		return Message{}, false
	}

	message := Message{
		Type: *wire.Type,
		Data: wire.Data,
	}

	if message.Data == nil {
		message.Data = map[string]string{}
	}

	if wire.Timestamp != nil {
		message.Timestamp = *wire.Timestamp
	} else {
		message.Timestamp = time.Now().UnixMilli()
	}

	return message, true
}
