package broadcaster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	t.Run("full envelope", func(t *testing.T) {
		message, ok := Decode([]byte(`{"type":"TYPING_START","data":{"taskId":"t1"},"timestamp":1700000000000}`))

		require.True(t, ok)
		assert.Equal(t, TypeTypingStart, message.Type)
		assert.Equal(t, map[string]string{"taskId": "t1"}, message.Data)
		assert.Equal(t, int64(1700000000000), message.Timestamp)
	})

	t.Run("defaults for missing data and timestamp", func(t *testing.T) {
		before := time.Now().UnixMilli()
		message, ok := Decode([]byte(`{"type":"PING"}`))

		require.True(t, ok)
		assert.Equal(t, map[string]string{}, message.Data)
		assert.GreaterOrEqual(t, message.Timestamp, before)
	})

	t.Run("unknown fields are ignored", func(t *testing.T) {
		message, ok := Decode([]byte(`{"type":"HEARTBEAT","extra":{"a":[1,2]},"data":{}}`))

		require.True(t, ok)
		assert.Equal(t, TypeHeartbeat, message.Type)
	})

	t.Run("invalid frames", func(t *testing.T) {
		frames := []string{
			`not-json`,
			`[]`,
			`null`,
			`{"data":{"taskId":"t1"}}`,
			`{"type":"MESSAGE_READ","data":{"taskId":1}}`,
			`{"type":"PING","timestamp":"yesterday"}`,
		}

		for _, frame := range frames {
			_, ok := Decode([]byte(frame))
			assert.False(t, ok, frame)
		}
	})
}

func TestEncode(t *testing.T) {
	message := Message{
		Type:      TypeUserTyping,
		Data:      map[string]string{"userId": "u1", "taskId": "t1", "timestamp": "5"},
		Timestamp: 42,
	}

	raw, err := Encode(message)
	require.NoError(t, err)
	assert.Equal(t, `{"type":"USER_TYPING","data":{"taskId":"t1","timestamp":"5","userId":"u1"},"timestamp":42}`, string(raw))

	again, err := Encode(message)
	require.NoError(t, err)
	assert.Equal(t, raw, again)

	decoded, ok := Decode(raw)
	require.True(t, ok)
	assert.Equal(t, message, decoded)

	raw, err = Encode(Message{Type: TypePong, Timestamp: 1})
	require.NoError(t, err)
	assert.Equal(t, `{"type":"PONG","data":{},"timestamp":1}`, string(raw))
}

func TestParseEvent(t *testing.T) {
	assert.Equal(t, PingEvent{}, ParseEvent(NewMessage(TypePing, nil)))
	assert.Equal(t, HeartbeatEvent{}, ParseEvent(NewMessage(TypeHeartbeat, nil)))
	assert.Equal(t, TypingStartEvent{TaskId: "t1"}, ParseEvent(NewMessage(TypeTypingStart, map[string]string{"taskId": "t1"})))
	assert.Equal(t, TypingEndEvent{TaskId: "t1"}, ParseEvent(NewMessage(TypeTypingEnd, map[string]string{"taskId": "t1"})))
	assert.Equal(t, MessageReadEvent{}, ParseEvent(NewMessage(TypeMessageRead, nil)))

	event := ParseEvent(NewMessage("CUSTOM", map[string]string{"k": "v"}))
	assert.Equal(t, UnknownEvent{Type: "CUSTOM", Data: map[string]string{"k": "v"}}, event)
	assert.Equal(t, "CUSTOM", event.EventType())
}
