package broadcaster

// Event is the typed form of an inbound message.
type Event interface {
	EventType() string
}

type PingEvent struct{}

func (PingEvent) EventType() string { return TypePing }

type HeartbeatEvent struct{}

func (HeartbeatEvent) EventType() string { return TypeHeartbeat }

type TypingStartEvent struct {
	TaskId string
}

func (TypingStartEvent) EventType() string { return TypeTypingStart }

type TypingEndEvent struct {
	TaskId string
}

func (TypingEndEvent) EventType() string { return TypeTypingEnd }

type MessageReadEvent struct {
	TaskId string
}

func (MessageReadEvent) EventType() string { return TypeMessageRead }

// UnknownEvent carries any type the server has no dedicated handling for.
type UnknownEvent struct {
	Type string
	Data map[string]string
}

func (e UnknownEvent) EventType() string { return e.Type }

func ParseEvent(message Message) Event {
	switch message.Type {
	case TypePing:
		return PingEvent{}
	case TypeHeartbeat:
		return HeartbeatEvent{}
	case TypeTypingStart:
		return TypingStartEvent{TaskId: message.Data["taskId"]}
	case TypeTypingEnd:
		return TypingEndEvent{TaskId: message.Data["taskId"]}
	case TypeMessageRead:
		return MessageReadEvent{TaskId: message.Data["taskId"]}
	default:
		return UnknownEvent{Type: message.Type, Data: message.Data}
	}
}
