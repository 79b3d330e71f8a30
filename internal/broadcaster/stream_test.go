package broadcaster

import (
	"sync"
)

type fakeStream struct {
	mu       sync.Mutex
	messages []Message
	closes   []CloseReason
	full     bool
}

func (s *fakeStream) Send(message Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.closes) > 0 {
		return ErrStreamClosed
	}

	if s.full {
		return ErrSendBufferFull
	}

	s.messages = append(s.messages, message)

	return nil
}

func (s *fakeStream) Close(reason CloseReason) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closes = append(s.closes, reason)
}

func (s *fakeStream) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Message(nil), s.messages...)
}

func (s *fakeStream) Closes() []CloseReason {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]CloseReason(nil), s.closes...)
}
