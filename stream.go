package webhooks

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StreamFunc is a process-local event observer. A slow or failing handler
// only affects itself; Emit continues with the remaining handlers.
type StreamFunc func(ctx context.Context, event Event) error

// Stream fans events out to process-local subscribers, independent of the
// webhook delivery path, and keeps a bounded ring of recent events for
// late-joining consumers.
type Stream struct {
	logger *zap.Logger

	mu       sync.RWMutex
	handlers []streamHandler
	ring     []Event
	ringNext int
	ringLen  int
}

type streamHandler struct {
	token string
	fn    StreamFunc
}

// NewStream creates a stream with the given options.
func NewStream(opts ...StreamOption) *Stream {
	s := &Stream{
		logger: zap.NewNop(),
		ring:   make([]Event, defaultStreamBuffer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers a handler and returns a token for Unsubscribe.
// Handlers are invoked in registration order.
func (s *Stream) Subscribe(fn StreamFunc) string {
	token := uuid.NewString()
	s.mu.Lock()
	s.handlers = append(s.handlers, streamHandler{token: token, fn: fn})
	s.mu.Unlock()
	return token
}

// Unsubscribe removes the handler registered under token. Returns false when
// the token is unknown.
func (s *Stream) Unsubscribe(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, h := range s.handlers {
		if h.token == token {
			s.handlers = append(s.handlers[:i], s.handlers[i+1:]...)
			return true
		}
	}
	return false
}

// Emit appends the event to the ring buffer and pushes it to every handler in
// registration order. A handler that returns an error or panics is logged and
// skipped; Emit itself never fails and never panics.
func (s *Stream) Emit(ctx context.Context, event Event) {
	s.mu.Lock()
	s.ring[s.ringNext] = event
	s.ringNext = (s.ringNext + 1) % len(s.ring)
	if s.ringLen < len(s.ring) {
		s.ringLen++
	}
	handlers := make([]streamHandler, len(s.handlers))
	copy(handlers, s.handlers)
	s.mu.Unlock()

	for _, h := range handlers {
		s.invoke(ctx, h, event)
	}
}

func (s *Stream) invoke(ctx context.Context, h streamHandler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Stream handler panicked",
				zap.String("event_id", event.ID),
				zap.Any("panic", r))
		}
	}()

	if err := h.fn(ctx, event); err != nil {
		s.logger.Error("Stream handler failed",
			zap.String("event_id", event.ID),
			zap.String("event_kind", event.Kind.String()),
			zap.Error(err))
	}
}

// Recent returns up to limit of the most recently emitted events, oldest
// first. limit <= 0 means everything still buffered.
func (s *Stream) Recent(limit int) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := s.ringLen
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Event, 0, n)
	start := s.ringNext - n
	if start < 0 {
		start += len(s.ring)
	}
	for i := 0; i < n; i++ {
		out = append(out, s.ring[(start+i)%len(s.ring)])
	}
	return out
}
