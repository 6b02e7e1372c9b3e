package webhooks

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrUnknownEventKind is returned when constructing an event or subscription
// with a kind outside the known enumeration.
var ErrUnknownEventKind = errors.New("unknown event kind")

// EventKind identifies the type of an event. The set is closed: matching and
// delivery only ever deal with the kinds enumerated below.
type EventKind string

const (
	KindPlanCreated         EventKind = "plan.created"
	KindPlanStarted         EventKind = "plan.started"
	KindPlanCompleted       EventKind = "plan.completed"
	KindPlanFailed          EventKind = "plan.failed"
	KindTaskStarted         EventKind = "task.started"
	KindTaskCompleted       EventKind = "task.completed"
	KindTaskFailed          EventKind = "task.failed"
	KindConversationMessage EventKind = "conversation.message"
)

// Valid reports whether k is one of the known event kinds.
func (k EventKind) Valid() bool {
	switch k {
	case KindPlanCreated, KindPlanStarted, KindPlanCompleted, KindPlanFailed,
		KindTaskStarted, KindTaskCompleted, KindTaskFailed, KindConversationMessage:
		return true
	}
	return false
}

// String returns the wire tag of the kind.
func (k EventKind) String() string {
	return string(k)
}

// Event is an immutable record of something that happened in the system.
// Events are identified by ID; two events with the same ID are the same event.
type Event struct {
	ID        string            `json:"id"`
	Kind      EventKind         `json:"kind"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   map[string]any    `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
}

// NewEvent creates an event with a generated ID and the current timestamp.
// It fails with ErrUnknownEventKind if kind is not part of the enumeration.
func NewEvent(kind EventKind, payload map[string]any, metadata map[string]string) (Event, error) {
	if !kind.Valid() {
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownEventKind, string(kind))
	}
	if payload == nil {
		payload = map[string]any{}
	}
	if metadata == nil {
		metadata = map[string]string{}
	}
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
		Metadata:  metadata,
	}, nil
}

// Body returns the canonical JSON wire form of the event. This is the exact
// byte sequence that gets signed and POSTed to subscribers, so receivers can
// verify the signature against the raw request body.
func (e Event) Body() ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event %s: %w", e.ID, err)
	}
	return body, nil
}
