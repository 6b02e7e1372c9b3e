package webhooks

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		event, err := NewEvent(KindTaskCompleted, map[string]any{"task_id": "t-1"}, map[string]string{"tenant": "acme"})
		require.NoError(t, err)

		assert.NotEmpty(t, event.ID)
		assert.Equal(t, KindTaskCompleted, event.Kind)
		assert.WithinDuration(t, time.Now(), event.Timestamp, time.Second)
		assert.Equal(t, "t-1", event.Payload["task_id"])
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := NewEvent(EventKind("task.exploded"), nil, nil)
		assert.ErrorIs(t, err, ErrUnknownEventKind)
	})

	t.Run("nil maps normalized", func(t *testing.T) {
		event, err := NewEvent(KindPlanCreated, nil, nil)
		require.NoError(t, err)
		assert.NotNil(t, event.Payload)
		assert.NotNil(t, event.Metadata)
	})
}

func TestEventKind_Valid(t *testing.T) {
	for _, kind := range []EventKind{
		KindPlanCreated, KindPlanStarted, KindPlanCompleted, KindPlanFailed,
		KindTaskStarted, KindTaskCompleted, KindTaskFailed, KindConversationMessage,
	} {
		assert.True(t, kind.Valid(), kind.String())
	}
	assert.False(t, EventKind("").Valid())
	assert.False(t, EventKind("plan.paused").Valid())
}

func TestEvent_Body(t *testing.T) {
	event, err := NewEvent(KindPlanCompleted, map[string]any{"plan_id": "p-9"}, map[string]string{"source": "api"})
	require.NoError(t, err)

	body, err := event.Body()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))

	assert.Equal(t, event.ID, decoded["id"])
	assert.Equal(t, "plan.completed", decoded["kind"])
	assert.Equal(t, "p-9", decoded["payload"].(map[string]any)["plan_id"])
	assert.Equal(t, "api", decoded["metadata"].(map[string]any)["source"])

	// The timestamp must round-trip as RFC 3339.
	_, err = time.Parse(time.RFC3339Nano, decoded["timestamp"].(string))
	assert.NoError(t, err)
}
