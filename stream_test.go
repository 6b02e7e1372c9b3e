package webhooks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustEvent(t *testing.T, kind EventKind) Event {
	t.Helper()
	event, err := NewEvent(kind, nil, nil)
	require.NoError(t, err)
	return event
}

func TestStream_EmitInRegistrationOrder(t *testing.T) {
	stream := NewStream()

	var order []string
	stream.Subscribe(func(_ context.Context, _ Event) error {
		order = append(order, "first")
		return nil
	})
	stream.Subscribe(func(_ context.Context, _ Event) error {
		order = append(order, "second")
		return nil
	})

	stream.Emit(context.Background(), mustEvent(t, KindTaskCompleted))
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestStream_FailingHandlerDoesNotStopFanout(t *testing.T) {
	stream := NewStream()

	var reached []string
	stream.Subscribe(func(_ context.Context, _ Event) error {
		return errors.New("handler broke")
	})
	stream.Subscribe(func(_ context.Context, _ Event) error {
		panic("handler panicked")
	})
	stream.Subscribe(func(_ context.Context, _ Event) error {
		reached = append(reached, "survivor")
		return nil
	})

	assert.NotPanics(t, func() {
		stream.Emit(context.Background(), mustEvent(t, KindTaskCompleted))
	})
	assert.Equal(t, []string{"survivor"}, reached)
}

func TestStream_Unsubscribe(t *testing.T) {
	stream := NewStream()

	var calls int
	token := stream.Subscribe(func(_ context.Context, _ Event) error {
		calls++
		return nil
	})

	stream.Emit(context.Background(), mustEvent(t, KindTaskCompleted))
	assert.True(t, stream.Unsubscribe(token))
	stream.Emit(context.Background(), mustEvent(t, KindTaskCompleted))

	assert.Equal(t, 1, calls)
	assert.False(t, stream.Unsubscribe(token))
	assert.False(t, stream.Unsubscribe("no-such-token"))
}

func TestStream_Recent(t *testing.T) {
	stream := NewStream(WithStreamBuffer(3))
	ctx := context.Background()

	var emitted []Event
	for i := 0; i < 5; i++ {
		event := mustEvent(t, KindTaskCompleted)
		emitted = append(emitted, event)
		stream.Emit(ctx, event)
	}

	t.Run("bounded by buffer, oldest first", func(t *testing.T) {
		recent := stream.Recent(0)
		require.Len(t, recent, 3)
		assert.Equal(t, emitted[2].ID, recent[0].ID)
		assert.Equal(t, emitted[4].ID, recent[2].ID)
	})

	t.Run("limit below buffer", func(t *testing.T) {
		recent := stream.Recent(2)
		require.Len(t, recent, 2)
		assert.Equal(t, emitted[3].ID, recent[0].ID)
		assert.Equal(t, emitted[4].ID, recent[1].ID)
	})

	t.Run("limit above buffered count", func(t *testing.T) {
		assert.Len(t, stream.Recent(100), 3)
	})
}

func TestStream_ConcurrentEmitAndSubscribe(t *testing.T) {
	stream := NewStream()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			stream.Subscribe(func(_ context.Context, _ Event) error {
				return fmt.Errorf("handler %d", i)
			})
		}(i)
		go func() {
			defer wg.Done()
			stream.Emit(ctx, mustEvent(t, KindConversationMessage))
		}()
	}
	wg.Wait()

	assert.Len(t, stream.Recent(0), 8)
}
