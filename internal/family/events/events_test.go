package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cradle/internal/family/models"
)

func TestMemoryPublisher(t *testing.T) {
	p := NewMemoryPublisher()
	require.NoError(t, p.Publish(context.Background(), Event{Type: RecordInserted, Kind: models.KindGuardian}))
	require.NoError(t, p.Publish(context.Background(), Event{Type: RecordDeleted, Kind: models.KindGuardian}))

	assert.Len(t, p.Events(), 2)
	assert.Len(t, p.OfType(RecordDeleted), 1)
}

func TestEventKey(t *testing.T) {
	assert.Equal(t, "dep-1", Event{DocumentID: "a-1", ParentID: "dep-1"}.Key())
	assert.Equal(t, "g-1", Event{DocumentID: "g-1"}.Key())
}

type failingPublisher struct{ calls int }

func (f *failingPublisher) Publish(context.Context, Event) error {
	f.calls++
	return errors.New("sink down")
}

func TestAsyncPublisher(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("drains on close", func(t *testing.T) {
		sink := NewMemoryPublisher()
		p := NewAsyncPublisher(sink, 10, logger)
		for range 5 {
			require.NoError(t, p.Publish(context.Background(), Event{Type: RecordInserted}))
		}
		p.Close()
		assert.Len(t, sink.Events(), 5)
	})

	t.Run("sink failures are swallowed", func(t *testing.T) {
		sink := &failingPublisher{}
		p := NewAsyncPublisher(sink, 1, logger)
		assert.NoError(t, p.Publish(context.Background(), Event{Type: RecordInserted}))
		p.Close()
		assert.Equal(t, 1, sink.calls)
	})

	t.Run("close is idempotent", func(t *testing.T) {
		p := NewAsyncPublisher(NopPublisher{}, 1, logger)
		p.Close()
		p.Close()
	})
}
