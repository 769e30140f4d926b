package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBackgroundQueueRunsTasks(t *testing.T) {
	q := NewBackgroundQueue(10, discardLogger())

	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		ok := q.Enqueue(Task{
			Name: "count",
			Run: func(ctx context.Context) error {
				ran.Add(1)
				return nil
			},
		})
		require.True(t, ok)
	}

	q.Close()
	assert.Equal(t, int32(5), ran.Load())
}

func TestBackgroundQueueFailuresDoNotStopWorker(t *testing.T) {
	q := NewBackgroundQueue(10, discardLogger())

	var ran atomic.Int32
	q.Enqueue(Task{Name: "boom", Run: func(ctx context.Context) error {
		return fmt.Errorf("boom")
	}})
	q.Enqueue(Task{Name: "after", Run: func(ctx context.Context) error {
		ran.Add(1)
		return nil
	}})

	q.Close()
	assert.Equal(t, int32(1), ran.Load())
}

func TestBackgroundQueueDropsWhenFull(t *testing.T) {
	q := NewBackgroundQueue(1, discardLogger())
	defer q.Close()

	block := make(chan struct{})
	started := make(chan struct{})
	q.Enqueue(Task{Name: "block", Run: func(ctx context.Context) error {
		close(started)
		<-block
		return nil
	}})
	<-started

	// Worker is busy; one slot queues, the next drops.
	require.True(t, q.Enqueue(Task{Name: "queued", Run: func(ctx context.Context) error { return nil }}))
	assert.False(t, q.Enqueue(Task{Name: "dropped", Run: func(ctx context.Context) error { return nil }}))

	close(block)
}
