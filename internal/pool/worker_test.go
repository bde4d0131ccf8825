package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorker_RunsTasksSerially(t *testing.T) {
	w := NewWorker(WorkerConfig{Name: "test", QueueSize: 16})

	var running atomic.Int32
	var maxSeen atomic.Int32
	var order []int
	var mu sync.Mutex

	for i := 0; i < 10; i++ {
		i := i
		require.NoError(t, w.Submit(context.Background(), func(ctx context.Context) {
			n := running.Add(1)
			if n > maxSeen.Load() {
				maxSeen.Store(n)
			}
			time.Sleep(time.Millisecond)
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			running.Add(-1)
		}))
	}
	w.Close()

	assert.Equal(t, int32(1), maxSeen.Load())
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)

	stats := w.Stats()
	assert.Equal(t, int64(10), stats.Submitted)
	assert.Equal(t, int64(10), stats.Completed)
}

func TestWorker_RecoversPanics(t *testing.T) {
	var recovered atomic.Value
	w := NewWorker(WorkerConfig{
		Name:      "panicky",
		QueueSize: 4,
		PanicHandler: func(name string, r any) {
			recovered.Store(r)
		},
	})

	require.NoError(t, w.Submit(context.Background(), func(ctx context.Context) {
		panic("boom")
	}))

	done := make(chan struct{})
	require.NoError(t, w.Submit(context.Background(), func(ctx context.Context) {
		close(done)
	}))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker stopped after panic")
	}
	w.Close()

	assert.Equal(t, "boom", recovered.Load())
	assert.Equal(t, int64(1), w.Stats().Panicked)
}

func TestWorker_QueueFullAndClosed(t *testing.T) {
	w := NewWorker(WorkerConfig{Name: "full", QueueSize: 1})

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, w.Submit(context.Background(), func(ctx context.Context) {
		close(started)
		<-release
	}))
	<-started

	require.NoError(t, w.Submit(context.Background(), func(ctx context.Context) {}))
	assert.ErrorIs(t, w.Submit(context.Background(), func(ctx context.Context) {}), ErrQueueFull)
	assert.True(t, w.Busy())

	close(release)
	w.Close()
	w.Close()

	assert.ErrorIs(t, w.Submit(context.Background(), func(ctx context.Context) {}), ErrWorkerClosed)
	assert.Equal(t, int64(1), w.Stats().Rejected)
}

func TestByteBufferPool(t *testing.T) {
	buf := ByteBufferPool.Get()
	buf.WriteString("hello")
	ByteBufferPool.Put(buf)

	again := ByteBufferPool.Get()
	assert.Equal(t, 0, again.Len())
	ByteBufferPool.Put(again)

	assert.GreaterOrEqual(t, ByteBufferPool.Stats().Gets, int64(2))
}
