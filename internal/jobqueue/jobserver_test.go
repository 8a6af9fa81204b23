package jobqueue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewJobserverCreatesOneTokenPerJob(t *testing.T) {
	js := NewJobserver(4)
	require.Equal(t, 4, js.Capacity())
}

func TestNewJobserverFloorsAtOneJob(t *testing.T) {
	js := NewJobserver(0)
	require.Equal(t, 1, js.Capacity())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.NoError(t, js.Acquire(ctx))
}

func TestJobserverAcquireReleaseRoundTrip(t *testing.T) {
	js := NewJobserver(2)
	ctx := context.Background()

	require.NoError(t, js.Acquire(ctx))

	shortCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	require.NoError(t, js.Acquire(shortCtx))

	blockedCtx, cancel2 := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel2()
	require.Error(t, js.Acquire(blockedCtx))

	js.Release()
	require.NoError(t, js.Acquire(ctx))
}

func TestJobserverBoundsConcurrency(t *testing.T) {
	const capacity = 3
	js := NewJobserver(capacity)

	var mu sync.Mutex
	maxSeen := 0
	current := 0

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			ctx := context.Background()
			_ = js.Acquire(ctx)

			mu.Lock()
			current++
			if current > maxSeen {
				maxSeen = current
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			current--
			mu.Unlock()

			js.Release()
			done <- struct{}{}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	require.LessOrEqual(t, maxSeen, capacity)
}
