package workers

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitRunsEveryJob(t *testing.T) {
	wp := NewWorkerPool(4, 0)
	defer wp.Stop()

	var n int64
	for i := 0; i < 100; i++ {
		require.NoError(t, wp.Submit(context.Background(), func() { atomic.AddInt64(&n, 1) }))
	}
	wp.Wait()
	assert.Equal(t, int64(100), atomic.LoadInt64(&n))
}

func TestAddJobDropsWhenFull(t *testing.T) {
	wp := NewWorkerPool(1, 1)
	defer wp.Stop()

	release := make(chan struct{})
	started := make(chan struct{})
	require.True(t, wp.AddJob(func() { close(started); <-release }))
	<-started

	assert.True(t, wp.AddJob(func() {}), "fits in the buffer")
	assert.False(t, wp.AddJob(func() {}), "queue is full")

	close(release)
	wp.Wait()
}

func TestSubmitHonorsContext(t *testing.T) {
	wp := NewWorkerPool(1, 0)
	defer wp.Stop()

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, wp.Submit(context.Background(), func() { close(started); <-release }))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, wp.Submit(ctx, func() {}), context.DeadlineExceeded)

	close(release)
	wp.Wait()
}

func TestStoppedPoolRefusesJobs(t *testing.T) {
	wp := NewWorkerPool(2, 4)
	wp.Stop()

	assert.ErrorIs(t, wp.Submit(context.Background(), func() {}), ErrStopped)
	assert.False(t, wp.AddJob(func() {}))
	wp.Stop()
}

func TestStopWhileSubmitting(t *testing.T) {
	wp := NewWorkerPool(2, 1)

	var ran, accepted int64
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			if err := wp.Submit(context.Background(), func() { atomic.AddInt64(&ran, 1) }); err != nil {
				assert.ErrorIs(t, err, ErrStopped)
				return
			}
			atomic.AddInt64(&accepted, 1)
		}
	}()

	time.Sleep(time.Millisecond)
	wp.Stop()
	<-done
	assert.Equal(t, atomic.LoadInt64(&accepted), atomic.LoadInt64(&ran))
}
