package workers

import (
	"context"
	"errors"
	"sync"
)

// ErrStopped is returned by Submit once the pool has been stopped.
var ErrStopped = errors.New("worker pool stopped")

// WorkerPool manages a pool of workers that execute jobs concurrently.
type WorkerPool struct {
	jobCh    chan func()
	wg       sync.WaitGroup
	workers  sync.WaitGroup
	stopOnce sync.Once

	// mu guards closed. Senders hold it shared so Stop cannot close jobCh
	// under them.
	mu     sync.RWMutex
	closed bool
}

// NewWorkerPool initializes a worker pool with a fixed number of workers.
func NewWorkerPool(workerCount, jobBufferSize int) *WorkerPool {
	if workerCount < 1 {
		workerCount = 1
	}
	wp := &WorkerPool{
		jobCh: make(chan func(), jobBufferSize),
	}
	wp.workers.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go wp.worker()
	}
	return wp
}

func (wp *WorkerPool) worker() {
	defer wp.workers.Done()
	for job := range wp.jobCh {
		job()
	}
}

func (wp *WorkerPool) wrap(job func()) func() {
	return func() {
		defer wp.wg.Done()
		job()
	}
}

// AddJob enqueues a job without blocking. It returns false when the queue is
// full or the pool is stopped.
func (wp *WorkerPool) AddJob(job func()) bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.closed {
		return false
	}
	wp.wg.Add(1)
	select {
	case wp.jobCh <- wp.wrap(job):
		return true
	default:
		wp.wg.Done()
		return false
	}
}

// Submit enqueues a job, waiting for queue space until ctx is done.
func (wp *WorkerPool) Submit(ctx context.Context, job func()) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.closed {
		return ErrStopped
	}
	wp.wg.Add(1)
	select {
	case wp.jobCh <- wp.wrap(job):
		return nil
	case <-ctx.Done():
		wp.wg.Done()
		return ctx.Err()
	}
}

// Wait blocks until all jobs are completed.
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}

// Stop waits for queued jobs and shuts the workers down. Jobs offered after
// Stop are refused.
func (wp *WorkerPool) Stop() {
	wp.stopOnce.Do(func() {
		wp.mu.Lock()
		wp.closed = true
		wp.mu.Unlock()
		wp.wg.Wait()
		close(wp.jobCh)
		wp.workers.Wait()
	})
}
