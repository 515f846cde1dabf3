package worker

import (
	"context"
	"errors"
	"log"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrPoolClosed is returned by Dispatch after Shutdown.
var ErrPoolClosed = errors.New("worker pool is shut down")

// LocalPool runs pipelines in-process with bounded concurrency. Dispatch
// never blocks: runs wait for a slot in their own goroutine.
type LocalPool struct {
	runner Runner
	sem    *semaphore.Weighted
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func NewLocalPool(runner Runner, concurrency int) *LocalPool {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &LocalPool{
		runner: runner,
		sem:    semaphore.NewWeighted(int64(concurrency)),
	}
}

func (p *LocalPool) Dispatch(ctx context.Context, jobID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		// detached from the caller: request contexts are recycled once the handler returns
		runCtx := context.Background()
		if err := p.sem.Acquire(runCtx, 1); err != nil {
			log.Printf("[%s] Could not acquire worker slot: %v", jobID, err)
			return
		}
		defer p.sem.Release(1)
		p.runner.Run(runCtx, jobID)
	}()
	return nil
}

// Shutdown stops accepting work and waits for in-flight runs or ctx.
func (p *LocalPool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
