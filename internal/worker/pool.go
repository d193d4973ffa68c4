// Package worker runs the background side of the service: the SLA monitor jobs, their schedule and
// message-triggered health scoring, all on one bounded pool.
package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Task is a unit of background work.
type Task func(ctx context.Context) error

// Pool runs tasks on at most size goroutines at once. Submitting never blocks the caller.
type Pool struct {
	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewPool builds a pool. A non-positive size means one slot.
func NewPool(size int, logger *zap.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		sem:    semaphore.NewWeighted(int64(size)),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
}

// Go queues task. Values carried by ctx are kept but its cancellation is not: the task outlives the
// request that submitted it and stops only when the pool shuts down.
func (p *Pool) Go(ctx context.Context, name string, task Task) {
	taskCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	unlink := context.AfterFunc(p.ctx, stop)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer unlink()
		defer stop()

		if err := p.sem.Acquire(taskCtx, 1); err != nil {
			p.logger.Warn("background task dropped", zap.String("task", name), zap.Error(err))
			return
		}
		defer p.sem.Release(1)

		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("background task panicked", zap.String("task", name), zap.Any("panic", r))
			}
		}()
		if err := task(taskCtx); err != nil {
			p.logger.Warn("background task failed", zap.String("task", name), zap.Error(err))
		}
	}()
}

// Wait blocks until every submitted task has finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Shutdown cancels running and queued tasks and waits for them, or for ctx.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.cancel()
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
