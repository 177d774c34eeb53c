package process

import (
	"context"
	"log/slog"
	"sync"
)

// ItemProcessor runs the state machine for one item.
type ItemProcessor interface {
	Process(ctx context.Context, job Job) error
}

// Runner schedules item jobs. Each job runs on its own goroutine, bounded by
// a concurrency limit; jobs for different items, including items of the same
// batch, run independently.
type Runner struct {
	proc ItemProcessor
	ctx  context.Context
	sem  chan struct{}
	wg   sync.WaitGroup
}

// NewRunner creates a Runner. ctx is the lifetime of the service; cancelling
// it stops new classification work and Drain waits for in-flight jobs.
func NewRunner(ctx context.Context, proc ItemProcessor, maxConcurrent int) *Runner {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Runner{proc: proc, ctx: ctx, sem: make(chan struct{}, maxConcurrent)}
}

// Enqueue schedules a job and returns immediately. The caller is never
// blocked on classification latency; the job's outcome is observable only
// through the stores.
func (r *Runner) Enqueue(job Job) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		select {
		case r.sem <- struct{}{}:
		case <-r.ctx.Done():
			return
		}
		defer func() { <-r.sem }()

		slog.Info("processing item", "item_id", job.ItemID, "batch_id", job.BatchID)
		if err := r.proc.Process(r.ctx, job); err != nil {
			// Store failure or shutdown; the item keeps its last committed
			// state and the startup sweep recovers it.
			slog.Error("item job ended with error", "item_id", job.ItemID, "error", err)
		}
	}()
}

// Drain waits for all in-flight jobs to finish.
func (r *Runner) Drain() {
	r.wg.Wait()
}
