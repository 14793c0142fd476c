// File: internal/infra/worker/pool.go
package worker

import (
	"context"
	"sync"

	"screenshot-ai-assistant/internal/domain"
	"screenshot-ai-assistant/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Task is one unit of pipeline work.
type Task func(ctx context.Context) error

// Pool runs submitted tasks on a fixed set of workers with a bounded queue.
// Submit fails fast when the queue is full so callers can apply backpressure
// instead of spawning unbounded goroutines.
type Pool struct {
	wg   sync.WaitGroup
	jobs chan Task
	quit chan struct{}
	n    int
	log  *zerolog.Logger
}

func NewPool(workers, queueSize int, logger *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = 8
	}
	if queueSize <= 0 {
		queueSize = workers * 4
	}
	return &Pool{
		jobs: make(chan Task, queueSize),
		quit: make(chan struct{}),
		n:    workers,
		log:  logger,
	}
}

func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case <-p.quit:
					// Drain what is already queued so accepted work finishes.
					for {
						select {
						case task := <-p.jobs:
							p.run(ctx, id, task)
						default:
							return
						}
					}
				case task := <-p.jobs:
					p.run(ctx, id, task)
				}
			}
		}(i)
	}
}

func (p *Pool) run(ctx context.Context, id int, task Task) {
	if task == nil {
		return
	}
	if err := task(ctx); err != nil {
		p.log.Error().Err(err).Int("worker", id).Msg("task error")
	}
}

// Stop signals shutdown and waits for in-flight and queued work to drain.
func (p *Pool) Stop() {
	close(p.quit)
	p.wg.Wait()
}

func (p *Pool) Submit(task Task) error {
	if task == nil {
		return domain.ErrInvalidArgument
	}
	select {
	case p.jobs <- task:
		metrics.SetQueueDepth(len(p.jobs))
		return nil
	default:
		metrics.IncQueueRejected()
		return domain.ErrQueueFull
	}
}
