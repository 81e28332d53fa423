package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"github.com/rs/zerolog"
)

// Task is one unit of work submitted to the pool.
type Task func(ctx context.Context) error

// Pool is a small bounded worker pool. It provides the external concurrency
// limit on simultaneously processing jobs.
type Pool struct {
	wg   sync.WaitGroup
	jobs chan Task
	quit chan struct{}
	n    int
	log  zerolog.Logger
}

func NewPool(workers int, logger *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{
		jobs: make(chan Task, workers*4),
		quit: make(chan struct{}),
		n:    workers,
		log:  logger.With().Str("component", "WorkerPool").Logger(),
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
					return
				case task := <-p.jobs:
					if task == nil {
						continue
					}
					if err := task(ctx); err != nil {
						p.log.Error().Err(err).Int("worker", id).Msg("task error")
					}
				}
			}
		}(i)
	}
}

func (p *Pool) Stop() {
	close(p.quit)
	p.wg.Wait()
}

func (p *Pool) Submit(task Task) error {
	if task == nil {
		return errors.New("nil task")
	}
	select {
	case p.jobs <- task:
		return nil
	default:
		// drop when saturated; the dispatcher will pick the job up again
		return errors.New("worker queue full")
	}
}
