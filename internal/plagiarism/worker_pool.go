package plagiarism

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrPoolClosed is returned by Submit once the pool is shut down.
var ErrPoolClosed = errors.New("worker pool closed")

type Job interface {
	Execute(ctx context.Context) error
}

type WorkerPool struct {
	workers  int
	jobQueue chan Job
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewWorkerPool starts size workers. A size <= 0 sizes the pool from the CPU
// count, keeping a quarter of the cores for the rest of the process.
func NewWorkerPool(ctx context.Context, size int) *WorkerPool {
	if size <= 0 {
		totalCPU := runtime.NumCPU()
		systemReserve := max(1, totalCPU/4)
		size = max(1, totalCPU-systemReserve)
		log.Info().
			Int("totalCPU", totalCPU).
			Int("systemReserve", systemReserve).
			Int("workers", size).
			Msg("Worker pool initialized")
	}
	poolCtx, cancel := context.WithCancel(ctx)

	pool := &WorkerPool{
		workers:  size,
		jobQueue: make(chan Job, size*2),
		ctx:      poolCtx,
		cancel:   cancel,
	}

	pool.start()

	return pool
}

func (p *WorkerPool) start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case job := <-p.jobQueue:
			if err := job.Execute(p.ctx); err != nil {
				log.Error().Err(err).Int("worker", id).Msg("Worker failed to execute job")
			}
		}
	}
}

// Submit queues a job, blocking while the queue is full.
func (p *WorkerPool) Submit(ctx context.Context, job Job) error {
	if p.ctx.Err() != nil {
		return ErrPoolClosed
	}
	select {
	case <-p.ctx.Done():
		return ErrPoolClosed
	case <-ctx.Done():
		return ctx.Err()
	case p.jobQueue <- job:
		return nil
	}
}

// Done is closed when the pool shuts down.
func (p *WorkerPool) Done() <-chan struct{} {
	return p.ctx.Done()
}

// Close stops the workers and waits for them to exit. Queued jobs that have
// not started are dropped.
func (p *WorkerPool) Close() {
	p.cancel()
	p.wg.Wait()
}

func (p *WorkerPool) Size() int {
	return p.workers
}
