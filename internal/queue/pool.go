package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/aniladanir/hospital-messenger-service/internal/domain"
)

var ErrClosed = errors.New("queue is closed")

// Pool runs jobs on a fixed number of in-process workers. Submission never blocks the caller;
// how many jobs run at once is bounded by the worker count only.
type Pool struct {
	workers int
	jobs    chan domain.SendJob

	done      chan struct{}
	closeOnce sync.Once
	logger    *slog.Logger
}

func NewPool(workers, buffer int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		workers: workers,
		jobs:    make(chan domain.SendJob, buffer),
		done:    make(chan struct{}),
		logger:  logger,
	}
}

func (p *Pool) Enqueue(ctx context.Context, jobs ...domain.SendJob) error {
	select {
	case <-p.done:
		return ErrClosed
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, job := range jobs {
		select {
		case p.jobs <- job:
		default:
			// buffer full: hand off in the background so the caller is never held up
			go func() {
				select {
				case p.jobs <- job:
				case <-p.done:
				}
			}()
		}
	}
	return nil
}

func (p *Pool) Run(ctx context.Context, h Handler) error {
	var wg sync.WaitGroup
	for range p.workers {
		wg.Go(func() {
			p.worker(ctx, h)
		})
	}
	wg.Wait()
	return nil
}

func (p *Pool) worker(ctx context.Context, h Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return
		case job := <-p.jobs:
			p.logger.Debug("job dequeued", "kind", job.Kind, "batchId", job.BatchID, "recipientId", job.RecipientID)
			h.Handle(ctx, job)
		}
	}
}

// Close stops the workers after their current job. Queued jobs are dropped; the recipients stay
// pending and are picked up again by reconciliation.
func (p *Pool) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
	})
	return nil
}
