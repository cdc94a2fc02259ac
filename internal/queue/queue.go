// Package queue is the execution substrate that carries send jobs to dispatch workers.
package queue

import (
	"context"

	"github.com/aniladanir/hospital-messenger-service/internal/domain"
)

// Handler processes one job. It owns every failure: nothing is returned to the queue.
type Handler interface {
	Handle(ctx context.Context, job domain.SendJob)
}

type HandlerFunc func(ctx context.Context, job domain.SendJob)

func (f HandlerFunc) Handle(ctx context.Context, job domain.SendJob) {
	f(ctx, job)
}

type Queue interface {
	// Enqueue hands jobs over without waiting for them to run.
	Enqueue(ctx context.Context, jobs ...domain.SendJob) error
	// Run feeds jobs to h until ctx is done, then waits for in-flight jobs.
	Run(ctx context.Context, h Handler) error
	Close() error
}
