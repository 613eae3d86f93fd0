package queue

import (
	"context"
	"time"
)

// MessageInterface is a delivered job awaiting settlement. Processors take this
// rather than *Message so tests can settle fakes.
type MessageInterface interface {
	Ack() error
	Nack(requeue bool) error
	GetJob() *Job
}

// JobQueue carries extraction and completion jobs between the CLI and the worker.
type JobQueue interface {
	// Enqueue publishes job, honouring job.NotBefore as a delay when set.
	Enqueue(ctx context.Context, job *Job) error

	// Consume streams deliveries with at most prefetchCount unsettled at once.
	// Every message must be acked or nacked by the caller. Both channels close
	// when ctx ends or the broker channel drops.
	Consume(ctx context.Context, prefetchCount int) (<-chan *Message, <-chan error, error)

	Close() error
	HealthCheck(ctx context.Context) error
}

// DLQPurger drops dead-lettered jobs older than retention and returns the count dropped.
type DLQPurger interface {
	PurgeOlderThan(ctx context.Context, retention time.Duration) (int, error)
}
