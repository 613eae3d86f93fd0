package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/smart-tasks/internal/consolidation"
	"github.com/benvon/smart-tasks/internal/logger"
	"github.com/benvon/smart-tasks/internal/models"
	"github.com/benvon/smart-tasks/internal/queue"
	"github.com/benvon/smart-tasks/internal/services/ai"
	"github.com/benvon/smart-tasks/internal/taskstore"
	"go.uber.org/zap"
)

// TaskEngine is the part of the consolidation engine the worker drives
type TaskEngine interface {
	Extract(ctx context.Context, msg models.Message) (*consolidation.RunResult, error)
	CompleteTask(ctx context.Context, id, comment string) (*consolidation.CompletionResult, error)
}

var _ TaskEngine = (*consolidation.Engine)(nil)

// JobProcessor processes extraction and completion jobs
type JobProcessor struct {
	engine   TaskEngine
	jobQueue queue.JobQueue // For re-enqueueing jobs with delays
	logger   *zap.Logger
	now      func() time.Time
}

// NewJobProcessor creates a new job processor. jobQueue may be nil, in which case
// retryable jobs are requeued without delay.
func NewJobProcessor(engine TaskEngine, jobQueue queue.JobQueue, log *zap.Logger) *JobProcessor {
	return &JobProcessor{
		engine:   engine,
		jobQueue: jobQueue,
		logger:   logger.OrNop(log),
		now:      time.Now,
	}
}

// ProcessExtractJob extracts and consolidates the tasks in the job's message
func (p *JobProcessor) ProcessExtractJob(ctx context.Context, job *queue.Job) error {
	result, err := p.engine.Extract(ctx, *job.Message)
	if err != nil {
		return fmt.Errorf("failed to extract tasks: %w", err)
	}

	p.logger.Info("extract_job_processed",
		zap.String("job_id", job.ID.String()),
		zap.String("thread_id", logger.SanitizeID(result.ThreadID)),
		zap.Int("created", len(result.Created)),
		zap.Int("suppressed", len(result.Suppressed)),
		zap.Int("parents", len(result.Parents)),
		zap.Int("escalated", len(result.Escalated)),
	)
	return nil
}

// ProcessCompleteJob completes the job's task
func (p *JobProcessor) ProcessCompleteJob(ctx context.Context, job *queue.Job) error {
	result, err := p.engine.CompleteTask(ctx, job.TaskID, job.Comment)
	if err != nil {
		return fmt.Errorf("failed to complete task: %w", err)
	}

	fields := []zap.Field{
		zap.String("job_id", job.ID.String()),
		zap.String("task_id", job.TaskID),
		zap.Bool("already_completed", result.AlreadyCompleted),
	}
	if result.Parent != nil {
		fields = append(fields, zap.String("parent_completed", result.Parent.ID))
	}
	p.logger.Info("complete_job_processed", fields...)
	return nil
}

// ProcessJob processes a job based on its type and acknowledges it
func (p *JobProcessor) ProcessJob(ctx context.Context, msg queue.MessageInterface) error {
	job := msg.GetJob()

	if err := job.Validate(); err != nil {
		p.logger.Warn("invalid_job",
			zap.String("job_id", job.ID.String()),
			zap.String("job_type", string(job.Type)),
			zap.Error(err),
		)
		if nackErr := msg.Nack(false); nackErr != nil {
			p.logger.Warn("job_nack_failed", zap.String("job_id", job.ID.String()), zap.Error(nackErr))
		}
		return fmt.Errorf("invalid job %s: %w", job.ID, err)
	}

	var err error
	switch job.Type {
	case queue.JobTypeExtractMessage:
		err = p.ProcessExtractJob(ctx, job)
	case queue.JobTypeCompleteTask:
		err = p.ProcessCompleteJob(ctx, job)
	}
	if err != nil {
		return p.handleJobError(ctx, msg, job, err)
	}

	if ackErr := msg.Ack(); ackErr != nil {
		return fmt.Errorf("failed to ack job: %w", ackErr)
	}
	return nil
}

// isPermanent reports errors that a retry cannot fix
func isPermanent(err error) bool {
	return errors.Is(err, taskstore.ErrNotFound) ||
		errors.Is(err, consolidation.ErrMissingThread)
}

// handleJobError retries failed jobs with a delay picked from the error, and dead-letters
// jobs that failed permanently or ran out of retries.
func (p *JobProcessor) handleJobError(ctx context.Context, msg queue.MessageInterface, job *queue.Job, err error) error {
	fields := []zap.Field{
		zap.String("job_id", job.ID.String()),
		zap.String("job_type", string(job.Type)),
		zap.Int("retry_count", job.RetryCount),
		zap.String("error", logger.SanitizeError(err)),
	}

	if isPermanent(err) || !job.CanRetry() {
		p.logger.Warn("job_dead_lettered", fields...)
		if nackErr := msg.Nack(false); nackErr != nil {
			p.logger.Warn("job_nack_failed", zap.String("job_id", job.ID.String()), zap.Error(nackErr))
		}
		return fmt.Errorf("job failed (not retried): %w", err)
	}

	retryDelay := ai.GetRetryDelay(err, job.RetryCount)
	if ai.IsQuotaError(err) {
		p.logger.Warn("job_quota_exceeded", append(fields, zap.Duration("retry_in", retryDelay))...)
	} else if ai.IsRateLimitError(err) || errors.Is(err, consolidation.ErrExtractionUnavailable) {
		p.logger.Warn("job_rate_limited", append(fields, zap.Duration("retry_in", retryDelay))...)
	} else {
		p.logger.Warn("job_failed_will_retry", append(fields, zap.Duration("retry_in", retryDelay))...)
	}

	if p.jobQueue == nil {
		if nackErr := msg.Nack(true); nackErr != nil {
			p.logger.Warn("job_nack_failed", zap.String("job_id", job.ID.String()), zap.Error(nackErr))
		}
		return fmt.Errorf("job failed (requeued): %w", err)
	}

	notBefore := p.now().Add(retryDelay)
	delayed := *job
	delayed.NotBefore = &notBefore
	delayed.RetryCount = job.RetryCount + 1

	if enqueueErr := p.jobQueue.Enqueue(ctx, &delayed); enqueueErr != nil {
		// Keep the original delivery so the job is not lost
		if nackErr := msg.Nack(true); nackErr != nil {
			p.logger.Warn("job_nack_failed", zap.String("job_id", job.ID.String()), zap.Error(nackErr))
		}
		return fmt.Errorf("failed to re-enqueue job: %w", errors.Join(enqueueErr, err))
	}

	if ackErr := msg.Ack(); ackErr != nil {
		p.logger.Warn("job_ack_failed", zap.String("job_id", job.ID.String()), zap.Error(ackErr))
	}
	p.logger.Info("job_reenqueued",
		zap.String("job_id", job.ID.String()),
		zap.Time("not_before", notBefore),
		zap.Int("retry_count", delayed.RetryCount),
	)
	return nil
}
