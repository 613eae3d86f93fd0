package consolidation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benvon/smart-tasks/internal/logger"
	"github.com/benvon/smart-tasks/internal/models"
	"github.com/benvon/smart-tasks/internal/services/ai"
	"github.com/benvon/smart-tasks/internal/taskstore"
	"github.com/benvon/smart-tasks/internal/validation"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// defaultCompletionComment is recorded when a task is completed without a comment
const defaultCompletionComment = "Marked as completed"

const tracerName = "github.com/benvon/smart-tasks/internal/consolidation"

var (
	// ErrMissingThread is returned for messages without a thread id
	ErrMissingThread = errors.New("message has no thread id")
	// ErrTaskCompleted is returned when an update tries to reopen a completed task
	ErrTaskCompleted = errors.New("task is already completed")
	// ErrExtractionUnavailable is returned when the classifier cannot extract right now and the message should be retried
	ErrExtractionUnavailable = errors.New("task extraction unavailable")
)

// EventPublisher delivers the events produced by an engine operation
type EventPublisher interface {
	Dispatch(ctx context.Context, events []models.TaskEvent, notices []models.CompletionNotice) error
}

// Options configures an Engine
type Options struct {
	Config    Config
	Cache     SimilarityCache
	Publisher EventPublisher
	Logger    *zap.Logger
}

// Engine turns extracted candidates into stored, deduplicated, grouped and prioritised tasks
type Engine struct {
	classifier  ai.Classifier
	store       *taskstore.Facade
	comparator  *Comparator
	clusters    *ClusterBuilder
	synthesizer *Synthesizer
	propagator  *Propagator
	publisher   EventPublisher
	logger      *zap.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// RunResult describes what one extraction run did
type RunResult struct {
	ThreadID  string
	MessageID string
	// Created holds the newly stored extracted tasks in extraction order
	Created []*models.Task
	// Suppressed holds candidates dropped as duplicates of existing tasks
	Suppressed []*models.Task
	Parents    []*models.Task
	// Escalated holds every task whose priority was raised, new or pre-existing
	Escalated []*models.Task
	Clusters  [][]*models.Task
	Discarded int
	Events    []models.TaskEvent
}

// CompletionResult describes a CompleteTask call
type CompletionResult struct {
	Task             *models.Task
	AlreadyCompleted bool
	// Parent is set when completing Task also completed its parent
	Parent  *models.Task
	Events  []models.TaskEvent
	Notices []models.CompletionNotice
}

// UpdateOptions controls UpdateTask
type UpdateOptions struct {
	CreateIfMissing bool
}

// NewEngine wires the consolidation components
func NewEngine(classifier ai.Classifier, store *taskstore.Facade, opts Options) (*Engine, error) {
	cfg := opts.Config.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("task store is required")
	}
	log := logger.OrNop(opts.Logger)

	var scorer SimilarityScorer
	var summarizer Summarizer
	if classifier != nil {
		scorer, summarizer = classifier, classifier
	}
	comparator := NewComparator(scorer, opts.Cache, cfg, log)

	return &Engine{
		classifier:  classifier,
		store:       store,
		comparator:  comparator,
		clusters:    NewClusterBuilder(comparator, cfg, log),
		synthesizer: NewSynthesizer(summarizer, log),
		propagator:  NewPropagator(log),
		publisher:   opts.Publisher,
		logger:      log,
		tracer:      otel.Tracer(tracerName),
		now:         time.Now,
	}, nil
}

// Stats returns the comparator counters
func (e *Engine) Stats() ComparatorStats {
	return e.comparator.Stats()
}

// Extract asks the classifier for candidates in msg and processes them.
// A malformed or failed extraction counts as no candidates; an unavailable
// classifier returns ErrExtractionUnavailable so the message can be retried.
func (e *Engine) Extract(ctx context.Context, msg models.Message) (*RunResult, error) {
	if msg.ThreadID == "" {
		return nil, ErrMissingThread
	}
	if e.classifier == nil {
		return nil, fmt.Errorf("%w: no classifier configured", ErrExtractionUnavailable)
	}

	ctx = ai.WithThreadID(ai.WithMessageID(ctx, msg.ID), msg.ThreadID)
	candidates, err := e.classifier.ExtractTasks(ctx, msg)
	if err != nil {
		if ctx.Err() != nil || ai.IsUnavailable(err) || ai.IsRateLimitError(err) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w", ErrExtractionUnavailable, err)
		}
		e.logger.Warn("task_extraction_failed",
			zap.String("thread_id", logger.SanitizeID(msg.ThreadID)),
			zap.String("message_id", logger.SanitizeID(msg.ID)),
			zap.String("error", logger.SanitizeError(err)),
		)
		candidates = nil
	}
	return e.ProcessExtraction(ctx, msg, candidates)
}

// ProcessExtraction stores candidates from msg, suppressing duplicates, then groups the
// new tasks under synthesized parents and aligns priorities across dependencies.
// Runs for the same thread are serialised.
func (e *Engine) ProcessExtraction(ctx context.Context, msg models.Message, candidates []models.ExtractedTask) (*RunResult, error) {
	if msg.ThreadID == "" {
		return nil, ErrMissingThread
	}

	ctx, span := e.tracer.Start(ctx, "consolidation.process_extraction", trace.WithAttributes(
		attribute.String("thread_id", msg.ThreadID),
		attribute.String("message_id", msg.ID),
		attribute.Int("candidate_count", len(candidates)),
	))
	defer span.End()
	ctx = ai.WithThreadID(ai.WithMessageID(ctx, msg.ID), msg.ThreadID)

	unlock := e.store.LockThread(msg.ThreadID)
	defer unlock()

	now := e.now().UTC()
	result := &RunResult{ThreadID: msg.ThreadID, MessageID: msg.ID}

	var (
		fresh    []*models.Task
		existing []*models.Task
		seen     = make(map[string]bool)
	)
	for _, c := range candidates {
		if strings.TrimSpace(c.Description) == "" {
			result.Discarded++
			continue
		}
		task := c.ToTask(msg, now)
		stored, inserted, err := e.store.Register(ctx, task)
		if err != nil && !inserted {
			result.Discarded++
			e.logger.Warn("extracted_task_rejected",
				zap.String("thread_id", logger.SanitizeID(msg.ThreadID)),
				zap.String("description", logger.SanitizeDescription(c.Description)),
				zap.String("error", logger.SanitizeError(err)),
			)
			continue
		}
		if inserted {
			fresh = append(fresh, task)
			seen[task.ID] = true
			continue
		}
		result.Suppressed = append(result.Suppressed, task)
		if !seen[stored.ID] && !stored.IsCompleted() {
			existing = append(existing, stored)
			seen[stored.ID] = true
		}
	}

	result.Created = fresh
	result.Clusters = e.clusters.Build(ctx, fresh)
	subtasks := make(map[*models.Task][]*models.Task)
	for _, cluster := range result.Clusters {
		if len(cluster) < 2 {
			continue
		}
		parent, err := e.synthesizer.Synthesize(ctx, cluster)
		if err != nil {
			e.logger.Warn("parent_synthesis_failed",
				zap.String("thread_id", logger.SanitizeID(msg.ThreadID)),
				zap.Int("cluster_size", len(cluster)),
				zap.Error(err),
			)
			continue
		}
		result.Parents = append(result.Parents, parent)
		subtasks[parent] = cluster
	}

	batch := make([]*models.Task, 0, len(fresh)+len(result.Parents)+len(existing))
	batch = append(batch, fresh...)
	batch = append(batch, result.Parents...)
	batch = append(batch, existing...)
	result.Escalated = e.settlePriorities(batch, result.Parents, subtasks, now)

	escalated := make(map[string]bool, len(result.Escalated))
	for _, t := range result.Escalated {
		escalated[t.ID] = true
	}

	for _, t := range append(append([]*models.Task{}, fresh...), result.Parents...) {
		e.persist(ctx, t)
		result.Events = append(result.Events, models.TaskEvent{Type: models.EventTaskCreated, Task: t.Clone(), OccurredAt: now})
	}
	for _, t := range existing {
		if !escalated[t.ID] {
			continue
		}
		e.persist(ctx, t)
		result.Events = append(result.Events, models.TaskEvent{Type: models.EventTaskUpdated, Task: t.Clone(), OldStatus: t.Status, OccurredAt: now})
	}

	e.publish(ctx, result.Events, nil)

	span.SetAttributes(
		attribute.Int("created_count", len(result.Created)),
		attribute.Int("suppressed_count", len(result.Suppressed)),
		attribute.Int("parent_count", len(result.Parents)),
		attribute.Int("escalated_count", len(result.Escalated)),
	)
	e.logger.Info("extraction_processed",
		zap.String("thread_id", logger.SanitizeID(msg.ThreadID)),
		zap.String("message_id", logger.SanitizeID(msg.ID)),
		zap.Int("candidates", len(candidates)),
		zap.Int("created", len(result.Created)),
		zap.Int("suppressed", len(result.Suppressed)),
		zap.Int("discarded", result.Discarded),
		zap.Int("parents", len(result.Parents)),
		zap.Int("escalated", len(result.Escalated)),
	)
	return result, nil
}

// settlePriorities escalates along dependency links and raises every parent to its most
// urgent subtask, alternating until neither changes anything. Changed tasks are returned
// in batch order.
func (e *Engine) settlePriorities(batch, parents []*models.Task, subtasks map[*models.Task][]*models.Task, now time.Time) []*models.Task {
	changed := make(map[*models.Task]bool)
	for {
		for _, t := range e.propagator.Propagate(batch) {
			changed[t] = true
		}
		raised := false
		for _, parent := range parents {
			target := parent.Priority
			for _, child := range subtasks[parent] {
				target = models.MostUrgent(target, child.Priority)
			}
			if target.MoreUrgent(parent.Priority) {
				parent.Priority = target
				parent.Touch(now)
				changed[parent] = true
				raised = true
			}
		}
		if !raised {
			break
		}
	}

	var out []*models.Task
	for _, t := range batch {
		if changed[t] {
			out = append(out, t)
			delete(changed, t)
		}
	}
	return out
}

// CompleteTask marks a task completed, records comment on it and notifies the originating thread.
// Completing the last open subtask completes the parent too. Completing a completed task is a no-op.
func (e *Engine) CompleteTask(ctx context.Context, id, comment string) (*CompletionResult, error) {
	ctx, span := e.tracer.Start(ctx, "consolidation.complete_task", trace.WithAttributes(attribute.String("task_id", id)))
	defer span.End()

	task, err := e.store.Get(ctx, id)
	if err != nil {
		span.SetStatus(codes.Error, "task not found")
		return nil, err
	}
	unlock := e.store.LockThread(task.ThreadID)
	defer unlock()

	// re-read under the thread lock
	if task, err = e.store.Get(ctx, id); err != nil {
		return nil, err
	}
	if task.IsCompleted() {
		return &CompletionResult{Task: task, AlreadyCompleted: true}, nil
	}

	now := e.now().UTC()
	result := &CompletionResult{Task: task}
	if comment == "" {
		comment = defaultCompletionComment
	}
	e.complete(ctx, task, comment, now, result)

	e.completeParent(ctx, task, now, result)

	e.publish(ctx, result.Events, result.Notices)
	return result, nil
}

// completeParent completes task's parent once every one of its subtasks is completed
func (e *Engine) completeParent(ctx context.Context, task *models.Task, now time.Time, result *CompletionResult) {
	if !task.IsSubtask || task.ParentTaskID == nil {
		return
	}
	parent, err := e.store.Get(ctx, *task.ParentTaskID)
	if err != nil {
		e.logger.Warn("parent_task_missing",
			zap.String("task_id", task.ID),
			zap.String("parent_id", *task.ParentTaskID),
			zap.String("error", logger.SanitizeError(err)),
		)
		return
	}
	if !parent.IsCompleted() && e.allChildrenCompleted(ctx, parent) {
		e.complete(ctx, parent, fmt.Sprintf("All %d subtasks completed", len(parent.ChildTaskIDs)), now, result)
		result.Parent = parent
	}
}

func (e *Engine) complete(ctx context.Context, task *models.Task, comment string, now time.Time, result *CompletionResult) {
	old := task.Status
	task.Status = models.TaskStatusCompleted
	task.AddComment(comment, now)
	e.persist(ctx, task)

	result.Events = append(result.Events, models.TaskEvent{Type: models.EventTaskUpdated, Task: task.Clone(), OldStatus: old, OccurredAt: now})
	result.Notices = append(result.Notices, completionNotice(task, comment, now))
	e.logger.Info("task_completed",
		zap.String("task_id", task.ID),
		zap.String("thread_id", logger.SanitizeID(task.ThreadID)),
	)
}

func (e *Engine) allChildrenCompleted(ctx context.Context, parent *models.Task) bool {
	for _, childID := range parent.ChildTaskIDs {
		child, err := e.store.Get(ctx, childID)
		if err != nil || !child.IsCompleted() {
			return false
		}
	}
	return len(parent.ChildTaskIDs) > 0
}

// UpdateTask replaces a stored task. Unknown ids fail with taskstore.ErrNotFound unless
// opts.CreateIfMissing is set. A completed task cannot be reopened.
func (e *Engine) UpdateTask(ctx context.Context, task *models.Task, opts UpdateOptions) (*models.Task, error) {
	if err := validation.ValidateTask(task); err != nil {
		return nil, err
	}
	unlock := e.store.LockThread(task.ThreadID)
	defer unlock()

	now := e.now().UTC()
	updated := task.Clone()
	updated.Touch(now)

	existing, err := e.store.Get(ctx, task.ID)
	if err != nil {
		if !errors.Is(err, taskstore.ErrNotFound) || !opts.CreateIfMissing {
			return nil, err
		}
		if updated.CreatedAt.IsZero() {
			updated.CreatedAt = now
		}
		e.persist(ctx, updated)
		e.publish(ctx, []models.TaskEvent{{Type: models.EventTaskCreated, Task: updated.Clone(), OccurredAt: now}}, nil)
		return updated, nil
	}

	if existing.IsCompleted() && !updated.IsCompleted() {
		return nil, fmt.Errorf("%w: %s", ErrTaskCompleted, task.ID)
	}
	updated.CreatedAt = existing.CreatedAt

	if !existing.IsCompleted() && updated.IsCompleted() {
		// same path as CompleteTask: comment, notice and parent roll-up
		updated.Status = existing.Status
		result := &CompletionResult{Task: updated}
		e.complete(ctx, updated, defaultCompletionComment, now, result)
		e.completeParent(ctx, updated, now, result)
		e.publish(ctx, result.Events, result.Notices)
		return updated, nil
	}

	e.persist(ctx, updated)
	e.publish(ctx, []models.TaskEvent{{Type: models.EventTaskUpdated, Task: updated.Clone(), OldStatus: existing.Status, OccurredAt: now}}, nil)
	return updated, nil
}

// persist writes through the facade; durable-store failures are already logged there
// and the in-memory view stays authoritative for this process.
func (e *Engine) persist(ctx context.Context, task *models.Task) {
	if err := e.store.Upsert(ctx, task); err != nil {
		e.logger.Warn("task_write_degraded",
			zap.String("task_id", task.ID),
			zap.String("error", logger.SanitizeError(err)),
		)
	}
}

func (e *Engine) publish(ctx context.Context, events []models.TaskEvent, notices []models.CompletionNotice) {
	if e.publisher == nil || (len(events) == 0 && len(notices) == 0) {
		return
	}
	if err := e.publisher.Dispatch(ctx, events, notices); err != nil {
		e.logger.Warn("event_dispatch_incomplete", zap.String("error", logger.SanitizeError(err)))
	}
}

func completionNotice(task *models.Task, comment string, now time.Time) models.CompletionNotice {
	return models.CompletionNotice{
		TaskID:          task.ID,
		ThreadID:        task.ThreadID,
		SourceMessageID: task.SourceMessageID,
		Description:     task.Description,
		Comment:         comment,
		Deadline:        task.Deadline,
		CompletedAt:     now,
	}
}
