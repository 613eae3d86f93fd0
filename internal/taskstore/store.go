// Package taskstore is the in-memory task index that sits in front of the durable store.
//
// The facade keeps three views over the same tasks: by id, by thread and by source
// message. Reads that miss the index fall back to the durable store and cache what they
// find. Writes update the index first and then the durable store; a failed durable write
// leaves the in-memory view ahead and is reported to the caller.
//
// Register is the only way new extracted tasks enter the index. It suppresses a task
// whose normalized description matches a non-completed task of the same thread, and the
// check and the insert happen under a per-thread lock.
package taskstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benvon/smart-tasks/internal/database"
	"github.com/benvon/smart-tasks/internal/logger"
	"github.com/benvon/smart-tasks/internal/models"
	"github.com/benvon/smart-tasks/internal/validation"
	"go.uber.org/zap"
)

// ErrNotFound is returned when a task id is known to neither the index nor the durable store
var ErrNotFound = errors.New("task not found")

// Facade is the task index
type Facade struct {
	store  database.TaskRepositoryInterface
	logger *zap.Logger
	now    func() time.Time
	locks  *KeyedMutex
	runs   *KeyedMutex

	mu             sync.RWMutex
	tasks          map[string]*models.Task
	byThread       map[string][]string
	byMessage      map[string][]string
	loadedThreads  map[string]bool
	loadedMessages map[string]bool
}

// New creates a facade. store may be nil for a purely in-memory index.
func New(store database.TaskRepositoryInterface, log *zap.Logger) *Facade {
	return &Facade{
		store:          store,
		logger:         logger.OrNop(log),
		now:            time.Now,
		locks:          NewKeyedMutex(),
		runs:           NewKeyedMutex(),
		tasks:          make(map[string]*models.Task),
		byThread:       make(map[string][]string),
		byMessage:      make(map[string][]string),
		loadedThreads:  make(map[string]bool),
		loadedMessages: make(map[string]bool),
	}
}

// Register adds a newly extracted task unless the thread already has a non-completed
// task with the same normalized description, or a task with the same id.
// It returns the stored task and whether it was inserted; when suppressed, the
// returned task is the existing one.
func (f *Facade) Register(ctx context.Context, task *models.Task) (*models.Task, bool, error) {
	if err := validation.ValidateTask(task); err != nil {
		return nil, false, err
	}

	unlock := f.locks.Lock(task.ThreadID)
	defer unlock()

	if existing, err := f.Get(ctx, task.ID); err == nil {
		f.logger.Debug("task_registration_suppressed",
			zap.String("task_id", task.ID),
			zap.String("reason", "same_id"),
		)
		return existing, false, nil
	}

	normalized := models.NormalizeDescription(task.Description)
	for _, existing := range f.ByThread(ctx, task.ThreadID) {
		if models.NormalizeDescription(existing.Description) == normalized {
			f.logger.Debug("task_registration_suppressed",
				zap.String("task_id", task.ID),
				zap.String("existing_task_id", existing.ID),
				zap.String("reason", "duplicate_description"),
			)
			return existing, false, nil
		}
	}

	if err := f.Upsert(ctx, task); err != nil {
		return task.Clone(), true, err
	}
	return task.Clone(), true, nil
}

// Upsert writes task to the index and then the durable store.
// The index keeps its own copy; later changes to task need another Upsert.
func (f *Facade) Upsert(ctx context.Context, task *models.Task) error {
	if err := validation.ValidateTask(task); err != nil {
		return err
	}
	if task.UpdatedAt.IsZero() {
		task.UpdatedAt = f.now().UTC()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = task.UpdatedAt
	}

	f.index(task.Clone())

	if f.store == nil {
		return nil
	}
	if err := f.store.Upsert(ctx, task); err != nil {
		f.logger.Error("task_persist_failed",
			zap.String("task_id", task.ID),
			zap.String("thread_id", logger.SanitizeID(task.ThreadID)),
			zap.Error(err),
		)
		return fmt.Errorf("failed to persist task %s: %w", task.ID, err)
	}
	return nil
}

// Get returns a copy of the task with the given id
func (f *Facade) Get(ctx context.Context, id string) (*models.Task, error) {
	f.mu.RLock()
	task, ok := f.tasks[id]
	f.mu.RUnlock()
	if ok {
		return task.Clone(), nil
	}

	if f.store == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	stored, err := f.store.GetByID(ctx, id)
	if errors.Is(err, database.ErrTaskNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		f.logger.Warn("task_store_read_failed",
			zap.String("task_id", logger.SanitizeID(id)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to read task %s: %w", id, err)
	}

	f.indexIfAbsent(stored)
	return f.getIndexed(id), nil
}

// Exists reports whether a task with the given id is known
func (f *Facade) Exists(ctx context.Context, id string) bool {
	_, err := f.Get(ctx, id)
	return err == nil
}

// ByThread returns the non-completed tasks of a thread in insertion order
func (f *Facade) ByThread(ctx context.Context, threadID string) []*models.Task {
	f.reconcile(ctx, threadID, f.loadedThreads, func(ctx context.Context) ([]*models.Task, error) {
		return f.store.GetActiveByThread(ctx, threadID)
	})

	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.activeLocked(f.byThread[threadID])
}

// ByMessage returns the non-completed tasks extracted from a message in insertion order
func (f *Facade) ByMessage(ctx context.Context, messageID string) []*models.Task {
	f.reconcile(ctx, messageID, f.loadedMessages, func(ctx context.Context) ([]*models.Task, error) {
		return f.store.GetActiveByMessage(ctx, messageID)
	})

	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.activeLocked(f.byMessage[messageID])
}

// LockThread serialises work on one thread. Register takes its own lock on a
// separate keyed mutex, so holding this one while calling Register is safe.
func (f *Facade) LockThread(threadID string) func() {
	return f.runs.Lock(threadID)
}

// reconcile loads a view from the durable store the first time key is read.
// A failed load is logged and retried on the next read.
func (f *Facade) reconcile(ctx context.Context, key string, loaded map[string]bool, load func(context.Context) ([]*models.Task, error)) {
	if f.store == nil || key == "" {
		return
	}
	f.mu.RLock()
	done := loaded[key]
	f.mu.RUnlock()
	if done {
		return
	}

	tasks, err := load(ctx)
	if err != nil {
		f.logger.Warn("task_store_reconcile_failed",
			zap.String("key", logger.SanitizeID(key)),
			zap.Error(err),
		)
		return
	}
	for _, t := range tasks {
		f.indexIfAbsent(t)
	}

	f.mu.Lock()
	loaded[key] = true
	f.mu.Unlock()
}

func (f *Facade) index(task *models.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexLocked(task)
}

// indexIfAbsent keeps the in-memory copy when both exist; it may be ahead of the store
func (f *Facade) indexIfAbsent(task *models.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tasks[task.ID]; ok {
		return
	}
	f.indexLocked(task)
}

func (f *Facade) indexLocked(task *models.Task) {
	if _, ok := f.tasks[task.ID]; !ok {
		f.byThread[task.ThreadID] = append(f.byThread[task.ThreadID], task.ID)
		if task.SourceMessageID != "" {
			f.byMessage[task.SourceMessageID] = append(f.byMessage[task.SourceMessageID], task.ID)
		}
	}
	f.tasks[task.ID] = task
}

func (f *Facade) getIndexed(id string) *models.Task {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.tasks[id].Clone()
}

func (f *Facade) activeLocked(ids []string) []*models.Task {
	out := make([]*models.Task, 0, len(ids))
	for _, id := range ids {
		if t := f.tasks[id]; t != nil && !t.IsCompleted() {
			out = append(out, t.Clone())
		}
	}
	return out
}

// All returns every indexed task of a thread, completed ones included, in insertion order
func (f *Facade) All(threadID string) []*models.Task {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ids := f.byThread[threadID]
	out := make([]*models.Task, 0, len(ids))
	for _, id := range ids {
		out = append(out, f.tasks[id].Clone())
	}
	return out
}
