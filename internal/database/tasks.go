package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/benvon/smart-tasks/internal/models"
	"github.com/lib/pq"
)

// ErrTaskNotFound is returned when no task has the requested id
var ErrTaskNotFound = errors.New("task not found")

const taskColumns = `id, thread_id, source_message_id, description, priority, status, deadline,
	dependencies, parent_task_id, is_subtask, child_task_ids, is_parent, comments, created_at, updated_at`

// TaskRepository handles task database operations
type TaskRepository struct {
	db *DB
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(db *DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Upsert inserts the task or replaces every mutable column of an existing row
func (r *TaskRepository) Upsert(ctx context.Context, task *models.Task) error {
	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			description = EXCLUDED.description,
			priority = EXCLUDED.priority,
			status = EXCLUDED.status,
			deadline = EXCLUDED.deadline,
			dependencies = EXCLUDED.dependencies,
			parent_task_id = EXCLUDED.parent_task_id,
			is_subtask = EXCLUDED.is_subtask,
			child_task_ids = EXCLUDED.child_task_ids,
			is_parent = EXCLUDED.is_parent,
			comments = EXCLUDED.comments,
			updated_at = EXCLUDED.updated_at
	`

	commentsJSON, err := marshalComments(task.Comments)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, query,
		task.ID,
		task.ThreadID,
		task.SourceMessageID,
		task.Description,
		task.Priority,
		task.Status,
		nullTime(task),
		pq.Array(nonNil(task.Dependencies)),
		nullString(task.ParentTaskID),
		task.IsSubtask,
		pq.Array(nonNil(task.ChildTaskIDs)),
		task.IsParent,
		commentsJSON,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert task: %w", err)
	}
	return nil
}

// GetByID retrieves a task by id
func (r *TaskRepository) GetByID(ctx context.Context, id string) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`

	task, err := scanTask(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

// GetActiveByThread returns the non-completed tasks of a thread, oldest first
func (r *TaskRepository) GetActiveByThread(ctx context.Context, threadID string) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE thread_id = $1 AND status <> $2 ORDER BY created_at, id`
	return r.list(ctx, query, threadID, models.TaskStatusCompleted)
}

// GetActiveByMessage returns the non-completed tasks extracted from a message, oldest first
func (r *TaskRepository) GetActiveByMessage(ctx context.Context, messageID string) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE source_message_id = $1 AND status <> $2 ORDER BY created_at, id`
	return r.list(ctx, query, messageID, models.TaskStatusCompleted)
}

// GetByThread returns every task of a thread, including completed ones
func (r *TaskRepository) GetByThread(ctx context.Context, threadID string) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE thread_id = $1 ORDER BY created_at, id`
	return r.list(ctx, query, threadID)
}

func (r *TaskRepository) list(ctx context.Context, query string, args ...any) ([]*models.Task, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", err)
	}
	return tasks, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	task := &models.Task{}
	var (
		deadline     sql.NullTime
		parentID     sql.NullString
		commentsJSON []byte
	)

	err := row.Scan(
		&task.ID,
		&task.ThreadID,
		&task.SourceMessageID,
		&task.Description,
		&task.Priority,
		&task.Status,
		&deadline,
		pq.Array(&task.Dependencies),
		&parentID,
		&task.IsSubtask,
		pq.Array(&task.ChildTaskIDs),
		&task.IsParent,
		&commentsJSON,
		&task.CreatedAt,
		&task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if deadline.Valid {
		d := deadline.Time.UTC()
		task.Deadline = &d
	}
	if parentID.Valid {
		p := parentID.String
		task.ParentTaskID = &p
	}
	if task.Comments, err = unmarshalComments(commentsJSON); err != nil {
		return nil, err
	}
	return task, nil
}

func marshalComments(comments []models.Comment) ([]byte, error) {
	if comments == nil {
		comments = []models.Comment{}
	}
	data, err := json.Marshal(comments)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal comments: %w", err)
	}
	return data, nil
}

func unmarshalComments(data []byte) ([]models.Comment, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var comments []models.Comment
	if err := json.Unmarshal(data, &comments); err != nil {
		return nil, fmt.Errorf("failed to unmarshal comments: %w", err)
	}
	if len(comments) == 0 {
		return nil, nil
	}
	return comments, nil
}

func nullTime(task *models.Task) sql.NullTime {
	if task.Deadline == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: task.Deadline.UTC(), Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
