package database

import (
	"context"

	"github.com/benvon/smart-tasks/internal/models"
)

// TaskRepositoryInterface defines the durable task store the facade reconciles against.
// Implementations return an error wrapping ErrTaskNotFound for unknown ids.
type TaskRepositoryInterface interface {
	Upsert(ctx context.Context, task *models.Task) error
	GetByID(ctx context.Context, id string) (*models.Task, error)
	GetActiveByThread(ctx context.Context, threadID string) ([]*models.Task, error)
	GetActiveByMessage(ctx context.Context, messageID string) ([]*models.Task, error)
}

// Ensure concrete types implement the interfaces
var (
	_ TaskRepositoryInterface = (*TaskRepository)(nil)
)
