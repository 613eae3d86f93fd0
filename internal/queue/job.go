package queue

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benvon/smart-tasks/internal/models"
	"github.com/google/uuid"
)

// JobType represents the type of job
type JobType string

const (
	// JobTypeExtractMessage asks the worker to extract and consolidate tasks from a message
	JobTypeExtractMessage JobType = "extract_message"
	// JobTypeCompleteTask asks the worker to complete a task and notify its thread
	JobTypeCompleteTask JobType = "complete_task"
)

// DefaultMaxRetries is how often a job is re-enqueued before it is dead-lettered
const DefaultMaxRetries = 3

// Job represents a job in the queue
type Job struct {
	ID        uuid.UUID       `json:"id"`
	Type      JobType         `json:"type"`
	ThreadID  string          `json:"thread_id"`
	Message   *models.Message `json:"message,omitempty"` // extract_message only
	TaskID    string          `json:"task_id,omitempty"` // complete_task only
	Comment   string          `json:"comment,omitempty"`
	NotBefore *time.Time      `json:"not_before,omitempty"` // Earliest time to process job (nil = immediate)
	NotAfter  *time.Time      `json:"not_after,omitempty"`  // Latest time to process job (nil = no expiration)
	CreatedAt time.Time       `json:"created_at"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`
}

// NewExtractJob creates a job that runs extraction for msg
func NewExtractJob(msg models.Message) *Job {
	m := msg
	return &Job{
		ID:         uuid.New(),
		Type:       JobTypeExtractMessage,
		ThreadID:   msg.ThreadID,
		Message:    &m,
		CreatedAt:  time.Now(),
		MaxRetries: DefaultMaxRetries,
	}
}

// NewCompleteJob creates a job that completes taskID with comment
func NewCompleteJob(taskID, comment string) *Job {
	return &Job{
		ID:         uuid.New(),
		Type:       JobTypeCompleteTask,
		TaskID:     taskID,
		Comment:    comment,
		CreatedAt:  time.Now(),
		MaxRetries: DefaultMaxRetries,
	}
}

// Validate checks that the job carries the payload its type needs
func (j *Job) Validate() error {
	switch j.Type {
	case JobTypeExtractMessage:
		if j.Message == nil {
			return errors.New("extract_message job has no message")
		}
		if strings.TrimSpace(j.Message.ThreadID) == "" {
			return errors.New("extract_message job has no thread id")
		}
	case JobTypeCompleteTask:
		if strings.TrimSpace(j.TaskID) == "" {
			return errors.New("complete_task job has no task id")
		}
	default:
		return fmt.Errorf("unknown job type: %q", j.Type)
	}
	return nil
}

// ShouldProcess checks if the job should be processed now
func (j *Job) ShouldProcess() bool {
	now := time.Now()
	if j.NotBefore != nil && now.Before(*j.NotBefore) {
		return false
	}
	if j.NotAfter != nil && now.After(*j.NotAfter) {
		return false
	}
	return true
}

// IsExpired checks if the job has expired
func (j *Job) IsExpired() bool {
	if j.NotAfter == nil {
		return false
	}
	return time.Now().After(*j.NotAfter)
}

// CanRetry checks if the job can be retried
func (j *Job) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// IncrementRetry increments the retry count
func (j *Job) IncrementRetry() {
	j.RetryCount++
}
