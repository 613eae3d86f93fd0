package models

import "time"

// EventType identifies a task lifecycle event
type EventType string

const (
	EventTaskCreated EventType = "task:created"
	EventTaskUpdated EventType = "task:updated"
)

// TaskEvent is emitted on every task mutation.
// OldStatus is only set for task:updated.
type TaskEvent struct {
	Type       EventType  `json:"type"`
	Task       *Task      `json:"task"`
	OldStatus  TaskStatus `json:"old_status,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// CompletionNotice asks the messaging layer to tell the originating thread that
// a task was completed.
type CompletionNotice struct {
	TaskID          string     `json:"task_id"`
	ThreadID        string     `json:"thread_id"`
	SourceMessageID string     `json:"source_message_id"`
	Description     string     `json:"description"`
	Comment         string     `json:"comment,omitempty"`
	Deadline        *time.Time `json:"deadline,omitempty"`
	CompletedAt     time.Time  `json:"completed_at"`
}
