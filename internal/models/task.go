package models

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// Priority represents how urgent a task is
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

// Rank returns the comparison rank of a priority. Lower rank is more urgent.
// Unknown values rank like MEDIUM.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

// MoreUrgent reports whether p is strictly more urgent than other
func (p Priority) MoreUrgent(other Priority) bool {
	return p.Rank() < other.Rank()
}

// MostUrgent returns the most urgent priority in the list, MEDIUM for an empty list
func MostUrgent(priorities ...Priority) Priority {
	if len(priorities) == 0 {
		return PriorityMedium
	}
	best := priorities[0]
	for _, p := range priorities[1:] {
		if p.MoreUrgent(best) {
			best = p
		}
	}
	return best
}

// ParsePriority maps a loosely formatted priority string to a Priority.
// Anything unrecognised becomes MEDIUM.
func ParsePriority(s string) Priority {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "HIGH", "URGENT":
		return PriorityHigh
	case "LOW":
		return PriorityLow
	default:
		return PriorityMedium
	}
}

// TaskStatus represents the status of a task
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "PENDING"
	TaskStatusCompleted TaskStatus = "COMPLETED"
)

// Comment is an append-only note on a task, added on status transitions
type Comment struct {
	Content   string    `json:"content" yaml:"content"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// Task represents an actionable item extracted from a message
type Task struct {
	ID              string     `json:"id" validate:"required"`
	Description     string     `json:"description" validate:"required"`
	Priority        Priority   `json:"priority" validate:"required,priority"`
	Deadline        *time.Time `json:"deadline,omitempty"`
	Dependencies    []string   `json:"dependencies,omitempty"`
	Status          TaskStatus `json:"status" validate:"required,task_status"`
	ParentTaskID    *string    `json:"parent_task_id,omitempty"`
	IsSubtask       bool       `json:"is_subtask"`
	ChildTaskIDs    []string   `json:"child_task_ids,omitempty"`
	IsParent        bool       `json:"is_parent"`
	SourceMessageID string     `json:"source_message_id"`
	ThreadID        string     `json:"thread_id" validate:"required"`
	Comments        []Comment  `json:"comments,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// IsCompleted reports whether the task reached its terminal status
func (t *Task) IsCompleted() bool {
	return t.Status == TaskStatusCompleted
}

// Touch refreshes UpdatedAt
func (t *Task) Touch(now time.Time) {
	t.UpdatedAt = now
}

// AddComment appends a comment and refreshes UpdatedAt
func (t *Task) AddComment(content string, now time.Time) {
	t.Comments = append(t.Comments, Comment{Content: content, Timestamp: now})
	t.UpdatedAt = now
}

// Clone returns a deep copy of the task
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	if t.Deadline != nil {
		d := *t.Deadline
		c.Deadline = &d
	}
	if t.ParentTaskID != nil {
		p := *t.ParentTaskID
		c.ParentTaskID = &p
	}
	c.Dependencies = append([]string(nil), t.Dependencies...)
	c.ChildTaskIDs = append([]string(nil), t.ChildTaskIDs...)
	c.Comments = append([]Comment(nil), t.Comments...)
	return &c
}

// NormalizeDescription lower-cases, trims and collapses whitespace
func NormalizeDescription(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// GenerateTaskID derives a stable id from the normalized description, thread,
// deadline and priority, so re-extracting the same content reproduces the id.
func GenerateTaskID(description, threadID string, deadline *time.Time, priority Priority) string {
	var deadlinePart string
	if deadline != nil {
		deadlinePart = deadline.UTC().Format(time.RFC3339)
	}
	h := sha256.New()
	for _, part := range []string{NormalizeDescription(description), threadID, deadlinePart, string(priority)} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return "task_" + hex.EncodeToString(h.Sum(nil))[:32]
}

// GenerateParentID derives a parent id from its children, independent of their order
func GenerateParentID(childIDs []string, threadID string) string {
	sorted := append([]string(nil), childIDs...)
	sort.Strings(sorted)
	h := sha256.New()
	h.Write([]byte("parent"))
	h.Write([]byte{0})
	h.Write([]byte(threadID))
	for _, id := range sorted {
		h.Write([]byte{0})
		h.Write([]byte(id))
	}
	return "task_" + hex.EncodeToString(h.Sum(nil))[:32]
}

// NewTask creates a pending task with a deterministic id
func NewTask(description string, priority Priority, deadline *time.Time, dependencies []string, threadID, messageID string, now time.Time) *Task {
	return &Task{
		ID:              GenerateTaskID(description, threadID, deadline, priority),
		Description:     strings.TrimSpace(description),
		Priority:        priority,
		Deadline:        deadline,
		Dependencies:    dependencies,
		Status:          TaskStatusPending,
		SourceMessageID: messageID,
		ThreadID:        threadID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
