package models

import (
	"strings"
	"time"
)

// Message is the unit the classifier extracts tasks from
type Message struct {
	ID         string    `json:"id" yaml:"id"`
	ThreadID   string    `json:"thread_id" yaml:"thread_id"`
	Subject    string    `json:"subject,omitempty" yaml:"subject,omitempty"`
	Body       string    `json:"body" yaml:"body"`
	ReceivedAt time.Time `json:"received_at" yaml:"received_at"`
}

// ExtractedTask is a raw candidate task as returned by the classifier.
// Deadline is kept as the raw string; it may be missing or unparseable.
type ExtractedTask struct {
	Description  string   `json:"description" yaml:"description"`
	Deadline     string   `json:"deadline,omitempty" yaml:"deadline,omitempty"`
	Priority     string   `json:"priority" yaml:"priority"`
	Dependencies []string `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
}

var deadlineLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseDeadline parses a deadline string. Empty or invalid input yields nil.
func ParseDeadline(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") {
		return nil
	}
	for _, layout := range deadlineLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// ToTask converts the candidate into a pending task for the given message
func (e ExtractedTask) ToTask(msg Message, now time.Time) *Task {
	deps := make([]string, 0, len(e.Dependencies))
	for _, d := range e.Dependencies {
		if d = strings.TrimSpace(d); d != "" {
			deps = append(deps, d)
		}
	}
	return NewTask(e.Description, ParsePriority(e.Priority), ParseDeadline(e.Deadline), deps, msg.ThreadID, msg.ID, now)
}
