package models

import (
	"strings"
	"testing"
	"time"
)

func TestPriority_Rank(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		priority Priority
		want     int
	}{
		{name: "high is most urgent", priority: PriorityHigh, want: 0},
		{name: "medium", priority: PriorityMedium, want: 1},
		{name: "low is least urgent", priority: PriorityLow, want: 2},
		{name: "unknown ranks as medium", priority: Priority("whenever"), want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.priority.Rank(); got != tt.want {
				t.Errorf("Rank() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMostUrgent(t *testing.T) {
	t.Parallel()

	if got := MostUrgent(PriorityMedium, PriorityLow, PriorityHigh); got != PriorityHigh {
		t.Errorf("MostUrgent(MEDIUM, LOW, HIGH) = %s, want HIGH", got)
	}
	if got := MostUrgent(PriorityLow, PriorityLow); got != PriorityLow {
		t.Errorf("MostUrgent(LOW, LOW) = %s, want LOW", got)
	}
	if got := MostUrgent(); got != PriorityMedium {
		t.Errorf("MostUrgent() = %s, want MEDIUM", got)
	}
}

func TestParsePriority(t *testing.T) {
	t.Parallel()

	tests := map[string]Priority{
		"HIGH":    PriorityHigh,
		" high ":  PriorityHigh,
		"urgent":  PriorityHigh,
		"Medium":  PriorityMedium,
		"low":     PriorityLow,
		"":        PriorityMedium,
		"someday": PriorityMedium,
	}
	for in, want := range tests {
		if got := ParsePriority(in); got != want {
			t.Errorf("ParsePriority(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestNormalizeDescription(t *testing.T) {
	t.Parallel()

	got := NormalizeDescription("  Send   the\tREPORT \n")
	if got != "send the report" {
		t.Errorf("NormalizeDescription() = %q, want %q", got, "send the report")
	}
}

func TestGenerateTaskID(t *testing.T) {
	t.Parallel()

	deadline := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)

	a := GenerateTaskID("Send report", "thread-1", &deadline, PriorityHigh)
	b := GenerateTaskID("  send   REPORT ", "thread-1", &deadline, PriorityHigh)
	if a != b {
		t.Errorf("expected ids of normalized-equal descriptions to match: %s != %s", a, b)
	}
	if !strings.HasPrefix(a, "task_") {
		t.Errorf("expected id to be prefixed with task_, got %s", a)
	}

	variants := []string{
		GenerateTaskID("Send report", "thread-2", &deadline, PriorityHigh),
		GenerateTaskID("Send report", "thread-1", nil, PriorityHigh),
		GenerateTaskID("Send report", "thread-1", &deadline, PriorityLow),
	}
	for i, v := range variants {
		if v == a {
			t.Errorf("variant %d: expected a different id when an input component changes", i)
		}
	}
}

func TestTask_Clone(t *testing.T) {
	t.Parallel()

	deadline := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	parent := "task_parent"
	orig := &Task{
		ID:           "task_1",
		Deadline:     &deadline,
		ParentTaskID: &parent,
		Dependencies: []string{"Send report"},
		ChildTaskIDs: []string{"a"},
		Comments:     []Comment{{Content: "done"}},
	}

	c := orig.Clone()
	c.Dependencies[0] = "changed"
	*c.Deadline = deadline.Add(time.Hour)
	*c.ParentTaskID = "other"
	c.Comments[0].Content = "changed"

	if orig.Dependencies[0] != "Send report" {
		t.Error("clone shares dependencies with original")
	}
	if !orig.Deadline.Equal(deadline) {
		t.Error("clone shares deadline with original")
	}
	if *orig.ParentTaskID != "task_parent" {
		t.Error("clone shares parent id with original")
	}
	if orig.Comments[0].Content != "done" {
		t.Error("clone shares comments with original")
	}
}

func TestParseDeadline(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "date only", input: "2024-01-05", want: "2024-01-05T00:00:00Z"},
		{name: "rfc3339", input: "2024-01-05T15:04:05+02:00", want: "2024-01-05T13:04:05Z"},
		{name: "empty", input: "", want: ""},
		{name: "null literal", input: "null", want: ""},
		{name: "garbage", input: "next tuesday-ish", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ParseDeadline(tt.input)
			if tt.want == "" {
				if got != nil {
					t.Errorf("ParseDeadline(%q) = %v, want nil", tt.input, got)
				}
				return
			}
			if got == nil {
				t.Fatalf("ParseDeadline(%q) = nil, want %s", tt.input, tt.want)
			}
			if got.Format(time.RFC3339) != tt.want {
				t.Errorf("ParseDeadline(%q) = %s, want %s", tt.input, got.Format(time.RFC3339), tt.want)
			}
		})
	}
}

func TestExtractedTask_ToTask(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	msg := Message{ID: "msg-1", ThreadID: "thread-1"}
	et := ExtractedTask{
		Description:  "  Review budget ",
		Priority:     "low",
		Deadline:     "not a date",
		Dependencies: []string{"Send report", "  "},
	}

	task := et.ToTask(msg, now)

	if task.Description != "Review budget" {
		t.Errorf("Description = %q", task.Description)
	}
	if task.Priority != PriorityLow {
		t.Errorf("Priority = %s, want LOW", task.Priority)
	}
	if task.Deadline != nil {
		t.Errorf("expected invalid deadline to be dropped, got %v", task.Deadline)
	}
	if len(task.Dependencies) != 1 || task.Dependencies[0] != "Send report" {
		t.Errorf("Dependencies = %v", task.Dependencies)
	}
	if task.Status != TaskStatusPending {
		t.Errorf("Status = %s, want PENDING", task.Status)
	}
	if task.ThreadID != "thread-1" || task.SourceMessageID != "msg-1" {
		t.Errorf("provenance not copied: %+v", task)
	}
	if task.ID != GenerateTaskID("Review budget", "thread-1", nil, PriorityLow) {
		t.Errorf("unexpected id %s", task.ID)
	}
}

func TestGenerateParentID(t *testing.T) {
	t.Parallel()

	a := GenerateParentID([]string{"task_1", "task_2"}, "thread-1")
	b := GenerateParentID([]string{"task_2", "task_1"}, "thread-1")
	if a != b {
		t.Errorf("Expected parent id to ignore child order, got %s and %s", a, b)
	}
	if c := GenerateParentID([]string{"task_1", "task_2"}, "thread-2"); c == a {
		t.Error("Expected different threads to yield different parent ids")
	}
	if !strings.HasPrefix(a, "task_") {
		t.Errorf("Expected task_ prefix, got %s", a)
	}
}
