package database

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/benvon/smart-tasks/internal/models"
)

// Full repository behaviour needs a postgres instance; these tests cover the row mapping.

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return errors.New("column count mismatch")
	}
	for i, d := range dest {
		switch p := d.(type) {
		case sql.Scanner:
			if err := p.Scan(r.values[i]); err != nil {
				return err
			}
		case *string:
			*p = r.values[i].(string)
		case *models.Priority:
			*p = models.Priority(r.values[i].(string))
		case *models.TaskStatus:
			*p = models.TaskStatus(r.values[i].(string))
		case *bool:
			*p = r.values[i].(bool)
		case *[]byte:
			*p = r.values[i].([]byte)
		case *time.Time:
			*p = r.values[i].(time.Time)
		default:
			return errors.New("unsupported destination")
		}
	}
	return nil
}

func TestScanTask(t *testing.T) {
	t.Parallel()

	created := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	deadline := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)

	row := fakeRow{values: []any{
		"task_1", "thread-1", "msg-1", "Send report", "HIGH", "PENDING",
		deadline,
		[]byte(`{"Review budget"}`),
		"task_parent",
		true,
		[]byte(`{}`),
		false,
		[]byte(`[{"content":"note","timestamp":"2024-01-02T00:00:00Z"}]`),
		created, created,
	}}

	task, err := scanTask(row)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if task.Priority != models.PriorityHigh {
		t.Errorf("Expected HIGH priority, got %s", task.Priority)
	}
	if task.Deadline == nil || !task.Deadline.Equal(deadline) {
		t.Errorf("Expected deadline %v, got %v", deadline, task.Deadline)
	}
	if len(task.Dependencies) != 1 || task.Dependencies[0] != "Review budget" {
		t.Errorf("Unexpected dependencies %v", task.Dependencies)
	}
	if task.ParentTaskID == nil || *task.ParentTaskID != "task_parent" {
		t.Errorf("Expected parent id task_parent, got %v", task.ParentTaskID)
	}
	if len(task.Comments) != 1 || task.Comments[0].Content != "note" {
		t.Errorf("Unexpected comments %v", task.Comments)
	}
}

func TestScanTask_NullColumns(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	row := fakeRow{values: []any{
		"task_1", "thread-1", "", "Book flight", "LOW", "COMPLETED",
		nil, []byte(`{}`), nil, false, []byte(`{}`), false, []byte(`[]`), now, now,
	}}

	task, err := scanTask(row)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if task.Deadline != nil {
		t.Errorf("Expected nil deadline, got %v", task.Deadline)
	}
	if task.ParentTaskID != nil {
		t.Errorf("Expected nil parent, got %v", *task.ParentTaskID)
	}
	if task.Comments != nil {
		t.Errorf("Expected nil comments, got %v", task.Comments)
	}
}

func TestScanTask_PropagatesErrors(t *testing.T) {
	t.Parallel()

	if _, err := scanTask(fakeRow{err: sql.ErrNoRows}); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("Expected sql.ErrNoRows, got %v", err)
	}
}

func TestMarshalComments_NilBecomesEmptyArray(t *testing.T) {
	t.Parallel()

	data, err := marshalComments(nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if string(data) != "[]" {
		t.Errorf("Expected [], got %s", data)
	}
}
