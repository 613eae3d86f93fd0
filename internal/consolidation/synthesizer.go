package consolidation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benvon/smart-tasks/internal/logger"
	"github.com/benvon/smart-tasks/internal/models"
	"go.uber.org/zap"
)

// ErrClusterTooSmall is returned when asked to synthesize a parent for fewer than two tasks
var ErrClusterTooSmall = errors.New("cluster needs at least two tasks")

// Summarizer is the part of the classifier the synthesizer needs
type Summarizer interface {
	Summarize(ctx context.Context, descriptions []string) (string, error)
}

// Synthesizer builds a parent task for a cluster and links the members to it
type Synthesizer struct {
	summarizer Summarizer
	logger     *zap.Logger
	now        func() time.Time
}

// NewSynthesizer creates a synthesizer
func NewSynthesizer(summarizer Summarizer, log *zap.Logger) *Synthesizer {
	return &Synthesizer{summarizer: summarizer, logger: logger.OrNop(log), now: time.Now}
}

// FallbackDescription is the parent description used when no summary is available
func FallbackDescription(n int) string {
	return fmt.Sprintf("Consolidated task covering %d related items", n)
}

// Synthesize creates the parent for cluster and marks every member as its subtask.
// The parent takes the earliest member deadline and the most urgent member priority.
func (s *Synthesizer) Synthesize(ctx context.Context, cluster []*models.Task) (*models.Task, error) {
	if len(cluster) < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrClusterTooSmall, len(cluster))
	}
	threadID := cluster[0].ThreadID
	for _, t := range cluster {
		if t.IsCompleted() {
			return nil, fmt.Errorf("cannot group completed task %s", t.ID)
		}
		if t.IsParent {
			return nil, fmt.Errorf("cannot group parent task %s", t.ID)
		}
		if t.ThreadID != threadID {
			return nil, fmt.Errorf("cluster spans threads %s and %s", threadID, t.ThreadID)
		}
	}

	descriptions := make([]string, len(cluster))
	priorities := make([]models.Priority, len(cluster))
	childIDs := make([]string, len(cluster))
	for i, t := range cluster {
		descriptions[i] = t.Description
		priorities[i] = t.Priority
		childIDs[i] = t.ID
	}

	description := s.summarize(ctx, descriptions)
	deadline := EarliestDeadline(cluster)
	priority := models.MostUrgent(priorities...)
	now := s.now().UTC()

	parent := models.NewTask(description, priority, deadline, nil, threadID, cluster[0].SourceMessageID, now)
	parent.ID = models.GenerateParentID(childIDs, threadID)
	parent.IsParent = true
	parent.ChildTaskIDs = childIDs

	for _, t := range cluster {
		parentID := parent.ID
		t.IsSubtask = true
		t.ParentTaskID = &parentID
		t.Touch(now)
	}

	s.logger.Info("parent_task_synthesized",
		zap.String("parent_id", parent.ID),
		zap.String("thread_id", logger.SanitizeID(threadID)),
		zap.Int("child_count", len(childIDs)),
		zap.String("priority", string(priority)),
	)
	return parent, nil
}

func (s *Synthesizer) summarize(ctx context.Context, descriptions []string) string {
	if s.summarizer == nil {
		return FallbackDescription(len(descriptions))
	}
	summary, err := s.summarizer.Summarize(ctx, descriptions)
	summary = strings.TrimSpace(summary)
	if err != nil || summary == "" {
		s.logger.Warn("parent_summary_fallback",
			zap.Int("child_count", len(descriptions)),
			zap.String("error", logger.SanitizeError(err)),
		)
		return FallbackDescription(len(descriptions))
	}
	return summary
}

// EarliestDeadline returns the earliest deadline among tasks, or nil if none has one
func EarliestDeadline(tasks []*models.Task) *time.Time {
	var earliest *time.Time
	for _, t := range tasks {
		if t.Deadline == nil {
			continue
		}
		if earliest == nil || t.Deadline.Before(*earliest) {
			d := *t.Deadline
			earliest = &d
		}
	}
	return earliest
}

// EarliestDeadlineString is EarliestDeadline over raw deadline strings; unparseable entries are ignored
func EarliestDeadlineString(raw []string) *time.Time {
	var earliest *time.Time
	for _, s := range raw {
		d := models.ParseDeadline(s)
		if d == nil {
			continue
		}
		if earliest == nil || d.Before(*earliest) {
			earliest = d
		}
	}
	return earliest
}
