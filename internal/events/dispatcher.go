package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/benvon/smart-tasks/internal/logger"
	"github.com/benvon/smart-tasks/internal/models"
	"go.uber.org/zap"
)

// Sink receives task events and completion notices
type Sink interface {
	PublishTaskEvent(ctx context.Context, event models.TaskEvent) error
	PublishCompletionNotice(ctx context.Context, notice models.CompletionNotice) error
}

// Dispatcher fans events out to every sink. A failing sink does not stop the others.
type Dispatcher struct {
	sinks  []Sink
	logger *zap.Logger
}

// NewDispatcher creates a dispatcher over sinks
func NewDispatcher(log *zap.Logger, sinks ...Sink) *Dispatcher {
	return &Dispatcher{sinks: sinks, logger: logger.OrNop(log)}
}

// Dispatch publishes events then notices, in order, to every sink.
// It returns the joined sink errors after attempting every delivery.
func (d *Dispatcher) Dispatch(ctx context.Context, events []models.TaskEvent, notices []models.CompletionNotice) error {
	var errs []error
	for _, sink := range d.sinks {
		for _, ev := range events {
			if err := sink.PublishTaskEvent(ctx, ev); err != nil {
				d.logger.Warn("task_event_publish_failed",
					zap.String("event_type", string(ev.Type)),
					zap.String("task_id", ev.Task.ID),
					zap.Error(err),
				)
				errs = append(errs, fmt.Errorf("publish %s for %s: %w", ev.Type, ev.Task.ID, err))
			}
		}
		for _, n := range notices {
			if err := sink.PublishCompletionNotice(ctx, n); err != nil {
				d.logger.Warn("completion_notice_publish_failed",
					zap.String("task_id", n.TaskID),
					zap.String("thread_id", logger.SanitizeID(n.ThreadID)),
					zap.Error(err),
				)
				errs = append(errs, fmt.Errorf("publish completion notice for %s: %w", n.TaskID, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Recorder is an in-memory sink
type Recorder struct {
	mu      sync.Mutex
	events  []models.TaskEvent
	notices []models.CompletionNotice
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) PublishTaskEvent(_ context.Context, event models.TaskEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *Recorder) PublishCompletionNotice(_ context.Context, notice models.CompletionNotice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, notice)
	return nil
}

// Events returns a copy of the recorded events
func (r *Recorder) Events() []models.TaskEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.TaskEvent(nil), r.events...)
}

// Notices returns a copy of the recorded completion notices
func (r *Recorder) Notices() []models.CompletionNotice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.CompletionNotice(nil), r.notices...)
}

// LogSink writes every event to the logger
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a sink that logs
func NewLogSink(log *zap.Logger) *LogSink {
	return &LogSink{logger: logger.OrNop(log)}
}

func (s *LogSink) PublishTaskEvent(_ context.Context, event models.TaskEvent) error {
	s.logger.Info("task_event",
		zap.String("event_type", string(event.Type)),
		zap.String("task_id", event.Task.ID),
		zap.String("thread_id", logger.SanitizeID(event.Task.ThreadID)),
		zap.String("status", string(event.Task.Status)),
		zap.String("old_status", string(event.OldStatus)),
		zap.String("priority", string(event.Task.Priority)),
		zap.String("description", logger.SanitizeDescription(event.Task.Description)),
	)
	return nil
}

func (s *LogSink) PublishCompletionNotice(_ context.Context, notice models.CompletionNotice) error {
	s.logger.Info("task_completion_notice",
		zap.String("task_id", notice.TaskID),
		zap.String("thread_id", logger.SanitizeID(notice.ThreadID)),
		zap.String("source_message_id", logger.SanitizeID(notice.SourceMessageID)),
		zap.String("description", logger.SanitizeDescription(notice.Description)),
	)
	return nil
}

var (
	_ Sink = (*Recorder)(nil)
	_ Sink = (*LogSink)(nil)
)
