package workers

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/benvon/smart-tasks/internal/consolidation"
	"github.com/benvon/smart-tasks/internal/models"
	"github.com/benvon/smart-tasks/internal/queue"
	"github.com/benvon/smart-tasks/internal/services/ai"
	"github.com/benvon/smart-tasks/internal/taskstore"
)

// mockEngine is a mock implementation of TaskEngine
type mockEngine struct {
	extractFunc  func(ctx context.Context, msg models.Message) (*consolidation.RunResult, error)
	completeFunc func(ctx context.Context, id, comment string) (*consolidation.CompletionResult, error)
}

func (m *mockEngine) Extract(ctx context.Context, msg models.Message) (*consolidation.RunResult, error) {
	if m.extractFunc != nil {
		return m.extractFunc(ctx, msg)
	}
	return &consolidation.RunResult{ThreadID: msg.ThreadID, MessageID: msg.ID}, nil
}

func (m *mockEngine) CompleteTask(ctx context.Context, id, comment string) (*consolidation.CompletionResult, error) {
	if m.completeFunc != nil {
		return m.completeFunc(ctx, id, comment)
	}
	return &consolidation.CompletionResult{Task: &models.Task{ID: id}}, nil
}

var _ TaskEngine = (*mockEngine)(nil)

// mockMessage is a mock implementation of queue.MessageInterface
type mockMessage struct {
	job     *queue.Job
	acked   bool
	nacked  bool
	requeue bool
}

func (m *mockMessage) Ack() error {
	m.acked = true
	return nil
}

func (m *mockMessage) Nack(requeue bool) error {
	m.nacked = true
	m.requeue = requeue
	return nil
}

func (m *mockMessage) GetJob() *queue.Job {
	return m.job
}

var _ queue.MessageInterface = (*mockMessage)(nil)

// mockJobQueue records re-enqueued jobs
type mockJobQueue struct {
	enqueued   []*queue.Job
	enqueueErr error
}

func (m *mockJobQueue) Enqueue(_ context.Context, job *queue.Job) error {
	if m.enqueueErr != nil {
		return m.enqueueErr
	}
	m.enqueued = append(m.enqueued, job)
	return nil
}

func (m *mockJobQueue) Consume(context.Context, int) (<-chan *queue.Message, <-chan error, error) {
	return nil, nil, errors.New("not implemented")
}

func (m *mockJobQueue) Close() error                        { return nil }
func (m *mockJobQueue) HealthCheck(ctx context.Context) error { return nil }

var _ queue.JobQueue = (*mockJobQueue)(nil)

var fixedNow = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newProcessor(engine TaskEngine, q queue.JobQueue) *JobProcessor {
	p := NewJobProcessor(engine, q, nil)
	p.now = func() time.Time { return fixedNow }
	return p
}

func extractJob() *queue.Job {
	return queue.NewExtractJob(models.Message{ID: "msg-1", ThreadID: "thread-1", Body: "send the report"})
}

func TestJobProcessor_ProcessJob_Success(t *testing.T) {
	t.Parallel()

	var gotMsg models.Message
	var gotID, gotComment string
	engine := &mockEngine{
		extractFunc: func(_ context.Context, msg models.Message) (*consolidation.RunResult, error) {
			gotMsg = msg
			return &consolidation.RunResult{ThreadID: msg.ThreadID}, nil
		},
		completeFunc: func(_ context.Context, id, comment string) (*consolidation.CompletionResult, error) {
			gotID, gotComment = id, comment
			return &consolidation.CompletionResult{Task: &models.Task{ID: id}, Parent: &models.Task{ID: "parent"}}, nil
		},
	}
	p := newProcessor(engine, &mockJobQueue{})

	msg := &mockMessage{job: extractJob()}
	if err := p.ProcessJob(context.Background(), msg); err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !msg.acked || msg.nacked {
		t.Errorf("extract job: acked=%v nacked=%v", msg.acked, msg.nacked)
	}
	if gotMsg.ThreadID != "thread-1" || gotMsg.Body != "send the report" {
		t.Errorf("engine got message %+v", gotMsg)
	}

	msg = &mockMessage{job: queue.NewCompleteJob("task_1", "done")}
	if err := p.ProcessJob(context.Background(), msg); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !msg.acked {
		t.Error("complete job not acked")
	}
	if gotID != "task_1" || gotComment != "done" {
		t.Errorf("engine got id=%q comment=%q", gotID, gotComment)
	}
}

func TestJobProcessor_ProcessJob_InvalidJob(t *testing.T) {
	t.Parallel()

	q := &mockJobQueue{}
	p := newProcessor(&mockEngine{}, q)
	msg := &mockMessage{job: &queue.Job{Type: queue.JobTypeCompleteTask}}

	if err := p.ProcessJob(context.Background(), msg); err == nil {
		t.Fatal("expected error for job without task id")
	}
	if !msg.nacked || msg.requeue {
		t.Errorf("invalid job must go to the DLQ: nacked=%v requeue=%v", msg.nacked, msg.requeue)
	}
	if len(q.enqueued) != 0 {
		t.Error("invalid job must not be re-enqueued")
	}
}

func TestJobProcessor_HandleJobError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		err         error
		retryCount  int
		queueErr    error
		noQueue     bool
		wantErr     bool
		wantDelay   time.Duration
		wantDLQ     bool
		wantRequeue bool
	}{
		{
			name:      "quota error waits an hour",
			err:       fmt.Errorf("%w: %w", consolidation.ErrExtractionUnavailable, ai.ErrQuotaExceeded),
			wantDelay: time.Hour,
		},
		{
			name:       "rate limit backs off",
			err:        fmt.Errorf("%w: %w", consolidation.ErrExtractionUnavailable, ai.ErrRateLimited),
			retryCount: 1,
			wantDelay:  2 * time.Minute,
		},
		{
			name:      "transient failure retries soon",
			err:       errors.New("connection reset"),
			wantDelay: 5 * time.Second,
		},
		{
			name:    "missing task is dead-lettered",
			err:     fmt.Errorf("%w: task_9", taskstore.ErrNotFound),
			wantErr: true,
			wantDLQ: true,
		},
		{
			name:       "retries exhausted",
			err:        errors.New("connection reset"),
			retryCount: queue.DefaultMaxRetries,
			wantErr:    true,
			wantDLQ:    true,
		},
		{
			name:        "re-enqueue failure keeps the delivery",
			err:         errors.New("connection reset"),
			queueErr:    errors.New("channel closed"),
			wantErr:     true,
			wantRequeue: true,
		},
		{
			name:        "no queue requeues in place",
			err:         errors.New("connection reset"),
			noQueue:     true,
			wantErr:     true,
			wantRequeue: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			engine := &mockEngine{extractFunc: func(context.Context, models.Message) (*consolidation.RunResult, error) {
				return nil, tt.err
			}}
			q := &mockJobQueue{enqueueErr: tt.queueErr}
			var p *JobProcessor
			if tt.noQueue {
				p = newProcessor(engine, nil)
			} else {
				p = newProcessor(engine, q)
			}

			job := extractJob()
			job.RetryCount = tt.retryCount
			msg := &mockMessage{job: job}

			err := p.ProcessJob(context.Background(), msg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ProcessJob() error = %v, wantErr %v", err, tt.wantErr)
			}

			switch {
			case tt.wantDLQ:
				if !msg.nacked || msg.requeue {
					t.Errorf("expected DLQ nack, got nacked=%v requeue=%v", msg.nacked, msg.requeue)
				}
				if len(q.enqueued) != 0 {
					t.Error("dead-lettered job must not be re-enqueued")
				}
			case tt.wantRequeue:
				if !msg.nacked || !msg.requeue {
					t.Errorf("expected requeue nack, got nacked=%v requeue=%v", msg.nacked, msg.requeue)
				}
			default:
				if !msg.acked {
					t.Error("original delivery should be acked after re-enqueue")
				}
				if len(q.enqueued) != 1 {
					t.Fatalf("enqueued %d jobs, want 1", len(q.enqueued))
				}
				retried := q.enqueued[0]
				if retried.ID != job.ID {
					t.Error("re-enqueued job should keep its id")
				}
				if retried.RetryCount != tt.retryCount+1 {
					t.Errorf("RetryCount = %d, want %d", retried.RetryCount, tt.retryCount+1)
				}
				if retried.NotBefore == nil || !retried.NotBefore.Equal(fixedNow.Add(tt.wantDelay)) {
					t.Errorf("NotBefore = %v, want %v", retried.NotBefore, fixedNow.Add(tt.wantDelay))
				}
				if retried.Message == nil || retried.Message.ID != "msg-1" {
					t.Error("re-enqueued job lost its message")
				}
			}
		})
	}
}
