package consolidation

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benvon/smart-tasks/internal/database"
	"github.com/benvon/smart-tasks/internal/models"
	"github.com/benvon/smart-tasks/internal/services/ai"
)

// mockClassifier is a func-field classifier; unset funcs fail with ErrClassifierUnavailable
type mockClassifier struct {
	ExtractTasksFunc      func(ctx context.Context, msg models.Message) ([]models.ExtractedTask, error)
	CompareSimilarityFunc func(ctx context.Context, a, b string) (float64, error)
	SummarizeFunc         func(ctx context.Context, descriptions []string) (string, error)

	compareCalls atomic.Int64
}

func (m *mockClassifier) ExtractTasks(ctx context.Context, msg models.Message) ([]models.ExtractedTask, error) {
	if m.ExtractTasksFunc != nil {
		return m.ExtractTasksFunc(ctx, msg)
	}
	return nil, ai.ErrClassifierUnavailable
}

func (m *mockClassifier) CompareSimilarity(ctx context.Context, a, b string) (float64, error) {
	m.compareCalls.Add(1)
	if m.CompareSimilarityFunc != nil {
		return m.CompareSimilarityFunc(ctx, a, b)
	}
	return 0, ai.ErrClassifierUnavailable
}

func (m *mockClassifier) Summarize(ctx context.Context, descriptions []string) (string, error) {
	if m.SummarizeFunc != nil {
		return m.SummarizeFunc(ctx, descriptions)
	}
	return "", ai.ErrClassifierUnavailable
}

var _ ai.Classifier = (*mockClassifier)(nil)

// pairScores answers CompareSimilarity from a symmetric table keyed by description
func pairScores(scores map[[2]string]float64) func(ctx context.Context, a, b string) (float64, error) {
	return func(_ context.Context, a, b string) (float64, error) {
		if s, ok := scores[[2]string{a, b}]; ok {
			return s, nil
		}
		if s, ok := scores[[2]string{b, a}]; ok {
			return s, nil
		}
		return 0, nil
	}
}

// scriptedComparer returns fixed scores by task id pair and records concurrency
type scriptedComparer struct {
	mu        sync.Mutex
	scores    map[string]float64
	err       error
	calls     int
	active    int
	maxActive int
	delay     time.Duration
}

func (s *scriptedComparer) Compare(_ context.Context, a, b *models.Task) (float64, error) {
	s.mu.Lock()
	s.calls++
	s.active++
	if s.active > s.maxActive {
		s.maxActive = s.active
	}
	s.mu.Unlock()

	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.active--
	if s.err != nil {
		return 0, s.err
	}
	return s.scores[PairKey(a.ID, b.ID)], nil
}

var fixedNow = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

func task(id, description string, priority models.Priority) *models.Task {
	return &models.Task{
		ID:              id,
		Description:     description,
		Priority:        priority,
		Status:          models.TaskStatusPending,
		ThreadID:        "thread-1",
		SourceMessageID: "msg-1",
		CreatedAt:       fixedNow,
		UpdatedAt:       fixedNow,
	}
}

func ids(cluster []*models.Task) []string {
	out := make([]string, len(cluster))
	for i, t := range cluster {
		out[i] = t.ID
	}
	return out
}

func clusterIDs(clusters [][]*models.Task) [][]string {
	out := make([][]string, len(clusters))
	for i, c := range clusters {
		out[i] = ids(c)
	}
	return out
}

// failingRepository is a durable store whose reads fail with err and whose writes are counted
type failingRepository struct {
	err     error
	upserts atomic.Int64
}

func (r *failingRepository) Upsert(context.Context, *models.Task) error {
	r.upserts.Add(1)
	return nil
}

func (r *failingRepository) GetByID(context.Context, string) (*models.Task, error) {
	return nil, r.err
}

func (r *failingRepository) GetActiveByThread(context.Context, string) ([]*models.Task, error) {
	return nil, r.err
}

func (r *failingRepository) GetActiveByMessage(context.Context, string) ([]*models.Task, error) {
	return nil, r.err
}

var _ database.TaskRepositoryInterface = (*failingRepository)(nil)
