package consolidation

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/benvon/smart-tasks/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClusterBuilder_AnchorFirst(t *testing.T) {
	t.Parallel()

	tasks := []*models.Task{
		task("t1", "one", models.PriorityLow),
		task("t2", "two", models.PriorityLow),
		task("t3", "three", models.PriorityLow),
		task("t4", "four", models.PriorityLow),
	}
	comparer := &scriptedComparer{scores: map[string]float64{
		PairKey("t1", "t3"): 0.95,
		// t2~t3 would also match, but t3 is already taken by the earlier anchor
		PairKey("t2", "t3"): 0.99,
		PairKey("t2", "t4"): 0.81,
		// exactly the threshold does not join
		PairKey("t1", "t4"): 0.8,
	}}
	b := NewClusterBuilder(comparer, DefaultConfig(), nil)

	clusters := b.Build(context.Background(), tasks)
	assert.Equal(t, [][]string{{"t1", "t3"}, {"t2", "t4"}}, clusterIDs(clusters))
}

func TestClusterBuilder_Deterministic(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tasks := []*models.Task{
		task("t1", "Send report", models.PriorityHigh),
		task("t2", "send the report", models.PriorityMedium),
		task("t3", "Review budget", models.PriorityLow),
		task("t4", "review the budget", models.PriorityLow),
		task("t5", "Book flight", models.PriorityLow),
	}
	m := &mockClassifier{CompareSimilarityFunc: pairScores(map[[2]string]float64{
		{"Send report", "send the report"}:     0.92,
		{"Review budget", "review the budget"}: 0.9,
	})}
	cache := NewMemoryCache()
	b := NewClusterBuilder(NewComparator(m, cache, DefaultConfig(), nil), DefaultConfig(), nil)

	first := clusterIDs(b.Build(ctx, tasks))
	require.NoError(t, cache.Clear(ctx))
	second := clusterIDs(b.Build(ctx, tasks))

	assert.Equal(t, first, second)
	assert.Equal(t, [][]string{{"t1", "t2"}, {"t3", "t4"}, {"t5"}}, first)
}

func TestClusterBuilder_CompletedTasksStaySingletons(t *testing.T) {
	t.Parallel()

	done := task("t2", "two", models.PriorityLow)
	done.Status = models.TaskStatusCompleted
	tasks := []*models.Task{task("t1", "one", models.PriorityLow), done, task("t3", "three", models.PriorityLow)}
	comparer := &scriptedComparer{scores: map[string]float64{
		PairKey("t1", "t2"): 1,
		PairKey("t1", "t3"): 1,
	}}

	clusters := NewClusterBuilder(comparer, DefaultConfig(), nil).Build(context.Background(), tasks)
	assert.Equal(t, [][]string{{"t1", "t3"}, {"t2"}}, clusterIDs(clusters))
}

func TestClusterBuilder_Transitive(t *testing.T) {
	t.Parallel()

	tasks := []*models.Task{
		task("t1", "one", models.PriorityLow),
		task("t2", "two", models.PriorityLow),
		task("t3", "three", models.PriorityLow),
	}
	scores := map[string]float64{
		PairKey("t1", "t2"): 0.9,
		PairKey("t2", "t3"): 0.9,
	}

	anchor := NewClusterBuilder(&scriptedComparer{scores: scores}, DefaultConfig(), nil).Build(context.Background(), tasks)
	assert.Equal(t, [][]string{{"t1", "t2"}, {"t3"}}, clusterIDs(anchor))

	cfg := DefaultConfig()
	cfg.Strategy = StrategyTransitive
	transitive := NewClusterBuilder(&scriptedComparer{scores: scores}, cfg, nil).Build(context.Background(), tasks)
	assert.Equal(t, [][]string{{"t1", "t2", "t3"}}, clusterIDs(transitive))
}

func TestClusterBuilder_BoundsConcurrencyByBatchSize(t *testing.T) {
	t.Parallel()

	tasks := make([]*models.Task, 12)
	for i := range tasks {
		tasks[i] = task(fmt.Sprintf("t%02d", i), fmt.Sprintf("task %d", i), models.PriorityLow)
	}
	comparer := &scriptedComparer{scores: map[string]float64{}, delay: 2 * time.Millisecond}

	clusters := NewClusterBuilder(comparer, DefaultConfig(), nil).Build(context.Background(), tasks)

	assert.Len(t, clusters, 12)
	assert.LessOrEqual(t, comparer.maxActive, 5)
	// every unordered pair compared exactly once
	assert.Equal(t, 12*11/2, comparer.calls)
}

func TestClusterBuilder_UnavailableClassifierYieldsSingletons(t *testing.T) {
	t.Parallel()

	tasks := []*models.Task{
		task("t1", "Send report to Alice", models.PriorityHigh),
		task("t2", "Send report to Bob", models.PriorityMedium),
		task("t3", "Book flight", models.PriorityLow),
		task("t4", "Book hotel", models.PriorityLow),
	}
	m := &mockClassifier{}
	b := NewClusterBuilder(NewComparator(m, nil, DefaultConfig(), nil), DefaultConfig(), nil)

	clusters := b.Build(context.Background(), tasks)

	require.Len(t, clusters, 4)
	for i, c := range clusters {
		require.Len(t, c, 1)
		assert.Same(t, tasks[i], c[0])
	}
	assert.Positive(t, m.compareCalls.Load(), "the classifier was consulted before giving up")
}

func TestClusterBuilder_CallTimeoutKeepsClustering(t *testing.T) {
	t.Parallel()

	tasks := []*models.Task{
		task("t1", "Send the report to Alice", models.PriorityLow),
		task("t2", "Send the report to Bob", models.PriorityLow),
		task("t3", "Send the report to Alice today", models.PriorityLow),
	}
	m := &mockClassifier{CompareSimilarityFunc: func(_ context.Context, a, b string) (float64, error) {
		switch {
		case a == "Send the report to Alice" && b == "Send the report to Bob":
			return 0, fmt.Errorf("failed to compare_similarity: %w", context.DeadlineExceeded)
		case a == "Send the report to Alice" && b == "Send the report to Alice today":
			return 0.95, nil
		}
		return 0, nil
	}}
	c := NewComparator(m, NewMemoryCache(), DefaultConfig(), nil)

	clusters := NewClusterBuilder(c, DefaultConfig(), nil).Build(context.Background(), tasks)

	assert.Equal(t, [][]string{{"t1", "t3"}, {"t2"}}, clusterIDs(clusters))
	assert.Equal(t, int64(1), c.Stats().Fallbacks)
}

func TestClusterBuilder_Empty(t *testing.T) {
	t.Parallel()
	clusters := NewClusterBuilder(&scriptedComparer{}, DefaultConfig(), nil).Build(context.Background(), nil)
	assert.Empty(t, clusters)
}
