package consolidation

import (
	"context"
	"sort"

	"github.com/benvon/smart-tasks/internal/logger"
	"github.com/benvon/smart-tasks/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// PairComparer scores a pair of tasks
type PairComparer interface {
	Compare(ctx context.Context, a, b *models.Task) (float64, error)
}

// ClusterBuilder partitions a batch of tasks into groups of likely duplicates.
// Tasks are visited in input order; the first unassigned task anchors the next cluster.
type ClusterBuilder struct {
	comparer PairComparer
	cfg      Config
	logger   *zap.Logger
}

// NewClusterBuilder creates a builder
func NewClusterBuilder(comparer PairComparer, cfg Config, log *zap.Logger) *ClusterBuilder {
	return &ClusterBuilder{comparer: comparer, cfg: cfg.withDefaults(), logger: logger.OrNop(log)}
}

// Build partitions tasks. Every input task appears in exactly one cluster.
// Completed tasks are never grouped. When the comparer is unavailable the
// whole batch degrades to singletons.
func (b *ClusterBuilder) Build(ctx context.Context, tasks []*models.Task) [][]*models.Task {
	clusters, err := b.build(ctx, tasks)
	if err != nil {
		b.logger.Warn("clustering_degraded_to_singletons",
			zap.Int("task_count", len(tasks)),
			zap.String("error", logger.SanitizeError(err)),
		)
		return Singletons(tasks)
	}
	return clusters
}

func (b *ClusterBuilder) build(ctx context.Context, tasks []*models.Task) ([][]*models.Task, error) {
	assigned := make([]bool, len(tasks))
	clusters := make([][]*models.Task, 0, len(tasks))

	for i, anchor := range tasks {
		if assigned[i] {
			continue
		}
		assigned[i] = true
		members := []int{i}

		if !anchor.IsCompleted() {
			// frontier holds members whose neighbours have not been scored yet
			frontier := []int{i}
			for len(frontier) > 0 {
				current := frontier[0]
				frontier = frontier[1:]

				candidates := b.candidates(tasks, assigned, i)
				if len(candidates) == 0 {
					break
				}
				scores, err := b.scoreAgainst(ctx, tasks[current], tasks, candidates)
				if err != nil {
					return nil, err
				}
				for k, j := range candidates {
					if scores[k] > b.cfg.ClusterThreshold {
						assigned[j] = true
						members = append(members, j)
						if b.cfg.Strategy == StrategyTransitive {
							frontier = append(frontier, j)
						}
					}
				}
			}
		}

		sort.Ints(members)
		cluster := make([]*models.Task, len(members))
		for k, idx := range members {
			cluster[k] = tasks[idx]
		}
		clusters = append(clusters, cluster)
	}

	return clusters, nil
}

// candidates lists unassigned, non-completed tasks after position anchor
func (b *ClusterBuilder) candidates(tasks []*models.Task, assigned []bool, anchor int) []int {
	var out []int
	for j := anchor + 1; j < len(tasks); j++ {
		if !assigned[j] && !tasks[j].IsCompleted() {
			out = append(out, j)
		}
	}
	return out
}

// scoreAgainst compares subject with each candidate, BatchSize comparisons at a time.
// A batch always runs to completion before its results are examined.
func (b *ClusterBuilder) scoreAgainst(ctx context.Context, subject *models.Task, tasks []*models.Task, candidates []int) ([]float64, error) {
	scores := make([]float64, len(candidates))
	for start := 0; start < len(candidates); start += b.cfg.BatchSize {
		end := min(start+b.cfg.BatchSize, len(candidates))

		var g errgroup.Group
		g.SetLimit(b.cfg.BatchSize)
		for k := start; k < end; k++ {
			g.Go(func() error {
				score, err := b.comparer.Compare(ctx, subject, tasks[candidates[k]])
				if err != nil {
					return err
				}
				scores[k] = score
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}
	return scores, nil
}

// Singletons puts every task in its own cluster
func Singletons(tasks []*models.Task) [][]*models.Task {
	clusters := make([][]*models.Task, len(tasks))
	for i, t := range tasks {
		clusters[i] = []*models.Task{t}
	}
	return clusters
}
