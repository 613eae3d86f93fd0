package consolidation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/benvon/smart-tasks/internal/logger"
	"github.com/benvon/smart-tasks/internal/models"
	"github.com/benvon/smart-tasks/internal/services/ai"
	"go.uber.org/zap"
)

// ErrComparisonUnavailable is returned when a pair cannot be scored at all and the
// caller must give up on the current pass.
var ErrComparisonUnavailable = errors.New("similarity comparison unavailable")

// scoreTolerance absorbs float noise in classifier answers such as 1.0000000002
const scoreTolerance = 1e-9

// SimilarityScorer is the part of the classifier the comparator needs
type SimilarityScorer interface {
	CompareSimilarity(ctx context.Context, a, b string) (float64, error)
}

// ComparatorStats counts how pairs were resolved
type ComparatorStats struct {
	CacheHits       int64
	ShortCircuits   int64
	ClassifierCalls int64
	Fallbacks       int64
}

// Comparator scores task pairs: cache, then lexical short-circuit, then classifier
type Comparator struct {
	scorer SimilarityScorer
	cache  SimilarityCache
	low    float64
	high   float64
	logger *zap.Logger

	cacheHits       atomic.Int64
	shortCircuits   atomic.Int64
	classifierCalls atomic.Int64
	fallbacks       atomic.Int64
}

// NewComparator creates a comparator. A nil cache gets a fresh MemoryCache.
func NewComparator(scorer SimilarityScorer, cache SimilarityCache, cfg Config, log *zap.Logger) *Comparator {
	cfg = cfg.withDefaults()
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Comparator{
		scorer: scorer,
		cache:  cache,
		low:    cfg.QuickFilterLow,
		high:   cfg.QuickFilterHigh,
		logger: logger.OrNop(log),
	}
}

// Compare returns a similarity score in [0,1] for a and b.
// Every score it returns is cached under the unordered id pair.
// The only error it returns wraps ErrComparisonUnavailable.
func (c *Comparator) Compare(ctx context.Context, a, b *models.Task) (float64, error) {
	if a.ID == b.ID {
		return 1, nil
	}
	if score, ok := c.cache.Get(ctx, a.ID, b.ID); ok {
		c.cacheHits.Add(1)
		return score, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrComparisonUnavailable, err)
	}

	estimate := QuickEstimate(a.Description, b.Description)
	if estimate < c.low {
		c.shortCircuits.Add(1)
		return c.store(ctx, a, b, 0), nil
	}
	if estimate > c.high {
		c.shortCircuits.Add(1)
		return c.store(ctx, a, b, 1), nil
	}

	if c.scorer == nil {
		return 0, fmt.Errorf("%w: no classifier configured", ErrComparisonUnavailable)
	}

	c.classifierCalls.Add(1)
	score, err := c.scorer.CompareSimilarity(ctx, a.Description, b.Description)
	if err != nil {
		if ctx.Err() != nil || ai.IsUnavailable(err) {
			return 0, fmt.Errorf("%w: %w", ErrComparisonUnavailable, err)
		}
		c.fallbacks.Add(1)
		c.logger.Warn("similarity_classifier_failed",
			zap.String("task_a", logger.SanitizeID(a.ID)),
			zap.String("task_b", logger.SanitizeID(b.ID)),
			zap.Float64("fallback_score", estimate),
			zap.String("error", logger.SanitizeError(err)),
		)
		return c.store(ctx, a, b, estimate), nil
	}

	if math.IsNaN(score) || score < -scoreTolerance || score > 1+scoreTolerance {
		c.fallbacks.Add(1)
		c.logger.Warn("similarity_score_out_of_range",
			zap.String("task_a", logger.SanitizeID(a.ID)),
			zap.String("task_b", logger.SanitizeID(b.ID)),
			zap.Float64("score", score),
			zap.Float64("fallback_score", estimate),
		)
		return c.store(ctx, a, b, estimate), nil
	}

	return c.store(ctx, a, b, math.Min(1, math.Max(0, score))), nil
}

func (c *Comparator) store(ctx context.Context, a, b *models.Task, score float64) float64 {
	c.cache.Put(ctx, a.ID, b.ID, score)
	return score
}

// Stats returns a snapshot of the comparator counters
func (c *Comparator) Stats() ComparatorStats {
	return ComparatorStats{
		CacheHits:       c.cacheHits.Load(),
		ShortCircuits:   c.shortCircuits.Load(),
		ClassifierCalls: c.classifierCalls.Load(),
		Fallbacks:       c.fallbacks.Load(),
	}
}
