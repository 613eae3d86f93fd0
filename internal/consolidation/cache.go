package consolidation

import (
	"context"
	"sync"
)

// SimilarityCache memoises pairwise scores keyed by the unordered pair of task ids.
// Get(a, b) and Get(b, a) always address the same entry.
type SimilarityCache interface {
	Get(ctx context.Context, a, b string) (float64, bool)
	Put(ctx context.Context, a, b string, score float64)
	Clear(ctx context.Context) error
}

// PairKey returns the order-independent key for a pair of ids
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "\x00" + b
}

// MemoryCache is a process-local SimilarityCache
type MemoryCache struct {
	mu     sync.RWMutex
	scores map[string]float64
}

// NewMemoryCache creates an empty in-memory cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{scores: make(map[string]float64)}
}

func (c *MemoryCache) Get(_ context.Context, a, b string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	score, ok := c.scores[PairKey(a, b)]
	return score, ok
}

func (c *MemoryCache) Put(_ context.Context, a, b string, score float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scores[PairKey(a, b)] = score
}

func (c *MemoryCache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scores = make(map[string]float64)
	return nil
}

// Len returns the number of cached pairs
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.scores)
}

var _ SimilarityCache = (*MemoryCache)(nil)
