package consolidation

import "fmt"

// Strategy selects how clusters grow from an anchor task
type Strategy string

const (
	// StrategyAnchor joins only tasks similar to the anchor itself
	StrategyAnchor Strategy = "anchor"
	// StrategyTransitive also joins tasks similar to any member already in the cluster
	StrategyTransitive Strategy = "transitive"
)

// Config holds the tunables of a consolidation pass
type Config struct {
	// BatchSize bounds how many comparisons run concurrently against one anchor
	BatchSize int
	// ClusterThreshold is the score a pair must exceed to share a cluster
	ClusterThreshold float64
	// QuickFilterLow and QuickFilterHigh bound the lexical estimates that still need the classifier
	QuickFilterLow  float64
	QuickFilterHigh float64
	Strategy        Strategy
}

// DefaultConfig returns the standard settings
func DefaultConfig() Config {
	return Config{
		BatchSize:        5,
		ClusterThreshold: 0.8,
		QuickFilterLow:   0.3,
		QuickFilterHigh:  0.9,
		Strategy:         StrategyAnchor,
	}
}

// Validate checks the settings are usable
func (c Config) Validate() error {
	if c.BatchSize < 1 {
		return fmt.Errorf("batch size must be at least 1, got %d", c.BatchSize)
	}
	if c.ClusterThreshold < 0 || c.ClusterThreshold > 1 {
		return fmt.Errorf("cluster threshold must be within [0,1], got %v", c.ClusterThreshold)
	}
	if c.QuickFilterLow < 0 || c.QuickFilterHigh > 1 || c.QuickFilterLow > c.QuickFilterHigh {
		return fmt.Errorf("quick filter bounds must satisfy 0 <= low <= high <= 1, got %v/%v", c.QuickFilterLow, c.QuickFilterHigh)
	}
	switch c.Strategy {
	case StrategyAnchor, StrategyTransitive:
	default:
		return fmt.Errorf("unknown cluster strategy %q", c.Strategy)
	}
	return nil
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BatchSize == 0 {
		c.BatchSize = d.BatchSize
	}
	if c.ClusterThreshold == 0 {
		c.ClusterThreshold = d.ClusterThreshold
	}
	if c.QuickFilterLow == 0 && c.QuickFilterHigh == 0 {
		c.QuickFilterLow, c.QuickFilterHigh = d.QuickFilterLow, d.QuickFilterHigh
	}
	if c.Strategy == "" {
		c.Strategy = d.Strategy
	}
	return c
}
