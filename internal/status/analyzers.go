package status

import (
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Kind names an analysis that can run against a launch.
type Kind string

const (
	AutoAnalysis    Kind = "auto_analysis"
	PatternAnalysis Kind = "pattern_analysis"
	Clustering      Kind = "clustering"
)

var kinds = []Kind{AutoAnalysis, PatternAnalysis, Clustering}

// AnalyzerCache records which launches are currently being analyzed, per
// analysis kind. Each entry maps a launch id to its project id.
type AnalyzerCache struct {
	mu     sync.Mutex
	caches map[Kind]*expirable.LRU[int64, int64]
}

func NewAnalyzerCache(capacity int, ttl time.Duration) *AnalyzerCache {
	c := &AnalyzerCache{caches: make(map[Kind]*expirable.LRU[int64, int64], len(kinds))}
	for _, k := range kinds {
		c.caches[k] = expirable.NewLRU[int64, int64](capacity, nil, ttl)
	}
	return c
}

// Started marks launchID as running for kind. It returns false when the
// launch is already marked.
func (c *AnalyzerCache) Started(kind Kind, launchID, projectID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	cache := c.caches[kind]
	if cache == nil {
		return false
	}
	if cache.Contains(launchID) {
		return false
	}
	cache.Add(launchID, projectID)
	return true
}

func (c *AnalyzerCache) Finished(kind Kind, launchID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cache := c.caches[kind]; cache != nil {
		cache.Remove(launchID)
	}
}

func (c *AnalyzerCache) Contains(kind Kind, launchID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	cache := c.caches[kind]
	return cache != nil && cache.Contains(launchID)
}

// Running lists the kinds currently marked for launchID.
func (c *AnalyzerCache) Running(launchID int64) []Kind {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []Kind
	for k, cache := range c.caches {
		if cache.Contains(launchID) {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
