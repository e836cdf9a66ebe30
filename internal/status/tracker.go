// Package status holds the in-process, TTL bounded markers used to avoid
// running the same indexing or analysis work twice at the same time.
//
// The markers live in process memory only. They protect against duplicate
// runs inside one process; several processes sharing a database need an
// external lease instead.
package status

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// IndexingTracker marks project indexing runs as in progress. Entries expire
// after the configured TTL so a crashed run does not block the project
// forever.
type IndexingTracker struct {
	mu    sync.Mutex
	cache *expirable.LRU[int64, bool]
}

func NewIndexingTracker(capacity int, ttl time.Duration) *IndexingTracker {
	return &IndexingTracker{cache: expirable.NewLRU[int64, bool](capacity, nil, ttl)}
}

func (t *IndexingTracker) Start(key int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cache.Add(key, true)
}

func (t *IndexingTracker) Finish(key int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cache.Remove(key)
}

func (t *IndexingTracker) IsRunning(key int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	running, ok := t.cache.Get(key)
	return ok && running
}

// TryStart marks key as running unless it already is. It reports whether
// the caller now owns the run.
func (t *IndexingTracker) TryStart(key int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if running, ok := t.cache.Get(key); ok && running {
		return false
	}
	t.cache.Add(key, true)
	return true
}
