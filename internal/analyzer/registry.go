package analyzer

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/autolog/autoanalysis/internal/apperr"
	"github.com/autolog/autoanalysis/internal/logger"
	"github.com/autolog/autoanalysis/internal/metrics"
)

// Registry tracks the analyzer backends that are currently reachable.
// Descriptors live in memory only and are rebuilt from registrations
// after a restart.
type Registry struct {
	mu          sync.RWMutex
	descriptors map[string]*Descriptor
	nextSeq     uint64
	ttl         time.Duration
	now         func() time.Time
}

// NewRegistry creates a registry. Descriptors not seen for longer than ttl
// are evicted by Sweep; a ttl <= 0 disables expiry.
func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		descriptors: make(map[string]*Descriptor),
		ttl:         ttl,
		now:         time.Now,
	}
}

// Register adds a backend or refreshes an existing one. A refresh keeps the
// original registration order, so repeated heartbeats do not change
// tie-break outcomes.
func (r *Registry) Register(d Descriptor) (Descriptor, error) {
	if d.ID == "" {
		return Descriptor{}, apperr.Validation("analyzer id is required")
	}
	for _, c := range d.Capabilities {
		if _, ok := ParseCapability(string(c)); !ok {
			return Descriptor{}, apperr.Validation("unknown analyzer capability %q", c)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if existing, ok := r.descriptors[d.ID]; ok {
		existing.Priority = d.Priority
		existing.Capabilities = append([]Capability(nil), d.Capabilities...)
		existing.Endpoint = d.Endpoint
		existing.LastSeen = now
		return *existing, nil
	}

	r.nextSeq++
	stored := d
	stored.Capabilities = append([]Capability(nil), d.Capabilities...)
	stored.RegisteredAt = now
	stored.LastSeen = now
	stored.seq = r.nextSeq
	r.descriptors[d.ID] = &stored
	metrics.RegisteredAnalyzers.Set(float64(len(r.descriptors)))

	logger.Info("Analyzer registered", map[string]interface{}{
		"analyzer":     d.ID,
		"priority":     d.Priority,
		"capabilities": d.Capabilities,
	})
	return stored, nil
}

// Heartbeat refreshes LastSeen. It reports false for unknown ids.
func (r *Registry) Heartbeat(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.descriptors[id]
	if ok {
		d.LastSeen = r.now()
	}
	return ok
}

func (r *Registry) Deregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.descriptors[id]; !ok {
		return false
	}
	delete(r.descriptors, id)
	metrics.RegisteredAnalyzers.Set(float64(len(r.descriptors)))
	logger.Info("Analyzer deregistered", map[string]interface{}{"analyzer": id})
	return true
}

func (r *Registry) HasAny() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.descriptors) > 0
}

// Descriptors returns a snapshot in registration order.
func (r *Registry) Descriptors() []Descriptor {
	r.mu.RLock()
	out := make([]Descriptor, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		out = append(out, *d)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Sweep evicts descriptors whose last heartbeat is older than the ttl and
// returns their ids.
func (r *Registry) Sweep() []string {
	if r.ttl <= 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.ttl)
	var evicted []string
	for id, d := range r.descriptors {
		if d.LastSeen.Before(cutoff) {
			delete(r.descriptors, id)
			evicted = append(evicted, id)
		}
	}
	if len(evicted) > 0 {
		sort.Strings(evicted)
		metrics.RegisteredAnalyzers.Set(float64(len(r.descriptors)))
		logger.Warn("Evicted stale analyzers", map[string]interface{}{"analyzers": evicted})
	}
	return evicted
}

// RunSweeper calls Sweep every interval until ctx is done.
func (r *Registry) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 || r.ttl <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Sweep()
		case <-ctx.Done():
			return
		}
	}
}

// preferred reports whether a wins over b. Ties on priority go to the most
// recently registered descriptor.
func preferred(aPriority int, aSeq uint64, bPriority int, bSeq uint64, preferHigher bool) bool {
	if aPriority != bPriority {
		if preferHigher {
			return aPriority > bPriority
		}
		return aPriority < bPriority
	}
	return aSeq > bSeq
}
