package analyzer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/autolog/autoanalysis/internal/apperr"
	"github.com/autolog/autoanalysis/internal/logger"
	"github.com/autolog/autoanalysis/internal/metrics"
)

// Client dispatches analyzer requests to the registered backends and merges
// their answers into a single result.
type Client struct {
	registry     *Registry
	transport    Transport
	callTimeout  time.Duration
	preferHigher bool
}

type Option func(*Client)

// WithCallTimeout bounds every backend call. Expiry is reported as
// apperr.ErrIntegrationUnavailable.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Client) { c.callTimeout = d }
}

// WithPreferHigherPriority makes larger priority values win.
func WithPreferHigherPriority(v bool) Option {
	return func(c *Client) { c.preferHigher = v }
}

func NewClient(registry *Registry, transport Transport, opts ...Option) *Client {
	c := &Client{registry: registry, transport: transport}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HasClients reports whether at least one backend is registered. The answer
// can be stale by the time another method runs, so callers still handle
// apperr.ErrIntegrationUnavailable.
func (c *Client) HasClients() bool {
	return c.registry.HasAny()
}

// candidates returns the backends supporting capability, most preferred
// first.
func (c *Client) candidates(capability Capability) ([]Descriptor, error) {
	all := c.registry.Descriptors()
	if len(all) == 0 {
		return nil, apperr.Unavailable("there are no analyzer services deployed")
	}
	out := make([]Descriptor, 0, len(all))
	for _, d := range all {
		if d.Supports(capability) {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return preferred(out[i].Priority, out[i].seq, out[j].Priority, out[j].seq, c.preferHigher)
	})
	return out, nil
}

func (c *Client) call(ctx context.Context, d Descriptor, route string, req, resp interface{}) error {
	if c.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.callTimeout)
		defer cancel()
	}

	start := time.Now()
	err := c.transport.Call(ctx, d, route, req, resp)
	metrics.AnalyzerCallDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metrics.AnalyzerCalls.WithLabelValues(route, "ok").Inc()
		return nil
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		metrics.AnalyzerCalls.WithLabelValues(route, "timeout").Inc()
		logger.WithAnalyzer(d.ID, route).Warn("Analyzer call timed out")
		return fmt.Errorf("analyzer %s %s: %w", d.ID, route,
			apperr.Unavailable("no answer within %s", c.callTimeout))
	default:
		metrics.AnalyzerCalls.WithLabelValues(route, "error").Inc()
		logger.WithAnalyzer(d.ID, route).WithField("error", err.Error()).Error("Analyzer call failed")
		return fmt.Errorf("analyzer %s %s: %w", d.ID, route, err)
	}
}

// fanOut runs fn for every backend concurrently and returns the first error.
func (c *Client) fanOut(ctx context.Context, backends []Descriptor, fn func(ctx context.Context, i int, d Descriptor) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for i, d := range backends {
		i, d := i, d
		g.Go(func() error { return fn(gctx, i, d) })
	}
	return g.Wait()
}

// Analyze sends the launch snapshot to every analysis capable backend and
// merges the per-item proposals. Items nobody proposed an issue for are
// absent from the result.
func (c *Client) Analyze(ctx context.Context, rq IndexLaunch) (map[int64]Proposal, error) {
	backends, err := c.candidates(CapabilityAnalyze)
	if err != nil {
		return nil, err
	}
	if len(backends) == 0 {
		return nil, apperr.Unavailable("there are no analyzer services with analysis support deployed")
	}

	requested := make(map[int64]struct{}, len(rq.TestItems))
	for _, it := range rq.TestItems {
		requested[it.TestItemID] = struct{}{}
	}

	var mu sync.Mutex
	proposals := make(map[int64][]Proposal)

	err = c.fanOut(ctx, backends, func(ctx context.Context, _ int, d Descriptor) error {
		var analyzed []AnalyzedItem
		if err := c.call(ctx, d, RouteAnalyze, []IndexLaunch{rq}, &analyzed); err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		for _, item := range analyzed {
			if _, ok := requested[item.ItemID]; !ok {
				continue
			}
			proposals[item.ItemID] = append(proposals[item.ItemID], Proposal{
				AnalyzerID: d.ID,
				Priority:   d.Priority,
				Item:       item,
				seq:        d.seq,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return Merge(proposals, c.preferHigher), nil
}

// Merge picks one proposal per item: the most preferred priority wins and
// ties go to the most recently registered backend.
func Merge(proposals map[int64][]Proposal, preferHigher bool) map[int64]Proposal {
	merged := make(map[int64]Proposal, len(proposals))
	for itemID, list := range proposals {
		for _, p := range list {
			best, ok := merged[itemID]
			if !ok || preferred(p.Priority, p.seq, best.Priority, best.seq, preferHigher) {
				merged[itemID] = p
			}
		}
	}
	return merged
}

// SearchLogs asks every search capable backend for similar logs and returns
// the union, de-duplicated by (log, item). Results of preferred backends
// come first.
func (c *Client) SearchLogs(ctx context.Context, rq SearchRq) ([]SearchResult, error) {
	backends, err := c.candidates(CapabilitySearch)
	if err != nil {
		return nil, err
	}
	if len(backends) == 0 {
		return nil, apperr.Unavailable("there are no analyzer services with search logs support deployed")
	}

	answers := make([][]SearchResult, len(backends))
	err = c.fanOut(ctx, backends, func(ctx context.Context, i int, d Descriptor) error {
		return c.call(ctx, d, RouteSearch, rq, &answers[i])
	})
	if err != nil {
		return nil, err
	}

	seen := make(map[SearchResult]struct{})
	var out []SearchResult
	for _, answer := range answers {
		for _, r := range answer {
			if _, dup := seen[r]; dup {
				continue
			}
			seen[r] = struct{}{}
			out = append(out, r)
		}
	}
	return out, nil
}

const noSuggestBackend = "there are no analyzer services with suggest items support deployed"

// preferredFor returns the most preferred backend supporting capability.
func (c *Client) preferredFor(capability Capability, missing string) (Descriptor, error) {
	backends, err := c.candidates(capability)
	if err != nil {
		return Descriptor{}, err
	}
	if len(backends) == 0 {
		return Descriptor{}, apperr.Unavailable("%s", missing)
	}
	return backends[0], nil
}

// SuggestItems asks the most preferred suggest capable backend for items
// whose defects could apply to the requested item.
func (c *Client) SuggestItems(ctx context.Context, rq SuggestRq) ([]SuggestInfo, error) {
	d, err := c.preferredFor(CapabilitySuggest, noSuggestBackend)
	if err != nil {
		return nil, err
	}
	var out []SuggestInfo
	if err := c.call(ctx, d, RouteSuggest, rq, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// HandleSuggestChoice reports the suggestions a user picked to the backend
// that produces suggestions.
func (c *Client) HandleSuggestChoice(ctx context.Context, infos []SuggestInfo) error {
	d, err := c.preferredFor(CapabilitySuggest, noSuggestBackend)
	if err != nil {
		return err
	}
	return c.call(ctx, d, RouteSuggestInfo, infos, nil)
}

// RemoveSuggest drops the suggest index of a project. It is a no-op when no
// backend supports suggestions.
func (c *Client) RemoveSuggest(ctx context.Context, projectID int64) error {
	d, err := c.preferredFor(CapabilitySuggest, noSuggestBackend)
	if errors.Is(err, apperr.ErrIntegrationUnavailable) {
		return nil
	}
	if err != nil {
		return err
	}
	return c.call(ctx, d, RouteRemoveSuggest, projectID, nil)
}

// GenerateClusters sends the request to the single most preferred backend
// that supports clustering. The boolean is false when no such backend is
// registered.
func (c *Client) GenerateClusters(ctx context.Context, rq GenerateClustersRq) (*ClusterData, bool, error) {
	backends, err := c.candidates(CapabilityCluster)
	if err != nil {
		return nil, false, err
	}
	if len(backends) == 0 {
		return nil, false, nil
	}

	var data ClusterData
	if err := c.call(ctx, backends[0], RouteCluster, rq, &data); err != nil {
		return nil, true, err
	}
	return &data, true, nil
}

// Index pushes snapshots to every index capable backend and returns the sum
// of the reported counts.
func (c *Client) Index(ctx context.Context, rq []IndexLaunch) (int64, error) {
	if len(rq) == 0 {
		return 0, nil
	}
	backends, err := c.candidates(CapabilityIndex)
	if err != nil {
		return 0, err
	}

	took := make([]int64, len(backends))
	err = c.fanOut(ctx, backends, func(ctx context.Context, i int, d Descriptor) error {
		var res IndexResult
		if err := c.call(ctx, d, RouteIndex, rq, &res); err != nil {
			return err
		}
		took[i] = res.Took
		return nil
	})
	if err != nil {
		return 0, err
	}

	var total int64
	for _, n := range took {
		total += n
	}
	metrics.IndexedLogs.Add(float64(total))
	return total, nil
}

// IndexDefectsUpdate sends new issue locators to every index capable
// backend and returns the ids the backends did not have indexed.
func (c *Client) IndexDefectsUpdate(ctx context.Context, projectID int64, updates map[int64]string) ([]int64, error) {
	if len(updates) == 0 {
		return nil, nil
	}
	backends, err := c.candidates(CapabilityIndex)
	if err != nil {
		return nil, err
	}

	missed := make([][]int64, len(backends))
	err = c.fanOut(ctx, backends, func(ctx context.Context, i int, d Descriptor) error {
		return c.call(ctx, d, RouteDefectUpdate, IndexDefectsUpdateRq{ProjectID: projectID, ItemsToUpdate: updates}, &missed[i])
	})
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]struct{})
	var out []int64
	for _, ids := range missed {
		for _, id := range ids {
			if _, dup := seen[id]; !dup {
				seen[id] = struct{}{}
				out = append(out, id)
			}
		}
	}
	return out, nil
}

// RemoveItems removes items from every index and returns the total number
// of removed entries.
func (c *Client) RemoveItems(ctx context.Context, projectID int64, itemIDs []int64) (int, error) {
	if len(itemIDs) == 0 {
		return 0, nil
	}
	backends, err := c.candidates(CapabilityIndex)
	if err != nil {
		return 0, err
	}

	removed := make([]int, len(backends))
	err = c.fanOut(ctx, backends, func(ctx context.Context, i int, d Descriptor) error {
		return c.call(ctx, d, RouteItemRemove, RemoveItemsRq{ProjectID: projectID, ItemIDs: itemIDs}, &removed[i])
	})
	if err != nil {
		return 0, err
	}

	total := 0
	for _, n := range removed {
		total += n
	}
	return total, nil
}

// RemoveLaunches removes launches from every index without waiting for a
// result body.
func (c *Client) RemoveLaunches(ctx context.Context, projectID int64, launchIDs []int64) error {
	if len(launchIDs) == 0 {
		return nil
	}
	backends, err := c.candidates(CapabilityIndex)
	if err != nil {
		return err
	}
	return c.fanOut(ctx, backends, func(ctx context.Context, _ int, d Descriptor) error {
		return c.call(ctx, d, RouteLaunchRemove, RemoveLaunchesRq{ProjectID: projectID, LaunchIDs: launchIDs}, nil)
	})
}

// CleanIndex asks every backend to drop the given logs and returns the count
// reported by the most preferred one.
func (c *Client) CleanIndex(ctx context.Context, projectID int64, logIDs []int64) (int64, error) {
	if len(logIDs) == 0 {
		return 0, nil
	}
	backends, err := c.candidates(CapabilityIndex)
	if err != nil {
		return 0, err
	}
	if len(backends) == 0 {
		return 0, nil
	}

	cleaned := make([]int64, len(backends))
	err = c.fanOut(ctx, backends, func(ctx context.Context, i int, d Descriptor) error {
		return c.call(ctx, d, RouteClean, CleanIndexRq{ProjectID: projectID, LogIDs: logIDs}, &cleaned[i])
	})
	if err != nil {
		return 0, err
	}
	return cleaned[0], nil
}

// DeleteIndex drops the whole project index on every backend.
func (c *Client) DeleteIndex(ctx context.Context, projectID int64) error {
	backends, err := c.candidates(CapabilityIndex)
	if err != nil {
		return err
	}
	return c.fanOut(ctx, backends, func(ctx context.Context, _ int, d Descriptor) error {
		var code int
		if err := c.call(ctx, d, RouteDelete, projectID, &code); err != nil {
			return err
		}
		if code == deleteIndexSuccess {
			logger.WithAnalyzer(d.ID, RouteDelete).WithField("project_id", projectID).Info("Successfully deleted index")
		} else {
			logger.WithAnalyzer(d.ID, RouteDelete).WithField("project_id", projectID).Error("Error deleting index")
		}
		return nil
	})
}
