package indexer_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autolog/autoanalysis/internal/analyzer"
	"github.com/autolog/autoanalysis/internal/apperr"
	"github.com/autolog/autoanalysis/internal/events"
	"github.com/autolog/autoanalysis/internal/indexer"
	"github.com/autolog/autoanalysis/internal/models"
	"github.com/autolog/autoanalysis/internal/status"
	"github.com/autolog/autoanalysis/internal/store/memstore"
)

const projectID = 1

// countingClient answers Index with the number of items plus logs it
// received.
type countingClient struct {
	mu      sync.Mutex
	batches [][]analyzer.IndexLaunch
	failOn  int
	removed []int64
	missed  []int64
	updates []map[int64]string
	dropped []int64
}

func (c *countingClient) Index(_ context.Context, launches []analyzer.IndexLaunch) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, launches)
	if c.failOn > 0 && len(c.batches) == c.failOn {
		return 0, errors.New("index unavailable")
	}
	var n int64
	for _, l := range launches {
		n += int64(len(l.TestItems) + l.LogCount())
	}
	return n, nil
}

func (c *countingClient) RemoveItems(_ context.Context, _ int64, itemIDs []int64) (int, error) {
	c.removed = append(c.removed, itemIDs...)
	return len(itemIDs), nil
}

func (c *countingClient) RemoveLaunches(context.Context, int64, []int64) error { return nil }

func (c *countingClient) CleanIndex(_ context.Context, _ int64, logIDs []int64) (int64, error) {
	return int64(len(logIDs)), nil
}

func (c *countingClient) DeleteIndex(context.Context, int64) error { return nil }

func (c *countingClient) IndexDefectsUpdate(_ context.Context, _ int64, updates map[int64]string) ([]int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updates = append(c.updates, updates)
	return c.missed, nil
}

func (c *countingClient) RemoveSuggest(_ context.Context, projectID int64) error {
	c.dropped = append(c.dropped, projectID)
	return nil
}

func (c *countingClient) launchIDs() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ids []int64
	for _, b := range c.batches {
		for _, l := range b {
			ids = append(ids, l.LaunchID)
		}
	}
	return ids
}

// seedLaunch adds a launch with items failed items, each carrying logs
// error logs.
func seedLaunch(st *memstore.MemStore, mode models.LaunchMode, launchStatus models.Status, items, logs int) models.Launch {
	l := st.AddLaunch(models.Launch{ProjectID: projectID, Name: "regression", Mode: mode, Status: launchStatus})
	for i := 0; i < items; i++ {
		it := st.AddItem(models.TestItem{
			LaunchID: l.ID,
			Name:     "test",
			HasStats: true,
			Status:   models.StatusFailed,
			Issue:    &models.Issue{IssueTypeLocator: models.ToInvestigateLocator},
		})
		for j := 0; j < logs; j++ {
			st.AddLog(models.Log{ItemID: &it.ID, LaunchID: l.ID, Level: models.LogLevelError, Message: "java.lang.NullPointerException"})
		}
	}
	return l
}

func newBatchIndexer(t *testing.T, st *memstore.MemStore, client indexer.IndexClient, batchSize int) *indexer.BatchIndexer {
	t.Helper()
	b, err := indexer.NewBatchIndexer(st, st, indexer.NewPreparer(st, st, st), client, batchSize)
	require.NoError(t, err)
	return b
}

func TestNewBatchIndexerRejectsBatchSize(t *testing.T) {
	t.Parallel()

	st := memstore.New()
	_, err := indexer.NewBatchIndexer(st, st, indexer.NewPreparer(st, st, st), &countingClient{}, 0)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestIndexProjectSkipsPassedAndDebug(t *testing.T) {
	t.Parallel()

	st := memstore.New()
	l1 := seedLaunch(st, models.LaunchModeDefault, models.StatusFailed, 2, 3)
	seedLaunch(st, models.LaunchModeDefault, models.StatusPassed, 2, 3)
	seedLaunch(st, models.LaunchModeDebug, models.StatusFailed, 2, 3)

	client := &countingClient{}
	n, err := newBatchIndexer(t, st, client, 10).IndexProject(context.Background(), projectID, models.AnalyzerConfig{})
	require.NoError(t, err)

	assert.Equal(t, int64(2+6), n)
	assert.Equal(t, []int64{l1.ID}, client.launchIDs())
}

func TestIndexProjectVisitsEveryLaunchOnce(t *testing.T) {
	t.Parallel()

	st := memstore.New()
	var want []int64
	for i := 0; i < 25; i++ {
		want = append(want, seedLaunch(st, models.LaunchModeDefault, models.StatusFailed, 1, 1).ID)
	}

	client := &countingClient{}
	n, err := newBatchIndexer(t, st, client, 10).IndexProject(context.Background(), projectID, models.AnalyzerConfig{})
	require.NoError(t, err)

	assert.Equal(t, int64(50), n)
	assert.Equal(t, want, client.launchIDs())

	require.Len(t, st.LaunchPageCalls, 3)
	assert.Equal(t, []int64{0, want[9], want[19]}, st.LaunchPageCalls)
}

func TestIndexProjectExactPageFetchesOnceMore(t *testing.T) {
	t.Parallel()

	st := memstore.New()
	for i := 0; i < 4; i++ {
		seedLaunch(st, models.LaunchModeDefault, models.StatusFailed, 1, 1)
	}

	_, err := newBatchIndexer(t, st, &countingClient{}, 2).IndexProject(context.Background(), projectID, models.AnalyzerConfig{})
	require.NoError(t, err)
	assert.Len(t, st.LaunchPageCalls, 3)
}

func TestIndexProjectSkipsLaunchesWithoutErrorLogs(t *testing.T) {
	t.Parallel()

	st := memstore.New()
	quiet := st.AddLaunch(models.Launch{ProjectID: projectID, Status: models.StatusFailed, Mode: models.LaunchModeDefault})
	it := st.AddItem(models.TestItem{LaunchID: quiet.ID, HasStats: true, Issue: &models.Issue{IssueTypeLocator: "ti001"}})
	st.AddLog(models.Log{ItemID: &it.ID, LaunchID: quiet.ID, Level: models.LogLevelInfo, Message: "started"})
	loud := seedLaunch(st, models.LaunchModeDefault, models.StatusFailed, 1, 1)

	client := &countingClient{}
	_, err := newBatchIndexer(t, st, client, 10).IndexProject(context.Background(), projectID, models.AnalyzerConfig{})
	require.NoError(t, err)
	assert.Equal(t, []int64{loud.ID}, client.launchIDs())
}

func TestIndexProjectSubBatchesOnItemCount(t *testing.T) {
	t.Parallel()

	st := memstore.New()
	seedLaunch(st, models.LaunchModeDefault, models.StatusFailed, 25, 1)

	client := &countingClient{}
	n, err := newBatchIndexer(t, st, client, 10).IndexProject(context.Background(), projectID, models.AnalyzerConfig{})
	require.NoError(t, err)
	assert.Equal(t, int64(50), n)

	require.Len(t, client.batches, 3)
	for i, want := range []int{10, 10, 5} {
		require.Len(t, client.batches[i], 1)
		assert.Len(t, client.batches[i][0].TestItems, want)
	}
}

func TestIndexProjectStopsOnFailureKeepingProgress(t *testing.T) {
	t.Parallel()

	st := memstore.New()
	for i := 0; i < 3; i++ {
		seedLaunch(st, models.LaunchModeDefault, models.StatusFailed, 1, 1)
	}

	client := &countingClient{failOn: 2}
	n, err := newBatchIndexer(t, st, client, 1).IndexProject(context.Background(), projectID, models.AnalyzerConfig{})
	require.Error(t, err)
	assert.Equal(t, int64(2), n)
	assert.Len(t, client.batches, 2)
}

func TestPreparerDropsIgnoredAndEmpty(t *testing.T) {
	t.Parallel()

	st := memstore.New()
	l := st.AddLaunch(models.Launch{ProjectID: projectID, Name: "nightly", Number: 4, Status: models.StatusFailed})
	keep := st.AddItem(models.TestItem{LaunchID: l.ID, Name: "keep", HasStats: true, Issue: &models.Issue{IssueTypeLocator: "pb001"}})
	ignored := st.AddItem(models.TestItem{LaunchID: l.ID, HasStats: true, Issue: &models.Issue{IssueTypeLocator: "ti001", IgnoreAnalyzer: true}})
	blank := st.AddItem(models.TestItem{LaunchID: l.ID, HasStats: true, Issue: &models.Issue{IssueTypeLocator: "ti001"}})
	noIssue := st.AddItem(models.TestItem{LaunchID: l.ID, HasStats: true})
	for _, id := range []int64{keep.ID, ignored.ID, noIssue.ID} {
		itemID := id
		st.AddLog(models.Log{ItemID: &itemID, LaunchID: l.ID, Level: models.LogLevelError, Message: "boom"})
	}
	st.AddLog(models.Log{ItemID: &blank.ID, LaunchID: l.ID, Level: models.LogLevelError, Message: "   "})

	snapshot, ok, err := indexer.NewPreparer(st, st, st).Prepare(context.Background(), &l,
		[]int64{keep.ID, ignored.ID, blank.ID, noIssue.ID}, models.AnalyzerConfig{MinShouldMatch: 80})
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, "nightly", snapshot.LaunchName)
	assert.Equal(t, int64(4), snapshot.LaunchNumber)
	assert.Equal(t, 80, snapshot.AnalyzerConfig.MinShouldMatch)
	require.Len(t, snapshot.TestItems, 1)
	assert.Equal(t, keep.ID, snapshot.TestItems[0].TestItemID)
	assert.Equal(t, "pb001", snapshot.TestItems[0].IssueTypeLocator)
}

func newService(st *memstore.MemStore, client *countingClient, tracker *status.IndexingTracker) *indexer.Service {
	b, _ := indexer.NewBatchIndexer(st, st, indexer.NewPreparer(st, st, st), client, 10)
	return indexer.NewService(b, st, client, tracker, nil)
}

func TestServiceIndexProjectGuard(t *testing.T) {
	t.Parallel()

	st := memstore.New()
	seedLaunch(st, models.LaunchModeDefault, models.StatusFailed, 1, 1)
	tracker := status.NewIndexingTracker(10, 0)
	svc := newService(st, &countingClient{}, tracker)

	tracker.Start(projectID)
	_, err := svc.IndexProject(context.Background(), projectID)
	assert.ErrorIs(t, err, apperr.ErrAlreadyRunning)
	tracker.Finish(projectID)

	n, err := svc.IndexProject(context.Background(), projectID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.False(t, svc.IsIndexing(projectID))
}

func TestServicePublishesProjectIndexed(t *testing.T) {
	t.Parallel()

	st := memstore.New()
	seedLaunch(st, models.LaunchModeDefault, models.StatusFailed, 2, 1)
	client := &countingClient{}
	b, err := indexer.NewBatchIndexer(st, st, indexer.NewPreparer(st, st, st), client, 10)
	require.NoError(t, err)
	bus := &events.Recorder{}
	svc := indexer.NewService(b, st, client, status.NewIndexingTracker(10, 0), bus)

	_, err = svc.IndexProject(context.Background(), projectID)
	require.NoError(t, err)
	published := bus.Events(events.TopicProjectIndexed)
	require.Len(t, published, 1)
	assert.Equal(t, int64(4), published[0].Payload["indexed"])
}

func TestServiceReleasesGuardOnFailure(t *testing.T) {
	t.Parallel()

	st := memstore.New()
	seedLaunch(st, models.LaunchModeDefault, models.StatusFailed, 1, 1)
	svc := newService(st, &countingClient{failOn: 1}, status.NewIndexingTracker(10, 0))

	_, err := svc.IndexProject(context.Background(), projectID)
	require.Error(t, err)
	assert.False(t, svc.IsIndexing(projectID))
}

func TestServiceIndexLaunchLogs(t *testing.T) {
	t.Parallel()

	st := memstore.New()
	l := seedLaunch(st, models.LaunchModeDefault, models.StatusFailed, 3, 2)
	client := &countingClient{}
	svc := newService(st, client, status.NewIndexingTracker(10, 0))

	n, err := svc.IndexLaunchLogs(context.Background(), &l, models.AnalyzerConfig{})
	require.NoError(t, err)
	assert.Equal(t, int64(9), n)

	removed, err := svc.RemoveItems(context.Background(), projectID, []int64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
}

func TestServiceIndexDefectsUpdateReindexesMissed(t *testing.T) {
	t.Parallel()

	st := memstore.New()
	l := seedLaunch(st, models.LaunchModeDefault, models.StatusFailed, 3, 2)
	items, err := st.FindItemsByLaunch(context.Background(), l.ID)
	require.NoError(t, err)
	require.Len(t, items, 3)

	client := &countingClient{missed: []int64{items[1].ID, 999}}
	svc := newService(st, client, status.NewIndexingTracker(10, 0))

	updates := map[int64]string{
		items[0].ID: "pb001",
		items[1].ID: "pb001",
	}
	n, err := svc.IndexDefectsUpdate(context.Background(), &l, updates, models.AnalyzerConfig{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	require.Len(t, client.updates, 1)
	assert.Equal(t, updates, client.updates[0])
	require.Len(t, client.batches, 1)
	require.Len(t, client.batches[0], 1)
	require.Len(t, client.batches[0][0].TestItems, 1)
	assert.Equal(t, items[1].ID, client.batches[0][0].TestItems[0].TestItemID)
}

func TestServiceIndexDefectsUpdateSkipsEmpty(t *testing.T) {
	t.Parallel()

	st := memstore.New()
	l := seedLaunch(st, models.LaunchModeDefault, models.StatusFailed, 1, 1)
	client := &countingClient{}
	svc := newService(st, client, status.NewIndexingTracker(10, 0))

	n, err := svc.IndexDefectsUpdate(context.Background(), &l, nil, models.AnalyzerConfig{})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, client.updates)
}

func TestServiceDeleteIndexDropsSuggestIndex(t *testing.T) {
	t.Parallel()

	client := &countingClient{}
	svc := newService(memstore.New(), client, status.NewIndexingTracker(10, 0))

	require.NoError(t, svc.DeleteIndex(context.Background(), projectID))
	assert.Equal(t, []int64{projectID}, client.dropped)
}
