package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autolog/autoanalysis/internal/analyzer"
	"github.com/autolog/autoanalysis/internal/apperr"
	"github.com/autolog/autoanalysis/internal/models"
	"github.com/autolog/autoanalysis/internal/store/memstore"
)

type fakeSearcher struct {
	results  []analyzer.SearchResult
	err      error
	requests []analyzer.SearchRq
}

func (f *fakeSearcher) SearchLogs(_ context.Context, rq analyzer.SearchRq) ([]analyzer.SearchResult, error) {
	f.requests = append(f.requests, rq)
	return f.results, f.err
}

func TestSearchSimilarGroupsLogsByItem(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	require.NoError(t, st.SetProjectAttribute(ctx, 5, models.AttrNumberOfLogLines, "3"))

	current := st.AddLaunch(models.Launch{ProjectID: 5, Name: "nightly", Number: 12})
	item := st.AddItem(models.TestItem{LaunchID: current.ID, Name: "login", Status: models.StatusFailed})
	st.AddLog(models.Log{ItemID: &item.ID, LaunchID: current.ID, Level: models.LogLevelError, Message: "timeout waiting for page"})
	st.AddLog(models.Log{ItemID: &item.ID, LaunchID: current.ID, Level: models.LogLevelInfo, Message: "opening page"})

	previous := st.AddLaunch(models.Launch{ProjectID: 5, Name: "nightly", Number: 11})
	similar := st.AddItem(models.TestItem{
		LaunchID: previous.ID,
		Name:     "login",
		Status:   models.StatusFailed,
		Issue:    &models.Issue{IssueTypeLocator: "si001"},
	})
	first := st.AddLog(models.Log{ItemID: &similar.ID, LaunchID: previous.ID, Level: models.LogLevelError, Message: "timeout waiting for page"})
	second := st.AddLog(models.Log{ItemID: &similar.ID, LaunchID: previous.ID, Level: models.LogLevelError, Message: "timeout waiting for login"})

	client := &fakeSearcher{results: []analyzer.SearchResult{
		{LogID: first.ID, ItemID: similar.ID},
		{LogID: second.ID, ItemID: similar.ID},
		{LogID: 9999, ItemID: similar.ID},
	}}

	got, err := NewSearchService(st, client).SearchSimilar(ctx, item.ID)
	require.NoError(t, err)

	require.Len(t, client.requests, 1)
	rq := client.requests[0]
	assert.Equal(t, []string{"timeout waiting for page"}, rq.LogMessages)
	assert.Equal(t, 3, rq.LogLines)
	assert.Equal(t, models.DefaultSearchLogsMinShouldMatch, rq.MinShouldMatch)
	assert.Equal(t, "nightly", rq.LaunchName)

	require.Len(t, got, 1)
	assert.Equal(t, "nightly #11", got[0].LaunchName)
	assert.Equal(t, similar.ID, got[0].ItemID)
	assert.Equal(t, "si001", got[0].Issue.IssueTypeLocator)
	assert.Equal(t, []string{"timeout waiting for page", "timeout waiting for login"}, got[0].LogMessages)
}

func TestSearchSimilarWithoutErrorLogs(t *testing.T) {
	st := memstore.New()
	launch := st.AddLaunch(models.Launch{ProjectID: 5, Name: "nightly"})
	item := st.AddItem(models.TestItem{LaunchID: launch.ID, Status: models.StatusPassed})
	client := &fakeSearcher{}

	got, err := NewSearchService(st, client).SearchSimilar(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, client.requests)
}

func TestSearchSimilarRejectsUnfinishedItem(t *testing.T) {
	st := memstore.New()
	launch := st.AddLaunch(models.Launch{ProjectID: 5, Name: "nightly"})
	item := st.AddItem(models.TestItem{LaunchID: launch.ID, Status: models.StatusInProgress})

	_, err := NewSearchService(st, &fakeSearcher{}).SearchSimilar(context.Background(), item.ID)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = NewSearchService(st, &fakeSearcher{}).SearchSimilar(context.Background(), 777)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSearchSimilarPropagatesUnavailable(t *testing.T) {
	st := memstore.New()
	launch := st.AddLaunch(models.Launch{ProjectID: 5, Name: "nightly"})
	item := st.AddItem(models.TestItem{LaunchID: launch.ID, Status: models.StatusFailed})
	st.AddLog(models.Log{ItemID: &item.ID, LaunchID: launch.ID, Level: models.LogLevelFatal, Message: "segfault"})

	client := &fakeSearcher{err: apperr.Unavailable("there are no analyzer services with search logs support deployed")}
	_, err := NewSearchService(st, client).SearchSimilar(context.Background(), item.ID)
	assert.ErrorIs(t, err, apperr.ErrIntegrationUnavailable)
}
