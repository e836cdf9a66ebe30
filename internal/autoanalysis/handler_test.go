package autoanalysis_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autolog/autoanalysis/internal/apperr"
	"github.com/autolog/autoanalysis/internal/autoanalysis"
	"github.com/autolog/autoanalysis/internal/models"
	"github.com/autolog/autoanalysis/internal/store/memstore"
)

type fakePatterns struct {
	launches []int64
	modes    [][]models.AnalyzeItemsMode
}

func (f *fakePatterns) AnalyzeLaunch(_ context.Context, launch *models.Launch, modes []models.AnalyzeItemsMode) (int, error) {
	f.launches = append(f.launches, launch.ID)
	f.modes = append(f.modes, modes)
	return 2, nil
}

type handlerFixture struct {
	st       *memstore.MemStore
	chain    *spy
	idx      *fakeIndexer
	patterns *fakePatterns
	jobs     *inlineJobs
	handler  *autoanalysis.LaunchFinishedHandler
}

func newHandlerFixture() *handlerFixture {
	f := &handlerFixture{
		st:       memstore.New(),
		chain:    &spy{},
		idx:      &fakeIndexer{},
		patterns: &fakePatterns{},
		jobs:     &inlineJobs{},
	}
	f.handler = autoanalysis.NewLaunchFinishedHandler(f.st, f.chain.start, f.idx, f.patterns, f.jobs)
	return f
}

func (f *handlerFixture) configure(t *testing.T, key, value string) {
	t.Helper()
	require.NoError(t, f.st.SetProjectAttribute(context.Background(), projectID, key, value))
}

func TestLaunchFinishedSkipsDebugLaunch(t *testing.T) {
	f := newHandlerFixture()
	f.configure(t, models.AttrAutoAnalyzerEnabled, "true")
	launch := f.st.AddLaunch(models.Launch{ProjectID: projectID, Name: "debug", Mode: models.LaunchModeDebug})

	require.NoError(t, f.handler.Handle(context.Background(), launch.ID, "admin"))
	assert.Equal(t, 0, f.chain.calls)
	assert.Empty(t, f.idx.launches)
}

func TestLaunchFinishedRunsChainWhenEnabled(t *testing.T) {
	f := newHandlerFixture()
	f.configure(t, models.AttrAutoAnalyzerEnabled, "true")
	launch := f.st.AddLaunch(models.Launch{ProjectID: projectID, Name: "nightly", Mode: models.LaunchModeDefault})

	require.NoError(t, f.handler.Handle(context.Background(), launch.ID, "admin"))
	require.Equal(t, 1, f.chain.calls)
	cfg := f.chain.configs[0]
	assert.Equal(t, launch.ID, cfg.LaunchID)
	assert.True(t, cfg.AnalyzerConfig.AutoAnalyzerEnabled)
	assert.Equal(t, []models.AnalyzeItemsMode{models.AnalyzeModeToInvestigate}, cfg.Modes)
	assert.Equal(t, "admin", cfg.User)
	assert.Empty(t, f.idx.launches)
	assert.Empty(t, f.jobs.jobs)
}

func TestLaunchFinishedIndexesWhenDisabled(t *testing.T) {
	f := newHandlerFixture()
	launch := f.st.AddLaunch(models.Launch{ProjectID: projectID, Name: "nightly"})

	require.NoError(t, f.handler.Handle(context.Background(), launch.ID, ""))
	assert.Equal(t, 0, f.chain.calls)
	assert.Equal(t, []int64{launch.ID}, f.idx.launches)
}

func TestLaunchFinishedSwallowsAnalysisFailure(t *testing.T) {
	f := newHandlerFixture()
	f.configure(t, models.AttrAutoAnalyzerEnabled, "true")
	f.chain.err = apperr.Unavailable("there are no analyzer services deployed")
	launch := f.st.AddLaunch(models.Launch{ProjectID: projectID, Name: "nightly"})

	assert.NoError(t, f.handler.Handle(context.Background(), launch.ID, ""))
	assert.Equal(t, 1, f.chain.calls)
}

func TestLaunchFinishedStartsPatternAnalysis(t *testing.T) {
	f := newHandlerFixture()
	f.configure(t, models.AttrAutoPatternAnalysisEnabled, "true")
	launch := f.st.AddLaunch(models.Launch{ProjectID: projectID, Name: "nightly"})

	require.NoError(t, f.handler.Handle(context.Background(), launch.ID, ""))
	require.Len(t, f.jobs.jobs, 1)
	assert.Equal(t, models.JobTypePatternAnalysis, f.jobs.jobs[0].Type)
	assert.Equal(t, []int64{launch.ID}, f.patterns.launches)
	assert.Equal(t, [][]models.AnalyzeItemsMode{{models.AnalyzeModeToInvestigate}}, f.patterns.modes)
}

func TestLaunchFinishedPatternQueueFailureIsLogged(t *testing.T) {
	f := newHandlerFixture()
	f.configure(t, models.AttrAutoPatternAnalysisEnabled, "true")
	f.jobs.err = errors.New("queue full")
	launch := f.st.AddLaunch(models.Launch{ProjectID: projectID, Name: "nightly"})

	assert.NoError(t, f.handler.Handle(context.Background(), launch.ID, ""))
	assert.Empty(t, f.patterns.launches)
}

func TestLaunchFinishedUnknownLaunch(t *testing.T) {
	f := newHandlerFixture()
	err := f.handler.Handle(context.Background(), 404, "")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
