package pattern_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autolog/autoanalysis/internal/apperr"
	"github.com/autolog/autoanalysis/internal/events"
	"github.com/autolog/autoanalysis/internal/models"
	"github.com/autolog/autoanalysis/internal/pattern"
	"github.com/autolog/autoanalysis/internal/status"
	"github.com/autolog/autoanalysis/internal/store/memstore"
)

const projectID = 3

type fixture struct {
	st     *memstore.MemStore
	bus    *events.Recorder
	launch models.Launch
}

func newFixture() *fixture {
	st := memstore.New()
	return &fixture{
		st:     st,
		bus:    &events.Recorder{},
		launch: st.AddLaunch(models.Launch{ProjectID: projectID, Name: "smoke", Status: models.StatusFailed}),
	}
}

func (f *fixture) item(name string, parent *int64, hasStats bool, messages ...string) int64 {
	it := f.st.AddItem(models.TestItem{
		LaunchID: f.launch.ID,
		ParentID: parent,
		Name:     name,
		HasStats: hasStats,
		Issue:    &models.Issue{IssueTypeLocator: models.ToInvestigateLocator},
	})
	for _, m := range messages {
		f.st.AddLog(models.Log{ItemID: &it.ID, LaunchID: f.launch.ID, Level: models.LogLevelError, Message: m})
	}
	return it.ID
}

func (f *fixture) template(typ models.PatternTemplateType, value string) models.PatternTemplate {
	return f.st.AddTemplate(models.PatternTemplate{ProjectID: projectID, Name: value, Type: typ, Value: value, Enabled: true})
}

func (f *fixture) engine() *pattern.Engine {
	return pattern.NewEngine(f.st, f.bus)
}

func matchedItems(matches []models.PatternMatch) []int64 {
	var ids []int64
	for _, m := range matches {
		ids = append(ids, m.TestItemID)
	}
	return ids
}

func TestStringAndRegexTemplates(t *testing.T) {
	t.Parallel()

	f := newFixture()
	npe := f.item("npe", nil, true, "java.lang.NullPointerException at Foo.bar")
	timeout := f.item("timeout", nil, true, "Read timed out after 30000 ms")
	clean := f.item("clean", nil, true, "assertion failed")

	str := f.template(models.PatternTypeString, "NullPointerException")
	re := f.template(models.PatternTypeRegex, `timed out after \d+ ms`)

	matches, err := f.engine().Analyze(context.Background(), projectID, f.launch.ID, []int64{npe, timeout, clean})
	require.NoError(t, err)

	assert.Equal(t, []models.PatternMatch{
		{PatternTemplateID: str.ID, TestItemID: npe},
		{PatternTemplateID: re.ID, TestItemID: timeout},
	}, f.st.Matches())
	assert.Equal(t, []int64{npe, timeout}, matchedItems(matches))
}

func TestDisabledTemplatesAndLowLevelsIgnored(t *testing.T) {
	t.Parallel()

	f := newFixture()
	id := f.item("info only", nil, true)
	f.st.AddLog(models.Log{ItemID: &id, LaunchID: f.launch.ID, Level: models.LogLevelInfo, Message: "NullPointerException"})
	f.template(models.PatternTypeString, "NullPointerException")
	f.st.AddTemplate(models.PatternTemplate{ProjectID: projectID, Type: models.PatternTypeString, Value: "Null", Enabled: false})

	matches, err := f.engine().Analyze(context.Background(), projectID, f.launch.ID, []int64{id})
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestAnalyzeIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture()
	a := f.item("a", nil, true, "OutOfMemoryError")
	b := f.item("b", nil, true, "OutOfMemoryError: heap")
	f.template(models.PatternTypeString, "OutOfMemoryError")
	engine := f.engine()

	first, err := engine.Analyze(context.Background(), projectID, f.launch.ID, []int64{a, b})
	require.NoError(t, err)
	assert.Len(t, first, 2)

	second, err := engine.Analyze(context.Background(), projectID, f.launch.ID, []int64{a, b})
	require.NoError(t, err)
	assert.Empty(t, second)
	assert.Len(t, f.st.Matches(), 2)
	assert.Len(t, f.bus.Events(events.TopicPatternMatched), 2)
}

func TestNestedStepFallback(t *testing.T) {
	t.Parallel()

	f := newFixture()
	parent := f.item("suite test", nil, true)
	f.item("step 1", &parent, false, "connection refused")
	step2 := f.item("step 2", &parent, false)
	f.item("deep step", &step2, false, "socket: connection refused by peer")

	lonely := f.item("lonely", nil, true, "nothing interesting")
	withQuietChild := f.item("quiet parent", nil, true)
	f.item("quiet step", &withQuietChild, false, "all good")

	f.template(models.PatternTypeRegex, "connection refused")

	matches, err := f.engine().Analyze(context.Background(), projectID, f.launch.ID, []int64{parent, lonely, withQuietChild})
	require.NoError(t, err)
	assert.Equal(t, []int64{parent}, matchedItems(matches))
}

func TestNestedStepMatchesEveryRequestedAncestor(t *testing.T) {
	t.Parallel()

	f := newFixture()
	suite := f.item("suite", nil, true)
	test := f.item("test", &suite, true)
	f.item("step", &test, false, "connection refused")
	other := f.item("other", nil, true, "all good")

	f.template(models.PatternTypeString, "connection refused")

	matches, err := f.engine().Analyze(context.Background(), projectID, f.launch.ID, []int64{suite, test, other})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{suite, test}, matchedItems(matches))
}

func TestInvalidRegexIsValidationError(t *testing.T) {
	t.Parallel()

	f := newFixture()
	id := f.item("a", nil, true, "boom")
	f.template(models.PatternTypeRegex, "([unclosed")

	_, err := f.engine().Analyze(context.Background(), projectID, f.launch.ID, []int64{id})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestUnsupportedTypeIsValidationError(t *testing.T) {
	t.Parallel()

	f := newFixture()
	id := f.item("a", nil, true, "boom")
	f.template("GLOB", "bo*")

	_, err := f.engine().Analyze(context.Background(), projectID, f.launch.ID, []int64{id})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestPersistenceFailureAborts(t *testing.T) {
	t.Parallel()

	f := newFixture()
	id := f.item("a", nil, true, "boom")
	f.template(models.PatternTypeString, "boom")
	f.st.FailSaveMatches = errors.New("deadlock detected")

	_, err := f.engine().Analyze(context.Background(), projectID, f.launch.ID, []int64{id})
	assert.ErrorIs(t, err, apperr.ErrPersistence)
	assert.Empty(t, f.bus.Events(""))
}

func TestPublishFailureKeepsMatches(t *testing.T) {
	t.Parallel()

	f := newFixture()
	id := f.item("a", nil, true, "boom")
	f.template(models.PatternTypeString, "boom")
	f.bus.FailTopics = map[string]error{events.TopicPatternMatched: errors.New("bus down")}

	matches, err := f.engine().Analyze(context.Background(), projectID, f.launch.ID, []int64{id})
	require.NoError(t, err)
	assert.Len(t, matches, 1)
	assert.Len(t, f.st.Matches(), 1)
}

func TestMatchEventCarriesItemName(t *testing.T) {
	t.Parallel()

	f := newFixture()
	id := f.item("login works", nil, true, "boom")
	tmpl := f.template(models.PatternTypeString, "boom")

	_, err := f.engine().Analyze(context.Background(), projectID, f.launch.ID, []int64{id})
	require.NoError(t, err)

	published := f.bus.Events(events.TopicPatternMatched)
	require.Len(t, published, 1)
	assert.Equal(t, id, published[0].ObjectID)
	assert.Equal(t, "login works", published[0].Payload["itemName"])
	assert.Equal(t, tmpl.ID, published[0].Payload["patternTemplate"].(map[string]interface{})["id"])
}

func TestLaunchAnalyzerWalksAllBatches(t *testing.T) {
	t.Parallel()

	f := newFixture()
	var ids []int64
	for i := 0; i < 5; i++ {
		ids = append(ids, f.item("t", nil, true, "ConcurrentModificationException"))
	}
	f.template(models.PatternTypeString, "ConcurrentModification")

	cache := status.NewAnalyzerCache(10, time.Hour)
	la, err := pattern.NewLaunchAnalyzer(f.engine(), f.st, cache, f.bus, 2)
	require.NoError(t, err)

	n, err := la.AnalyzeLaunch(context.Background(), &f.launch, []models.AnalyzeItemsMode{models.AnalyzeModeToInvestigate})
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Len(t, f.st.Matches(), 5)
	assert.False(t, cache.Contains(status.PatternAnalysis, f.launch.ID))
	assert.Len(t, f.bus.Events(events.TopicPatternAnalysisDone), 1)
}

func TestLaunchAnalyzerGuards(t *testing.T) {
	t.Parallel()

	f := newFixture()
	cache := status.NewAnalyzerCache(10, time.Hour)
	la, err := pattern.NewLaunchAnalyzer(f.engine(), f.st, cache, f.bus, 10)
	require.NoError(t, err)

	_, err = la.AnalyzeLaunch(context.Background(), &f.launch, nil)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	cache.Started(status.PatternAnalysis, f.launch.ID, projectID)
	_, err = la.AnalyzeLaunch(context.Background(), &f.launch, []models.AnalyzeItemsMode{models.AnalyzeModeToInvestigate})
	assert.ErrorIs(t, err, apperr.ErrAlreadyRunning)
	assert.Contains(t, err.Error(), "Pattern analysis is still in progress.")

	_, err = pattern.NewLaunchAnalyzer(f.engine(), f.st, cache, f.bus, 0)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
