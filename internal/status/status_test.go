package status_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/autolog/autoanalysis/internal/status"
)

func TestIndexingTrackerStartFinish(t *testing.T) {
	t.Parallel()

	tr := status.NewIndexingTracker(10, time.Hour)
	assert.False(t, tr.IsRunning(1))

	tr.Start(1)
	assert.True(t, tr.IsRunning(1))
	assert.False(t, tr.IsRunning(2))

	tr.Finish(1)
	assert.False(t, tr.IsRunning(1))
}

func TestIndexingTrackerExpires(t *testing.T) {
	t.Parallel()

	tr := status.NewIndexingTracker(10, 30*time.Millisecond)
	tr.Start(1)
	assert.True(t, tr.IsRunning(1))

	assert.Eventually(t, func() bool { return !tr.IsRunning(1) }, time.Second, 10*time.Millisecond)
}

func TestIndexingTrackerTryStartIsExclusive(t *testing.T) {
	t.Parallel()

	tr := status.NewIndexingTracker(10, time.Hour)

	var won atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tr.TryStart(7) {
				won.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), won.Load())
	tr.Finish(7)
	assert.True(t, tr.TryStart(7))
}

func TestAnalyzerCache(t *testing.T) {
	t.Parallel()

	c := status.NewAnalyzerCache(10, time.Hour)
	assert.True(t, c.Started(status.PatternAnalysis, 5, 1))
	assert.False(t, c.Started(status.PatternAnalysis, 5, 1))
	assert.True(t, c.Started(status.Clustering, 5, 1))

	assert.True(t, c.Contains(status.PatternAnalysis, 5))
	assert.False(t, c.Contains(status.AutoAnalysis, 5))
	assert.Equal(t, []status.Kind{status.Clustering, status.PatternAnalysis}, c.Running(5))

	c.Finished(status.PatternAnalysis, 5)
	assert.False(t, c.Contains(status.PatternAnalysis, 5))
	assert.Empty(t, c.Running(6))
}
