package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autolog/autoanalysis/internal/models"
	"github.com/autolog/autoanalysis/internal/store/memstore"
)

func waitForStatus(t *testing.T, js *JobService, id string, want models.JobStatus) *models.Job {
	t.Helper()
	var job *models.Job
	require.Eventually(t, func() bool {
		j, err := js.GetJobStatus(context.Background(), id)
		if err != nil {
			return false
		}
		job = j
		return j.Status == want
	}, 2*time.Second, 5*time.Millisecond)
	return job
}

func TestJobServiceCompletesJob(t *testing.T) {
	st := memstore.New()
	js := NewJobService(st, 2, 10)
	defer js.Stop()

	launchID := int64(7)
	job, err := js.Submit(context.Background(), models.JobTypeAutoAnalysis, 1, &launchID, func(ctx context.Context) (models.JSONB, error) {
		return models.JSONB{"analyzed": 3}, nil
	})
	require.NoError(t, err)
	assert.Len(t, job.ID, 36)
	assert.Equal(t, models.JobStatusPending, job.Status)

	done := waitForStatus(t, js, job.ID, models.JobStatusCompleted)
	assert.Equal(t, 3, done.Result["analyzed"])
	assert.NotNil(t, done.StartedAt)
	assert.NotNil(t, done.CompletedAt)
	assert.Empty(t, done.Error)
	assert.Equal(t, &launchID, done.LaunchID)
}

func TestJobServiceRecordsFailure(t *testing.T) {
	st := memstore.New()
	js := NewJobService(st, 1, 10)
	defer js.Stop()

	job, err := js.Submit(context.Background(), models.JobTypeProjectIndex, 1, nil, func(ctx context.Context) (models.JSONB, error) {
		return nil, errors.New("index unreachable")
	})
	require.NoError(t, err)

	failed := waitForStatus(t, js, job.ID, models.JobStatusFailed)
	assert.Equal(t, "index unreachable", failed.Error)
}

func TestJobServiceRecoversPanic(t *testing.T) {
	st := memstore.New()
	js := NewJobService(st, 1, 10)
	defer js.Stop()

	job, err := js.Submit(context.Background(), models.JobTypeClusterGeneration, 1, nil, func(ctx context.Context) (models.JSONB, error) {
		panic("boom")
	})
	require.NoError(t, err)

	failed := waitForStatus(t, js, job.ID, models.JobStatusFailed)
	assert.Contains(t, failed.Error, "boom")
}

func TestJobServiceIgnoresCallerCancellation(t *testing.T) {
	st := memstore.New()
	js := NewJobService(st, 1, 10)
	defer js.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	job, err := js.Submit(ctx, models.JobTypeAutoAnalysis, 1, nil, func(ctx context.Context) (models.JSONB, error) {
		<-release
		return nil, ctx.Err()
	})
	require.NoError(t, err)
	cancel()
	close(release)

	waitForStatus(t, js, job.ID, models.JobStatusCompleted)
}

func TestJobServiceQueueFull(t *testing.T) {
	st := memstore.New()
	js := NewJobService(st, 1, 1)
	defer js.Stop()

	block := make(chan struct{})
	defer close(block)
	started := make(chan struct{})
	noop := func(ctx context.Context) (models.JSONB, error) { return nil, nil }

	_, err := js.Submit(context.Background(), models.JobTypeAutoAnalysis, 1, nil, func(ctx context.Context) (models.JSONB, error) {
		close(started)
		<-block
		return nil, nil
	})
	require.NoError(t, err)
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("first job did not start")
	}

	_, err = js.Submit(context.Background(), models.JobTypeAutoAnalysis, 1, nil, noop)
	require.NoError(t, err)

	_, err = js.Submit(context.Background(), models.JobTypeAutoAnalysis, 1, nil, noop)
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestJobServiceRejectsAfterStop(t *testing.T) {
	js := NewJobService(memstore.New(), 1, 1)
	js.Stop()
	js.Stop()

	_, err := js.Submit(context.Background(), models.JobTypeAutoAnalysis, 1, nil, func(ctx context.Context) (models.JSONB, error) {
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrJobsStopped)
}
