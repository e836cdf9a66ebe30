package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/autolog/autoanalysis/internal/logger"
	"github.com/autolog/autoanalysis/internal/metrics"
	"github.com/autolog/autoanalysis/internal/models"
	"github.com/autolog/autoanalysis/internal/store"
)

var (
	ErrQueueFull   = errors.New("job queue is full")
	ErrJobsStopped = errors.New("job service is stopped")
)

// JobFunc is the body of a background job. The returned document is stored
// as the job result.
type JobFunc func(ctx context.Context) (models.JSONB, error)

// JobRequest represents a queued job
type JobRequest struct {
	Job models.Job
	Fn  JobFunc
	ctx context.Context
}

type JobService struct {
	jobs        store.JobStore
	jobQueue    chan JobRequest
	workerCount int
	stopChan    chan struct{}
	stopOnce    sync.Once
	mu          sync.RWMutex
	stopped     bool
	wg          sync.WaitGroup
	now         func() time.Time
}

// NewJobService creates a new job service and starts its workers
func NewJobService(jobs store.JobStore, workerCount, queueSize int) *JobService {
	if workerCount <= 0 {
		workerCount = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}

	js := &JobService{
		jobs:        jobs,
		jobQueue:    make(chan JobRequest, queueSize),
		workerCount: workerCount,
		stopChan:    make(chan struct{}),
		now:         time.Now,
	}

	for i := 0; i < js.workerCount; i++ {
		js.wg.Add(1)
		go js.worker(i)
	}

	return js
}

// Submit records a pending job and queues fn for execution. The job keeps
// the values of ctx but not its cancellation.
func (js *JobService) Submit(ctx context.Context, jobType models.JobType, projectID int64, launchID *int64, fn JobFunc) (*models.Job, error) {
	js.mu.RLock()
	defer js.mu.RUnlock()
	if js.stopped {
		return nil, ErrJobsStopped
	}

	job := models.Job{
		ID:        uuid.NewString(),
		Type:      jobType,
		ProjectID: projectID,
		LaunchID:  launchID,
		Status:    models.JobStatusPending,
	}
	if err := js.jobs.CreateJob(ctx, &job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	req := JobRequest{Job: job, Fn: fn, ctx: context.WithoutCancel(ctx)}
	select {
	case js.jobQueue <- req:
	default:
		js.finish(context.WithoutCancel(ctx), &req.Job, nil, ErrQueueFull)
		return nil, ErrQueueFull
	}

	logger.WithJob(job.ID, string(jobType)).WithField("project_id", projectID).Info("Job queued")
	return &job, nil
}

// GetJobStatus returns the stored state of a job
func (js *JobService) GetJobStatus(ctx context.Context, id string) (*models.Job, error) {
	return js.jobs.GetJob(ctx, id)
}

// Stop stops the workers. Jobs still queued are marked failed.
func (js *JobService) Stop() {
	js.stopOnce.Do(func() {
		js.mu.Lock()
		js.stopped = true
		js.mu.Unlock()

		close(js.stopChan)
		js.wg.Wait()

		for {
			select {
			case req := <-js.jobQueue:
				js.finish(req.ctx, &req.Job, nil, ErrJobsStopped)
			default:
				return
			}
		}
	})
}

// worker processes jobs from the queue
func (js *JobService) worker(id int) {
	defer js.wg.Done()

	for {
		select {
		case <-js.stopChan:
			logger.Info("Worker stopping", map[string]interface{}{"workerID": id})
			return
		default:
		}

		select {
		case req := <-js.jobQueue:
			logger.Debug("Worker processing job", map[string]interface{}{
				"workerID": id,
				"jobID":    req.Job.ID,
				"type":     req.Job.Type,
			})
			js.process(req)

		case <-js.stopChan:
			logger.Info("Worker stopping", map[string]interface{}{"workerID": id})
			return
		}
	}
}

func (js *JobService) process(req JobRequest) {
	job := req.Job
	started := js.now()
	job.Status = models.JobStatusRunning
	job.StartedAt = &started
	if err := js.jobs.UpdateJob(req.ctx, &job); err != nil {
		logger.WithJob(job.ID, string(job.Type)).WithError(err).Error("Failed to update job status to running")
	}

	result, err := js.run(req.ctx, req.Fn)
	js.finish(req.ctx, &job, result, err)
}

func (js *JobService) run(ctx context.Context, fn JobFunc) (result models.JSONB, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return fn(ctx)
}

func (js *JobService) finish(ctx context.Context, job *models.Job, result models.JSONB, err error) {
	completed := js.now()
	job.CompletedAt = &completed
	job.Result = result
	if err != nil {
		job.Status = models.JobStatusFailed
		job.Error = err.Error()
	} else {
		job.Status = models.JobStatusCompleted
	}

	log := logger.WithJob(job.ID, string(job.Type))
	if uerr := js.jobs.UpdateJob(ctx, job); uerr != nil {
		log.WithError(uerr).Error("Failed to update job completion")
	}
	metrics.Jobs.WithLabelValues(string(job.Type), string(job.Status)).Inc()

	if err != nil {
		log.WithError(err).Warn("Job failed")
		return
	}
	log.Info("Job completed")
}
