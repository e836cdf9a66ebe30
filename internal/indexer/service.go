package indexer

import (
	"context"
	"time"

	"github.com/autolog/autoanalysis/internal/apperr"
	"github.com/autolog/autoanalysis/internal/events"
	"github.com/autolog/autoanalysis/internal/logger"
	"github.com/autolog/autoanalysis/internal/models"
	"github.com/autolog/autoanalysis/internal/status"
	"github.com/autolog/autoanalysis/internal/store"
)

// Client is the part of the analyzer dispatch client the indexing service
// needs.
type Client interface {
	IndexClient
	RemoveItems(ctx context.Context, projectID int64, itemIDs []int64) (int, error)
	RemoveLaunches(ctx context.Context, projectID int64, launchIDs []int64) error
	CleanIndex(ctx context.Context, projectID int64, logIDs []int64) (int64, error)
	DeleteIndex(ctx context.Context, projectID int64) error
	IndexDefectsUpdate(ctx context.Context, projectID int64, updates map[int64]string) ([]int64, error)
	RemoveSuggest(ctx context.Context, projectID int64) error
}

// Service is the entry point for log indexing. Whole-project runs are
// guarded by the indexing tracker so one project is indexed at most once
// at a time within this process.
type Service struct {
	batch    *BatchIndexer
	launches store.LaunchGateway
	items    store.TestItemGateway
	projects store.ProjectGateway
	client   Client
	tracker  *status.IndexingTracker
	bus      events.Publisher
}

func NewService(batch *BatchIndexer, st store.Store, client Client, tracker *status.IndexingTracker, bus events.Publisher) *Service {
	return &Service{
		batch:    batch,
		launches: st,
		items:    st,
		projects: st,
		client:   client,
		tracker:  tracker,
		bus:      bus,
	}
}

// IndexProject indexes every eligible launch of the project.
func (s *Service) IndexProject(ctx context.Context, projectID int64) (int64, error) {
	if !s.tracker.TryStart(projectID) {
		return 0, apperr.AlreadyRunning("index of project %d is in progress", projectID)
	}
	defer s.tracker.Finish(projectID)

	cfg, err := store.AnalyzerConfig(ctx, s.projects, projectID)
	if err != nil {
		return 0, err
	}

	log := logger.WithProject(projectID, "log_indexer")
	log.Info("Start indexing for project")
	start := time.Now()

	indexed, err := s.batch.IndexProject(ctx, projectID, cfg)
	if err != nil {
		log.WithField("indexed", indexed).WithField("error", err.Error()).Error("Project indexing failed")
		return indexed, err
	}

	log.WithFields(map[string]interface{}{
		"indexed":  indexed,
		"duration": time.Since(start).String(),
	}).Info("Indexing finished for project")

	if s.bus != nil {
		err := s.bus.Publish(ctx, events.Event{
			Topic:     events.TopicProjectIndexed,
			ProjectID: projectID,
			ObjectID:  projectID,
			Payload:   map[string]interface{}{"indexed": indexed},
		})
		if err != nil {
			log.WithField("error", err.Error()).Warn("Failed to publish project indexed event")
		}
	}
	return indexed, nil
}

// IsIndexing reports whether a project run is marked in progress.
func (s *Service) IsIndexing(projectID int64) bool {
	return s.tracker.IsRunning(projectID)
}

// IndexLaunchLogs indexes the analyzable items of a launch.
func (s *Service) IndexLaunchLogs(ctx context.Context, launch *models.Launch, cfg models.AnalyzerConfig) (int64, error) {
	items, err := s.items.FindItemsByLaunch(ctx, launch.ID)
	if err != nil {
		return 0, err
	}
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		if it.Analyzable() {
			ids = append(ids, it.ID)
		}
	}
	return s.batch.IndexLaunch(ctx, launch, ids, cfg)
}

func (s *Service) IndexItemsLogs(ctx context.Context, launchID int64, itemIDs []int64, cfg models.AnalyzerConfig) (int64, error) {
	launch, err := s.launches.GetLaunch(ctx, launchID)
	if err != nil {
		return 0, err
	}
	return s.batch.IndexLaunch(ctx, launch, itemIDs, cfg)
}

// IndexDefectsUpdate pushes new issue locators of launch items to the index.
// Items the analyzers report as not indexed are indexed in full.
func (s *Service) IndexDefectsUpdate(ctx context.Context, launch *models.Launch, updates map[int64]string, cfg models.AnalyzerConfig) (int64, error) {
	if len(updates) == 0 {
		return 0, nil
	}
	missed, err := s.client.IndexDefectsUpdate(ctx, launch.ProjectID, updates)
	if err != nil {
		return 0, err
	}
	ids := make([]int64, 0, len(missed))
	for _, id := range missed {
		if _, ok := updates[id]; ok {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	return s.batch.IndexLaunch(ctx, launch, ids, cfg)
}

func (s *Service) RemoveItems(ctx context.Context, projectID int64, itemIDs []int64) (int, error) {
	return s.client.RemoveItems(ctx, projectID, itemIDs)
}

func (s *Service) RemoveLaunches(ctx context.Context, projectID int64, launchIDs []int64) error {
	return s.client.RemoveLaunches(ctx, projectID, launchIDs)
}

func (s *Service) CleanIndex(ctx context.Context, projectID int64, logIDs []int64) (int64, error) {
	return s.client.CleanIndex(ctx, projectID, logIDs)
}

func (s *Service) DeleteIndex(ctx context.Context, projectID int64) error {
	if err := s.client.DeleteIndex(ctx, projectID); err != nil {
		return err
	}
	return s.client.RemoveSuggest(ctx, projectID)
}
