package pattern

import (
	"context"

	"github.com/autolog/autoanalysis/internal/apperr"
	"github.com/autolog/autoanalysis/internal/events"
	"github.com/autolog/autoanalysis/internal/logger"
	"github.com/autolog/autoanalysis/internal/models"
	"github.com/autolog/autoanalysis/internal/status"
	"github.com/autolog/autoanalysis/internal/store"
)

// LaunchAnalyzer runs pattern analysis over a whole launch, batch by batch.
type LaunchAnalyzer struct {
	engine    *Engine
	items     store.TestItemGateway
	cache     *status.AnalyzerCache
	publisher events.Publisher
	batchSize int
}

func NewLaunchAnalyzer(engine *Engine, items store.TestItemGateway, cache *status.AnalyzerCache, publisher events.Publisher, batchSize int) (*LaunchAnalyzer, error) {
	if batchSize <= 0 {
		return nil, apperr.Validation("pattern batch size must be positive, got %d", batchSize)
	}
	return &LaunchAnalyzer{
		engine:    engine,
		items:     items,
		cache:     cache,
		publisher: publisher,
		batchSize: batchSize,
	}, nil
}

// AnalyzeLaunch matches the launch items selected by modes. Only one
// pattern analysis per launch runs at a time.
func (a *LaunchAnalyzer) AnalyzeLaunch(ctx context.Context, launch *models.Launch, modes []models.AnalyzeItemsMode) (int, error) {
	if len(modes) == 0 {
		return 0, apperr.Validation("unable to resolve item search condition: no analyze modes")
	}
	if !a.cache.Started(status.PatternAnalysis, launch.ID, launch.ProjectID) {
		return 0, apperr.AlreadyRunning("Pattern analysis is still in progress.")
	}
	defer a.cache.Finished(status.PatternAnalysis, launch.ID)

	total := 0
	offset := 0
	for {
		ids, err := a.items.FindItemIDsByModes(ctx, launch.ID, modes, offset, a.batchSize)
		if err != nil {
			return total, err
		}
		if len(ids) == 0 {
			break
		}
		matches, err := a.engine.Analyze(ctx, launch.ProjectID, launch.ID, ids)
		total += len(matches)
		if err != nil {
			return total, err
		}
		offset += len(ids)
	}

	logger.WithLaunch(launch.ProjectID, launch.ID, "pattern_analyzer").
		WithField("matches", total).
		Info("Pattern analysis finished")

	if a.publisher != nil {
		err := a.publisher.Publish(ctx, events.Event{
			Topic:     events.TopicPatternAnalysisDone,
			ProjectID: launch.ProjectID,
			ObjectID:  launch.ID,
			Payload:   map[string]interface{}{"matches": total},
		})
		if err != nil {
			logger.WithError(err, "pattern_analyzer").Warn("Failed to publish pattern analysis result")
		}
	}
	return total, nil
}
