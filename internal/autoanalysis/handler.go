package autoanalysis

import (
	"context"

	"github.com/autolog/autoanalysis/internal/logger"
	"github.com/autolog/autoanalysis/internal/models"
	"github.com/autolog/autoanalysis/internal/store"
)

// PatternRunner runs pattern analysis over a launch.
type PatternRunner interface {
	AnalyzeLaunch(ctx context.Context, launch *models.Launch, modes []models.AnalyzeItemsMode) (int, error)
}

// LaunchFinishedHandler reacts to a finished launch. There is no
// interactive caller, so analysis failures are only logged.
type LaunchFinishedHandler struct {
	launches store.LaunchGateway
	projects store.ProjectGateway
	chain    Starter
	indexer  LaunchIndexer
	patterns PatternRunner
	jobs     JobSubmitter
}

func NewLaunchFinishedHandler(st store.Store, chain Starter, idx LaunchIndexer, patterns PatternRunner, jobs JobSubmitter) *LaunchFinishedHandler {
	return &LaunchFinishedHandler{
		launches: st,
		projects: st,
		chain:    chain,
		indexer:  idx,
		patterns: patterns,
		jobs:     jobs,
	}
}

var finishedLaunchModes = []models.AnalyzeItemsMode{models.AnalyzeModeToInvestigate}

// Handle returns an error only when the launch or its project settings
// cannot be loaded.
func (h *LaunchFinishedHandler) Handle(ctx context.Context, launchID int64, user string) error {
	launch, err := h.launches.GetLaunch(ctx, launchID)
	if err != nil {
		return err
	}
	log := logger.WithLaunch(launch.ProjectID, launch.ID, "launch_finished")
	if launch.Mode == models.LaunchModeDebug {
		log.Debug("Debug launch finished, nothing to analyze")
		return nil
	}

	cfg, err := store.AnalyzerConfig(ctx, h.projects, launch.ProjectID)
	if err != nil {
		return err
	}

	if cfg.AutoAnalyzerEnabled {
		err := h.chain(ctx, StartConfig{
			LaunchID:       launch.ID,
			AnalyzerConfig: cfg,
			Modes:          finishedLaunchModes,
			User:           user,
		})
		if err != nil {
			log.WithField("error", err.Error()).Error("Auto analysis of finished launch failed")
		}
	} else if _, err := h.indexer.IndexLaunchLogs(ctx, launch, cfg); err != nil {
		log.WithField("error", err.Error()).Error("Indexing of finished launch failed")
	}

	if cfg.AutoPatternAnalysisEnabled {
		h.startPatternAnalysis(ctx, launch)
	}
	return nil
}

func (h *LaunchFinishedHandler) startPatternAnalysis(ctx context.Context, launch *models.Launch) {
	launchID := launch.ID
	_, err := h.jobs.Submit(ctx, models.JobTypePatternAnalysis, launch.ProjectID, &launchID, func(ctx context.Context) (models.JSONB, error) {
		matches, err := h.patterns.AnalyzeLaunch(ctx, launch, finishedLaunchModes)
		if err != nil {
			return nil, err
		}
		return models.JSONB{"matches": matches}, nil
	})
	if err != nil {
		logger.WithLaunch(launch.ProjectID, launch.ID, "launch_finished").
			WithField("error", err.Error()).
			Error("Failed to queue pattern analysis")
	}
}
