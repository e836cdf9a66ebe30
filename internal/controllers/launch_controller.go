package controllers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/autolog/autoanalysis/internal/apperr"
	"github.com/autolog/autoanalysis/internal/autoanalysis"
	"github.com/autolog/autoanalysis/internal/cluster"
	"github.com/autolog/autoanalysis/internal/logger"
	"github.com/autolog/autoanalysis/internal/models"
	"github.com/autolog/autoanalysis/internal/pattern"
	"github.com/autolog/autoanalysis/internal/services"
	"github.com/autolog/autoanalysis/internal/store"
)

type LaunchController struct {
	st       store.Store
	manual   autoanalysis.Starter
	finished *autoanalysis.LaunchFinishedHandler
	patterns *pattern.LaunchAnalyzer
	clusters *cluster.Generator
	jobs     *services.JobService
}

func NewLaunchController(st store.Store, manual autoanalysis.Starter, finished *autoanalysis.LaunchFinishedHandler, patterns *pattern.LaunchAnalyzer, clusters *cluster.Generator, jobs *services.JobService) *LaunchController {
	return &LaunchController{
		st:       st,
		manual:   manual,
		finished: finished,
		patterns: patterns,
		clusters: clusters,
		jobs:     jobs,
	}
}

type modesRequest struct {
	Modes []string `json:"modes"`
}

// bindModes reads the optional analyze modes of the request body. An empty
// body selects the "to investigate" items.
func bindModes(c *gin.Context) ([]models.AnalyzeItemsMode, error) {
	var req modesRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			return nil, apperr.Validation("invalid request body: %v", err)
		}
	}
	if len(req.Modes) == 0 {
		return []models.AnalyzeItemsMode{models.AnalyzeModeToInvestigate}, nil
	}
	modes := make([]models.AnalyzeItemsMode, 0, len(req.Modes))
	for _, m := range req.Modes {
		mode, ok := models.ParseAnalyzeItemsMode(m)
		if !ok {
			return nil, apperr.Validation("unknown analyze mode %q", m)
		}
		modes = append(modes, mode)
	}
	return modes, nil
}

// Analyze starts a manual auto analysis of the launch
func (lc *LaunchController) Analyze(c *gin.Context) {
	launchID, ok := paramID(c, "launchId")
	if !ok {
		return
	}
	modes, err := bindModes(c)
	if err != nil {
		respondError(c, err, "launch_controller")
		return
	}

	ctx := c.Request.Context()
	launch, err := lc.st.GetLaunch(ctx, launchID)
	if err != nil {
		respondError(c, err, "launch_controller")
		return
	}
	cfg, err := store.AnalyzerConfig(ctx, lc.st, launch.ProjectID)
	if err != nil {
		respondError(c, err, "launch_controller")
		return
	}

	err = lc.manual(ctx, autoanalysis.StartConfig{
		LaunchID:       launch.ID,
		AnalyzerConfig: cfg,
		Modes:          modes,
		User:           currentUser(c),
	})
	if err != nil {
		respondError(c, err, "launch_controller")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": fmt.Sprintf("Auto-analyzer for launch ID='%d' started.", launch.ID)})
}

// AnalyzePatterns queues pattern analysis of the launch
func (lc *LaunchController) AnalyzePatterns(c *gin.Context) {
	launchID, ok := paramID(c, "launchId")
	if !ok {
		return
	}
	modes, err := bindModes(c)
	if err != nil {
		respondError(c, err, "launch_controller")
		return
	}
	launch, err := lc.st.GetLaunch(c.Request.Context(), launchID)
	if err != nil {
		respondError(c, err, "launch_controller")
		return
	}

	job, err := lc.jobs.Submit(c.Request.Context(), models.JobTypePatternAnalysis, launch.ProjectID, &launch.ID, func(ctx context.Context) (models.JSONB, error) {
		matches, err := lc.patterns.AnalyzeLaunch(ctx, launch, modes)
		if err != nil {
			return nil, err
		}
		return models.JSONB{"matches": matches}, nil
	})
	if err != nil {
		respondError(c, err, "launch_controller")
		return
	}
	c.JSON(http.StatusAccepted, job)
}

// GenerateClusters queues cluster generation for the launch
func (lc *LaunchController) GenerateClusters(c *gin.Context) {
	launchID, ok := paramID(c, "launchId")
	if !ok {
		return
	}
	var cfg cluster.Config
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&cfg); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
	}
	cfg.LaunchID = launchID

	launch, err := lc.st.GetLaunch(c.Request.Context(), launchID)
	if err != nil {
		respondError(c, err, "launch_controller")
		return
	}

	job, err := lc.jobs.Submit(c.Request.Context(), models.JobTypeClusterGeneration, launch.ProjectID, &launch.ID, func(ctx context.Context) (models.JSONB, error) {
		run, err := lc.clusters.Generate(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return models.JSONB{"deleted": run.Deleted, "saved": run.Saved}, nil
	})
	if err != nil {
		respondError(c, err, "launch_controller")
		return
	}
	c.JSON(http.StatusAccepted, job)
}

// LaunchFinished is the entry point for launch finished notifications
func (lc *LaunchController) LaunchFinished(c *gin.Context) {
	launchID, ok := paramID(c, "launchId")
	if !ok {
		return
	}
	if err := lc.finished.Handle(c.Request.Context(), launchID, currentUser(c)); err != nil {
		respondError(c, err, "launch_controller")
		return
	}
	logger.Debug("Launch finished hook handled", map[string]interface{}{"launchID": launchID})
	c.JSON(http.StatusAccepted, gin.H{"launchId": launchID})
}
