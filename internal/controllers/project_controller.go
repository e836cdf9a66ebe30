package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/autolog/autoanalysis/internal/apperr"
	"github.com/autolog/autoanalysis/internal/indexer"
	"github.com/autolog/autoanalysis/internal/logger"
	"github.com/autolog/autoanalysis/internal/models"
	"github.com/autolog/autoanalysis/internal/services"
)

type ProjectController struct {
	indexer *indexer.Service
	jobs    *services.JobService
}

func NewProjectController(idx *indexer.Service, jobs *services.JobService) *ProjectController {
	return &ProjectController{indexer: idx, jobs: jobs}
}

// IndexProject queues a full index of the project logs
func (pc *ProjectController) IndexProject(c *gin.Context) {
	projectID, ok := paramID(c, "projectId")
	if !ok {
		return
	}
	if pc.indexer.IsIndexing(projectID) {
		respondError(c, apperr.AlreadyRunning("index of project %d is in progress", projectID), "project_controller")
		return
	}

	job, err := pc.jobs.Submit(c.Request.Context(), models.JobTypeProjectIndex, projectID, nil, func(ctx context.Context) (models.JSONB, error) {
		indexed, err := pc.indexer.IndexProject(ctx, projectID)
		if err != nil {
			return models.JSONB{"indexed": indexed}, err
		}
		return models.JSONB{"indexed": indexed}, nil
	})
	if err != nil {
		respondError(c, err, "project_controller")
		return
	}

	logger.WithProject(projectID, "project_controller").
		WithField("user", currentUser(c)).
		WithField("job_id", job.ID).
		Info("Project indexing requested")
	c.JSON(http.StatusAccepted, job)
}

type removeRequest struct {
	ItemIDs   []int64 `json:"itemIds"`
	LaunchIDs []int64 `json:"launchIds"`
	LogIDs    []int64 `json:"logIds"`
}

// RemoveFromIndex drops items, launches and logs from the analyzer index
func (pc *ProjectController) RemoveFromIndex(c *gin.Context) {
	projectID, ok := paramID(c, "projectId")
	if !ok {
		return
	}
	var req removeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	ctx := c.Request.Context()
	resp := gin.H{}
	if len(req.ItemIDs) > 0 {
		removed, err := pc.indexer.RemoveItems(ctx, projectID, req.ItemIDs)
		if err != nil {
			respondError(c, err, "project_controller")
			return
		}
		resp["removedItems"] = removed
	}
	if len(req.LaunchIDs) > 0 {
		if err := pc.indexer.RemoveLaunches(ctx, projectID, req.LaunchIDs); err != nil {
			respondError(c, err, "project_controller")
			return
		}
		resp["removedLaunches"] = len(req.LaunchIDs)
	}
	if len(req.LogIDs) > 0 {
		cleaned, err := pc.indexer.CleanIndex(ctx, projectID, req.LogIDs)
		if err != nil {
			respondError(c, err, "project_controller")
			return
		}
		resp["cleanedLogs"] = cleaned
	}
	c.JSON(http.StatusOK, resp)
}

// DeleteIndex removes the whole analyzer index of the project
func (pc *ProjectController) DeleteIndex(c *gin.Context) {
	projectID, ok := paramID(c, "projectId")
	if !ok {
		return
	}
	if err := pc.indexer.DeleteIndex(c.Request.Context(), projectID); err != nil {
		respondError(c, err, "project_controller")
		return
	}
	c.Status(http.StatusNoContent)
}
