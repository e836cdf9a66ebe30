package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/autolog/autoanalysis/internal/services"
)

type JobController struct {
	jobs *services.JobService
}

func NewJobController(jobs *services.JobService) *JobController {
	return &JobController{jobs: jobs}
}

// GetJobStatus returns the stored state of a background job
func (jc *JobController) GetJobStatus(c *gin.Context) {
	job, err := jc.jobs.GetJobStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "job_controller")
		return
	}
	c.JSON(http.StatusOK, job)
}
