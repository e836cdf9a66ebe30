package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/autolog/autoanalysis/internal/analyzer"
	"github.com/autolog/autoanalysis/internal/apperr"
)

type AnalyzerController struct {
	registry *analyzer.Registry
}

func NewAnalyzerController(registry *analyzer.Registry) *AnalyzerController {
	return &AnalyzerController{registry: registry}
}

type registerRequest struct {
	ID           string   `json:"id" binding:"required"`
	Priority     int      `json:"priority"`
	Capabilities []string `json:"capabilities"`
	Endpoint     string   `json:"endpoint" binding:"required"`
}

// Register adds an analyzer backend. Registering a known id again acts as
// a heartbeat.
func (ac *AnalyzerController) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	d := analyzer.Descriptor{ID: req.ID, Priority: req.Priority, Endpoint: req.Endpoint}
	for _, name := range req.Capabilities {
		capability, ok := analyzer.ParseCapability(name)
		if !ok {
			respondError(c, apperr.Validation("unknown analyzer capability %q", name), "analyzer_controller")
			return
		}
		d.Capabilities = append(d.Capabilities, capability)
	}

	stored, err := ac.registry.Register(d)
	if err != nil {
		respondError(c, err, "analyzer_controller")
		return
	}
	c.JSON(http.StatusOK, stored)
}

func (ac *AnalyzerController) Deregister(c *gin.Context) {
	if !ac.registry.Deregister(c.Param("id")) {
		respondError(c, apperr.NotFound("analyzer", c.Param("id")), "analyzer_controller")
		return
	}
	c.Status(http.StatusNoContent)
}

func (ac *AnalyzerController) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"analyzers": ac.registry.Descriptors()})
}
