package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/autolog/autoanalysis/internal/analyzer"
	"github.com/autolog/autoanalysis/internal/services"
)

type ItemController struct {
	search  *services.SearchService
	suggest *services.SuggestService
}

func NewItemController(search *services.SearchService, suggest *services.SuggestService) *ItemController {
	return &ItemController{search: search, suggest: suggest}
}

// SimilarLogs lists items whose logs are similar to the error logs of the
// item.
func (ic *ItemController) SimilarLogs(c *gin.Context) {
	itemID, ok := paramID(c, "itemId")
	if !ok {
		return
	}
	found, err := ic.search.SearchSimilar(c.Request.Context(), itemID)
	if err != nil {
		respondError(c, err, "item_controller")
		return
	}
	if found == nil {
		found = []services.SimilarItem{}
	}
	c.JSON(http.StatusOK, gin.H{"items": found})
}

// Suggest lists items whose defects could apply to the item.
func (ic *ItemController) Suggest(c *gin.Context) {
	itemID, ok := paramID(c, "itemId")
	if !ok {
		return
	}
	found, err := ic.suggest.SuggestItems(c.Request.Context(), itemID)
	if err != nil {
		respondError(c, err, "item_controller")
		return
	}
	if found == nil {
		found = []services.SuggestedItem{}
	}
	c.JSON(http.StatusOK, gin.H{"items": found})
}

// SuggestChoice reports the suggestions the user picked.
func (ic *ItemController) SuggestChoice(c *gin.Context) {
	var infos []analyzer.SuggestInfo
	if err := c.ShouldBindJSON(&infos); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := ic.suggest.HandleSuggestChoice(c.Request.Context(), infos); err != nil {
		respondError(c, err, "item_controller")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User choice of suggested item was sent for handling to ML"})
}
