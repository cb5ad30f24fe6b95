package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/twalsh/matchup-edge/internal/models"
	"github.com/twalsh/matchup-edge/pkg/database"
	"github.com/twalsh/matchup-edge/pkg/utils"
)

type GlossaryHandler struct {
	db *database.DB
}

func NewGlossaryHandler(db *database.DB) *GlossaryHandler {
	return &GlossaryHandler{
		db: db,
	}
}

var glossaryCategories = []string{"offense", "defense", "provider", "derived"}

// GetGlossary returns the metric glossary with an optional category filter
// GET /api/v1/glossary?category=defense
func (h *GlossaryHandler) GetGlossary(c *gin.Context) {
	if h.db == nil {
		utils.SendServiceUnavailable(c, utils.ErrCodeDBUnavailable, "The glossary needs a configured database")
		return
	}

	category := c.Query("category")
	if category != "" {
		valid := false
		for _, known := range glossaryCategories {
			if category == known {
				valid = true
				break
			}
		}
		if !valid {
			utils.SendValidationError(c, "Invalid category", "Category must be one of: offense, defense, provider, derived")
			return
		}
	}

	defs, err := models.GetMetricDefinitions(h.db, category)
	if err != nil {
		utils.SendInternalError(c, "Failed to fetch glossary")
		return
	}

	utils.SendSuccess(c, defs)
}

// SearchGlossary searches metric names and definitions
// GET /api/v1/glossary/search?q=pressure
func (h *GlossaryHandler) SearchGlossary(c *gin.Context) {
	if h.db == nil {
		utils.SendServiceUnavailable(c, utils.ErrCodeDBUnavailable, "The glossary needs a configured database")
		return
	}

	query := c.Query("q")
	if len(query) < 2 {
		utils.SendValidationError(c, "Query too short", "Search query must be at least 2 characters")
		return
	}

	defs, err := models.SearchMetricDefinitions(h.db, query)
	if err != nil {
		utils.SendInternalError(c, "Failed to search glossary")
		return
	}

	utils.SendSuccess(c, defs)
}
