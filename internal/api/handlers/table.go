package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/twalsh/matchup-edge/internal/services"
	"github.com/twalsh/matchup-edge/pkg/config"
	"github.com/twalsh/matchup-edge/pkg/utils"
)

type TableHandler struct {
	refresher *services.RefresherService
	cfg       *config.Config
}

func NewTableHandler(refresher *services.RefresherService, cfg *config.Config) *TableHandler {
	return &TableHandler{
		refresher: refresher,
		cfg:       cfg,
	}
}

// GetTable returns the unified matchup table for a window, refreshing first
// when the window has never been built.
// GET /api/v1/table?season=2025&week=3
func (h *TableHandler) GetTable(c *gin.Context) {
	result, ok := resolveResult(c, h.refresher, h.cfg)
	if !ok {
		return
	}

	utils.SendSuccess(c, gin.H{
		"table":             result.Table,
		"source":            result.Source,
		"skipped_providers": result.Skipped,
		"refreshed_at":      result.RefreshedAt,
	})
}
