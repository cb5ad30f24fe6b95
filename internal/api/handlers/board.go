package handlers

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/twalsh/matchup-edge/internal/services"
	"github.com/twalsh/matchup-edge/pkg/config"
	"github.com/twalsh/matchup-edge/pkg/utils"
)

type BoardHandler struct {
	refresher *services.RefresherService
	cfg       *config.Config
}

func NewBoardHandler(refresher *services.RefresherService, cfg *config.Config) *BoardHandler {
	return &BoardHandler{
		refresher: refresher,
		cfg:       cfg,
	}
}

// GetBoard returns the picks board for a window, running a refresh first if
// none has been built yet.
// GET /api/v1/board?season=2025&week=3
func (h *BoardHandler) GetBoard(c *gin.Context) {
	result, ok := resolveResult(c, h.refresher, h.cfg)
	if !ok {
		return
	}

	utils.SendSuccess(c, gin.H{
		"board":             result.Board,
		"source":            result.Source,
		"skipped_providers": result.Skipped,
		"refreshed_at":      result.RefreshedAt,
	})
}

// intQuery parses an integer query parameter, falling back to a default
// when the parameter is absent.
func intQuery(c *gin.Context, name string, fallback int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		utils.SendValidationError(c, fmt.Sprintf("Invalid %s", name), fmt.Sprintf("%q is not a number", raw))
		return 0, false
	}
	return value, true
}

// resolveResult finds the stored refresh for the requested window, or runs
// one when the window has never been refreshed. It writes the error
// response itself, so callers just bail out on !ok.
func resolveResult(c *gin.Context, refresher *services.RefresherService, cfg *config.Config) (*services.RefreshResult, bool) {
	season, ok := intQuery(c, "season", cfg.DefaultSeason)
	if !ok {
		return nil, false
	}
	week, ok := intQuery(c, "week", cfg.DefaultWeek)
	if !ok {
		return nil, false
	}
	if week < 1 || week > 22 {
		utils.SendValidationError(c, "Invalid week", "Week must be between 1 and 22")
		return nil, false
	}

	if result, found := refresher.Result(season, week); found {
		return result, true
	}

	result, err := refresher.RefreshOnDemand(c.Request.Context(), services.RefreshRequest{Season: season, Week: week})
	if err != nil {
		respondPipelineError(c, err)
		return nil, false
	}
	return result, true
}
