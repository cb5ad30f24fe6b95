package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/twalsh/matchup-edge/internal/models"
	"github.com/twalsh/matchup-edge/internal/services"
	"github.com/twalsh/matchup-edge/pkg/config"
	"github.com/twalsh/matchup-edge/pkg/database"
	"github.com/twalsh/matchup-edge/pkg/utils"
)

type ScheduleHandler struct {
	datasets *services.DatasetService
	db       *database.DB
	cfg      *config.Config
}

func NewScheduleHandler(datasets *services.DatasetService, db *database.DB, cfg *config.Config) *ScheduleHandler {
	return &ScheduleHandler{
		datasets: datasets,
		db:       db,
		cfg:      cfg,
	}
}

// GetSchedule returns the regular season schedule for a season.
// GET /api/v1/schedule?season=2025&week=3
func (h *ScheduleHandler) GetSchedule(c *gin.Context) {
	season, ok := intQuery(c, "season", h.cfg.DefaultSeason)
	if !ok {
		return
	}
	week, ok := intQuery(c, "week", 0)
	if !ok {
		return
	}

	table, err := h.datasets.FetchSchedule(c.Request.Context(), season)
	if err != nil {
		respondPipelineError(c, err)
		return
	}

	games := table.Games
	if week > 0 {
		games = table.WeekGames(week)
	}

	utils.SendSuccess(c, gin.H{
		"season":     table.Season,
		"fetched_at": table.FetchedAt,
		"games":      games,
	})
}

// GetTeams returns the team reference table, from the database when one is
// seeded and the static league list otherwise.
// GET /api/v1/teams
func (h *ScheduleHandler) GetTeams(c *gin.Context) {
	if h.db != nil {
		teams, err := models.ListTeams(h.db)
		if err == nil && len(teams) > 0 {
			utils.SendSuccess(c, teams)
			return
		}
	}
	utils.SendSuccess(c, models.DefaultTeams())
}
