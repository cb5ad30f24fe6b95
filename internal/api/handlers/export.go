package handlers

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gopkg.in/guregu/null.v3"

	"github.com/twalsh/matchup-edge/internal/services"
	"github.com/twalsh/matchup-edge/pkg/config"
	"github.com/twalsh/matchup-edge/pkg/utils"
)

type ExportHandler struct {
	refresher *services.RefresherService
	cfg       *config.Config
}

func NewExportHandler(refresher *services.RefresherService, cfg *config.Config) *ExportHandler {
	return &ExportHandler{
		refresher: refresher,
		cfg:       cfg,
	}
}

// ExportBoardCSV streams the picks board as CSV.
// GET /api/v1/export/board.csv?season=2025&week=3
func (h *ExportHandler) ExportBoardCSV(c *gin.Context) {
	result, ok := resolveResult(c, h.refresher, h.cfg)
	if !ok {
		return
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Write([]string{"season", "week", "gameday", "away_team", "home_team", "home_edge", "away_edge", "net_edge", "pick", "verdict"})
	for _, pick := range result.Board.Picks {
		w.Write([]string{
			strconv.Itoa(pick.Game.Season),
			strconv.Itoa(pick.Game.Week),
			pick.Game.Gameday,
			pick.Game.AwayTeam,
			pick.Game.HomeTeam,
			csvFloat(pick.Home.TeamEdge),
			csvFloat(pick.Away.TeamEdge),
			csvFloat(pick.NetEdge),
			pick.Pick,
			pick.Verdict,
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		utils.SendInternalError(c, "Failed to render board CSV")
		return
	}

	sendCSV(c, fmt.Sprintf("board_%d_week%d.csv", result.Season, result.Week), buf.Bytes())
}

// ExportTableCSV streams the unified matchup table as CSV, one row per game
// with every metric and provider column.
// GET /api/v1/export/table.csv?season=2025&week=3
func (h *ExportHandler) ExportTableCSV(c *gin.Context) {
	result, ok := resolveResult(c, h.refresher, h.cfg)
	if !ok {
		return
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Write(result.Table.Header())
	for _, row := range result.Table.Rows {
		w.Write(result.Table.RowStrings(row))
	}
	w.Flush()
	if err := w.Error(); err != nil {
		utils.SendInternalError(c, "Failed to render table CSV")
		return
	}

	sendCSV(c, fmt.Sprintf("matchups_%d_week%d.csv", result.Season, result.Week), buf.Bytes())
}

func sendCSV(c *gin.Context, filename string, data []byte) {
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Data(http.StatusOK, "text/csv", data)
}

func csvFloat(v null.Float) string {
	if !v.Valid {
		return ""
	}
	return strconv.FormatFloat(v.Float64, 'f', 4, 64)
}
