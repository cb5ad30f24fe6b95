package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/twalsh/matchup-edge/internal/nfl"
	"github.com/twalsh/matchup-edge/internal/services"
	"github.com/twalsh/matchup-edge/pkg/config"
	"github.com/twalsh/matchup-edge/pkg/utils"
)

type RefreshHandler struct {
	refresher *services.RefresherService
	cfg       *config.Config
}

func NewRefreshHandler(refresher *services.RefresherService, cfg *config.Config) *RefreshHandler {
	return &RefreshHandler{
		refresher: refresher,
		cfg:       cfg,
	}
}

type refreshPayload struct {
	Season   int            `json:"season" binding:"required"`
	Week     int            `json:"week" binding:"required,min=1,max=22"`
	UploadID string         `json:"upload_id"`
	Weights  *tuningPayload `json:"weights"`
}

// tuningPayload overrides individual edge parameters; absent fields keep
// their configured values.
type tuningPayload struct {
	QB                *float64 `json:"qb"`
	RB                *float64 `json:"rb"`
	WR                *float64 `json:"wr"`
	TE                *float64 `json:"te"`
	OL                *float64 `json:"ol"`
	QBCoverageShare   *float64 `json:"qb_coverage_share"`
	RBRunDefenseShare *float64 `json:"rb_run_defense_share"`
	TECoverageLBShare *float64 `json:"te_coverage_lb_share"`
	OLPassProShare    *float64 `json:"ol_pass_pro_share"`
	TrenchDepStrength *float64 `json:"trench_dep_strength"`
	CloseMargin       *float64 `json:"close_margin"`
}

// RunRefresh triggers an on-demand pipeline run.
// POST /api/v1/refresh {"season": 2025, "week": 3, "upload_id": "...", "weights": {"qb": 1.4}}
func (h *RefreshHandler) RunRefresh(c *gin.Context) {
	var payload refreshPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		utils.SendValidationError(c, "Invalid request body", err.Error())
		return
	}

	req := services.RefreshRequest{
		Season:   payload.Season,
		Week:     payload.Week,
		UploadID: payload.UploadID,
	}
	if payload.Weights != nil {
		params := services.EdgeParamsFromConfig(h.cfg)
		payload.Weights.apply(&params)
		req.Params = &params
	}

	result, err := h.refresher.RefreshOnDemand(c.Request.Context(), req)
	if err != nil {
		respondPipelineError(c, err)
		return
	}

	utils.SendSuccess(c, gin.H{
		"season":            result.Season,
		"week":              result.Week,
		"source":            result.Source,
		"picks":             len(result.Board.Picks),
		"rows":              len(result.Table.Rows),
		"skipped_providers": result.Skipped,
		"refreshed_at":      result.RefreshedAt,
		"duration_ms":       result.Duration.Milliseconds(),
	})
}

// GetRefreshStatus reports the scheduler and per-source fetch states.
// GET /api/v1/refresh/status
func (h *RefreshHandler) GetRefreshStatus(c *gin.Context) {
	utils.SendSuccess(c, h.refresher.GetStatus())
}

func (t *tuningPayload) apply(params *nfl.EdgeParams) {
	if t.QB != nil {
		params.Weights.QB = *t.QB
	}
	if t.RB != nil {
		params.Weights.RB = *t.RB
	}
	if t.WR != nil {
		params.Weights.WR = *t.WR
	}
	if t.TE != nil {
		params.Weights.TE = *t.TE
	}
	if t.OL != nil {
		params.Weights.OL = *t.OL
	}
	if t.QBCoverageShare != nil {
		params.Shares.QBCoverage = *t.QBCoverageShare
	}
	if t.RBRunDefenseShare != nil {
		params.Shares.RBRunDefense = *t.RBRunDefenseShare
	}
	if t.TECoverageLBShare != nil {
		params.Shares.TECoverageLB = *t.TECoverageLBShare
	}
	if t.OLPassProShare != nil {
		params.Shares.OLPassPro = *t.OLPassProShare
	}
	if t.TrenchDepStrength != nil {
		params.TrenchDepStrength = *t.TrenchDepStrength
	}
	if t.CloseMargin != nil {
		params.CloseMargin = *t.CloseMargin
	}
}
