package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/twalsh/matchup-edge/internal/models"
	"github.com/twalsh/matchup-edge/pkg/database"
	"github.com/twalsh/matchup-edge/pkg/utils"
)

type SheetHandler struct {
	db *database.DB
}

func NewSheetHandler(db *database.DB) *SheetHandler {
	return &SheetHandler{
		db: db,
	}
}

type sheetPayload struct {
	Season int            `json:"season" binding:"required"`
	Week   int            `json:"week" binding:"required,min=1,max=22"`
	Picks  datatypes.JSON `json:"picks" binding:"required"`
	Note   string         `json:"note" binding:"max=500"`
}

// CreateSheet saves a picks snapshot.
// POST /api/v1/sheets {"season": 2025, "week": 3, "picks": [...], "note": "..."}
func (h *SheetHandler) CreateSheet(c *gin.Context) {
	if h.db == nil {
		utils.SendServiceUnavailable(c, utils.ErrCodeDBUnavailable, "Saving sheets needs a configured database")
		return
	}

	var payload sheetPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		utils.SendValidationError(c, "Invalid request body", err.Error())
		return
	}

	sheet := &models.PickSheet{
		ID:     uuid.New(),
		Season: payload.Season,
		Week:   payload.Week,
		Picks:  payload.Picks,
		Note:   payload.Note,
	}
	if err := models.CreatePickSheet(h.db, sheet); err != nil {
		utils.SendInternalError(c, "Failed to save sheet")
		return
	}

	utils.SendSuccess(c, sheet)
}

// GetSheet loads a saved sheet by id.
// GET /api/v1/sheets/:id
func (h *SheetHandler) GetSheet(c *gin.Context) {
	if h.db == nil {
		utils.SendServiceUnavailable(c, utils.ErrCodeDBUnavailable, "Saved sheets need a configured database")
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.SendValidationError(c, "Invalid sheet id", err.Error())
		return
	}

	sheet, err := models.GetPickSheet(h.db, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			utils.SendNotFound(c, "Sheet not found")
			return
		}
		utils.SendInternalError(c, "Failed to load sheet")
		return
	}

	utils.SendSuccess(c, sheet)
}

// ListSheets returns the saved sheets for a window.
// GET /api/v1/sheets?season=2025&week=3
func (h *SheetHandler) ListSheets(c *gin.Context) {
	if h.db == nil {
		utils.SendServiceUnavailable(c, utils.ErrCodeDBUnavailable, "Saved sheets need a configured database")
		return
	}

	season, ok := intQuery(c, "season", 0)
	if !ok {
		return
	}
	week, ok := intQuery(c, "week", 0)
	if !ok {
		return
	}
	if season == 0 || week == 0 {
		utils.SendValidationError(c, "Missing window", "Both season and week are required")
		return
	}

	sheets, err := models.ListPickSheets(h.db, season, week)
	if err != nil {
		utils.SendInternalError(c, "Failed to list sheets")
		return
	}

	utils.SendSuccess(c, sheets)
}
