package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/twalsh/matchup-edge/internal/services"
	"github.com/twalsh/matchup-edge/pkg/database"
)

type HealthHandler struct {
	db        *database.DB
	refresher *services.RefresherService
	hub       *services.WebSocketHub
}

func NewHealthHandler(db *database.DB, refresher *services.RefresherService, hub *services.WebSocketHub) *HealthHandler {
	return &HealthHandler{
		db:        db,
		refresher: refresher,
		hub:       hub,
	}
}

// GetHealth returns liveness plus the state of each optional dependency.
// It always answers 200 while the process is up; a degraded dependency
// shows up in the body, not the status code.
func (h *HealthHandler) GetHealth(c *gin.Context) {
	deps := gin.H{
		"database":  h.databaseState(),
		"scheduler": h.refresher.GetStatus()["scheduler_running"],
	}
	if h.hub != nil {
		deps["stream_clients"] = h.hub.ClientCount()
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"service":      "matchup-edge",
		"time":         time.Now().UTC(),
		"dependencies": deps,
	})
}

func (h *HealthHandler) databaseState() string {
	if h.db == nil {
		return "disabled"
	}
	sqlDB, err := h.db.DB.DB()
	if err != nil {
		return "error"
	}
	if err := sqlDB.Ping(); err != nil {
		return "error"
	}
	return "ok"
}
