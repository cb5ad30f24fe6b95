package api

import (
	"github.com/gin-gonic/gin"

	"github.com/twalsh/matchup-edge/internal/api/handlers"
	"github.com/twalsh/matchup-edge/internal/api/middleware"
	"github.com/twalsh/matchup-edge/internal/services"
	"github.com/twalsh/matchup-edge/pkg/config"
	"github.com/twalsh/matchup-edge/pkg/database"
)

// SetupRoutes configures all API routes on the given router group
func SetupRoutes(
	group *gin.RouterGroup,
	db *database.DB,
	cfg *config.Config,
	datasets *services.DatasetService,
	uploads *services.UploadService,
	enrichment *services.EnrichmentService,
	refresher *services.RefresherService,
	limiter *services.RequestRateLimiter,
) {
	scheduleHandler := handlers.NewScheduleHandler(datasets, db, cfg)
	boardHandler := handlers.NewBoardHandler(refresher, cfg)
	tableHandler := handlers.NewTableHandler(refresher, cfg)
	refreshHandler := handlers.NewRefreshHandler(refresher, cfg)
	providerHandler := handlers.NewProviderHandler(enrichment)
	uploadHandler := handlers.NewUploadHandler(uploads)
	exportHandler := handlers.NewExportHandler(refresher, cfg)
	glossaryHandler := handlers.NewGlossaryHandler(db)
	sheetHandler := handlers.NewSheetHandler(db)

	// Schedule and reference data
	group.GET("/schedule", scheduleHandler.GetSchedule)
	group.GET("/teams", scheduleHandler.GetTeams)

	// Board and unified table
	group.GET("/board", boardHandler.GetBoard)
	group.GET("/table", tableHandler.GetTable)
	group.GET("/export/board.csv", exportHandler.ExportBoardCSV)
	group.GET("/export/table.csv", exportHandler.ExportTableCSV)

	// Refresh pipeline
	group.GET("/refresh/status", refreshHandler.GetRefreshStatus)
	group.GET("/providers", providerHandler.GetProviders)
	group.GET("/uploads", uploadHandler.ListUploads)

	// Glossary
	group.GET("/glossary", glossaryHandler.GetGlossary)
	group.GET("/glossary/search", glossaryHandler.SearchGlossary)

	// Saved sheets
	group.POST("/sheets", sheetHandler.CreateSheet)
	group.GET("/sheets", sheetHandler.ListSheets)
	group.GET("/sheets/:id", sheetHandler.GetSheet)

	// The expensive routes sit behind the per-IP limiter
	limited := group.Group("")
	limited.Use(middleware.RateLimit(limiter))
	{
		limited.POST("/refresh", refreshHandler.RunRefresh)
		limited.POST("/uploads", uploadHandler.PostUpload)
	}
}
