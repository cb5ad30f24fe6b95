package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/twalsh/matchup-edge/internal/nfl"
	"github.com/twalsh/matchup-edge/internal/services"
	"github.com/twalsh/matchup-edge/pkg/utils"
)

type UploadHandler struct {
	uploads *services.UploadService
}

func NewUploadHandler(uploads *services.UploadService) *UploadHandler {
	return &UploadHandler{
		uploads: uploads,
	}
}

// PostUpload accepts a multipart metric file and registers it for refreshes.
// POST /api/v1/uploads (multipart field "file")
func (h *UploadHandler) PostUpload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		utils.SendValidationError(c, "Missing upload", "Attach the metric file under the multipart field \"file\"")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		utils.SendInternalError(c, "Failed to read upload")
		return
	}
	defer file.Close()

	result, err := h.uploads.Load(fileHeader.Filename, file)
	if err != nil {
		respondPipelineError(c, err)
		return
	}

	utils.SendSuccess(c, uploadSummary(result))
}

// ListUploads returns the uploads registered this session, newest first.
// GET /api/v1/uploads
func (h *UploadHandler) ListUploads(c *gin.Context) {
	results := h.uploads.List()
	summaries := make([]gin.H, 0, len(results))
	for _, r := range results {
		summaries = append(summaries, uploadSummary(r))
	}
	utils.SendSuccess(c, summaries)
}

// uploadSummary strips the parsed table out of the response; refreshes
// reference uploads by id, they never need the table over the wire.
func uploadSummary(r *nfl.UploadResult) gin.H {
	return gin.H{
		"upload_id":    r.ID,
		"filename":     r.Filename,
		"format":       r.Format,
		"season":       r.Table.Season,
		"through_week": r.Table.ThroughWeek,
		"row_count":    r.RowCount,
		"column_count": r.ColumnCount,
		"skipped_rows": r.SkippedRows,
		"uploaded_at":  r.UploadedAt,
	}
}
