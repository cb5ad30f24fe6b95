package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/twalsh/matchup-edge/internal/nfl"
	"github.com/twalsh/matchup-edge/internal/services"
	"github.com/twalsh/matchup-edge/pkg/utils"
)

// respondPipelineError maps pipeline errors onto the response envelope.
// Dataset retrieval failures point the caller at the upload fallback;
// provider failures never reach here because a refresh absorbs them.
func respondPipelineError(c *gin.Context, err error) {
	var retrievalErr *nfl.RetrievalError
	if errors.As(err, &retrievalErr) {
		utils.SendBadGateway(c, utils.ErrCodeRetrieval,
			fmt.Sprintf("Failed to retrieve the %s dataset", retrievalErr.Source),
			"The upstream source is unreachable. Upload a metrics file and retry the refresh with its upload_id.")
		return
	}

	var formatErr *nfl.FormatError
	if errors.As(err, &formatErr) {
		utils.SendError(c, http.StatusBadRequest,
			utils.NewAppError(utils.ErrCodeFormat, "Upload could not be parsed", formatErr.Error()))
		return
	}

	if errors.Is(err, services.ErrRefreshInProgress) {
		utils.SendError(c, http.StatusConflict,
			utils.NewAppError(utils.ErrCodeRefreshBusy, "A refresh is already running", "Wait for it to finish and retry."))
		return
	}

	if errors.Is(err, services.ErrUnknownUpload) {
		utils.SendValidationError(c, "Unknown upload id", err.Error())
		return
	}

	utils.SendInternalError(c, "Refresh failed")
}
