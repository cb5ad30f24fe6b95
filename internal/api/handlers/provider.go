package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/twalsh/matchup-edge/internal/services"
	"github.com/twalsh/matchup-edge/pkg/utils"
)

type ProviderHandler struct {
	enrichment *services.EnrichmentService
}

func NewProviderHandler(enrichment *services.EnrichmentService) *ProviderHandler {
	return &ProviderHandler{
		enrichment: enrichment,
	}
}

// GetProviders reports each adapter's enablement, credential presence and
// circuit breaker state.
// GET /api/v1/providers
func (h *ProviderHandler) GetProviders(c *gin.Context) {
	utils.SendSuccess(c, h.enrichment.States())
}
