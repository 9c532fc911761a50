package pipeline

import (
	"github.com/gin-gonic/gin"

	"github.com/Kaviyasree25/FinClear-Engine/internal/types"
	"github.com/Kaviyasree25/FinClear-Engine/pkg/response"
)

// GinHandlers contains HTTP handlers for pipeline endpoints
type GinHandlers struct {
	service *Service
}

func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// SubmitBatchHandler handles POST requests to run one batch of raw trades
// through the pipeline. The body carries the ordered trade sequence.
func (h *GinHandlers) SubmitBatchHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var request struct {
			Trades []types.RawTrade `json:"trades" binding:"required"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		report, err := h.service.Run(c.Request.Context(), request.Trades)
		response.Handle(c, report, err)
	}
}

// GetBatchHandler handles GET requests for a completed batch report.
func (h *GinHandlers) GetBatchHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		batchID := c.Param("batch_id")

		report, err := h.service.GetReport(batchID)
		response.Handle(c, report, err)
	}
}
