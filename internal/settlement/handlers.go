package settlement

import (
	"github.com/gin-gonic/gin"

	"github.com/Kaviyasree25/FinClear-Engine/pkg/response"
)

// GinHandlers contains HTTP handlers for settlement endpoints
type GinHandlers struct {
	tracker *Tracker
}

func NewGinHandlers(tracker *Tracker) *GinHandlers {
	return &GinHandlers{
		tracker: tracker,
	}
}

// GetRecordHandler handles GET requests for one settlement record.
func (h *GinHandlers) GetRecordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		recordID := c.Param("record_id")

		record, err := h.tracker.Get(recordID)
		response.Handle(c, record, err)
	}
}

// GetHistoryHandler handles GET requests for a record's transition history.
func (h *GinHandlers) GetHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		recordID := c.Param("record_id")

		history, err := h.tracker.History(recordID)
		response.Handle(c, history, err)
	}
}

// GetCounterpartyRecordsHandler handles GET requests listing every
// settlement record a counterparty appears in.
func (h *GinHandlers) GetCounterpartyRecordsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		counterparty := c.Query("counterparty")
		if counterparty == "" {
			response.BadRequest(c, "counterparty query parameter is required")
			return
		}

		records, err := h.tracker.CounterpartyRecords(counterparty)
		response.Handle(c, records, err)
	}
}

// GetBatchRecordsHandler handles GET requests listing every settlement
// record opened for a batch.
func (h *GinHandlers) GetBatchRecordsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		batchID := c.Param("batch_id")

		records, err := h.tracker.BatchRecords(batchID)
		response.Handle(c, records, err)
	}
}

// FundingResultHandler handles POST requests delivering an external funding
// result for a pending record.
func (h *GinHandlers) FundingResultHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		recordID := c.Param("record_id")
		var request struct {
			Funded *bool `json:"funded" binding:"required"`
		}
		if err := c.ShouldBindJSON(&request); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		record, err := h.tracker.ResolveFunding(recordID, *request.Funded)
		response.Handle(c, record, err)
	}
}
