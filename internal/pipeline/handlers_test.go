package pipeline

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kaviyasree25/FinClear-Engine/internal/screening"
	"github.com/Kaviyasree25/FinClear-Engine/internal/types"
)

func newTestPipelineRouter(t *testing.T) (*gin.Engine, *Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc := newTestService(t, testConfig(), screening.DeviationScorer{}, fundingAlways(true))
	handlers := NewGinHandlers(svc)

	router := gin.New()
	router.POST("/batches", handlers.SubmitBatchHandler())
	router.GET("/batches/:batch_id", handlers.GetBatchHandler())
	return router, svc
}

func TestSubmitBatchHandlerBadBody(t *testing.T) {
	router, _ := newTestPipelineRouter(t)

	for _, body := range []string{"", "{", `{"no_trades": true}`} {
		req := httptest.NewRequest(http.MethodPost, "/batches", bytes.NewReader([]byte(body)))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, "body %q", body)
	}
}

func TestSubmitBatchHandler(t *testing.T) {
	router, svc := newTestPipelineRouter(t)

	payload, err := json.Marshal(map[string]interface{}{"trades": mixedBatch()})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/batches", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	var envelope struct {
		Success bool              `json:"success"`
		Data    types.BatchReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.True(t, envelope.Success)
	assert.NotEmpty(t, envelope.Data.BatchID)
	assert.Equal(t, 5, envelope.Data.AcceptedCount)
	assert.Equal(t, []string{"T6"}, envelope.Data.FlaggedTradeIDs)

	// The completed report is retrievable by batch ID.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/batches/"+envelope.Data.BatchID, nil))
	assert.Equal(t, http.StatusOK, w.Code)

	loaded, err := svc.GetReport(envelope.Data.BatchID)
	require.NoError(t, err)
	assert.Len(t, loaded.Obligations, 3)
}

func TestGetBatchHandlerNotFound(t *testing.T) {
	router, _ := newTestPipelineRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/batches/BAT_missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "NOT_FOUND")
}
