package handlers

import (
	"net/http"

	"cocinai-engine/pkg/services"

	"github.com/gin-gonic/gin"
)

// AnomalyHandler 異常検知ハンドラー
type AnomalyHandler struct {
	anomalyService *services.AnomalyDetectionService
}

// NewAnomalyHandler 新しい異常検知ハンドラーを作成
func NewAnomalyHandler(anomalyService *services.AnomalyDetectionService) *AnomalyHandler {
	return &AnomalyHandler{anomalyService: anomalyService}
}

// GetSalesAnomalies 販売数の異常を検出して返す
func (ah *AnomalyHandler) GetSalesAnomalies(c *gin.Context) {
	days := intQuery(c, "days", 90, 365)
	report := ah.anomalyService.DetectSalesAnomalies(days)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    report,
	})
}

// GetWasteAnomalies 廃棄量の異常を検出して返す
func (ah *AnomalyHandler) GetWasteAnomalies(c *gin.Context) {
	days := intQuery(c, "days", 90, 365)
	report := ah.anomalyService.DetectWasteAnomalies(days)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    report,
	})
}
