package handlers

import (
	"net/http"

	"cocinai-engine/pkg/services"

	"github.com/gin-gonic/gin"
)

// AnalyticsHandler 集計分析ハンドラー
type AnalyticsHandler struct {
	analyticsService *services.AnalyticsService
}

// NewAnalyticsHandler 新しい分析ハンドラーを作成
func NewAnalyticsHandler(analyticsService *services.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analyticsService: analyticsService}
}

// GetWeeklyAnalysis 今週の販売を前週（または前年同週）と比較する
func (ah *AnalyticsHandler) GetWeeklyAnalysis(c *gin.Context) {
	dishID, err := dishIDQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	analysis, err := ah.analyticsService.AnalyzeWeeklySales(dishID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    analysis,
	})
}

// GetDashboardInsights 当月サマリーを返す
func (ah *AnalyticsHandler) GetDashboardInsights(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    ah.analyticsService.GetDashboardInsights(),
	})
}
