package handlers

import (
	"fmt"
	"net/http"
	"time"

	"cocinai-engine/pkg/services"

	"github.com/gin-gonic/gin"
)

// PurchaseHandler 仕入れ推奨ハンドラー
type PurchaseHandler struct {
	recommendationService *services.RecommendationService
}

// NewPurchaseHandler 新しい仕入れ推奨ハンドラーを作成
func NewPurchaseHandler(recommendationService *services.RecommendationService) *PurchaseHandler {
	return &PurchaseHandler{recommendationService: recommendationService}
}

// GetRecommendations 仕入れ推奨を返す
func (ph *PurchaseHandler) GetRecommendations(c *gin.Context) {
	days := intQuery(c, "days", 7, 90)
	tier := c.Query("tier")
	kind := c.Query("model_kind")

	plan, err := ph.recommendationService.RecommendPurchases(days, tier, kind)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    plan,
	})
}

// ExportRecommendations 仕入れ推奨をExcelファイルとしてダウンロードさせる
func (ph *PurchaseHandler) ExportRecommendations(c *gin.Context) {
	days := intQuery(c, "days", 7, 90)
	tier := c.Query("tier")
	kind := c.Query("model_kind")

	plan, err := ph.recommendationService.RecommendPurchases(days, tier, kind)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	file, err := ph.recommendationService.ExportRecommendationsXLSX(plan)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Excelファイルの生成に失敗しました: " + err.Error()})
		return
	}

	filename := fmt.Sprintf("recomendaciones_%s.xlsx", time.Now().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	if err := file.Write(c.Writer); err != nil {
		c.Status(http.StatusInternalServerError)
	}
}
