package handlers

import (
	"net/http"
	"strconv"
	"time"

	"cocinai-engine/pkg/services"

	"github.com/gin-gonic/gin"
)

// ForecastHandler 需要予測ハンドラー
type ForecastHandler struct {
	forecastService *services.DemandForecastService
}

// NewForecastHandler 新しい需要予測ハンドラーを作成
func NewForecastHandler(forecastService *services.DemandForecastService) *ForecastHandler {
	return &ForecastHandler{forecastService: forecastService}
}

// TrainRequest 学習リクエスト
type TrainRequest struct {
	DishID    *int64 `json:"dish_id,omitempty"`
	ModelKind string `json:"model_kind,omitempty"`
	Force     bool   `json:"force,omitempty"`
}

// TrainModel 販売モデルを学習する
func (fh *ForecastHandler) TrainModel(c *gin.Context) {
	var request TrainRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "リクエストの解析に失敗しました: " + err.Error(),
		})
		return
	}

	result := fh.forecastService.TrainSalesModel(request.DishID, request.ModelKind, request.Force)
	c.JSON(http.StatusOK, gin.H{
		"success": result.Status != "insufficient_data",
		"data":    result,
	})
}

// PredictSales 明日からN日分の需要予測を返す
func (fh *ForecastHandler) PredictSales(c *gin.Context) {
	dishID, err := dishIDQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	days := intQuery(c, "days", 7, 365)
	kind := c.Query("model_kind")

	forecast, err := fh.forecastService.PredictSales(dishID, kind, days)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    forecast,
	})
}

// RangeRequest 期間指定予測のリクエスト
type RangeRequest struct {
	DishID    *int64 `json:"dish_id,omitempty"`
	StartDate string `json:"start_date" binding:"required"`
	EndDate   string `json:"end_date" binding:"required"`
	ModelKind string `json:"model_kind,omitempty"`
}

// PredictRange 期間指定の需要予測（前年同期間比較つき）
func (fh *ForecastHandler) PredictRange(c *gin.Context) {
	var request RangeRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "リクエストの解析に失敗しました: " + err.Error(),
		})
		return
	}
	start, err := time.Parse("2006-01-02", request.StartDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start_date の日付形式が不正です: " + request.StartDate})
		return
	}
	end, err := time.Parse("2006-01-02", request.EndDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end_date の日付形式が不正です: " + request.EndDate})
		return
	}

	forecast, err := fh.forecastService.PredictSalesRange(request.DishID, start, end, request.ModelKind)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    forecast,
	})
}

// PredictIngredientDemand 食材単位の需要予測
func (fh *ForecastHandler) PredictIngredientDemand(c *gin.Context) {
	raw := c.Query("ingredient_id")
	ingredientID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ingredientID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ingredient_id が不正です: " + raw})
		return
	}
	days := intQuery(c, "days", 7, 365)
	tier := c.Query("tier")

	result := fh.forecastService.PredictIngredientDemand(ingredientID, days, tier)
	c.JSON(http.StatusOK, gin.H{
		"success": result.Status == "ok",
		"data":    result,
	})
}

// PredictWaste 廃棄量の予測
func (fh *ForecastHandler) PredictWaste(c *gin.Context) {
	days := intQuery(c, "days", 7, 365)
	result := fh.forecastService.PredictWaste(days)
	c.JSON(http.StatusOK, gin.H{
		"success": result.Status == "ok",
		"data":    result,
	})
}
