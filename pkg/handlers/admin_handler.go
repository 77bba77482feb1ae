package handlers

import (
	"net/http"
	"strconv"

	config "cocinai-engine/configs"
	"cocinai-engine/pkg/services"

	"github.com/gin-gonic/gin"
)

// AdminHandler は学習済みモデルの管理操作のハンドラです。
type AdminHandler struct {
	forecastService *services.DemandForecastService
	modelStore      *services.ModelStore
}

// NewAdminHandler は新しいAdminHandlerを生成します。
func NewAdminHandler(forecastService *services.DemandForecastService, modelStore *services.ModelStore) *AdminHandler {
	return &AdminHandler{forecastService: forecastService, modelStore: modelStore}
}

// RetrainModel は保存済みモデルを無視して強制的に再学習します。
func (h *AdminHandler) RetrainModel(c *gin.Context) {
	var request TrainRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストの解析に失敗しました: " + err.Error()})
		return
	}
	result := h.forecastService.TrainSalesModel(request.DishID, request.ModelKind, true)
	c.JSON(http.StatusOK, gin.H{
		"success": result.Status == "trained",
		"data":    result,
	})
}

// InvalidateModel は保存済みモデルを削除します。
func (h *AdminHandler) InvalidateModel(c *gin.Context) {
	entityKey := c.Query("entity_key")
	if entityKey == "" {
		if id := c.Query("dish_id"); id != "" {
			if _, err := strconv.ParseInt(id, 10, 64); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "dish_id が不正です: " + id})
				return
			}
			entityKey = id
		} else {
			entityKey = services.EntityKeyAll
		}
	}
	kind := services.ResolveModelKind(c.Query("model_kind"))
	h.modelStore.Invalidate(entityKey, kind)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"entity_key": entityKey, "model_kind": kind},
	})
}

// ListModels は保存済みモデルのメタデータ一覧を返します。
func (h *AdminHandler) ListModels(c *gin.Context) {
	metas, err := h.modelStore.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "モデル一覧の取得に失敗しました: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    metas,
		"count":   len(metas),
	})
}

// ListTiers はデータ量ティアの一覧を返します。
func (h *AdminHandler) ListTiers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    config.AllTiers(),
	})
}
