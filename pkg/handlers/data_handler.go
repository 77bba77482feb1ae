package handlers

import (
	"net/http"

	"cocinai-engine/pkg/services"

	"github.com/gin-gonic/gin"
)

// DataHandler 販売履歴の取り込みとシード状態の確認
type DataHandler struct {
	store *services.InMemoryEventStore
}

// NewDataHandler 新しいデータハンドラーを作成
func NewDataHandler(store *services.InMemoryEventStore) *DataHandler {
	return &DataHandler{store: store}
}

// ImportSales Excelワークブックから販売履歴を取り込む。
// multipart/form-data の "file" フィールドを想定
func (dh *DataHandler) ImportSales(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ファイルが指定されていません: " + err.Error()})
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ファイルを開けませんでした: " + err.Error()})
		return
	}
	defer f.Close()

	imported, err := dh.store.ImportSalesWorkbook(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"imported_rows": imported,
			"total_rows":    dh.store.SalesCount(),
		},
	})
}

// GetStatus 保持しているデータの概況を返す
func (dh *DataHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"sales_rows":  dh.store.SalesCount(),
			"dishes":      len(dh.store.Dishes()),
			"ingredients": len(dh.store.Ingredients()),
		},
	})
}
