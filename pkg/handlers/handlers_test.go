package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	config "cocinai-engine/configs"
	"cocinai-engine/pkg/models"
	"cocinai-engine/pkg/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestMain(m *testing.M) {
	// テスト環境の設定
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Port:               "8080",
		ModelsDir:          t.TempDir(),
		ModelKind:          "auto",
		ModelMaxAgeDays:    7,
		HistoryDays:        365,
		SafetyFactor:       1.2,
		UrgencyHighDays:    7,
		UrgencyMediumDays:  15,
		SmoothingAlpha:     0.3,
		BlendPrimaryWeight: 0.7,
		DefaultTier:        config.TierStandard,
	}
}

// setupTestRouter 販売実績60日分（毎日10食）をシードしたルーターを組み立てる
func setupTestRouter(t *testing.T) (*gin.Engine, *services.InMemoryEventStore) {
	t.Helper()
	cfg := testConfig(t)

	store := services.NewInMemoryEventStore()
	store.AddDish(models.Dish{ID: 1, Name: "カスエラ"})
	store.AddIngredient(models.Ingredient{ID: 1, Name: "牛肉", Unit: "kg"})
	store.SetRecipe(1, []models.RecipeLine{{IngredientID: 1, IngredientName: "牛肉", Unit: "kg", QuantityPerDish: 0.5}})
	store.SetStock(1, 10)

	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	for i := 0; i < 60; i++ {
		store.AddSales(models.SalesEvent{
			Date:     today.AddDate(0, 0, -i),
			DishID:   1,
			DishName: "カスエラ",
			Quantity: 10,
		})
	}

	modelStore, err := services.NewModelStore(cfg.ModelsDir)
	require.NoError(t, err)
	pipeline := services.NewFeaturePipeline(store)
	forecastService := services.NewDemandForecastService(store, pipeline, modelStore, cfg)
	anomalyService := services.NewAnomalyDetectionService(pipeline, cfg)
	recommendationService := services.NewRecommendationService(store, pipeline, forecastService, cfg)
	analyticsService := services.NewAnalyticsService(store, forecastService, cfg)

	forecastHandler := NewForecastHandler(forecastService)
	anomalyHandler := NewAnomalyHandler(anomalyService)
	purchaseHandler := NewPurchaseHandler(recommendationService)
	analyticsHandler := NewAnalyticsHandler(analyticsService)
	dataHandler := NewDataHandler(store)
	adminHandler := NewAdminHandler(forecastService, modelStore)

	r := gin.New()
	v1 := r.Group("/api/v1")
	{
		forecast := v1.Group("/forecast")
		{
			forecast.POST("/train", forecastHandler.TrainModel)
			forecast.GET("/sales", forecastHandler.PredictSales)
			forecast.POST("/sales/range", forecastHandler.PredictRange)
			forecast.GET("/ingredient", forecastHandler.PredictIngredientDemand)
			forecast.GET("/waste", forecastHandler.PredictWaste)
		}
		anomalies := v1.Group("/anomalies")
		{
			anomalies.GET("/sales", anomalyHandler.GetSalesAnomalies)
			anomalies.GET("/waste", anomalyHandler.GetWasteAnomalies)
		}
		purchases := v1.Group("/purchases")
		{
			purchases.GET("/recommendations", purchaseHandler.GetRecommendations)
			purchases.GET("/recommendations/export", purchaseHandler.ExportRecommendations)
		}
		analytics := v1.Group("/analytics")
		{
			analytics.GET("/weekly", analyticsHandler.GetWeeklyAnalysis)
			analytics.GET("/dashboard", analyticsHandler.GetDashboardInsights)
		}
		data := v1.Group("/data")
		{
			data.POST("/sales/import", dataHandler.ImportSales)
			data.GET("/status", dataHandler.GetStatus)
		}
		admin := v1.Group("/models")
		{
			admin.POST("/retrain", adminHandler.RetrainModel)
			admin.DELETE("/invalidate", adminHandler.InvalidateModel)
			admin.GET("", adminHandler.ListModels)
			admin.GET("/tiers", adminHandler.ListTiers)
		}
	}
	return r, store
}

func doRequest(t *testing.T, r *gin.Engine, method, path string, body []byte) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var parsed map[string]interface{}
	if strings.Contains(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &parsed))
	}
	return w, parsed
}

func TestTrainModelEndpoint(t *testing.T) {
	r, _ := setupTestRouter(t)

	w, body := doRequest(t, r, "POST", "/api/v1/forecast/train", []byte(`{"dish_id": 1}`))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])

	data := body["data"].(map[string]interface{})
	assert.Equal(t, "trained", data["status"])
	assert.Equal(t, "1", data["entity_key"])
}

func TestTrainModelEndpointBadJSON(t *testing.T) {
	r, _ := setupTestRouter(t)

	w, _ := doRequest(t, r, "POST", "/api/v1/forecast/train", []byte(`{"dish_id": "uno"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPredictSalesEndpoint(t *testing.T) {
	r, _ := setupTestRouter(t)

	w, body := doRequest(t, r, "GET", "/api/v1/forecast/sales?dish_id=1&days=7", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])

	data := body["data"].(map[string]interface{})
	points := data["points"].([]interface{})
	assert.Len(t, points, 7)
	// 毎日10食の定常シリーズなので合計はちょうど70
	assert.InDelta(t, 70.0, data["total"].(float64), 0.001)
}

func TestPredictSalesInvalidDishID(t *testing.T) {
	r, _ := setupTestRouter(t)

	w, body := doRequest(t, r, "GET", "/api/v1/forecast/sales?dish_id=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, body["error"].(string), "dish_id")
}

func TestPredictRangeEndpointMissingDates(t *testing.T) {
	r, _ := setupTestRouter(t)

	w, _ := doRequest(t, r, "POST", "/api/v1/forecast/sales/range", []byte(`{}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPredictRangeEndpoint(t *testing.T) {
	r, _ := setupTestRouter(t)

	start := time.Now().UTC().AddDate(0, 0, 1).Format("2006-01-02")
	end := time.Now().UTC().AddDate(0, 0, 3).Format("2006-01-02")
	payload := []byte(`{"dish_id": 1, "start_date": "` + start + `", "end_date": "` + end + `"}`)

	w, body := doRequest(t, r, "POST", "/api/v1/forecast/sales/range", payload)
	require.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, 3.0, data["days"].(float64))
}

func TestPredictIngredientEndpointInvalidID(t *testing.T) {
	r, _ := setupTestRouter(t)

	w, _ := doRequest(t, r, "GET", "/api/v1/forecast/ingredient?ingredient_id=0", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSalesAnomaliesEndpoint(t *testing.T) {
	r, _ := setupTestRouter(t)

	w, body := doRequest(t, r, "GET", "/api/v1/anomalies/sales?days=90", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])

	data := body["data"].(map[string]interface{})
	assert.Equal(t, "sales", data["kind"])
}

func TestRecommendationsEndpoint(t *testing.T) {
	r, _ := setupTestRouter(t)

	w, body := doRequest(t, r, "GET", "/api/v1/purchases/recommendations?days=7", nil)
	require.Equal(t, http.StatusOK, w.Code)

	data := body["data"].(map[string]interface{})
	recs := data["recommendations"].([]interface{})
	require.Len(t, recs, 1)
	rec := recs[0].(map[string]interface{})
	assert.Equal(t, "牛肉", rec["ingredient_name"])
	// 需要70食 × 0.5kg × 安全係数1.2 − 在庫10kg = 32kg
	assert.InDelta(t, 32.0, rec["quantity_to_buy"].(float64), 0.001)
}

func TestExportRecommendationsEndpoint(t *testing.T) {
	r, _ := setupTestRouter(t)

	req, _ := http.NewRequest("GET", "/api/v1/purchases/recommendations/export", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "recomendaciones_")
	assert.Contains(t, w.Header().Get("Content-Type"), "spreadsheetml")
	assert.NotZero(t, w.Body.Len())
}

func TestWeeklyAnalysisEndpointNoData(t *testing.T) {
	cfg := testConfig(t)
	store := services.NewInMemoryEventStore()
	modelStore, err := services.NewModelStore(cfg.ModelsDir)
	require.NoError(t, err)
	pipeline := services.NewFeaturePipeline(store)
	forecastService := services.NewDemandForecastService(store, pipeline, modelStore, cfg)
	analyticsService := services.NewAnalyticsService(store, forecastService, cfg)

	r := gin.New()
	r.GET("/weekly", NewAnalyticsHandler(analyticsService).GetWeeklyAnalysis)

	w, _ := doRequest(t, r, "GET", "/weekly", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDashboardEndpoint(t *testing.T) {
	r, _ := setupTestRouter(t)

	w, body := doRequest(t, r, "GET", "/api/v1/analytics/dashboard", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]interface{})
	assert.NotEmpty(t, data["month"])
}

func TestDataStatusEndpoint(t *testing.T) {
	r, _ := setupTestRouter(t)

	w, body := doRequest(t, r, "GET", "/api/v1/data/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, 60.0, data["sales_rows"].(float64))
	assert.Equal(t, 1.0, data["dishes"].(float64))
}

func TestImportSalesEndpoint(t *testing.T) {
	r, store := setupTestRouter(t)
	before := store.SalesCount()

	// アップロード用のワークブックを組み立てる
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	f.SetCellValue(sheet, "A1", "fecha")
	f.SetCellValue(sheet, "B1", "plato")
	f.SetCellValue(sheet, "C1", "cantidad")
	f.SetCellValue(sheet, "A2", "2025-06-01")
	f.SetCellValue(sheet, "B2", "エンパナーダ")
	f.SetCellValue(sheet, "C2", 25)

	var fileBuf bytes.Buffer
	require.NoError(t, f.Write(&fileBuf))

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "ventas.xlsx")
	require.NoError(t, err)
	_, err = part.Write(fileBuf.Bytes())
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req, _ := http.NewRequest("POST", "/api/v1/data/sales/import", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &parsed))
	data := parsed["data"].(map[string]interface{})
	assert.Equal(t, 1.0, data["imported_rows"].(float64))
	assert.Equal(t, before+1, store.SalesCount())
}

func TestImportSalesEndpointNoFile(t *testing.T) {
	r, _ := setupTestRouter(t)

	w, _ := doRequest(t, r, "POST", "/api/v1/data/sales/import", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListModelsEndpoint(t *testing.T) {
	r, _ := setupTestRouter(t)

	// 学習前は空
	w, body := doRequest(t, r, "GET", "/api/v1/models", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0.0, body["count"].(float64))

	doRequest(t, r, "POST", "/api/v1/forecast/train", []byte(`{}`))

	w, body = doRequest(t, r, "GET", "/api/v1/models", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, body["count"].(float64))
}

func TestRetrainAndInvalidateEndpoints(t *testing.T) {
	r, _ := setupTestRouter(t)

	w, body := doRequest(t, r, "POST", "/api/v1/models/retrain", []byte(`{"dish_id": 1}`))
	require.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "trained", data["status"])

	w, body = doRequest(t, r, "DELETE", "/api/v1/models/invalidate?dish_id=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data = body["data"].(map[string]interface{})
	assert.Equal(t, "1", data["entity_key"])

	// 無効化後に一覧から消えている
	w, body = doRequest(t, r, "GET", "/api/v1/models", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0.0, body["count"].(float64))
}

func TestListTiersEndpoint(t *testing.T) {
	r, _ := setupTestRouter(t)

	w, body := doRequest(t, r, "GET", "/api/v1/models/tiers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	tiers := body["data"].([]interface{})
	assert.Len(t, tiers, 3)
}

func TestQueryHelpers(t *testing.T) {
	r := gin.New()
	r.GET("/echo", func(c *gin.Context) {
		days := intQuery(c, "days", 7, 90)
		date, err := dateQuery(c, "start")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"days": days, "start": date.Format("2006-01-02")})
	})

	w, body := doRequest(t, r, "GET", "/echo?days=30&start=2025-06-01", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 30.0, body["days"].(float64))
	assert.Equal(t, "2025-06-01", body["start"])

	// 範囲外はデフォルト値、日付不正はエラー
	w, _ = doRequest(t, r, "GET", "/echo?days=500&start=2025-06-01", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = doRequest(t, r, "GET", "/echo?days=7&start=hoy", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
