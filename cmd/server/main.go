package main

import (
	"log"
	"net/http"
	"time"

	config "cocinai-engine/configs"
	"cocinai-engine/pkg/handlers"
	"cocinai-engine/pkg/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// .envファイルを読み込み
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found or could not be loaded: %v", err)
	}

	// 設定の読み込み
	cfg := config.LoadConfig()

	// Ginルーターの初期化
	r := gin.Default()

	// サービスの初期化
	eventStore := services.NewInMemoryEventStore()
	modelStore, err := services.NewModelStore(cfg.ModelsDir)
	if err != nil {
		log.Fatalf("FATAL: モデル保存ディレクトリを初期化できません: %v", err)
	}
	pipeline := services.NewFeaturePipeline(eventStore)
	pipeline.OutlierZUpper = cfg.OutlierZUpper
	pipeline.OutlierZLower = cfg.OutlierZLower
	forecastService := services.NewDemandForecastService(eventStore, pipeline, modelStore, cfg)
	anomalyService := services.NewAnomalyDetectionService(pipeline, cfg)
	recommendationService := services.NewRecommendationService(eventStore, pipeline, forecastService, cfg)
	analyticsService := services.NewAnalyticsService(eventStore, forecastService, cfg)

	// ハンドラーの初期化
	forecastHandler := handlers.NewForecastHandler(forecastService)
	anomalyHandler := handlers.NewAnomalyHandler(anomalyService)
	purchaseHandler := handlers.NewPurchaseHandler(recommendationService)
	analyticsHandler := handlers.NewAnalyticsHandler(analyticsService)
	dataHandler := handlers.NewDataHandler(eventStore)
	adminHandler := handlers.NewAdminHandler(forecastService, modelStore)

	// ミドルウェアの登録
	r.Use(cors.Default())

	// 認証ミドルウェア
	authMiddleware := func(apiKey string) gin.HandlerFunc {
		return func(c *gin.Context) {
			if apiKey == "" {
				c.Next()
				return
			}
			providedKey := c.GetHeader("X-API-KEY")
			if providedKey != apiKey {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
				return
			}
			c.Next()
		}
	}

	// ヘルスチェックエンドポイント
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	// APIバージョン1のルートグループ
	v1 := r.Group("/api/v1")
	v1.Use(authMiddleware(cfg.APIKey))
	{
		// 需要予測API
		forecast := v1.Group("/forecast")
		{
			forecast.POST("/train", forecastHandler.TrainModel)
			forecast.GET("/sales", forecastHandler.PredictSales)
			forecast.POST("/sales/range", forecastHandler.PredictRange)
			forecast.GET("/ingredient", forecastHandler.PredictIngredientDemand)
			forecast.GET("/waste", forecastHandler.PredictWaste)
		}

		// 異常検知API
		anomalies := v1.Group("/anomalies")
		{
			anomalies.GET("/sales", anomalyHandler.GetSalesAnomalies)
			anomalies.GET("/waste", anomalyHandler.GetWasteAnomalies)
		}

		// 仕入れ推奨API
		purchases := v1.Group("/purchases")
		{
			purchases.GET("/recommendations", purchaseHandler.GetRecommendations)
			purchases.GET("/recommendations/export", purchaseHandler.ExportRecommendations)
		}

		// 集計分析API
		analytics := v1.Group("/analytics")
		{
			analytics.GET("/weekly", analyticsHandler.GetWeeklyAnalysis)
			analytics.GET("/dashboard", analyticsHandler.GetDashboardInsights)
		}

		// データ取り込みAPI
		data := v1.Group("/data")
		{
			data.POST("/sales/import", dataHandler.ImportSales)
			data.GET("/status", dataHandler.GetStatus)
		}

		// モデル管理API
		admin := v1.Group("/models")
		{
			admin.POST("/retrain", adminHandler.RetrainModel)
			admin.DELETE("/invalidate", adminHandler.InvalidateModel)
			admin.GET("", adminHandler.ListModels)
			admin.GET("/tiers", adminHandler.ListTiers)
		}
	}

	log.Printf("Starting CocinAI engine server on :%s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
