package models

import "time"

// SalesEvent 料理単位の販売イベント（1レコード = ある日のある料理の販売）
type SalesEvent struct {
	Date     time.Time `json:"date"`
	DishID   int64     `json:"dish_id"`
	DishName string    `json:"dish_name,omitempty"`
	Quantity float64   `json:"quantity"` // 販売数量（皿数）
}

// ConsumptionEvent 食材の消費イベント
type ConsumptionEvent struct {
	Date         time.Time `json:"date"`
	IngredientID int64     `json:"ingredient_id"`
	Quantity     float64   `json:"quantity"` // 消費量（食材の単位）
}

// WasteEvent 廃棄イベント
type WasteEvent struct {
	Date         time.Time `json:"date"`
	IngredientID int64     `json:"ingredient_id,omitempty"`
	Quantity     float64   `json:"quantity"`
	Reason       string    `json:"reason,omitempty"`
}

// Dish 料理マスター
type Dish struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Ingredient 食材マスター
type Ingredient struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Unit string `json:"unit"` // kg, L, 個 など
}

// RecipeLine レシピの1行（料理1単位あたりの食材使用量）
type RecipeLine struct {
	IngredientID    int64   `json:"ingredient_id"`
	IngredientName  string  `json:"ingredient_name"`
	Unit            string  `json:"unit"`
	QuantityPerDish float64 `json:"quantity_per_dish"`
}

// StockLevel 食材の現在庫
type StockLevel struct {
	IngredientID int64   `json:"ingredient_id"`
	Quantity     float64 `json:"quantity"`
	Unit         string  `json:"unit"`
}

// SeriesPoint 日次集計された時系列の1点
type SeriesPoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// ModelMetrics テストデータに対する評価指標
type ModelMetrics struct {
	MAE  float64 `json:"mae"`
	RMSE float64 `json:"rmse"`
	R2   float64 `json:"r2"`
	MAPE float64 `json:"mape"` // パーセント表記
}

// TrainingResult 学習操作の結果。データ不足の場合もエラーではなくこの構造体で返す
type TrainingResult struct {
	Status          string       `json:"status"` // "trained" | "cached" | "insufficient_data"
	Reason          string       `json:"reason,omitempty"`
	EntityKey       string       `json:"entity_key"` // 料理ID または "todos"
	ModelKind       string       `json:"model_kind"`
	Metrics         ModelMetrics `json:"metrics"`
	TrainRows       int          `json:"train_rows"`
	TestRows        int          `json:"test_rows"`
	TotalRows       int          `json:"total_rows"`
	OutliersClipped int          `json:"outliers_clipped"`
	BlendApplied    bool         `json:"blend_applied"`     // 第二モデルとのブレンド有無
	SmoothingKept   bool         `json:"smoothing_kept"`    // 指数平滑でMAEが改善したか
	SchemaVersion   int          `json:"schema_version"`
	TrainedAt       time.Time    `json:"trained_at"`
}

// ForecastPoint 予測結果の1日分
type ForecastPoint struct {
	Date      time.Time `json:"date"`
	Weekday   string    `json:"weekday"`
	Predicted float64   `json:"predicted"` // 小数1桁、非負
}

// YearOverYearComparison 前年同期間との比較
type YearOverYearComparison struct {
	Start        time.Time          `json:"start"`
	End          time.Time          `json:"end"`
	HasData      bool               `json:"has_data"`
	Total        float64            `json:"total"`
	ByDay        map[string]float64 `json:"by_day,omitempty"`  // "2006-01-02" -> 販売数
	ByDish       map[string]float64 `json:"by_dish,omitempty"` // 料理名 -> 販売数
	AbsoluteDiff float64            `json:"absolute_diff"`     // 予測合計 − 前年実績
	PercentDiff  float64            `json:"percent_diff"`
}

// RangeForecast 期間指定予測の結果
type RangeForecast struct {
	EntityKey    string                  `json:"entity_key"`
	ModelKind    string                  `json:"model_kind"`
	Start        time.Time               `json:"start"`
	End          time.Time               `json:"end"`
	Days         int                     `json:"days"`
	Points       []ForecastPoint         `json:"points"`
	Total        float64                 `json:"total"`
	DailyAverage float64                 `json:"daily_average"`
	YearAgo      *YearOverYearComparison `json:"year_ago,omitempty"`
	Training     *TrainingResult         `json:"training,omitempty"`
}

// IngredientDemandForecast 食材単位の需要予測（ティアによるゲートあり）
type IngredientDemandForecast struct {
	IngredientID int64           `json:"ingredient_id"`
	Name         string          `json:"name"`
	Unit         string          `json:"unit"`
	Status       string          `json:"status"` // "ok" | "insufficient_data"
	Reason       string          `json:"reason,omitempty"`
	Tier         string          `json:"tier"`
	UniqueDays   int             `json:"unique_days"`
	Points       []ForecastPoint `json:"points,omitempty"`
	Total        float64         `json:"total"`
	Confidence   string          `json:"confidence,omitempty"` // "alta" | "media" | "baja"
}

// WasteForecast 廃棄量の予測
type WasteForecast struct {
	Status     string          `json:"status"`
	Reason     string          `json:"reason,omitempty"`
	Points     []ForecastPoint `json:"points,omitempty"`
	Total      float64         `json:"total"`
	Confidence string          `json:"confidence,omitempty"`
}

// AnomalyRecord 検出された異常1件
type AnomalyRecord struct {
	Date       time.Time `json:"date"`
	Value      float64   `json:"value"`
	Score      float64   `json:"score"` // 絶対値が大きいほど異常
	Type       string    `json:"type"`  // "pico"（急増） | "valle"（急減）
	SeriesMean float64   `json:"series_mean"`
	Deviation  float64   `json:"deviation"` // Value − SeriesMean
	Message    string    `json:"message"`
}

// AnomalyReport 異常検出の実行結果
type AnomalyReport struct {
	Kind          string          `json:"kind"` // "sales" | "waste"
	AnalyzedRows  int             `json:"analyzed_rows"`
	Contamination float64         `json:"contamination"`
	SeriesMean    float64         `json:"series_mean"`
	Anomalies     []AnomalyRecord `json:"anomalies"`
	Message       string          `json:"message,omitempty"`
}

// DemandSource 仕入れ推奨の内訳（どの料理がどれだけ需要を生むか）
type DemandSource struct {
	DishID         int64   `json:"dish_id"`
	DishName       string  `json:"dish_name"`
	PredictedUnits float64 `json:"predicted_units"`
	QtyPerDish     float64 `json:"qty_per_dish"`
	Subtotal       float64 `json:"subtotal"`
}

// PurchaseRecommendation 食材1つ分の仕入れ推奨
type PurchaseRecommendation struct {
	IngredientID    int64          `json:"ingredient_id"`
	Name            string         `json:"name"`
	Unit            string         `json:"unit"`
	PredictedDemand float64        `json:"predicted_demand"`
	SafetyFactor    float64        `json:"safety_factor"`
	CurrentStock    float64        `json:"current_stock"`
	QuantityToBuy   float64        `json:"quantity_to_buy"` // max(0, 需要×安全係数 − 在庫)
	DailyDemand     float64        `json:"daily_demand"`
	DaysOfStock     float64        `json:"days_of_stock"` // 需要ゼロのときは999
	Urgency         string         `json:"urgency"`       // "alta" | "media" | "baja"
	Sources         []DemandSource `json:"sources,omitempty"`
}

// SkippedDish ゲートで除外された料理と理由
type SkippedDish struct {
	DishID     int64  `json:"dish_id"`
	Name       string `json:"name"`
	Reason     string `json:"reason"`
	UniqueDays int    `json:"unique_days"`
	SalesRows  int    `json:"sales_rows"`
}

// PurchasePlan 仕入れ推奨の実行結果一式
type PurchasePlan struct {
	ID              string                   `json:"id"`
	GeneratedAt     time.Time                `json:"generated_at"`
	HorizonDays     int                      `json:"horizon_days"`
	Tier            string                   `json:"tier"`
	Recommendations []PurchaseRecommendation `json:"recommendations"`
	ProcessedDishes int                      `json:"processed_dishes"`
	SkippedDishes   []SkippedDish            `json:"skipped_dishes,omitempty"`
}

// DishComparison 週次比較の料理別内訳
type DishComparison struct {
	DishID       int64   `json:"dish_id"`
	DishName     string  `json:"dish_name"`
	CurrentSales float64 `json:"current_sales"`
	BaseSales    float64 `json:"base_sales"`
	Diff         float64 `json:"diff"`
	PercentDiff  float64 `json:"percent_diff"`
}

// WeeklySuggestion 週次分析から導かれる提案
type WeeklySuggestion struct {
	DishID   int64  `json:"dish_id"`
	DishName string `json:"dish_name"`
	Action   string `json:"action"` // "aumento" | "disminucion" | "nuevo"
	Message  string `json:"message"`
}

// WeeklyAnalysis 週次販売分析の結果
type WeeklyAnalysis struct {
	WeekStart    time.Time          `json:"week_start"`
	WeekEnd      time.Time          `json:"week_end"`
	BaseStart    time.Time          `json:"base_start"`
	BaseEnd      time.Time          `json:"base_end"`
	BaseLabel    string             `json:"base_label"` // "前週" | "前年同週"
	CurrentTotal float64            `json:"current_total"`
	BaseTotal    float64            `json:"base_total"`
	Comparisons  []DishComparison   `json:"comparisons"`
	Suggestions  []WeeklySuggestion `json:"suggestions,omitempty"`
}

// DishTotal 集計済みの料理別販売数
type DishTotal struct {
	DishID   int64   `json:"dish_id"`
	DishName string  `json:"dish_name"`
	Total    float64 `json:"total"`
}

// DashboardInsights ダッシュボード向けの月次サマリー
type DashboardInsights struct {
	Month         string      `json:"month"` // "2006-01"
	FallbackMonth bool        `json:"fallback_month"`
	SalesTotal    float64     `json:"sales_total"`
	SalesRows     int         `json:"sales_rows"`
	WasteTotal    float64     `json:"waste_total"`
	TopDishes     []DishTotal `json:"top_dishes"`
	ForecastNext7 float64     `json:"forecast_next_7"`
}
