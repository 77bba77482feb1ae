package services

import (
	"testing"
	"time"

	config "cocinai-engine/configs"
	"cocinai-engine/pkg/models"
)

// testConfig テスト用の設定一式（モデル保存先は一時ディレクトリ）
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
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

func testToday() time.Time {
	return truncateToDay(time.Now().UTC())
}

// seedConstantSales 今日を含む days 日分、毎日 qty 皿の販売を積む
func seedConstantSales(store *InMemoryEventStore, dishID int64, name string, days int, qty float64) {
	store.AddDish(models.Dish{ID: dishID, Name: name})
	today := testToday()
	for i := 0; i < days; i++ {
		store.AddSales(models.SalesEvent{
			Date:     today.AddDate(0, 0, -i),
			DishID:   dishID,
			DishName: name,
			Quantity: qty,
		})
	}
}

// newTestForecastService 組み立て済みの需要予測サービスを返す
func newTestForecastService(t *testing.T, store *InMemoryEventStore) (*DemandForecastService, *ModelStore) {
	t.Helper()
	cfg := testConfig(t)
	modelStore, err := NewModelStore(cfg.ModelsDir)
	if err != nil {
		t.Fatalf("モデルストアの作成に失敗: %v", err)
	}
	pipeline := NewFeaturePipeline(store)
	return NewDemandForecastService(store, pipeline, modelStore, cfg), modelStore
}
