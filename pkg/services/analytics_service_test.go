package services

import (
	"testing"
	"time"

	"cocinai-engine/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAnalyticsService(t *testing.T, store *InMemoryEventStore) *AnalyticsService {
	t.Helper()
	forecast, _ := newTestForecastService(t, store)
	return NewAnalyticsService(store, forecast, forecast.cfg)
}

// thisWeekMonday 今週の月曜日
func thisWeekMonday() time.Time {
	today := testToday()
	return today.AddDate(0, 0, -((int(today.Weekday()) + 6) % 7))
}

func TestAnalyzeWeeklySales(t *testing.T) {
	store := NewInMemoryEventStore()
	monday := thisWeekMonday()

	// 今週: 30皿、前週: 20皿
	store.AddSales(
		models.SalesEvent{Date: monday, DishID: 1, DishName: "カスエラ", Quantity: 30},
		models.SalesEvent{Date: monday.AddDate(0, 0, -7), DishID: 1, DishName: "カスエラ", Quantity: 20},
	)
	// 前週にだけあった料理
	store.AddSales(models.SalesEvent{Date: monday.AddDate(0, 0, -6), DishID: 2, DishName: "エンパナーダ", Quantity: 10})

	svc := newTestAnalyticsService(t, store)
	analysis, err := svc.AnalyzeWeeklySales(nil)
	require.NoError(t, err)

	assert.Equal(t, "前週", analysis.BaseLabel)
	assert.Equal(t, 30.0, analysis.CurrentTotal)
	assert.Equal(t, 30.0, analysis.BaseTotal)
	require.Len(t, analysis.Comparisons, 2)

	// +50%の料理に増量の提案が出る
	var found bool
	for _, s := range analysis.Suggestions {
		if s.DishID == 1 {
			assert.Equal(t, "aumento", s.Action)
			found = true
		}
	}
	assert.True(t, found, "増加した料理への提案がある")
}

func TestAnalyzeWeeklySalesFallsBackToLastYear(t *testing.T) {
	store := NewInMemoryEventStore()
	monday := thisWeekMonday()

	store.AddSales(models.SalesEvent{Date: monday, DishID: 1, DishName: "カスエラ", Quantity: 15})
	// 前週は空、前年同週に実績
	lastYear := sameDayLastYear(monday)
	store.AddSales(models.SalesEvent{Date: lastYear.AddDate(0, 0, 2), DishID: 1, DishName: "カスエラ", Quantity: 12})

	svc := newTestAnalyticsService(t, store)
	analysis, err := svc.AnalyzeWeeklySales(nil)
	require.NoError(t, err)

	assert.Equal(t, "前年同週", analysis.BaseLabel)
	assert.Equal(t, 12.0, analysis.BaseTotal)
}

func TestAnalyzeWeeklySalesNoData(t *testing.T) {
	svc := newTestAnalyticsService(t, NewInMemoryEventStore())
	_, err := svc.AnalyzeWeeklySales(nil)
	assert.Error(t, err)
}

func TestGetDashboardInsights(t *testing.T) {
	store := NewInMemoryEventStore()
	today := testToday()
	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)

	// 当月に十分なデータを入れる
	for i := 0; i < 15; i++ {
		d := monthStart.AddDate(0, 0, i)
		if d.After(today) {
			d = today
		}
		store.AddSales(
			models.SalesEvent{Date: d, DishID: 1, DishName: "カスエラ", Quantity: 10},
			models.SalesEvent{Date: d, DishID: 2, DishName: "エンパナーダ", Quantity: 5},
		)
	}
	store.AddWaste(models.WasteEvent{Date: today, Quantity: 7})

	svc := newTestAnalyticsService(t, store)
	insights := svc.GetDashboardInsights()

	assert.Equal(t, monthStart.Format("2006-01"), insights.Month)
	assert.False(t, insights.FallbackMonth)
	assert.Equal(t, 225.0, insights.SalesTotal, "15日×(10+5)")
	assert.Equal(t, 7.0, insights.WasteTotal)
	require.NotEmpty(t, insights.TopDishes)
	assert.Equal(t, int64(1), insights.TopDishes[0].DishID, "売上トップが先頭")
}

func TestGetDashboardInsightsFallbackMonth(t *testing.T) {
	store := NewInMemoryEventStore()
	today := testToday()
	// 当月はほぼ空で、2ヶ月前に実績が集中している
	prev := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -2, 0)
	for i := 0; i < 20; i++ {
		store.AddSales(models.SalesEvent{Date: prev.AddDate(0, 0, i), DishID: 1, DishName: "カスエラ", Quantity: 8})
	}

	svc := newTestAnalyticsService(t, store)
	insights := svc.GetDashboardInsights()

	assert.True(t, insights.FallbackMonth)
	assert.Equal(t, prev.Format("2006-01"), insights.Month)
	assert.Equal(t, 160.0, insights.SalesTotal)
}
