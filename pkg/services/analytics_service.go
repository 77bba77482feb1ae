package services

import (
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	config "cocinai-engine/configs"
	"cocinai-engine/pkg/models"
)

// AnalyticsService 週次比較やダッシュボード向けの集計分析
type AnalyticsService struct {
	source   EventSource
	forecast *DemandForecastService
	cfg      *config.Config
	now      func() time.Time
}

// NewAnalyticsService 分析サービスを作成する
func NewAnalyticsService(source EventSource, forecast *DemandForecastService, cfg *config.Config) *AnalyticsService {
	return &AnalyticsService{source: source, forecast: forecast, cfg: cfg, now: time.Now}
}

// AnalyzeWeeklySales 今週（月曜始まり）の販売を前週と比較する。
// 前週に実績がない場合は前年同週を比較対象にする。
func (s *AnalyticsService) AnalyzeWeeklySales(dishID *int64) (*models.WeeklyAnalysis, error) {
	today := truncateToDay(s.now())
	weekday := (int(today.Weekday()) + 6) % 7
	weekStart := today.AddDate(0, 0, -weekday)
	weekEnd := weekStart.AddDate(0, 0, 6)

	current := s.source.SalesEvents(dishID, weekStart, weekEnd)

	baseStart := weekStart.AddDate(0, 0, -7)
	baseEnd := weekStart.AddDate(0, 0, -1)
	baseLabel := "前週"
	base := s.source.SalesEvents(dishID, baseStart, baseEnd)
	if len(base) == 0 {
		baseStart = sameDayLastYear(weekStart)
		baseEnd = baseStart.AddDate(0, 0, 6)
		baseLabel = "前年同週"
		base = s.source.SalesEvents(dishID, baseStart, baseEnd)
	}
	if len(current) == 0 && len(base) == 0 {
		return nil, fmt.Errorf("比較できる販売データがありません")
	}

	currentByDish := sumByDish(current)
	baseByDish := sumByDish(base)

	analysis := &models.WeeklyAnalysis{
		WeekStart: weekStart,
		WeekEnd:   weekEnd,
		BaseStart: baseStart,
		BaseEnd:   baseEnd,
		BaseLabel: baseLabel,
	}

	seen := make(map[int64]bool)
	for id, cur := range currentByDish {
		seen[id] = true
		prev := baseByDish[id]
		analysis.CurrentTotal += cur.Total
		cmp := models.DishComparison{
			DishID:       id,
			DishName:     cur.Name,
			CurrentSales: cur.Total,
			BaseSales:    prev.Total,
			Diff:         round1(cur.Total - prev.Total),
		}
		if prev.Total > 0 {
			cmp.PercentDiff = round1((cur.Total - prev.Total) / prev.Total * 100)
		}
		analysis.Comparisons = append(analysis.Comparisons, cmp)
	}
	for id, prev := range baseByDish {
		analysis.BaseTotal += prev.Total
		if seen[id] {
			continue
		}
		analysis.Comparisons = append(analysis.Comparisons, models.DishComparison{
			DishID:       id,
			DishName:     prev.Name,
			CurrentSales: 0,
			BaseSales:    prev.Total,
			Diff:         -prev.Total,
			PercentDiff:  -100,
		})
	}

	sort.Slice(analysis.Comparisons, func(i, j int) bool {
		return math.Abs(analysis.Comparisons[i].Diff) > math.Abs(analysis.Comparisons[j].Diff)
	})
	analysis.CurrentTotal = round1(analysis.CurrentTotal)
	analysis.BaseTotal = round1(analysis.BaseTotal)
	analysis.Suggestions = weeklySuggestions(analysis.Comparisons, baseLabel)

	log.Printf("📊 [分析] 週次比較: 今週%.1f / %s%.1f (%d料理)",
		analysis.CurrentTotal, baseLabel, analysis.BaseTotal, len(analysis.Comparisons))
	return analysis, nil
}

type dishSum struct {
	Name  string
	Total float64
}

func sumByDish(events []models.SalesEvent) map[int64]dishSum {
	out := make(map[int64]dishSum)
	for _, e := range events {
		cur := out[e.DishID]
		if cur.Name == "" {
			cur.Name = e.DishName
		}
		cur.Total += e.Quantity
		out[e.DishID] = cur
	}
	return out
}

// weeklySuggestions 比較結果から仕込み量の提案を作る
func weeklySuggestions(comparisons []models.DishComparison, baseLabel string) []models.WeeklySuggestion {
	var out []models.WeeklySuggestion
	for _, c := range comparisons {
		switch {
		case c.BaseSales == 0 && c.CurrentSales > 0:
			out = append(out, models.WeeklySuggestion{
				DishID: c.DishID, DishName: c.DishName, Action: "nuevo",
				Message: fmt.Sprintf("「%s」は%sに実績がない新顔です。在庫と仕込みの様子見を推奨します", c.DishName, baseLabel),
			})
		case c.PercentDiff >= 20:
			out = append(out, models.WeeklySuggestion{
				DishID: c.DishID, DishName: c.DishName, Action: "aumento",
				Message: fmt.Sprintf("「%s」は%s比+%.0f%%です。仕込み量の増加を検討してください", c.DishName, baseLabel, c.PercentDiff),
			})
		case c.PercentDiff <= -20:
			out = append(out, models.WeeklySuggestion{
				DishID: c.DishID, DishName: c.DishName, Action: "disminucion",
				Message: fmt.Sprintf("「%s」は%s比%.0f%%です。仕込み量の削減で廃棄を抑えられます", c.DishName, baseLabel, c.PercentDiff),
			})
		}
	}
	return out
}

// GetDashboardInsights 当月のサマリーを返す。
// 当月のデータが10件未満の場合は直近6ヶ月で最も実績の多い月にフォールバックする
func (s *AnalyticsService) GetDashboardInsights() *models.DashboardInsights {
	today := truncateToDay(s.now())
	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, -1)

	sales := s.source.SalesEvents(nil, monthStart, monthEnd)
	fallback := false
	if len(sales) < 10 {
		bestStart, bestSales := monthStart, sales
		for i := 1; i <= 6; i++ {
			start := monthStart.AddDate(0, -i, 0)
			end := start.AddDate(0, 1, -1)
			candidate := s.source.SalesEvents(nil, start, end)
			if len(candidate) > len(bestSales) {
				bestStart, bestSales = start, candidate
			}
		}
		if !bestStart.Equal(monthStart) {
			fallback = true
			monthStart, sales = bestStart, bestSales
			monthEnd = monthStart.AddDate(0, 1, -1)
		}
	}

	insights := &models.DashboardInsights{
		Month:         monthStart.Format("2006-01"),
		FallbackMonth: fallback,
		SalesRows:     len(sales),
	}

	byDish := sumByDish(sales)
	for _, sum := range byDish {
		insights.SalesTotal += sum.Total
	}
	insights.SalesTotal = round1(insights.SalesTotal)

	for id, sum := range byDish {
		insights.TopDishes = append(insights.TopDishes, models.DishTotal{
			DishID: id, DishName: sum.Name, Total: round1(sum.Total),
		})
	}
	sort.Slice(insights.TopDishes, func(i, j int) bool {
		return insights.TopDishes[i].Total > insights.TopDishes[j].Total
	})
	if len(insights.TopDishes) > 5 {
		insights.TopDishes = insights.TopDishes[:5]
	}

	for _, w := range s.source.WasteEvents(monthStart, monthEnd) {
		insights.WasteTotal += w.Quantity
	}
	insights.WasteTotal = round1(insights.WasteTotal)

	if fc, err := s.forecast.PredictSales(nil, s.cfg.ModelKind, 7); err == nil && fc.Points != nil {
		insights.ForecastNext7 = fc.Total
	}
	return insights
}
