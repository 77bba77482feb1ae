package services

import (
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	config "cocinai-engine/configs"
	"cocinai-engine/pkg/models"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
)

// RecommendationService 需要予測から食材の仕入れ推奨を組み立てるサービス
type RecommendationService struct {
	source   EventSource
	pipeline *FeaturePipeline
	forecast *DemandForecastService
	cfg      *config.Config
	now      func() time.Time
}

// NewRecommendationService 仕入れ推奨サービスを作成する
func NewRecommendationService(source EventSource, pipeline *FeaturePipeline, forecast *DemandForecastService, cfg *config.Config) *RecommendationService {
	return &RecommendationService{
		source:   source,
		pipeline: pipeline,
		forecast: forecast,
		cfg:      cfg,
		now:      time.Now,
	}
}

// 仕入れ推奨に料理を含めるための最低データ量
const (
	minRecommendUniqueDays = 7
	minRecommendSalesRows  = 30
)

// RecommendPurchases レシピを持つ全料理の需要予測を食材に展開し、仕入れ推奨を返す。
// データ不足の料理はスキップし、その理由を結果に含める。
func (s *RecommendationService) RecommendPurchases(horizonDays int, tierName, kind string) (*models.PurchasePlan, error) {
	if horizonDays < 1 || horizonDays > 90 {
		return nil, fmt.Errorf("推奨期間は1〜90日の範囲で指定してください: %d", horizonDays)
	}
	tier := config.GetTier(tierName)
	plan := &models.PurchasePlan{
		ID:          uuid.New().String(),
		GeneratedAt: s.now(),
		HorizonDays: horizonDays,
		Tier:        tier.Name,
	}

	ledger := make(map[int64]*models.PurchaseRecommendation)
	for _, dish := range s.source.DishesWithRecipes() {
		dishID := dish.ID
		uniqueDays, rows := s.pipeline.UniqueSaleDays(&dishID, s.cfg.HistoryDays)
		if uniqueDays < minRecommendUniqueDays || rows < minRecommendSalesRows {
			plan.SkippedDishes = append(plan.SkippedDishes, models.SkippedDish{
				DishID: dishID, Name: dish.Name,
				Reason: fmt.Sprintf("販売実績が不足しています（%d日/%d件、最低%d日/%d件）",
					uniqueDays, rows, minRecommendUniqueDays, minRecommendSalesRows),
				UniqueDays: uniqueDays, SalesRows: rows,
			})
			continue
		}

		fc, err := s.forecast.PredictSales(&dishID, kind, horizonDays)
		if err != nil {
			return nil, err
		}
		if fc.Training != nil && fc.Training.Status == "insufficient_data" {
			plan.SkippedDishes = append(plan.SkippedDishes, models.SkippedDish{
				DishID: dishID, Name: dish.Name,
				Reason:     fc.Training.Reason,
				UniqueDays: uniqueDays, SalesRows: rows,
			})
			continue
		}
		plan.ProcessedDishes++

		for _, line := range s.source.Recipe(dishID) {
			rec, ok := ledger[line.IngredientID]
			if !ok {
				rec = &models.PurchaseRecommendation{
					IngredientID: line.IngredientID,
					Name:         line.IngredientName,
					Unit:         line.Unit,
					SafetyFactor: s.cfg.SafetyFactor,
				}
				ledger[line.IngredientID] = rec
			}
			subtotal := fc.Total * line.QuantityPerDish
			rec.PredictedDemand += subtotal
			rec.Sources = append(rec.Sources, models.DemandSource{
				DishID:         dishID,
				DishName:       dish.Name,
				PredictedUnits: fc.Total,
				QtyPerDish:     line.QuantityPerDish,
				Subtotal:       round1(subtotal),
			})
		}
	}

	for _, rec := range ledger {
		stock := s.source.Stock(rec.IngredientID)
		rec.CurrentStock = stock
		rec.QuantityToBuy = round1(math.Max(0, rec.PredictedDemand*rec.SafetyFactor-stock))
		// 在庫日数は丸める前の日次需要で計算する（小さな需要が丸めで0になっても999にしない）
		daily := rec.PredictedDemand / float64(horizonDays)
		if daily > 0 {
			rec.DaysOfStock = round1(stock / daily)
		} else {
			rec.DaysOfStock = 999
		}
		rec.DailyDemand = round1(daily)
		switch {
		case rec.DaysOfStock < s.cfg.UrgencyHighDays:
			rec.Urgency = "alta"
		case rec.DaysOfStock < s.cfg.UrgencyMediumDays:
			rec.Urgency = "media"
		default:
			rec.Urgency = "baja"
		}
		rec.PredictedDemand = round1(rec.PredictedDemand)
		plan.Recommendations = append(plan.Recommendations, *rec)
	}

	urgencyRank := map[string]int{"alta": 0, "media": 1, "baja": 2}
	sort.Slice(plan.Recommendations, func(i, j int) bool {
		a, b := plan.Recommendations[i], plan.Recommendations[j]
		if urgencyRank[a.Urgency] != urgencyRank[b.Urgency] {
			return urgencyRank[a.Urgency] < urgencyRank[b.Urgency]
		}
		return a.QuantityToBuy > b.QuantityToBuy
	})

	log.Printf("🛒 [仕入れ推奨] %d品目の推奨を生成（対象%d料理、スキップ%d料理）",
		len(plan.Recommendations), plan.ProcessedDishes, len(plan.SkippedDishes))
	return plan, nil
}

// ExportRecommendationsXLSX 仕入れ推奨をExcelワークブックに書き出す
func (s *RecommendationService) ExportRecommendationsXLSX(plan *models.PurchasePlan) (*excelize.File, error) {
	f := excelize.NewFile()
	const sheet = "Recomendaciones"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, fmt.Errorf("シート名の設定に失敗しました: %w", err)
	}

	headers := []string{"食材", "単位", "予測需要", "安全係数", "現在庫", "推奨仕入れ量", "1日あたり需要", "在庫日数", "緊急度"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
	}
	for r, rec := range plan.Recommendations {
		row := []interface{}{
			rec.Name, rec.Unit, rec.PredictedDemand, rec.SafetyFactor,
			rec.CurrentStock, rec.QuantityToBuy, rec.DailyDemand, rec.DaysOfStock, rec.Urgency,
		}
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			f.SetCellValue(sheet, cell, v)
		}
	}

	summaryRow := len(plan.Recommendations) + 3
	f.SetCellValue(sheet, fmt.Sprintf("A%d", summaryRow), fmt.Sprintf("生成日時: %s", plan.GeneratedAt.Format("2006-01-02 15:04")))
	f.SetCellValue(sheet, fmt.Sprintf("A%d", summaryRow+1), fmt.Sprintf("対象期間: %d日 / 対象料理: %d / スキップ: %d",
		plan.HorizonDays, plan.ProcessedDishes, len(plan.SkippedDishes)))
	return f, nil
}
