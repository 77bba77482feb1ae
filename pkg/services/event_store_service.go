package services

import (
	"fmt"
	"io"
	"log"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"cocinai-engine/pkg/models"

	"github.com/xuri/excelize/v2"
)

// EventSource 販売・消費・廃棄イベントとマスターデータの読み取り口。
// 永続化は外部システムの責務で、エンジン側は読み取りしか行わない。
type EventSource interface {
	SalesEvents(dishID *int64, from, to time.Time) []models.SalesEvent
	ConsumptionEvents(ingredientID int64, from, to time.Time) []models.ConsumptionEvent
	WasteEvents(from, to time.Time) []models.WasteEvent
	Dishes() []models.Dish
	DishesWithRecipes() []models.Dish
	Recipe(dishID int64) []models.RecipeLine
	Ingredients() []models.Ingredient
	Stock(ingredientID int64) float64
}

// InMemoryEventStore EventSource のインメモリ実装
type InMemoryEventStore struct {
	mu           sync.RWMutex
	sales        []models.SalesEvent
	consumption  []models.ConsumptionEvent
	waste        []models.WasteEvent
	dishes       map[int64]models.Dish
	ingredients  map[int64]models.Ingredient
	recipes      map[int64][]models.RecipeLine
	stock        map[int64]float64
	nextDishID   int64
	dishIDByName map[string]int64
}

// NewInMemoryEventStore 空のストアを作成する
func NewInMemoryEventStore() *InMemoryEventStore {
	return &InMemoryEventStore{
		dishes:       make(map[int64]models.Dish),
		ingredients:  make(map[int64]models.Ingredient),
		recipes:      make(map[int64][]models.RecipeLine),
		stock:        make(map[int64]float64),
		nextDishID:   1,
		dishIDByName: make(map[string]int64),
	}
}

// AddDish 料理マスターを登録する
func (s *InMemoryEventStore) AddDish(d models.Dish) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dishes[d.ID] = d
	s.dishIDByName[d.Name] = d.ID
	if d.ID >= s.nextDishID {
		s.nextDishID = d.ID + 1
	}
}

// AddIngredient 食材マスターを登録する
func (s *InMemoryEventStore) AddIngredient(i models.Ingredient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ingredients[i.ID] = i
}

// SetRecipe 料理のレシピを登録する
func (s *InMemoryEventStore) SetRecipe(dishID int64, lines []models.RecipeLine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recipes[dishID] = lines
}

// SetStock 食材の現在庫を設定する
func (s *InMemoryEventStore) SetStock(ingredientID int64, qty float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stock[ingredientID] = qty
}

// AddSales 販売イベントを追加する（日付順は問わない）
func (s *InMemoryEventStore) AddSales(events ...models.SalesEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sales = append(s.sales, events...)
}

// AddConsumption 消費イベントを追加する
func (s *InMemoryEventStore) AddConsumption(events ...models.ConsumptionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consumption = append(s.consumption, events...)
}

// AddWaste 廃棄イベントを追加する
func (s *InMemoryEventStore) AddWaste(events ...models.WasteEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waste = append(s.waste, events...)
}

// SalesEvents 期間と料理で絞り込んだ販売イベントを日付昇順で返す
func (s *InMemoryEventStore) SalesEvents(dishID *int64, from, to time.Time) []models.SalesEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.SalesEvent
	for _, e := range s.sales {
		if dishID != nil && e.DishID != *dishID {
			continue
		}
		if e.Date.Before(from) || e.Date.After(to) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// ConsumptionEvents 期間で絞り込んだ食材の消費イベントを日付昇順で返す
func (s *InMemoryEventStore) ConsumptionEvents(ingredientID int64, from, to time.Time) []models.ConsumptionEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ConsumptionEvent
	for _, e := range s.consumption {
		if e.IngredientID != ingredientID || e.Date.Before(from) || e.Date.After(to) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// WasteEvents 期間で絞り込んだ廃棄イベントを日付昇順で返す
func (s *InMemoryEventStore) WasteEvents(from, to time.Time) []models.WasteEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.WasteEvent
	for _, e := range s.waste {
		if e.Date.Before(from) || e.Date.After(to) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// Dishes 登録済みの料理一覧をID昇順で返す
func (s *InMemoryEventStore) Dishes() []models.Dish {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Dish, 0, len(s.dishes))
	for _, d := range s.dishes {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// DishesWithRecipes レシピが登録されている料理のみ返す
func (s *InMemoryEventStore) DishesWithRecipes() []models.Dish {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Dish
	for id, d := range s.dishes {
		if len(s.recipes[id]) > 0 {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Recipe 料理のレシピを返す（未登録なら nil）
func (s *InMemoryEventStore) Recipe(dishID int64) []models.RecipeLine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recipes[dishID]
}

// Ingredients 登録済みの食材一覧をID昇順で返す
func (s *InMemoryEventStore) Ingredients() []models.Ingredient {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Ingredient, 0, len(s.ingredients))
	for _, i := range s.ingredients {
		out = append(out, i)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Stock 食材の現在庫を返す（未登録は0）
func (s *InMemoryEventStore) Stock(ingredientID int64) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stock[ingredientID]
}

// SalesCount 保持している販売イベント数（シード状態の確認用）
func (s *InMemoryEventStore) SalesCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sales)
}

// ImportSalesWorkbook Excelワークブックから販売履歴を取り込む。
// 1行目はヘッダー、以降は 日付 / 料理名 / 数量 の3列を想定。
// 未知の料理名にはIDを自動採番する。取り込んだ件数を返す。
func (s *InMemoryEventStore) ImportSalesWorkbook(r io.Reader) (int, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return 0, fmt.Errorf("Excelファイルを開けませんでした: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return 0, fmt.Errorf("シートが見つかりません")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return 0, fmt.Errorf("シートの読み取りに失敗しました: %w", err)
	}
	if len(rows) < 2 {
		return 0, fmt.Errorf("データ行がありません（ヘッダーのみ）")
	}

	imported := 0
	var batch []models.SalesEvent
	for i, row := range rows[1:] {
		if len(row) < 3 {
			continue
		}
		date, err := parseWorkbookDate(strings.TrimSpace(row[0]))
		if err != nil {
			log.Printf("⚠️ [データ] %d行目: 日付を解釈できません (%s)", i+2, row[0])
			continue
		}
		name := strings.TrimSpace(row[1])
		if name == "" {
			continue
		}
		qty, err := strconv.ParseFloat(strings.TrimSpace(row[2]), 64)
		if err != nil || qty < 0 {
			log.Printf("⚠️ [データ] %d行目: 数量を解釈できません (%s)", i+2, row[2])
			continue
		}
		dishID := s.ensureDish(name)
		batch = append(batch, models.SalesEvent{Date: date, DishID: dishID, DishName: name, Quantity: qty})
		imported++
	}
	s.AddSales(batch...)
	log.Printf("📊 [データ] 販売履歴を取り込みました: %d件", imported)
	return imported, nil
}

func (s *InMemoryEventStore) ensureDish(name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.dishIDByName[name]; ok {
		return id
	}
	id := s.nextDishID
	s.nextDishID++
	s.dishes[id] = models.Dish{ID: id, Name: name}
	s.dishIDByName[name] = id
	return id
}

// parseWorkbookDate Excelセルに現れる日付表記を解釈する
func parseWorkbookDate(raw string) (time.Time, error) {
	layouts := []string{"2006-01-02", "2006/01/02", "01-02-06", "1/2/06", "02-01-2006", "2006-01-02 15:04:05"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return truncateToDay(t), nil
		}
	}
	// Excelのシリアル値（1900年基準）
	if serial, err := strconv.ParseFloat(raw, 64); err == nil && serial > 59 {
		base := time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)
		return base.AddDate(0, 0, int(serial)), nil
	}
	return time.Time{}, fmt.Errorf("未対応の日付形式: %s", raw)
}

// truncateToDay 時刻成分を落として日付のみにする
func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
