package services

import (
	"log"
	"math"
	"sort"
	"time"

	"cocinai-engine/pkg/models"
)

// FeatureSchemaVersion スキーマの互換性バージョン。特徴量の追加・削除・並び替えで上げる
const FeatureSchemaVersion = 3

// entityFeatureName 複数料理をまとめて学習するときに付ける料理IDエンコード特徴量
const entityFeatureName = "plato_id_encoded"

// FeatureSchema 学習時に確定し、推論時に同じ順序で再現する特徴量スキーマ
type FeatureSchema struct {
	Version int      `json:"version"`
	Names   []string `json:"names"`
}

var trendFeatureNames = []string{
	"media_movil_7", "media_movil_14", "media_movil_30",
	"lag_1", "lag_7", "lag_14", "std_movil_7",
	"ratio_tendencia_7_30", "desviacion_lag1", "coef_variacion",
	"fin_semana_mes", "tendencia_7_14", "tendencia_14_30",
}

// NewFeatureSchema 現行バージョンのスキーマを生成する
func NewFeatureSchema() FeatureSchema {
	names := make([]string, 0, len(calendarFeatureNames)+len(trendFeatureNames))
	names = append(names, calendarFeatureNames...)
	names = append(names, trendFeatureNames...)
	return FeatureSchema{Version: FeatureSchemaVersion, Names: names}
}

// NewMultiEntityFeatureSchema 料理IDエンコードを末尾に持つ全体モデル用のスキーマを生成する
func NewMultiEntityFeatureSchema() FeatureSchema {
	s := NewFeatureSchema()
	s.Names = append(s.Names, entityFeatureName)
	return s
}

// FeatureMatrix 学習用に組み立てた特徴量行列
type FeatureMatrix struct {
	Schema          FeatureSchema
	Dates           []time.Time
	X               [][]float64
	Y               []float64
	OutliersClipped int
}

// FeaturePipeline イベントを日次時系列に集計し特徴量へ変換する。
// 外れ値クリップのσ係数は設定で上書きできる
type FeaturePipeline struct {
	source        EventSource
	now           func() time.Time
	OutlierZUpper float64
	OutlierZLower float64
}

// NewFeaturePipeline 特徴量パイプラインを作成する
func NewFeaturePipeline(source EventSource) *FeaturePipeline {
	return &FeaturePipeline{source: source, now: time.Now, OutlierZUpper: 4.0, OutlierZLower: 2.0}
}

// BuildSalesSeries 販売イベントを日次集計し、欠損日を0で埋めた連続時系列を返す。
// イベントが1件もない場合は空を返す。
func (p *FeaturePipeline) BuildSalesSeries(dishID *int64, historyDays int) []models.SeriesPoint {
	today := truncateToDay(p.now())
	from := today.AddDate(0, 0, -historyDays)
	events := p.source.SalesEvents(dishID, from, today)
	byDay := make(map[time.Time]float64, len(events))
	for _, e := range events {
		byDay[truncateToDay(e.Date)] += e.Quantity
	}
	return fillDaily(byDay, today)
}

// BuildConsumptionSeries 食材の消費イベントを日次集計した連続時系列を返す
func (p *FeaturePipeline) BuildConsumptionSeries(ingredientID int64, historyDays int) []models.SeriesPoint {
	today := truncateToDay(p.now())
	from := today.AddDate(0, 0, -historyDays)
	events := p.source.ConsumptionEvents(ingredientID, from, today)
	byDay := make(map[time.Time]float64, len(events))
	for _, e := range events {
		byDay[truncateToDay(e.Date)] += e.Quantity
	}
	return fillDaily(byDay, today)
}

// BuildWasteSeries 廃棄イベントを日次集計した連続時系列を返す
func (p *FeaturePipeline) BuildWasteSeries(historyDays int) []models.SeriesPoint {
	today := truncateToDay(p.now())
	from := today.AddDate(0, 0, -historyDays)
	events := p.source.WasteEvents(from, today)
	byDay := make(map[time.Time]float64, len(events))
	for _, e := range events {
		byDay[truncateToDay(e.Date)] += e.Quantity
	}
	return fillDaily(byDay, today)
}

// fillDaily 最初のイベント日からthroughまでを0で埋めた昇順の時系列を作る。
// 末尾の販売ゼロ期間も系列に残り、学習と再帰予測の初期窓に入る
func fillDaily(byDay map[time.Time]float64, through time.Time) []models.SeriesPoint {
	if len(byDay) == 0 {
		return nil
	}
	first := time.Time{}
	for d := range byDay {
		if first.IsZero() || d.Before(first) {
			first = d
		}
	}
	var out []models.SeriesPoint
	for d := first; !d.After(through); d = d.AddDate(0, 0, 1) {
		out = append(out, models.SeriesPoint{Date: d, Value: byDay[d]})
	}
	return out
}

// BuildMultiEntityMatrix 全料理をまとめた学習行列を(日付, 料理)単位の行で組み立てる。
// 各料理の系列を個別に0埋め・特徴量化し、料理IDの昇順で振ったコードを末尾の特徴量に付ける。
// 販売のある料理が2つ未満の場合は (nil, nil) を返し、呼び出し側は単一系列で学習する。
func (p *FeaturePipeline) BuildMultiEntityMatrix(historyDays int) (*FeatureMatrix, map[int64]int) {
	today := truncateToDay(p.now())
	from := today.AddDate(0, 0, -historyDays)
	events := p.source.SalesEvents(nil, from, today)

	perDish := make(map[int64]map[time.Time]float64)
	for _, e := range events {
		if perDish[e.DishID] == nil {
			perDish[e.DishID] = make(map[time.Time]float64)
		}
		perDish[e.DishID][truncateToDay(e.Date)] += e.Quantity
	}
	if len(perDish) < 2 {
		return nil, nil
	}

	ids := make([]int64, 0, len(perDish))
	for id := range perDish {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	encoder := make(map[int64]int, len(ids))
	m := &FeatureMatrix{Schema: NewMultiEntityFeatureSchema()}
	for code, id := range ids {
		encoder[id] = code
		series := fillDaily(perDish[id], today)
		values := seriesValues(series)
		values, clipped := clipOutliers(values, p.OutlierZUpper, p.OutlierZLower)
		m.OutliersClipped += clipped
		for i, pt := range series {
			cal := buildCalendarFeatures(pt.Date)
			row := cal.vector()
			row = append(row, trendFeaturesAt(values, i, cal)...)
			row = append(row, float64(code))
			m.Dates = append(m.Dates, pt.Date)
			m.X = append(m.X, row)
			m.Y = append(m.Y, values[i])
		}
	}
	log.Printf("📊 [特徴量] %d料理を(日付, 料理)行にまとめました（%d行）", len(ids), len(m.X))
	return m, encoder
}

// UniqueSaleDays 販売のあった日数を数える（ティアのゲート判定用）
func (p *FeaturePipeline) UniqueSaleDays(dishID *int64, historyDays int) (uniqueDays, rows int) {
	today := truncateToDay(p.now())
	from := today.AddDate(0, 0, -historyDays)
	events := p.source.SalesEvents(dishID, from, today)
	seen := make(map[time.Time]bool)
	for _, e := range events {
		if e.Quantity > 0 {
			seen[truncateToDay(e.Date)] = true
			rows++
		}
	}
	return len(seen), rows
}

// BuildTrainingMatrix 時系列から学習用の特徴量行列を組み立てる。
// 外れ値は保守的にクリップする（20行超かつ分散がある場合のみ）。
func (p *FeaturePipeline) BuildTrainingMatrix(series []models.SeriesPoint) *FeatureMatrix {
	schema := NewFeatureSchema()
	values := make([]float64, len(series))
	for i, pt := range series {
		values[i] = pt.Value
	}
	values, clipped := clipOutliers(values, p.OutlierZUpper, p.OutlierZLower)
	if clipped > 0 {
		log.Printf("🔍 [特徴量] 外れ値を%d件クリップしました", clipped)
	}

	m := &FeatureMatrix{Schema: schema, OutliersClipped: clipped}
	for i, pt := range series {
		cal := buildCalendarFeatures(pt.Date)
		row := cal.vector()
		row = append(row, trendFeaturesAt(values, i, cal)...)
		m.Dates = append(m.Dates, pt.Date)
		m.X = append(m.X, row)
		m.Y = append(m.Y, values[i])
	}
	return m
}

// trendFeaturesAt 位置iまでの履歴から移動平均・ラグ・派生特徴量を計算する。
// 窓が足りない場合は利用可能な範囲で計算する（最低1点）。
func trendFeaturesAt(values []float64, i int, cal calendarFeatures) []float64 {
	ma7 := meanTail(values[:i+1], 7)
	ma14 := meanTail(values[:i+1], 14)
	ma30 := meanTail(values[:i+1], 30)
	lag1 := lagAt(values, i, 1)
	lag7 := lag1
	if i >= 7 {
		lag7 = lagAt(values, i, 7)
	}
	lag14 := lag7
	if i >= 14 {
		lag14 = lagAt(values, i, 14)
	}
	std7 := stdTail(values[:i+1], 7)
	return assembleTrend(ma7, ma14, ma30, lag1, lag7, lag14, std7, cal.IsWeekend, cal.Month)
}

// assembleTrend 派生特徴量込みのトレンド特徴量ベクトルを作る。
// weekend/month は呼び出し側のカレンダー特徴量から渡す。
func assembleTrend(ma7, ma14, ma30, lag1, lag7, lag14, std7, weekend, month float64) []float64 {
	return []float64{
		ma7, ma14, ma30, lag1, lag7, lag14, std7,
		ma7 / (ma30 + 1e-8),
		lag1 - ma7,
		std7 / (ma7 + 1e-8),
		weekend * month,
		ma7 - ma14,
		ma14 - ma30,
	}
}

func meanTail(values []float64, window int) float64 {
	if len(values) == 0 {
		return 0
	}
	start := len(values) - window
	if start < 0 {
		start = 0
	}
	sum := 0.0
	for _, v := range values[start:] {
		sum += v
	}
	return sum / float64(len(values)-start)
}

func stdTail(values []float64, window int) float64 {
	start := len(values) - window
	if start < 0 {
		start = 0
	}
	tail := values[start:]
	if len(tail) < 2 {
		return 0
	}
	mean := meanTail(tail, len(tail))
	sum := 0.0
	for _, v := range tail {
		sum += (v - mean) * (v - mean)
	}
	return math.Sqrt(sum / float64(len(tail)-1))
}

func lagAt(values []float64, i, lag int) float64 {
	if i-lag < 0 {
		return 0
	}
	return values[i-lag]
}

// clipOutliers 保守的な外れ値クリップ。
// 上限 = min(p99, 平均+zUpper×σ)、下限 = max(0, 中央値−zLower×σ)。
// 20行以下または分散ゼロの場合は何もしない。
func clipOutliers(values []float64, zUpper, zLower float64) ([]float64, int) {
	if len(values) <= 20 {
		return values, 0
	}
	mean := calculateMean(values)
	std := calculateStandardDeviation(values)
	if std == 0 {
		return values, 0
	}
	upper := math.Min(percentile(values, 0.99), mean+zUpper*std)
	lower := math.Max(0, median(values)-zLower*std)

	out := make([]float64, len(values))
	clipped := 0
	for i, v := range values {
		switch {
		case v > upper:
			out[i] = upper
			clipped++
		case v < lower:
			out[i] = lower
			clipped++
		default:
			out[i] = v
		}
	}
	return out, clipped
}

func percentile(values []float64, q float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func median(values []float64) float64 {
	return percentile(values, 0.5)
}
