package services

import (
	"fmt"
	"log"
	"math"
	"strconv"
	"time"

	config "cocinai-engine/configs"
	"cocinai-engine/pkg/models"
)

// DemandForecastService 需要予測サービス。学習・日次予測・期間予測を提供する
type DemandForecastService struct {
	source   EventSource
	pipeline *FeaturePipeline
	store    *ModelStore
	cfg      *config.Config
	now      func() time.Time
}

// NewDemandForecastService 需要予測サービスを作成する
func NewDemandForecastService(source EventSource, pipeline *FeaturePipeline, store *ModelStore, cfg *config.Config) *DemandForecastService {
	return &DemandForecastService{
		source:   source,
		pipeline: pipeline,
		store:    store,
		cfg:      cfg,
		now:      time.Now,
	}
}

func entityKeyFor(dishID *int64) string {
	if dishID == nil {
		return EntityKeyAll
	}
	return strconv.FormatInt(*dishID, 10)
}

// TrainSalesModel 販売モデルを学習する。
// 鮮度内の保存済みモデルがあれば再利用し（force=trueで無視）、
// データが30行未満の場合はエラーではなく insufficient_data を返す。
func (s *DemandForecastService) TrainSalesModel(dishID *int64, kind string, force bool) *models.TrainingResult {
	_, result := s.trainOrLoad(dishID, kind, force)
	return result
}

// trainOrLoad キャッシュを考慮して学習済みモデルを用意する
func (s *DemandForecastService) trainOrLoad(dishID *int64, kind string, force bool) (*ModelArtifact, *models.TrainingResult) {
	entityKey := entityKeyFor(dishID)
	resolvedKind := ResolveModelKind(kind)
	maxAge := time.Duration(s.cfg.ModelMaxAgeDays) * 24 * time.Hour

	if !force {
		if cached, _ := s.store.Load(entityKey, resolvedKind, maxAge); cached != nil {
			log.Printf("✅ [需要予測] 保存済みモデルを再利用: %s (%s)", entityKey, resolvedKind)
			return cached, resultFromArtifact(cached, "cached")
		}
	}

	// 料理を絞らない場合は全料理を(日付, 料理)行でまとめて学習する。
	// 販売のある料理が1つだけなら単一系列と同じ扱いになる
	var matrix *FeatureMatrix
	var encoder map[int64]int
	if dishID == nil {
		matrix, encoder = s.pipeline.BuildMultiEntityMatrix(s.cfg.HistoryDays)
	}
	if matrix == nil {
		series := s.pipeline.BuildSalesSeries(dishID, s.cfg.HistoryDays)
		matrix = s.pipeline.BuildTrainingMatrix(series)
	}
	if len(matrix.X) < 30 {
		log.Printf("⚠️ [需要予測] データ不足で学習できません: %s (%d行)", entityKey, len(matrix.X))
		return nil, &models.TrainingResult{
			Status:        "insufficient_data",
			Reason:        fmt.Sprintf("学習には最低30行のデータが必要です（現在%d行）", len(matrix.X)),
			EntityKey:     entityKey,
			ModelKind:     resolvedKind,
			TotalRows:     len(matrix.X),
			SchemaVersion: FeatureSchemaVersion,
		}
	}

	artifact, err := s.fitArtifact(entityKey, resolvedKind, matrix, encoder)
	if err != nil {
		return nil, &models.TrainingResult{
			Status:        "insufficient_data",
			Reason:        err.Error(),
			EntityKey:     entityKey,
			ModelKind:     resolvedKind,
			TotalRows:     len(matrix.X),
			SchemaVersion: FeatureSchemaVersion,
		}
	}
	if err := s.store.Save(artifact); err != nil {
		log.Printf("⚠️ [需要予測] モデルを保存できませんでした: %v", err)
	}
	return artifact, resultFromArtifact(artifact, "trained")
}

// fitArtifact 時系列の特徴量行列からモデル一式を学習する。
// 時系列順で前80%を学習、後20%を評価に使う（50行未満は全行で両方）。
func (s *DemandForecastService) fitArtifact(entityKey, kind string, m *FeatureMatrix, encoder map[int64]int) (*ModelArtifact, error) {
	n := len(m.X)
	trainEnd := n
	testStart := 0
	if n >= 50 {
		trainEnd = int(0.8 * float64(n))
		testStart = trainEnd
	}
	trainX, trainY := m.X[:trainEnd], m.Y[:trainEnd]
	testX, testY := m.X[testStart:], m.Y[testStart:]

	primary, err := NewRegressor(kind)
	if err != nil {
		return nil, err
	}
	if err := primary.Fit(trainX, trainY); err != nil {
		return nil, fmt.Errorf("学習に失敗しました: %w", err)
	}

	var secondary Regressor
	if kind == ModelKindRandomForest && len(trainX) > 50 {
		gb := NewGradientBoostingRegressor()
		if err := gb.Fit(trainX, trainY); err == nil {
			secondary = gb
			log.Printf("📊 [需要予測] 勾配ブースティングとブレンドします (重み %.1f/%.1f)",
				s.cfg.BlendPrimaryWeight, 1-s.cfg.BlendPrimaryWeight)
		}
	}

	artifact := &ModelArtifact{
		EntityKey:       entityKey,
		ModelKind:       kind,
		Schema:          m.Schema,
		Primary:         primary,
		Secondary:       secondary,
		BlendWeight:     s.cfg.BlendPrimaryWeight,
		SmoothingAlpha:  s.cfg.SmoothingAlpha,
		EntityEncoder:   encoder,
		TrainRows:       len(trainX),
		TestRows:        len(testX),
		TotalRows:       n,
		OutliersClipped: m.OutliersClipped,
		TrainedAt:       s.now(),
	}

	// テスト区間の予測（負値はクリップ）
	preds := make([]float64, len(testX))
	for i, x := range testX {
		preds[i] = math.Max(0, artifact.PredictRow(x))
	}

	// 指数平滑はMAEが改善する場合のみ採用
	smoothed := exponentialSmoothing(preds, s.cfg.SmoothingAlpha)
	if meanAbsError(smoothed, testY) < meanAbsError(preds, testY) {
		artifact.SmoothingKept = true
		preds = smoothed
	}
	artifact.Metrics = evaluateMetrics(preds, testY)

	// 再帰予測の初期窓と履歴フォールバック値
	values := m.Y
	tail := values
	if len(tail) > 30 {
		tail = tail[len(tail)-30:]
	}
	artifact.RecentValues = append([]float64(nil), tail...)
	artifact.HistMA7 = meanTail(values, 7)
	artifact.HistMA14 = meanTail(values, 14)
	artifact.HistMA30 = meanTail(values, 30)
	artifact.HistStd7 = stdPopTail(values, 7)

	log.Printf("✅ [需要予測] 学習完了: %s (%s) MAE=%.2f R2=%.2f 学習%d行/評価%d行",
		entityKey, kind, artifact.Metrics.MAE, artifact.Metrics.R2, len(trainX), len(testX))
	return artifact, nil
}

func resultFromArtifact(a *ModelArtifact, status string) *models.TrainingResult {
	return &models.TrainingResult{
		Status:          status,
		EntityKey:       a.EntityKey,
		ModelKind:       a.ModelKind,
		Metrics:         a.Metrics,
		TrainRows:       a.TrainRows,
		TestRows:        a.TestRows,
		TotalRows:       a.TotalRows,
		OutliersClipped: a.OutliersClipped,
		BlendApplied:    a.Secondary != nil,
		SmoothingKept:   a.SmoothingKept,
		SchemaVersion:   a.Schema.Version,
		TrainedAt:       a.TrainedAt,
	}
}

// PredictSales 明日からhorizonDays日分の需要を予測する
func (s *DemandForecastService) PredictSales(dishID *int64, kind string, horizonDays int) (*models.RangeForecast, error) {
	if horizonDays < 1 || horizonDays > 365 {
		return nil, fmt.Errorf("予測日数は1〜365の範囲で指定してください: %d", horizonDays)
	}
	tomorrow := truncateToDay(s.now()).AddDate(0, 0, 1)
	return s.predictRange(dishID, tomorrow, tomorrow.AddDate(0, 0, horizonDays-1), kind, false)
}

// PredictSalesRange 期間指定の需要予測。前年同期間の実績との比較を含む
func (s *DemandForecastService) PredictSalesRange(dishID *int64, start, end time.Time, kind string) (*models.RangeForecast, error) {
	start, end = truncateToDay(start), truncateToDay(end)
	today := truncateToDay(s.now())
	if end.Before(start) {
		return nil, fmt.Errorf("終了日が開始日より前です: %s > %s", start.Format("2006-01-02"), end.Format("2006-01-02"))
	}
	if end.After(today.AddDate(1, 0, 0)) {
		return nil, fmt.Errorf("予測できるのは1年先までです: %s", end.Format("2006-01-02"))
	}
	return s.predictRange(dishID, start, end, kind, true)
}

func (s *DemandForecastService) predictRange(dishID *int64, start, end time.Time, kind string, withYoY bool) (*models.RangeForecast, error) {
	artifact, training := s.trainOrLoad(dishID, kind, false)
	if artifact == nil {
		return &models.RangeForecast{
			EntityKey: training.EntityKey,
			ModelKind: training.ModelKind,
			Start:     start,
			End:       end,
			Training:  training,
		}, nil
	}

	points := recursiveForecast(artifact, start, end)
	total := 0.0
	for _, p := range points {
		total += p.Predicted
	}
	fc := &models.RangeForecast{
		EntityKey:    artifact.EntityKey,
		ModelKind:    artifact.ModelKind,
		Start:        start,
		End:          end,
		Days:         len(points),
		Points:       points,
		Total:        round1(total),
		DailyAverage: round1(total / float64(len(points))),
		Training:     training,
	}
	if withYoY {
		fc.YearAgo = s.yearOverYear(dishID, start, end, fc.Total)
	}
	return fc, nil
}

// recursiveForecast 予測値を観測値として窓に送り込みながら1日ずつ先へ進める。
// 指数平滑は評価時のみで、将来予測はブレンドした生の値をそのまま使う
func recursiveForecast(a *ModelArtifact, start, end time.Time) []models.ForecastPoint {
	w := newRollingWindow(30, a.RecentValues)
	var points []models.ForecastPoint
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		row := futureFeatureRow(d, w, a)
		pred := round1(math.Max(0, a.PredictRow(row)))
		points = append(points, models.ForecastPoint{
			Date:      d,
			Weekday:   weekdayNameJa(d),
			Predicted: pred,
		})
		w.push(pred)
	}
	return points
}

// futureFeatureRow 将来日1日分の特徴量をスキーマ順に組み立てる。
// 窓が短い間は学習時の履歴統計にフォールバックする。
func futureFeatureRow(d time.Time, w *rollingWindow, a *ModelArtifact) []float64 {
	cal := buildCalendarFeatures(d)
	row := cal.vector()

	vals := w.values()
	ma7 := a.HistMA7
	if len(vals) >= 7 {
		ma7 = meanTail(vals, 7)
	}
	ma14 := a.HistMA14
	if len(vals) >= 14 {
		ma14 = meanTail(vals, 14)
	}
	ma30 := a.HistMA30
	if len(vals) >= 30 {
		ma30 = meanTail(vals, 30)
	}
	lag1 := 0.0
	if len(vals) >= 1 {
		lag1 = vals[len(vals)-1]
	}
	lag7 := lag1
	if len(vals) >= 7 {
		lag7 = vals[len(vals)-7]
	}
	lag14 := lag7
	if len(vals) >= 14 {
		lag14 = vals[len(vals)-14]
	}
	std7 := a.HistStd7
	if len(vals) >= 7 {
		std7 = stdPopTail(vals, 7)
	}
	row = append(row, assembleTrend(ma7, ma14, ma30, lag1, lag7, lag14, std7, cal.IsWeekend, cal.Month)...)
	if a.EntityEncoder != nil {
		// 全体モデルはコード0の料理として予測する
		row = append(row, 0)
	}
	return row
}

// yearOverYear 前年同期間の実績を集計して予測合計と比較する
func (s *DemandForecastService) yearOverYear(dishID *int64, start, end time.Time, forecastTotal float64) *models.YearOverYearComparison {
	prevStart := sameDayLastYear(start)
	prevEnd := sameDayLastYear(end)
	events := s.source.SalesEvents(dishID, prevStart, prevEnd)

	cmp := &models.YearOverYearComparison{Start: prevStart, End: prevEnd}
	if len(events) == 0 {
		return cmp
	}
	cmp.HasData = true
	cmp.ByDay = make(map[string]float64)
	cmp.ByDish = make(map[string]float64)
	for _, e := range events {
		cmp.Total += e.Quantity
		cmp.ByDay[truncateToDay(e.Date).Format("2006-01-02")] += e.Quantity
		name := e.DishName
		if name == "" {
			name = strconv.FormatInt(e.DishID, 10)
		}
		cmp.ByDish[name] += e.Quantity
	}
	cmp.AbsoluteDiff = round1(forecastTotal - cmp.Total)
	if cmp.Total > 0 {
		cmp.PercentDiff = round1((forecastTotal - cmp.Total) / cmp.Total * 100)
	}
	return cmp
}

// sameDayLastYear 前年の同日。閏日は2月28日に寄せる
func sameDayLastYear(t time.Time) time.Time {
	if t.Month() == time.February && t.Day() == 29 {
		return time.Date(t.Year()-1, time.February, 28, 0, 0, 0, 0, t.Location())
	}
	return time.Date(t.Year()-1, t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// PredictIngredientDemand 食材単位の需要予測。
// ティアが要求するユニーク日数に満たない場合は理由付きでスキップする。
func (s *DemandForecastService) PredictIngredientDemand(ingredientID int64, horizonDays int, tierName string) *models.IngredientDemandForecast {
	tier := config.GetTier(tierName)
	var name, unit string
	for _, ing := range s.source.Ingredients() {
		if ing.ID == ingredientID {
			name, unit = ing.Name, ing.Unit
			break
		}
	}
	out := &models.IngredientDemandForecast{
		IngredientID: ingredientID,
		Name:         name,
		Unit:         unit,
		Tier:         tier.Name,
	}

	series := s.pipeline.BuildConsumptionSeries(ingredientID, s.cfg.HistoryDays)
	uniqueDays := 0
	for _, pt := range series {
		if pt.Value > 0 {
			uniqueDays++
		}
	}
	out.UniqueDays = uniqueDays
	if uniqueDays < tier.MinUniqueDays {
		out.Status = "insufficient_data"
		out.Reason = fmt.Sprintf("ティア%sには%d日分の消費データが必要です（現在%d日分）",
			tier.Name, tier.MinUniqueDays, uniqueDays)
		return out
	}

	points, err := s.forecastSeries(series, horizonDays)
	if err != nil {
		out.Status = "insufficient_data"
		out.Reason = err.Error()
		return out
	}

	// 異常に大きい予測は履歴の統計で抑える
	values := seriesValues(series)
	upper := math.Max(3*calculateMean(values), math.Max(2*maxOf(values), 4*median(values)))
	total := 0.0
	for i := range points {
		if points[i].Predicted > upper {
			points[i].Predicted = round1(upper)
		}
		total += points[i].Predicted
	}
	out.Status = "ok"
	out.Points = points
	out.Total = round1(total)
	out.Confidence = confidenceForDays(uniqueDays)
	return out
}

// PredictWaste 廃棄量の予測
func (s *DemandForecastService) PredictWaste(horizonDays int) *models.WasteForecast {
	series := s.pipeline.BuildWasteSeries(s.cfg.HistoryDays)
	if len(series) < 14 {
		return &models.WasteForecast{
			Status: "insufficient_data",
			Reason: fmt.Sprintf("廃棄予測には最低14日分のデータが必要です（現在%d日分）", len(series)),
		}
	}
	points, err := s.forecastSeries(series, horizonDays)
	if err != nil {
		return &models.WasteForecast{Status: "insufficient_data", Reason: err.Error()}
	}
	total := 0.0
	for _, p := range points {
		total += p.Predicted
	}
	uniqueDays := 0
	for _, pt := range series {
		if pt.Value > 0 {
			uniqueDays++
		}
	}
	return &models.WasteForecast{
		Status:     "ok",
		Points:     points,
		Total:      round1(total),
		Confidence: confidenceForDays(uniqueDays),
	}
}

// forecastSeries 保存を伴わないその場の学習＋再帰予測（食材・廃棄用）
func (s *DemandForecastService) forecastSeries(series []models.SeriesPoint, horizonDays int) ([]models.ForecastPoint, error) {
	if horizonDays < 1 || horizonDays > 365 {
		return nil, fmt.Errorf("予測日数は1〜365の範囲で指定してください: %d", horizonDays)
	}
	m := s.pipeline.BuildTrainingMatrix(series)
	rf := NewRandomForestRegressor()
	if err := rf.Fit(m.X, m.Y); err != nil {
		return nil, fmt.Errorf("学習に失敗しました: %w", err)
	}
	values := m.Y
	tail := values
	if len(tail) > 30 {
		tail = tail[len(tail)-30:]
	}
	artifact := &ModelArtifact{
		Primary:      rf,
		Schema:       m.Schema,
		RecentValues: append([]float64(nil), tail...),
		HistMA7:      meanTail(values, 7),
		HistMA14:     meanTail(values, 14),
		HistMA30:     meanTail(values, 30),
		HistStd7:     stdPopTail(values, 7),
	}
	tomorrow := truncateToDay(s.now()).AddDate(0, 0, 1)
	return recursiveForecast(artifact, tomorrow, tomorrow.AddDate(0, 0, horizonDays-1)), nil
}

// confidenceForDays データ量から信頼度ラベルを決める
func confidenceForDays(uniqueDays int) string {
	switch {
	case uniqueDays >= 60:
		return "alta"
	case uniqueDays >= 20:
		return "media"
	default:
		return "baja"
	}
}

// rollingWindow 直近の観測値を容量上限付きで保持するリングバッファ。
// 再帰予測で「予測値を観測値として積む」状態を明示的に持ち回るためのもの
type rollingWindow struct {
	buf      []float64
	capacity int
}

func newRollingWindow(capacity int, seed []float64) *rollingWindow {
	w := &rollingWindow{capacity: capacity}
	start := len(seed) - capacity
	if start < 0 {
		start = 0
	}
	w.buf = append(w.buf, seed[start:]...)
	return w
}

func (w *rollingWindow) push(v float64) {
	w.buf = append(w.buf, v)
	if len(w.buf) > w.capacity {
		w.buf = w.buf[1:]
	}
}

func (w *rollingWindow) values() []float64 { return w.buf }

// ヘルパー

func exponentialSmoothing(values []float64, alpha float64) []float64 {
	if len(values) == 0 {
		return nil
	}
	out := make([]float64, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

func meanAbsError(pred, actual []float64) float64 {
	if len(pred) == 0 {
		return 0
	}
	sum := 0.0
	for i := range pred {
		sum += math.Abs(pred[i] - actual[i])
	}
	return sum / float64(len(pred))
}

// evaluateMetrics MAE / RMSE / R² / MAPE を計算する
func evaluateMetrics(pred, actual []float64) models.ModelMetrics {
	if len(pred) == 0 {
		return models.ModelMetrics{}
	}
	meanY := calculateMean(actual)
	var sae, sse, sst float64
	for i := range pred {
		err := pred[i] - actual[i]
		sae += math.Abs(err)
		sse += err * err
		sst += (actual[i] - meanY) * (actual[i] - meanY)
	}
	n := float64(len(pred))
	m := models.ModelMetrics{
		MAE:  sae / n,
		RMSE: math.Sqrt(sse / n),
		MAPE: (sae / n) / (meanY + 1e-8) * 100,
	}
	if sst > 0 {
		m.R2 = 1 - sse/sst
	}
	return m
}

// stdPopTail 末尾window個の母標準偏差
func stdPopTail(values []float64, window int) float64 {
	start := len(values) - window
	if start < 0 {
		start = 0
	}
	tail := values[start:]
	if len(tail) == 0 {
		return 0
	}
	return calculateStandardDeviation(tail)
}

func seriesValues(series []models.SeriesPoint) []float64 {
	out := make([]float64, len(series))
	for i, pt := range series {
		out[i] = pt.Value
	}
	return out
}

func maxOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

var weekdayNamesJa = [...]string{"日曜日", "月曜日", "火曜日", "水曜日", "木曜日", "金曜日", "土曜日"}

func weekdayNameJa(t time.Time) string {
	return weekdayNamesJa[int(t.Weekday())]
}
