package services

import (
	"fmt"
	"log"
	"math"
	"math/rand"
	"sort"

	config "cocinai-engine/configs"
	"cocinai-engine/pkg/models"
)

// AnomalyDetectionService 販売・廃棄の異常検知サービス
type AnomalyDetectionService struct {
	pipeline *FeaturePipeline
	cfg      *config.Config
}

// NewAnomalyDetectionService 異常検知サービスを作成する
func NewAnomalyDetectionService(pipeline *FeaturePipeline, cfg *config.Config) *AnomalyDetectionService {
	return &AnomalyDetectionService{pipeline: pipeline, cfg: cfg}
}

// DetectSalesAnomalies 日次販売数の異常を検出する。
// データが20日分未満の場合は異常なしとして返す。
func (s *AnomalyDetectionService) DetectSalesAnomalies(historyDays int) *models.AnomalyReport {
	series := s.pipeline.BuildSalesSeries(nil, historyDays)
	report := &models.AnomalyReport{Kind: "sales", Contamination: 0.10, AnalyzedRows: len(series)}
	if len(series) < 20 {
		report.Message = fmt.Sprintf("分析には最低20日分のデータが必要です（現在%d日分）", len(series))
		return report
	}

	values := seriesValues(series)
	mean := calculateMean(values)
	report.SeriesMean = round1(mean)

	flagged := isolationOutliers(series, report.Contamination)
	for _, f := range flagged {
		rec := models.AnomalyRecord{
			Date:       f.point.Date,
			Value:      f.point.Value,
			Score:      f.score,
			SeriesMean: round1(mean),
			Deviation:  round1(f.point.Value - mean),
		}
		if f.point.Value >= mean {
			rec.Type = "pico"
			rec.Message = fmt.Sprintf("📈 %s の販売数 %.1f は平均 %.1f を大きく上回っています",
				f.point.Date.Format("2006-01-02"), f.point.Value, mean)
		} else {
			rec.Type = "valle"
			rec.Message = fmt.Sprintf("📉 %s の販売数 %.1f は平均 %.1f を大きく下回っています",
				f.point.Date.Format("2006-01-02"), f.point.Value, mean)
		}
		report.Anomalies = append(report.Anomalies, rec)
	}
	log.Printf("🔍 [異常検知] 販売: %d日分を分析し%d件検出", len(series), len(report.Anomalies))
	return report
}

// DetectWasteAnomalies 廃棄量の異常を検出する。
// 平均超過の日だけを対象にするため、検出されるのは急増のみ。
func (s *AnomalyDetectionService) DetectWasteAnomalies(historyDays int) *models.AnomalyReport {
	series := s.pipeline.BuildWasteSeries(historyDays)
	report := &models.AnomalyReport{Kind: "waste", Contamination: 0.15, AnalyzedRows: len(series)}
	if len(series) < 20 {
		report.Message = fmt.Sprintf("分析には最低20日分のデータが必要です（現在%d日分）", len(series))
		return report
	}

	values := seriesValues(series)
	mean := calculateMean(values)
	report.SeriesMean = round1(mean)

	// 平均以下の廃棄は問題視しない
	var above []models.SeriesPoint
	for _, pt := range series {
		if pt.Value > mean {
			above = append(above, pt)
		}
	}
	if len(above) < 5 {
		report.Message = "平均を超える廃棄日が少なく、分析対象がありません"
		return report
	}

	flagged := isolationOutliers(above, report.Contamination)
	for _, f := range flagged {
		report.Anomalies = append(report.Anomalies, models.AnomalyRecord{
			Date:       f.point.Date,
			Value:      f.point.Value,
			Score:      f.score,
			Type:       "pico",
			SeriesMean: round1(mean),
			Deviation:  round1(f.point.Value - mean),
			Message: fmt.Sprintf("⚠️ %s の廃棄量 %.1f は平均 %.1f を大きく超えています",
				f.point.Date.Format("2006-01-02"), f.point.Value, mean),
		})
	}
	log.Printf("🔍 [異常検知] 廃棄: %d日分を分析し%d件検出", len(series), len(report.Anomalies))
	return report
}

type flaggedPoint struct {
	point models.SeriesPoint
	score float64
}

// isolationOutliers 時系列にIsolation Forestを当て、スコア上位を異常として返す。
// 特徴量は [値, 曜日, 月, 移動平均7, 移動標準偏差7]
func isolationOutliers(series []models.SeriesPoint, contamination float64) []flaggedPoint {
	values := seriesValues(series)
	X := make([][]float64, len(series))
	for i, pt := range series {
		X[i] = []float64{
			pt.Value,
			float64((int(pt.Date.Weekday()) + 6) % 7),
			float64(pt.Date.Month()),
			meanTail(values[:i+1], 7),
			stdPopTail(values[:i+1], 7),
		}
	}

	forest := NewIsolationForest()
	forest.Fit(X)
	scores := make([]float64, len(X))
	for i, x := range X {
		scores[i] = forest.Score(x)
	}

	k := int(contamination * float64(len(X)))
	if k < 1 {
		k = 1
	}
	idx := make([]int, len(X))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return scores[idx[a]] > scores[idx[b]] })

	out := make([]flaggedPoint, 0, k)
	for _, i := range idx[:k] {
		out = append(out, flaggedPoint{point: series[i], score: math.Round(scores[i]*1000) / 1000})
	}
	return out
}

// IsolationForest 外れ値検出のための孤立森。固定シードで決定的に動く
type IsolationForest struct {
	NumTrees   int
	SampleSize int
	Seed       int64
	trees      []*isoNode
	sampleUsed int
}

type isoNode struct {
	feature   int
	threshold float64
	size      int // 外部ノードに残った点の数
	left      *isoNode
	right     *isoNode
}

// NewIsolationForest 既定パラメータの孤立森を作る
func NewIsolationForest() *IsolationForest {
	return &IsolationForest{NumTrees: 100, SampleSize: 256, Seed: 42}
}

// Fit データから孤立木を構築する
func (f *IsolationForest) Fit(X [][]float64) {
	rng := rand.New(rand.NewSource(f.Seed))
	sample := f.SampleSize
	if sample > len(X) {
		sample = len(X)
	}
	f.sampleUsed = sample
	heightLimit := int(math.Ceil(math.Log2(math.Max(2, float64(sample)))))

	f.trees = make([]*isoNode, f.NumTrees)
	for t := 0; t < f.NumTrees; t++ {
		perm := rng.Perm(len(X))[:sample]
		sub := make([][]float64, sample)
		for i, p := range perm {
			sub[i] = X[p]
		}
		f.trees[t] = buildIsoTree(sub, 0, heightLimit, rng)
	}
}

func buildIsoTree(X [][]float64, depth, limit int, rng *rand.Rand) *isoNode {
	if depth >= limit || len(X) <= 1 {
		return &isoNode{size: len(X)}
	}
	feature := rng.Intn(len(X[0]))
	lo, hi := X[0][feature], X[0][feature]
	for _, x := range X[1:] {
		if x[feature] < lo {
			lo = x[feature]
		}
		if x[feature] > hi {
			hi = x[feature]
		}
	}
	if lo == hi {
		return &isoNode{size: len(X)}
	}
	threshold := lo + rng.Float64()*(hi-lo)
	var left, right [][]float64
	for _, x := range X {
		if x[feature] < threshold {
			left = append(left, x)
		} else {
			right = append(right, x)
		}
	}
	return &isoNode{
		feature:   feature,
		threshold: threshold,
		left:      buildIsoTree(left, depth+1, limit, rng),
		right:     buildIsoTree(right, depth+1, limit, rng),
	}
}

// Score 異常スコアを返す。1に近いほど異常、0.5前後は正常
func (f *IsolationForest) Score(x []float64) float64 {
	if len(f.trees) == 0 {
		return 0
	}
	sum := 0.0
	for _, t := range f.trees {
		sum += pathLength(t, x, 0)
	}
	avg := sum / float64(len(f.trees))
	return math.Pow(2, -avg/avgPathLength(f.sampleUsed))
}

func pathLength(n *isoNode, x []float64, depth float64) float64 {
	for n.left != nil {
		if x[n.feature] < n.threshold {
			n = n.left
		} else {
			n = n.right
		}
		depth++
	}
	return depth + avgPathLength(n.size)
}

// avgPathLength BSTの平均不成功探索長 c(n)
func avgPathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	if n == 2 {
		return 1
	}
	h := math.Log(float64(n-1)) + 0.5772156649
	return 2*h - 2*float64(n-1)/float64(n)
}
