package services

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// モデル種別。auto は主モデル（ランダムフォレスト）を選ぶ
const (
	ModelKindAuto             = "auto"
	ModelKindRandomForest     = "random_forest"
	ModelKindGradientBoosting = "gradient_boosting"
	ModelKindRidge            = "ridge"
	ModelKindLinear           = "linear"
)

// Regressor 学習と1点推論のインターフェース。実装はすべてgobで直列化できる
type Regressor interface {
	Fit(X [][]float64, y []float64) error
	Predict(x []float64) float64
	Kind() string
}

// NewRegressor モデル種別名から回帰器を生成する
func NewRegressor(kind string) (Regressor, error) {
	switch kind {
	case ModelKindAuto, ModelKindRandomForest:
		return NewRandomForestRegressor(), nil
	case ModelKindGradientBoosting:
		return NewGradientBoostingRegressor(), nil
	case ModelKindRidge:
		return &RidgeRegressor{Lambda: 1.0}, nil
	case ModelKindLinear:
		return &RidgeRegressor{Lambda: 1e-8, LinearKind: true}, nil
	default:
		return nil, fmt.Errorf("未対応のモデル種別です: %s", kind)
	}
}

// ResolveModelKind "auto" を実際のモデル種別へ解決する
func ResolveModelKind(kind string) string {
	if kind == "" || kind == ModelKindAuto {
		return ModelKindRandomForest
	}
	return kind
}

// TreeNode 回帰木のノード。Left が nil なら葉で Value を返す
type TreeNode struct {
	Feature   int
	Threshold float64
	Value     float64
	Left      *TreeNode
	Right     *TreeNode
}

func (n *TreeNode) predict(x []float64) float64 {
	for n.Left != nil {
		if x[n.Feature] <= n.Threshold {
			n = n.Left
		} else {
			n = n.Right
		}
	}
	return n.Value
}

type treeParams struct {
	maxDepth int
	minLeaf  int
	mtry     int // 分割ごとに試す特徴量の数。0なら全部
}

// buildTree 分散減少を基準にCART回帰木を構築する
func buildTree(X [][]float64, y []float64, idx []int, depth int, p treeParams, rng *rand.Rand) *TreeNode {
	node := &TreeNode{Value: meanAt(y, idx)}
	if depth >= p.maxDepth || len(idx) < 2*p.minLeaf {
		return node
	}

	nFeatures := len(X[idx[0]])
	features := make([]int, nFeatures)
	for i := range features {
		features[i] = i
	}
	if p.mtry > 0 && p.mtry < nFeatures {
		rng.Shuffle(nFeatures, func(i, j int) { features[i], features[j] = features[j], features[i] })
		features = features[:p.mtry]
	}

	bestFeature, bestThreshold, bestScore := -1, 0.0, math.Inf(1)
	type pair struct{ v, y float64 }
	pairs := make([]pair, len(idx))
	for _, f := range features {
		for i, id := range idx {
			pairs[i] = pair{X[id][f], y[id]}
		}
		sort.Slice(pairs, func(i, j int) bool { return pairs[i].v < pairs[j].v })

		// 左右の二乗和を累積で更新しながら全分割点を評価する
		var sumL, sumL2 float64
		sumR, sumR2 := 0.0, 0.0
		for _, pr := range pairs {
			sumR += pr.y
			sumR2 += pr.y * pr.y
		}
		for i := 0; i < len(pairs)-1; i++ {
			sumL += pairs[i].y
			sumL2 += pairs[i].y * pairs[i].y
			sumR -= pairs[i].y
			sumR2 -= pairs[i].y * pairs[i].y
			if pairs[i].v == pairs[i+1].v {
				continue
			}
			nL, nR := float64(i+1), float64(len(pairs)-i-1)
			if int(nL) < p.minLeaf || int(nR) < p.minLeaf {
				continue
			}
			sse := (sumL2 - sumL*sumL/nL) + (sumR2 - sumR*sumR/nR)
			if sse < bestScore {
				bestScore = sse
				bestFeature = f
				bestThreshold = (pairs[i].v + pairs[i+1].v) / 2
			}
		}
	}
	if bestFeature < 0 {
		return node
	}

	var leftIdx, rightIdx []int
	for _, id := range idx {
		if X[id][bestFeature] <= bestThreshold {
			leftIdx = append(leftIdx, id)
		} else {
			rightIdx = append(rightIdx, id)
		}
	}
	if len(leftIdx) == 0 || len(rightIdx) == 0 {
		return node
	}
	node.Feature = bestFeature
	node.Threshold = bestThreshold
	node.Left = buildTree(X, y, leftIdx, depth+1, p, rng)
	node.Right = buildTree(X, y, rightIdx, depth+1, p, rng)
	return node
}

func meanAt(y []float64, idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	sum := 0.0
	for _, i := range idx {
		sum += y[i]
	}
	return sum / float64(len(idx))
}

// RandomForestRegressor ブートストラップ＋特徴量サブサンプルの回帰木アンサンブル
type RandomForestRegressor struct {
	NumTrees       int
	MaxDepth       int
	MinSamplesLeaf int
	Seed           int64
	Trees          []*TreeNode
}

// NewRandomForestRegressor 既定パラメータのランダムフォレストを作る
func NewRandomForestRegressor() *RandomForestRegressor {
	return &RandomForestRegressor{NumTrees: 100, MaxDepth: 10, MinSamplesLeaf: 2, Seed: 42}
}

// Fit 学習する。シードが固定なので同じデータに対して決定的
func (rf *RandomForestRegressor) Fit(X [][]float64, y []float64) error {
	if len(X) == 0 || len(X) != len(y) {
		return fmt.Errorf("学習データが不正です: X=%d, y=%d", len(X), len(y))
	}
	rng := rand.New(rand.NewSource(rf.Seed))
	mtry := int(math.Sqrt(float64(len(X[0]))))
	if mtry < 1 {
		mtry = 1
	}
	params := treeParams{maxDepth: rf.MaxDepth, minLeaf: rf.MinSamplesLeaf, mtry: mtry}

	rf.Trees = make([]*TreeNode, rf.NumTrees)
	for t := 0; t < rf.NumTrees; t++ {
		idx := make([]int, len(X))
		for i := range idx {
			idx[i] = rng.Intn(len(X))
		}
		rf.Trees[t] = buildTree(X, y, idx, 0, params, rng)
	}
	return nil
}

// Predict 全木の平均を返す
func (rf *RandomForestRegressor) Predict(x []float64) float64 {
	if len(rf.Trees) == 0 {
		return 0
	}
	sum := 0.0
	for _, t := range rf.Trees {
		sum += t.predict(x)
	}
	return sum / float64(len(rf.Trees))
}

// Kind モデル種別名
func (rf *RandomForestRegressor) Kind() string { return ModelKindRandomForest }

// GradientBoostingRegressor 残差に浅い木を逐次当てる勾配ブースティング
type GradientBoostingRegressor struct {
	NumTrees     int
	MaxDepth     int
	LearningRate float64
	Subsample    float64
	Seed         int64
	Init         float64
	Trees        []*TreeNode
}

// NewGradientBoostingRegressor 既定パラメータの勾配ブースティングを作る
func NewGradientBoostingRegressor() *GradientBoostingRegressor {
	return &GradientBoostingRegressor{NumTrees: 100, MaxDepth: 3, LearningRate: 0.1, Subsample: 0.8, Seed: 42}
}

// Fit 学習する
func (gb *GradientBoostingRegressor) Fit(X [][]float64, y []float64) error {
	if len(X) == 0 || len(X) != len(y) {
		return fmt.Errorf("学習データが不正です: X=%d, y=%d", len(X), len(y))
	}
	rng := rand.New(rand.NewSource(gb.Seed))
	params := treeParams{maxDepth: gb.MaxDepth, minLeaf: 2}

	gb.Init = calculateMean(y)
	pred := make([]float64, len(y))
	for i := range pred {
		pred[i] = gb.Init
	}
	residual := make([]float64, len(y))
	sampleSize := int(gb.Subsample * float64(len(X)))
	if sampleSize < 1 {
		sampleSize = len(X)
	}

	gb.Trees = make([]*TreeNode, 0, gb.NumTrees)
	for t := 0; t < gb.NumTrees; t++ {
		for i := range residual {
			residual[i] = y[i] - pred[i]
		}
		idx := make([]int, sampleSize)
		for i := range idx {
			idx[i] = rng.Intn(len(X))
		}
		tree := buildTree(X, residual, idx, 0, params, rng)
		gb.Trees = append(gb.Trees, tree)
		for i := range pred {
			pred[i] += gb.LearningRate * tree.predict(X[i])
		}
	}
	return nil
}

// Predict 初期値＋各木の寄与の合計を返す
func (gb *GradientBoostingRegressor) Predict(x []float64) float64 {
	out := gb.Init
	for _, t := range gb.Trees {
		out += gb.LearningRate * t.predict(x)
	}
	return out
}

// Kind モデル種別名
func (gb *GradientBoostingRegressor) Kind() string { return ModelKindGradientBoosting }

// StandardScaler 特徴量を平均0・分散1に標準化する。分散0の列は1で割る
type StandardScaler struct {
	Mean []float64
	Std  []float64
}

// Fit 列ごとの平均と標準偏差を学習する
func (s *StandardScaler) Fit(X [][]float64) {
	if len(X) == 0 {
		return
	}
	d := len(X[0])
	s.Mean = make([]float64, d)
	s.Std = make([]float64, d)
	col := make([]float64, len(X))
	for j := 0; j < d; j++ {
		for i := range X {
			col[i] = X[i][j]
		}
		s.Mean[j] = calculateMean(col)
		s.Std[j] = calculateStandardDeviation(col)
		if s.Std[j] == 0 {
			s.Std[j] = 1
		}
	}
}

// Transform 1行を標準化した新しいスライスを返す
func (s *StandardScaler) Transform(x []float64) []float64 {
	if len(s.Mean) != len(x) {
		return x
	}
	out := make([]float64, len(x))
	for j := range x {
		out[j] = (x[j] - s.Mean[j]) / s.Std[j]
	}
	return out
}

// RidgeRegressor L2正則化付き線形回帰。正規方程式をCholesky分解で解く
type RidgeRegressor struct {
	Lambda     float64
	LinearKind bool // trueなら種別名を linear として報告する
	Scaler     *StandardScaler
	Weights    []float64
	Intercept  float64
}

// Fit 学習する。特徴量は内部で標準化される
func (r *RidgeRegressor) Fit(X [][]float64, y []float64) error {
	if len(X) == 0 || len(X) != len(y) {
		return fmt.Errorf("学習データが不正です: X=%d, y=%d", len(X), len(y))
	}
	r.Scaler = &StandardScaler{}
	r.Scaler.Fit(X)
	Xs := make([][]float64, len(X))
	for i := range X {
		Xs[i] = r.Scaler.Transform(X[i])
	}

	d := len(Xs[0])
	r.Intercept = calculateMean(y)
	yc := make([]float64, len(y))
	for i := range y {
		yc[i] = y[i] - r.Intercept
	}

	// A = X'X + λI, b = X'y
	A := make([][]float64, d)
	b := make([]float64, d)
	for j := 0; j < d; j++ {
		A[j] = make([]float64, d)
	}
	for i := range Xs {
		for j := 0; j < d; j++ {
			b[j] += Xs[i][j] * yc[i]
			for k := j; k < d; k++ {
				A[j][k] += Xs[i][j] * Xs[i][k]
			}
		}
	}
	for j := 0; j < d; j++ {
		for k := 0; k < j; k++ {
			A[j][k] = A[k][j]
		}
		A[j][j] += r.Lambda
	}

	w, err := solveSymmetric(A, b)
	if err != nil || w == nil {
		// 数値的に特異な場合は正則化を強めて再試行
		for j := 0; j < d; j++ {
			A[j][j] += 1.0
		}
		w, err = solveSymmetric(A, b)
		if err != nil || w == nil {
			return fmt.Errorf("正規方程式を解けませんでした")
		}
	}
	r.Weights = w
	return nil
}

// Predict 線形予測値を返す
func (r *RidgeRegressor) Predict(x []float64) float64 {
	if r.Scaler != nil {
		x = r.Scaler.Transform(x)
	}
	out := r.Intercept
	for j, w := range r.Weights {
		if j < len(x) {
			out += w * x[j]
		}
	}
	return out
}

// Kind モデル種別名
func (r *RidgeRegressor) Kind() string {
	if r.LinearKind {
		return ModelKindLinear
	}
	return ModelKindRidge
}
