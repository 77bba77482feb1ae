package services

import (
	"encoding/gob"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"cocinai-engine/pkg/models"
)

func init() {
	gob.Register(&RandomForestRegressor{})
	gob.Register(&GradientBoostingRegressor{})
	gob.Register(&RidgeRegressor{})
}

// EntityKeyAll 料理を絞らない全体モデルのエンティティキー
const EntityKeyAll = "todos"

// ModelArtifact 学習済みモデル一式。モデル本体はgob、メタデータはJSONで保存する
type ModelArtifact struct {
	EntityKey       string
	ModelKind       string
	Schema          FeatureSchema
	Primary         Regressor
	Secondary       Regressor // ブレンドしない場合はnil
	BlendWeight     float64   // Primary側の重み
	SmoothingKept   bool
	SmoothingAlpha  float64
	EntityEncoder   map[int64]int // 全体モデルのみ: 料理ID → エンコード値
	RecentValues    []float64     // 再帰予測の初期窓（学習時の末尾最大30日分）
	HistMA7         float64
	HistMA14        float64
	HistMA30        float64
	HistStd7        float64
	Metrics         models.ModelMetrics
	TrainRows       int
	TestRows        int
	TotalRows       int
	OutliersClipped int
	TrainedAt       time.Time
}

// PredictRow スキーマ順の特徴量1行に対する予測値（ブレンド込み、クリップ前）
func (a *ModelArtifact) PredictRow(x []float64) float64 {
	pred := a.Primary.Predict(x)
	if a.Secondary != nil {
		pred = a.BlendWeight*pred + (1-a.BlendWeight)*a.Secondary.Predict(x)
	}
	return pred
}

// ArtifactMeta メタデータJSONの形
type ArtifactMeta struct {
	EntityKey       string              `json:"entity_key"`
	ModelKind       string              `json:"model_kind"`
	SchemaVersion   int                 `json:"schema_version"`
	Metrics         models.ModelMetrics `json:"metrics"`
	TrainRows       int                 `json:"train_rows"`
	TestRows        int                 `json:"test_rows"`
	TotalRows       int                 `json:"total_rows"`
	OutliersClipped int                 `json:"outliers_clipped"`
	BlendApplied    bool                `json:"blend_applied"`
	SmoothingKept   bool                `json:"smoothing_kept"`
	MultiEntity     bool                `json:"multi_entity"`
	TrainedAt       time.Time           `json:"trained_at"`
}

// ModelStore 学習済みモデルのファイルキャッシュ。
// 書き込みは一時ファイル＋renameで行い、読み手が壊れた中間状態を見ることはない。
type ModelStore struct {
	dir string
	mu  sync.Mutex
}

// NewModelStore 保存先ディレクトリを用意してストアを作る
func NewModelStore(dir string) (*ModelStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("モデル保存ディレクトリを作成できません: %w", err)
	}
	return &ModelStore{dir: dir}, nil
}

func (s *ModelStore) basePath(entityKey, kind string) string {
	name := fmt.Sprintf("modelo_%s_%s", sanitizeKey(entityKey), sanitizeKey(kind))
	return filepath.Join(s.dir, name)
}

func sanitizeKey(key string) string {
	if key == "" {
		return EntityKeyAll
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, key)
}

// Save モデルとメタデータをアトミックに保存する
func (s *ModelStore) Save(a *ModelArtifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	base := s.basePath(a.EntityKey, a.ModelKind)

	if err := writeAtomic(base+".gob", func(f *os.File) error {
		return gob.NewEncoder(f).Encode(a)
	}); err != nil {
		return fmt.Errorf("モデルの保存に失敗しました: %w", err)
	}

	meta := ArtifactMeta{
		EntityKey:       a.EntityKey,
		ModelKind:       a.ModelKind,
		SchemaVersion:   a.Schema.Version,
		Metrics:         a.Metrics,
		TrainRows:       a.TrainRows,
		TestRows:        a.TestRows,
		TotalRows:       a.TotalRows,
		OutliersClipped: a.OutliersClipped,
		BlendApplied:    a.Secondary != nil,
		SmoothingKept:   a.SmoothingKept,
		MultiEntity:     a.EntityEncoder != nil,
		TrainedAt:       a.TrainedAt,
	}
	if err := writeAtomic(base+"_meta.json", func(f *os.File) error {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		return enc.Encode(meta)
	}); err != nil {
		return fmt.Errorf("メタデータの保存に失敗しました: %w", err)
	}
	log.Printf("✅ [モデル保存] %s (%s) を保存しました", a.EntityKey, a.ModelKind)
	return nil
}

// writeAtomic 同一ディレクトリの一時ファイルに書いてからrenameする
func writeAtomic(path string, write func(*os.File) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Load 保存済みモデルを読み込む。
// 見つからない・壊れている・maxAgeより古い・スキーマ不一致の場合は (nil, nil) を返し、
// 呼び出し側は再学習すればよい。壊れたファイルは削除する。
func (s *ModelStore) Load(entityKey, kind string, maxAge time.Duration) (*ModelArtifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	base := s.basePath(entityKey, kind)
	metaBytes, err := os.ReadFile(base + "_meta.json")
	if err != nil {
		return nil, nil
	}
	var meta ArtifactMeta
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		log.Printf("⚠️ [モデル保存] メタデータが壊れています: %s", base)
		s.removeLocked(base)
		return nil, nil
	}
	if meta.SchemaVersion != FeatureSchemaVersion {
		log.Printf("🔍 [モデル保存] スキーマバージョン不一致 (%d != %d)、再学習します", meta.SchemaVersion, FeatureSchemaVersion)
		s.removeLocked(base)
		return nil, nil
	}
	if maxAge > 0 && time.Since(meta.TrainedAt) > maxAge {
		log.Printf("🔍 [モデル保存] %s (%s) は学習から%.0f日経過、再学習します",
			entityKey, kind, time.Since(meta.TrainedAt).Hours()/24)
		return nil, nil
	}

	f, err := os.Open(base + ".gob")
	if err != nil {
		return nil, nil
	}
	defer f.Close()
	var a ModelArtifact
	if err := gob.NewDecoder(f).Decode(&a); err != nil {
		log.Printf("⚠️ [モデル保存] モデルファイルが壊れています: %s (%v)", base, err)
		s.removeLocked(base)
		return nil, nil
	}
	return &a, nil
}

// Invalidate 指定モデルの保存ファイルを削除する
func (s *ModelStore) Invalidate(entityKey, kind string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(s.basePath(entityKey, kind))
}

func (s *ModelStore) removeLocked(base string) {
	os.Remove(base + ".gob")
	os.Remove(base + "_meta.json")
}

// List 保存済みモデルのメタデータ一覧を返す
func (s *ModelStore) List() ([]ArtifactMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	paths, err := filepath.Glob(filepath.Join(s.dir, "modelo_*_meta.json"))
	if err != nil {
		return nil, err
	}
	var out []ArtifactMeta
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		var meta ArtifactMeta
		if err := json.Unmarshal(b, &meta); err != nil {
			continue
		}
		out = append(out, meta)
	}
	return out, nil
}
