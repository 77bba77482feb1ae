package services

import (
	"os"
	"testing"
	"time"

	"cocinai-engine/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fittedTestArtifact(t *testing.T, trainedAt time.Time) *ModelArtifact {
	t.Helper()
	X := make([][]float64, 40)
	y := make([]float64, 40)
	for i := range X {
		X[i] = []float64{float64(i), float64(i % 7)}
		y[i] = float64(i%7) * 2
	}
	rf := NewRandomForestRegressor()
	require.NoError(t, rf.Fit(X, y))

	return &ModelArtifact{
		EntityKey:    "1",
		ModelKind:    ModelKindRandomForest,
		Schema:       NewFeatureSchema(),
		Primary:      rf,
		Metrics:      models.ModelMetrics{MAE: 1.5, R2: 0.8},
		TrainRows:    32,
		TestRows:     8,
		TotalRows:    40,
		RecentValues: []float64{3, 4, 5},
		HistMA7:      4,
		TrainedAt:    trainedAt,
	}
}

func TestModelStoreSaveLoad(t *testing.T) {
	store, err := NewModelStore(t.TempDir())
	require.NoError(t, err)

	original := fittedTestArtifact(t, time.Now())
	require.NoError(t, store.Save(original))

	loaded, err := store.Load("1", ModelKindRandomForest, 7*24*time.Hour)
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, original.EntityKey, loaded.EntityKey)
	assert.Equal(t, original.Metrics, loaded.Metrics)
	assert.Equal(t, original.RecentValues, loaded.RecentValues)
	assert.Equal(t, original.Schema.Version, loaded.Schema.Version)

	// 復元したモデルは同じ予測を返す
	x := []float64{12, 5}
	assert.Equal(t, original.Primary.Predict(x), loaded.Primary.Predict(x))
}

func TestModelStoreMissing(t *testing.T) {
	store, err := NewModelStore(t.TempDir())
	require.NoError(t, err)

	loaded, err := store.Load("99", ModelKindRandomForest, 7*24*time.Hour)
	assert.NoError(t, err)
	assert.Nil(t, loaded, "存在しないモデルはエラーではなくnil")
}

func TestModelStoreFreshness(t *testing.T) {
	store, err := NewModelStore(t.TempDir())
	require.NoError(t, err)
	maxAge := 7 * 24 * time.Hour

	// 8日前に学習したモデルは鮮度切れ
	stale := fittedTestArtifact(t, time.Now().Add(-8*24*time.Hour))
	require.NoError(t, store.Save(stale))
	loaded, err := store.Load("1", ModelKindRandomForest, maxAge)
	assert.NoError(t, err)
	assert.Nil(t, loaded)

	// 6日前のモデルはまだ使える
	fresh := fittedTestArtifact(t, time.Now().Add(-6*24*time.Hour))
	require.NoError(t, store.Save(fresh))
	loaded, err = store.Load("1", ModelKindRandomForest, maxAge)
	assert.NoError(t, err)
	assert.NotNil(t, loaded)
}

func TestModelStoreCorruptFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewModelStore(dir)
	require.NoError(t, err)

	artifact := fittedTestArtifact(t, time.Now())
	require.NoError(t, store.Save(artifact))

	// モデルファイルを壊す
	base := store.basePath("1", ModelKindRandomForest)
	require.NoError(t, os.WriteFile(base+".gob", []byte("no es un gob"), 0o644))

	loaded, err := store.Load("1", ModelKindRandomForest, 7*24*time.Hour)
	assert.NoError(t, err)
	assert.Nil(t, loaded, "壊れたモデルはキャッシュミス扱い")

	// 壊れたファイルは削除されている
	_, statErr := os.Stat(base + ".gob")
	assert.True(t, os.IsNotExist(statErr))
}

func TestModelStoreInvalidate(t *testing.T) {
	store, err := NewModelStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Save(fittedTestArtifact(t, time.Now())))
	store.Invalidate("1", ModelKindRandomForest)

	loaded, err := store.Load("1", ModelKindRandomForest, 7*24*time.Hour)
	assert.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestModelStoreList(t *testing.T) {
	store, err := NewModelStore(t.TempDir())
	require.NoError(t, err)

	a := fittedTestArtifact(t, time.Now())
	require.NoError(t, store.Save(a))
	b := fittedTestArtifact(t, time.Now())
	b.EntityKey = EntityKeyAll
	require.NoError(t, store.Save(b))

	metas, err := store.List()
	require.NoError(t, err)
	assert.Len(t, metas, 2)
}
