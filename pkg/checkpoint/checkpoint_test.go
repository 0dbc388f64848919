package checkpoint

import (
	"math/rand/v2"
	"path/filepath"
	"testing"
	"time"

	"github.com/sanonone/kektorlink/pkg/model"
	"github.com/sanonone/kektorlink/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func newModel(t *testing.T, cfg model.Config, seed uint64) *model.Model {
	t.Helper()
	m, err := model.New(cfg, rand.New(rand.NewPCG(seed, seed)))
	require.NoError(t, err)
	return m
}

var smallConfig = model.Config{InputDim: 6, HiddenDim: 5, EmbeddingDim: 4, NumRelations: 3, NumBases: 2, Dropout: 0.1}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.ckpt")
	src := newModel(t, smallConfig, 1)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, Save(path, src, Meta{RunID: "run-1", Epoch: 7, CreatedAt: created}))

	meta, err := ReadMeta(path)
	require.NoError(t, err)
	assert.Equal(t, "run-1", meta.RunID)
	assert.Equal(t, 7, meta.Epoch)
	assert.Equal(t, smallConfig, meta.Model)
	assert.True(t, created.Equal(meta.CreatedAt))

	dst := newModel(t, meta.Model, 2)
	_, err = Load(path, dst)
	require.NoError(t, err)
	for i, p := range src.Params() {
		assert.True(t, mat.Equal(p.Value, dst.Params()[i].Value), p.Name)
	}
}

func TestLoadShapeMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.ckpt")
	require.NoError(t, Save(path, newModel(t, smallConfig, 1), Meta{RunID: "x"}))

	wider := smallConfig
	wider.HiddenDim = 9
	_, err := Load(path, newModel(t, wider, 2))
	assert.ErrorIs(t, err, ErrShapeMismatch)

	full := smallConfig
	full.NumBases = 0
	_, err = Load(path, newModel(t, full, 3))
	assert.ErrorIs(t, err, ErrShapeMismatch, "basis checkpoint has no per-relation weights")
}

func TestLoadRejectsForeignFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "other.kt")
	require.NoError(t, persistence.WriteTensorFile(path, persistence.NewIntTensor("x", []int64{1}, 1)))

	_, err := Load(path, newModel(t, smallConfig, 1))
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = Load(filepath.Join(t.TempDir(), "missing"), newModel(t, smallConfig, 1))
	assert.Error(t, err)
}

func TestParseMeta(t *testing.T) {
	m, err := parseMeta([]string{"epoch=3", "future_key=1"})
	require.NoError(t, err)
	assert.Equal(t, 3, m.Epoch)

	_, err = parseMeta([]string{"epoch"})
	assert.Error(t, err)
	_, err = parseMeta([]string{"epoch=three"})
	assert.Error(t, err)
}

func TestExportEmbeddings(t *testing.T) {
	z := mat.NewDense(3, 2, []float64{0.5, -1, 2, 0.25, -0.125, 8})

	for _, dtype := range []persistence.DType{persistence.Float32, persistence.Float16} {
		t.Run(dtype.String(), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "emb.kt")
			require.NoError(t, ExportEmbeddings(path, z, dtype, Meta{RunID: "r"}))

			got, err := LoadEmbeddings(path)
			require.NoError(t, err)
			// Every value is exactly representable in half precision.
			assert.True(t, mat.Equal(z, got))

			meta, err := ReadMeta(path)
			require.NoError(t, err)
			assert.Equal(t, "r", meta.RunID)
		})
	}

	err := ExportEmbeddings(filepath.Join(t.TempDir(), "emb.kt"), z, persistence.Int64, Meta{})
	assert.Error(t, err)
}

func TestExportEmbeddingsOfView(t *testing.T) {
	z := mat.NewDense(3, 3, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9})
	view := z.Slice(0, 2, 1, 3).(*mat.Dense)

	path := filepath.Join(t.TempDir(), "emb.kt")
	require.NoError(t, ExportEmbeddings(path, view, persistence.Float32, Meta{}))
	got, err := LoadEmbeddings(path)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 3, 5, 6}, got.RawMatrix().Data)
}
