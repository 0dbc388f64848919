package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	r := NewRecorder()

	r.ObserveBatch("train", 3*time.Millisecond)
	r.ObserveBatch("train", 5*time.Millisecond)
	r.ObserveBatch("val", time.Millisecond)
	r.SkipBatch("train")
	r.EndEpoch(4, 0.25)
	r.SetAUROC("val", "all", 0.9)
	r.SetAUROC("val", "targets", 0.8)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.Batches.WithLabelValues("train")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Batches.WithLabelValues("val")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.SkippedBatches.WithLabelValues("train")))
	assert.Equal(t, 4.0, testutil.ToFloat64(r.Epoch))
	assert.Equal(t, 0.25, testutil.ToFloat64(r.Loss))
	assert.Equal(t, 0.8, testutil.ToFloat64(r.AUROC.WithLabelValues("val", "targets")))
	assert.Equal(t, 2, testutil.CollectAndCount(r.AUROC))
	assert.Equal(t, 2, testutil.CollectAndCount(r.BatchDuration))
}

func TestRecordersAreIndependent(t *testing.T) {
	a, b := NewRecorder(), NewRecorder()
	a.EndEpoch(7, 1)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Epoch))
}

func TestWriteTextfile(t *testing.T) {
	r := NewRecorder()
	r.EndEpoch(2, 0.5)
	r.SetAUROC("test", "all", 0.75)

	path := filepath.Join(t.TempDir(), "kektorlink.prom")
	require.NoError(t, r.WriteTextfile(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(raw)
	assert.Contains(t, text, "kektorlink_epoch 2")
	assert.Contains(t, text, `kektorlink_auroc{relation="all",split="test"} 0.75`)
}
