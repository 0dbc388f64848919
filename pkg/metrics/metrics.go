package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder collects training telemetry on its own registry so several runs
// (and tests) never collide on the global default one.
type Recorder struct {
	registry *prometheus.Registry

	// Epoch is the last completed epoch.
	Epoch prometheus.Gauge
	// Loss is the mean training loss of the last epoch.
	Loss prometheus.Gauge
	// AUROC tracks the latest score per split and relation ("all" for the
	// overall value).
	AUROC *prometheus.GaugeVec
	// Batches counts processed batches per split.
	Batches *prometheus.CounterVec
	// SkippedBatches counts batches dropped for having no positive edges.
	SkippedBatches *prometheus.CounterVec
	// BatchDuration measures one forward/backward/update round.
	BatchDuration *prometheus.HistogramVec
}

// NewRecorder registers the training metrics on a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		Epoch: factory.NewGauge(prometheus.GaugeOpts{
			Name: "kektorlink_epoch",
			Help: "Last completed training epoch",
		}),
		Loss: factory.NewGauge(prometheus.GaugeOpts{
			Name: "kektorlink_train_loss",
			Help: "Mean training loss of the last epoch",
		}),
		AUROC: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kektorlink_auroc",
				Help: "Latest area under the ROC curve",
			},
			[]string{"split", "relation"},
		),
		Batches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kektorlink_batches_total",
				Help: "Total number of sampled batches processed",
			},
			[]string{"split"},
		),
		SkippedBatches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kektorlink_skipped_batches_total",
				Help: "Batches skipped because they held no positive edges",
			},
			[]string{"split"},
		),
		BatchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "kektorlink_batch_duration_seconds",
				Help: "Duration of one batch in seconds",
				// From tiny synthetic batches up to full-graph passes.
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
			},
			[]string{"split"},
		),
	}
}

// ObserveBatch records one processed batch.
func (r *Recorder) ObserveBatch(split string, d time.Duration) {
	r.Batches.WithLabelValues(split).Inc()
	r.BatchDuration.WithLabelValues(split).Observe(d.Seconds())
}

// SkipBatch records a batch dropped before scoring.
func (r *Recorder) SkipBatch(split string) {
	r.SkippedBatches.WithLabelValues(split).Inc()
}

// EndEpoch records the epoch counter and its mean loss.
func (r *Recorder) EndEpoch(epoch int, loss float64) {
	r.Epoch.Set(float64(epoch))
	r.Loss.Set(loss)
}

// SetAUROC records a score for a split; relation "all" is the overall value.
func (r *Recorder) SetAUROC(split, relation string, v float64) {
	r.AUROC.WithLabelValues(split, relation).Set(v)
}

// WriteTextfile writes the registry in the text exposition format, suitable
// for the node_exporter textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
