// Package train runs the link prediction experiment: mini-batch training on
// sampled subgraphs, validation, early stopping and the final per-relation
// report.
package train

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/sanonone/kektorlink/internal/logging"
	"github.com/sanonone/kektorlink/pkg/config"
	"github.com/sanonone/kektorlink/pkg/core/vecmath"
	"github.com/sanonone/kektorlink/pkg/eval"
	"github.com/sanonone/kektorlink/pkg/graph"
	"github.com/sanonone/kektorlink/pkg/metrics"
	"github.com/sanonone/kektorlink/pkg/model"
	"github.com/sanonone/kektorlink/pkg/negative"
	"github.com/sanonone/kektorlink/pkg/sampler"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// ErrNonFiniteLoss aborts training when a batch loss is NaN or infinite.
var ErrNonFiniteLoss = errors.New("non-finite loss")

// StopReason tells why Fit returned.
type StopReason string

const (
	// StopCompleted means every configured epoch ran.
	StopCompleted StopReason = "completed"
	// StopEarly means validation AUROC stopped improving for patience evaluations.
	StopEarly StopReason = "early_stop"
	// StopInterrupted means the context was cancelled mid-run.
	StopInterrupted StopReason = "interrupted"
)

// EpochStats summarises one epoch.
type EpochStats struct {
	Epoch      int
	Loss       float64
	Batches    int
	Skipped    int
	TrainAUROC float64
	// Val is nil for epochs without validation.
	Val      *eval.Report
	ValLoss  float64
	Duration time.Duration
}

// History is the outcome of Fit.
type History struct {
	Epochs []EpochStats
	// BestEpoch is the epoch with the highest validation AUROC, 0 if none.
	BestEpoch int
	BestAUROC float64
	Stopped   StopReason
}

// Option customises a Trainer.
type Option func(*Trainer)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(t *Trainer) {
		t.log = logging.OrNop(l)
	}
}

// WithRecorder sets the telemetry recorder.
func WithRecorder(r *metrics.Recorder) Option {
	return func(t *Trainer) {
		if r != nil {
			t.rec = r
		}
	}
}

// WithStartEpoch numbers epochs after n completed ones, for runs resumed
// from a checkpoint. Optimiser moments are not restored.
func WithStartEpoch(n int) Option {
	return func(t *Trainer) { t.epoch = max(n, 0) }
}

// WithModel trains (or evaluates) an existing model instead of a new one.
func WithModel(m *model.Model) Option {
	return func(t *Trainer) { t.model = m }
}

// Trainer owns the model and optimiser for one run. It is not safe for
// concurrent use.
type Trainer struct {
	cfg      config.Config
	g        *graph.Graph
	model    *model.Model
	opt      *model.Adam
	trainS   *sampler.RandomWalk
	valS     *sampler.RandomWalk
	strategy negative.Strategy
	passing  MessagePassing
	rng      *rand.Rand
	log      *zap.Logger
	rec      *metrics.Recorder
	runID    string
	epoch    int
}

// New prepares a run of cfg on g. Randomness is derived from the configured
// seed only, so equal inputs give equal runs.
func New(g *graph.Graph, cfg config.Config, opts ...Option) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	strategy, err := negative.ParseStrategy(cfg.Sampler.Negative)
	if err != nil {
		return nil, err
	}

	seed := cfg.Training.Seed
	t := &Trainer{
		cfg:      cfg,
		g:        g,
		strategy: strategy,
		passing:  MessagePassing(cfg.Training.MessagePassing),
		rng:      rand.New(rand.NewPCG(seed, seed^0x5851f42d4c957f2d)),
		log:      zap.NewNop(),
		runID:    uuid.NewString(),
	}
	for _, o := range opts {
		o(t)
	}
	if t.rec == nil {
		t.rec = metrics.NewRecorder()
	}
	t.log = t.log.With(zap.String("run_id", t.runID))

	if t.model == nil {
		t.model, err = model.New(ModelConfig(cfg, g), t.rng)
		if err != nil {
			return nil, fmt.Errorf("build model: %w", err)
		}
	}
	t.opt, err = model.NewAdam(t.model.Params(), cfg.Training.LearningRate, cfg.Training.WeightDecay)
	if err != nil {
		return nil, err
	}

	sc := sampler.Config{
		BatchSize:  cfg.Sampler.BatchSize,
		WalkLength: cfg.Sampler.WalkLength,
		NumSteps:   cfg.Sampler.NumSteps,
	}
	if t.trainS, err = sampler.NewRandomWalk(g, sc, t.rng); err != nil {
		return nil, err
	}
	sc.NumSteps = cfg.Sampler.ValSteps
	if t.valS, err = sampler.NewRandomWalk(g, sc, t.rng); err != nil {
		return nil, err
	}

	if n := g.MaskOverlap(); n > 0 {
		t.log.Warn("split masks overlap", zap.Int("edges", n))
	}
	t.log.Info("trainer ready",
		zap.Int("nodes", g.NumNodes),
		zap.Int("edges", g.NumEdges()),
		zap.Int("relations", g.NumRelations()),
		zap.Int("parameters", t.model.NumParams()),
		zap.String("message_passing", string(t.passing)),
		zap.Stringer("kernels", vecmath.CurrentBackend()),
	)
	return t, nil
}

// ModelConfig derives the network shape from cfg and the graph.
func ModelConfig(cfg config.Config, g *graph.Graph) model.Config {
	return model.Config{
		InputDim:     g.FeatureDim(),
		HiddenDim:    cfg.Model.HiddenDim,
		EmbeddingDim: cfg.Model.EmbeddingDim,
		NumRelations: g.NumRelations(),
		NumBases:     cfg.Model.NumBases,
		Dropout:      cfg.Model.Dropout,
	}
}

// Model returns the trained model.
func (t *Trainer) Model() *model.Model { return t.model }

// RunID identifies this run in logs and checkpoints.
func (t *Trainer) RunID() string { return t.runID }

// Epoch returns the number of completed epochs, including those before the
// start epoch.
func (t *Trainer) Epoch() int { return t.epoch }

// Fit trains for the configured number of epochs. Cancelling ctx stops after
// the current batch; the returned history is still valid and Fit reports
// StopInterrupted rather than an error. With patience enabled the best
// validated parameters are restored before returning.
func (t *Trainer) Fit(ctx context.Context) (*History, error) {
	tc := t.cfg.Training
	h := &History{Stopped: StopCompleted, BestAUROC: math.Inf(-1)}
	var best map[string]*mat.Dense
	bad := 0

	first := t.epoch + 1
	for epoch := first; epoch < first+tc.Epochs; epoch++ {
		start := time.Now()
		st, err := t.trainEpoch(ctx, epoch)
		if err != nil {
			return h, err
		}
		interrupted := ctx.Err() != nil

		if !interrupted && epoch%tc.EvalEvery == 0 {
			rep, loss, err := t.validate(ctx)
			switch {
			case errors.Is(err, eval.ErrEmpty):
				t.log.Warn("no validation edges sampled", zap.Int("epoch", epoch))
			case err != nil:
				return h, err
			default:
				st.Val, st.ValLoss = &rep, loss
			}
		}
		st.Duration = time.Since(start)
		t.epoch = epoch
		h.Epochs = append(h.Epochs, st)
		t.logEpoch(st)

		if st.Val != nil && !st.Val.Overall.Skipped {
			if auc := st.Val.Overall.AUROC; auc > h.BestAUROC {
				h.BestAUROC, h.BestEpoch = auc, epoch
				bad = 0
				if tc.Patience > 0 {
					best = t.model.Snapshot()
				}
			} else {
				bad++
			}
		}

		if interrupted {
			h.Stopped = StopInterrupted
			t.log.Warn("training interrupted", zap.Int("epoch", epoch), zap.Error(ctx.Err()))
			break
		}
		if tc.Patience > 0 && bad >= tc.Patience {
			h.Stopped = StopEarly
			t.log.Info("early stopping", zap.Int("epoch", epoch), zap.Int("best_epoch", h.BestEpoch))
			break
		}
	}

	if best != nil {
		if err := t.model.Restore(best); err != nil {
			return h, err
		}
		t.log.Info("restored best parameters", zap.Int("epoch", h.BestEpoch), zap.Float64("val_auroc", h.BestAUROC))
	}
	if h.BestEpoch == 0 {
		h.BestAUROC = 0
	}
	return h, nil
}

func (t *Trainer) trainEpoch(ctx context.Context, epoch int) (EpochStats, error) {
	st := EpochStats{Epoch: epoch, TrainAUROC: math.NaN()}
	var scores []float64
	var classes []bool
	var lossSum float64

	step := -1
	for sub, err := range t.trainS.Batches() {
		step++
		if err != nil {
			return st, fmt.Errorf("sample train batch: %w", err)
		}
		if ctx.Err() != nil {
			break
		}
		start := time.Now()
		b := BuildBatch(sub.Graph, sub.TrainMask, negative.New(t.rng, sub.NumNodes, sub.EdgeSet(), t.strategy))
		if b.Positives == 0 {
			st.Skipped++
			t.rec.SkipBatch("train")
			t.log.Debug("skipping batch without train edges", zap.Int("epoch", epoch), zap.Int("step", step))
			continue
		}

		t.model.ZeroGrad()
		res, err := t.model.Backprop(sub.Features, MessageEdges(sub.Graph, t.passing), b.Triples, b.Labels, t.cfg.Training.Reg, t.rng)
		if err != nil {
			return st, fmt.Errorf("epoch %d step %d: %w", epoch, step, err)
		}
		if math.IsNaN(res.Loss) || math.IsInf(res.Loss, 0) {
			return st, fmt.Errorf("%w at epoch %d step %d", ErrNonFiniteLoss, epoch, step)
		}
		norm := model.ClipGradNorm(t.model.Params(), t.cfg.Training.GradClip)
		t.opt.Step()

		lossSum += res.Loss
		st.Batches++
		scores = append(scores, res.Logits...)
		classes = append(classes, b.Classes()...)

		d := time.Since(start)
		t.rec.ObserveBatch("train", d)
		t.log.Debug("batch",
			zap.Int("epoch", epoch),
			zap.Int("step", step),
			zap.Int("nodes", sub.NumNodes),
			zap.Int("positives", b.Positives),
			zap.Int("negatives", b.Len()-b.Positives),
			zap.Float64("loss", res.Loss),
			zap.Float64("grad_norm", norm),
			zap.Duration("duration", d),
		)
	}

	if st.Batches > 0 {
		st.Loss = lossSum / float64(st.Batches)
		if auc, err := eval.AUROC(scores, classes); err == nil {
			st.TrainAUROC = auc
		}
	}
	t.rec.EndEpoch(epoch, st.Loss)
	if !math.IsNaN(st.TrainAUROC) {
		t.rec.SetAUROC("train", "all", st.TrainAUROC)
	}
	return st, nil
}

// validate scores ValSteps sampled batches of val-mask edges without dropout
// or parameter updates.
func (t *Trainer) validate(ctx context.Context) (eval.Report, float64, error) {
	var scores []float64
	var classes []bool
	var types []int32
	var lossSum float64
	batches := 0

	for sub, err := range t.valS.Batches() {
		if err != nil {
			return eval.Report{}, 0, fmt.Errorf("sample val batch: %w", err)
		}
		if ctx.Err() != nil {
			break
		}
		start := time.Now()
		b := BuildBatch(sub.Graph, sub.ValMask, negative.New(t.rng, sub.NumNodes, sub.EdgeSet(), t.strategy))
		if b.Positives == 0 {
			t.rec.SkipBatch("val")
			continue
		}
		logits, err := t.model.Forward(sub.Features, MessageEdges(sub.Graph, t.passing), b.Triples)
		if err != nil {
			return eval.Report{}, 0, err
		}
		loss, _, err := model.BCEWithLogits(logits, b.Labels)
		if err != nil {
			return eval.Report{}, 0, err
		}
		lossSum += loss
		batches++
		for _, l := range logits {
			scores = append(scores, model.Sigmoid(l))
		}
		classes = append(classes, b.Classes()...)
		types = append(types, b.Triples.Types...)
		t.rec.ObserveBatch("val", time.Since(start))
	}
	if batches == 0 {
		return eval.Report{}, 0, eval.ErrEmpty
	}

	rep, err := eval.PerRelation(scores, classes, types, t.g.NumRelations())
	if err != nil {
		return rep, 0, err
	}
	t.recordReport("val", rep)
	return rep, lossSum / float64(batches), nil
}

func (t *Trainer) recordReport(split string, rep eval.Report) {
	if !rep.Overall.Skipped {
		t.rec.SetAUROC(split, "all", rep.Overall.AUROC)
	}
	for _, r := range rep.Relations {
		if !r.Skipped {
			t.rec.SetAUROC(split, t.g.Relations[r.Relation].Name, r.AUROC)
		}
	}
}

func (t *Trainer) logEpoch(st EpochStats) {
	fields := []zap.Field{
		zap.Int("epoch", st.Epoch),
		zap.Float64("loss", st.Loss),
		zap.Float64("train_auroc", st.TrainAUROC),
		zap.Int("batches", st.Batches),
		zap.Int("optimizer_steps", t.opt.Steps()),
		zap.Duration("duration", st.Duration),
	}
	if st.Skipped > 0 {
		fields = append(fields, zap.Int("skipped", st.Skipped))
	}
	if st.Val != nil {
		fields = append(fields,
			zap.Float64("val_loss", st.ValLoss),
			zap.Float64("val_auroc", st.Val.Overall.AUROC),
			zap.Float64("val_ap", st.Val.Overall.AP),
		)
	}
	t.log.Info("epoch", fields...)
}
