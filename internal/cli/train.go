package cli

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/sanonone/kektorlink/pkg/checkpoint"
	"github.com/sanonone/kektorlink/pkg/config"
	"github.com/sanonone/kektorlink/pkg/graph"
	"github.com/sanonone/kektorlink/pkg/metrics"
	"github.com/sanonone/kektorlink/pkg/model"
	"github.com/sanonone/kektorlink/pkg/persistence"
	"github.com/sanonone/kektorlink/pkg/synth"
	"github.com/sanonone/kektorlink/pkg/train"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// runFlags are the flags shared by train and evaluate.
type runFlags struct {
	configPath string
	dataPath   string
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.configPath, "config", "", "YAML config file (defaults apply when empty)")
	cmd.Flags().StringVar(&f.dataPath, "data", "", "graph bundle, overrides data.path")
}

// load reads the config, applies the data override and loads the graph.
func (f *runFlags) load(log *zap.Logger) (config.Config, *graph.Graph, error) {
	cfg, err := config.LoadConfig(f.configPath)
	if err != nil {
		return cfg, nil, err
	}
	if f.dataPath != "" {
		cfg.Data.Path = f.dataPath
	}
	g, err := loadGraph(cfg, log)
	return cfg, g, err
}

func loadGraph(cfg config.Config, log *zap.Logger) (*graph.Graph, error) {
	if cfg.Data.Path == "" {
		if !cfg.Data.Synthetic {
			return nil, errors.New("data.path (or --data) is required unless data.synthetic is set")
		}
		opts := synth.DefaultOptions()
		opts.Seed = cfg.Training.Seed
		log.Info("no data path configured, generating synthetic graph",
			zap.Int("drugs", opts.Drugs), zap.Int("proteins", opts.Proteins))
		return synth.Generate(opts)
	}
	g, err := graph.Load(cfg.Data.Path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", cfg.Data.Path, err)
	}
	log.Info("graph loaded", zap.String("path", cfg.Data.Path), zap.Int("nodes", g.NumNodes), zap.Int("edges", g.NumEdges()))
	return g, nil
}

// loadModel rebuilds the model stored in a checkpoint.
func loadModel(path string, seed uint64) (*model.Model, checkpoint.Meta, error) {
	meta, err := checkpoint.ReadMeta(path)
	if err != nil {
		return nil, meta, fmt.Errorf("read checkpoint %s: %w", path, err)
	}
	m, err := model.New(meta.Model, rand.New(rand.NewPCG(seed, seed)))
	if err != nil {
		return nil, meta, err
	}
	if _, err := checkpoint.Load(path, m); err != nil {
		return nil, meta, err
	}
	return m, meta, nil
}

func splitsOf(cfg config.Config) []graph.Split {
	out := make([]graph.Split, len(cfg.Evaluation.Splits))
	for i, s := range cfg.Evaluation.Splits {
		out[i] = graph.Split(s)
	}
	return out
}

// report evaluates the configured splits, prints the table and writes the
// optional embedding and metrics files.
func report(cmd *cobra.Command, cfg config.Config, tr *train.Trainer, g *graph.Graph, rec *metrics.Recorder, meta checkpoint.Meta, log *zap.Logger) error {
	reports, err := tr.Evaluate(splitsOf(cfg)...)
	if err != nil {
		return err
	}
	if err := train.RenderTable(cmd.OutOrStdout(), reports, g.Relations, cfg.Evaluation.PerRelation); err != nil {
		return err
	}

	if out := cfg.Output.Embeddings; out != "" {
		precision, err := persistence.ParseFloatDType(cfg.Output.EmbeddingPrecision)
		if err != nil {
			return err
		}
		z, err := tr.Embeddings()
		if err != nil {
			return err
		}
		if err := checkpoint.ExportEmbeddings(out, z, precision, meta); err != nil {
			return err
		}
		log.Info("embeddings exported", zap.String("path", out), zap.Stringer("precision", precision))
	}
	if out := cfg.Output.MetricsFile; out != "" {
		if err := rec.WriteTextfile(out); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
		log.Info("metrics written", zap.String("path", out))
	}
	return nil
}

func newTrainCmd(a *app) *cobra.Command {
	var (
		flags    runFlags
		epochs   int
		seed     uint64
		resume   string
		ckptPath string
	)

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train the link prediction model",
		Long: `Train the encoder and decoder on sampled subgraphs, validate every
eval_every epochs and print a per-relation table for the configured splits.
Ctrl-C stops after the current batch and still reports.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := a.log
			cfg, err := config.LoadConfig(flags.configPath)
			if err != nil {
				return err
			}
			if flags.dataPath != "" {
				cfg.Data.Path = flags.dataPath
			}
			if cmd.Flags().Changed("epochs") {
				cfg.Training.Epochs = epochs
			}
			if cmd.Flags().Changed("seed") {
				cfg.Training.Seed = seed
			}
			if ckptPath != "" {
				cfg.Output.Checkpoint = ckptPath
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			g, err := loadGraph(cfg, log)
			if err != nil {
				return err
			}

			rec := metrics.NewRecorder()
			opts := []train.Option{train.WithLogger(log), train.WithRecorder(rec)}
			if resume != "" {
				m, meta, err := loadModel(resume, cfg.Training.Seed)
				if err != nil {
					return err
				}
				log.Info("resuming", zap.String("checkpoint", resume), zap.String("from_run", meta.RunID), zap.Int("epoch", meta.Epoch))
				opts = append(opts, train.WithModel(m), train.WithStartEpoch(meta.Epoch))
			}

			tr, err := train.New(g, cfg, opts...)
			if err != nil {
				return err
			}
			h, err := tr.Fit(cmd.Context())
			if err != nil {
				return err
			}
			log.Info("training finished",
				zap.String("stopped", string(h.Stopped)),
				zap.Int("epochs", len(h.Epochs)),
				zap.Int("best_epoch", h.BestEpoch),
				zap.Float64("best_val_auroc", h.BestAUROC),
			)

			meta := checkpointMeta(tr)
			if out := cfg.Output.Checkpoint; out != "" {
				if err := checkpoint.Save(out, tr.Model(), meta); err != nil {
					return err
				}
				log.Info("checkpoint saved", zap.String("path", out))
			}
			return report(cmd, cfg, tr, g, rec, meta, log)
		},
	}

	flags.register(cmd)
	cmd.Flags().IntVar(&epochs, "epochs", 0, "number of epochs, overrides training.epochs")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "random seed, overrides training.seed")
	cmd.Flags().StringVar(&resume, "resume", "", "checkpoint to continue training from (epochs continue, optimiser state starts fresh)")
	cmd.Flags().StringVar(&ckptPath, "checkpoint", "", "where to save the trained model, overrides output.checkpoint")
	return cmd
}

func checkpointMeta(tr *train.Trainer) checkpoint.Meta {
	return checkpoint.Meta{RunID: tr.RunID(), Epoch: tr.Epoch(), Model: tr.Model().Config}
}
