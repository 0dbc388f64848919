package cli

import (
	"errors"

	"github.com/sanonone/kektorlink/pkg/metrics"
	"github.com/sanonone/kektorlink/pkg/train"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newEvaluateCmd(a *app) *cobra.Command {
	var (
		flags    runFlags
		ckptPath string
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score a saved model on the configured splits",
		Long: `Load a checkpoint, run one full-graph forward pass and print the
per-relation table for evaluation.splits. Embeddings and metrics are written
when output.embeddings and output.metrics_file are set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if ckptPath == "" {
				return errors.New("--checkpoint is required")
			}
			log := a.log
			cfg, g, err := flags.load(log)
			if err != nil {
				return err
			}
			m, meta, err := loadModel(ckptPath, cfg.Training.Seed)
			if err != nil {
				return err
			}
			log.Info("checkpoint loaded",
				zap.String("path", ckptPath),
				zap.String("from_run", meta.RunID),
				zap.Int("epoch", meta.Epoch),
				zap.Time("created_at", meta.CreatedAt),
			)

			rec := metrics.NewRecorder()
			tr, err := train.New(g, cfg, train.WithModel(m), train.WithLogger(log), train.WithRecorder(rec))
			if err != nil {
				return err
			}
			return report(cmd, cfg, tr, g, rec, meta, log)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&ckptPath, "checkpoint", "", "checkpoint written by train (required)")
	return cmd
}
