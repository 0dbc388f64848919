// Package cli implements the kektorlink command line.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/sanonone/kektorlink/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app carries state shared by the subcommands of one invocation.
type app struct {
	logLevel  string
	logFormat string
	log       *zap.Logger
}

// NewRootCommand builds a fresh command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&app{})
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "kektorlink",
		Short: "Relational GNN link prediction on typed knowledge graphs",
		Long: `kektorlink trains a relational graph convolution encoder with a DistMult
decoder to predict typed links (drug-protein, protein-protein) in a
heterogeneous knowledge graph, and reports per-relation ranking metrics.

Examples:
  kektorlink synth --out graph.kt
  kektorlink inspect --data graph.kt
  kektorlink train --config experiment.yaml --data graph.kt
  kektorlink evaluate --checkpoint model.ckpt --data graph.kt`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			l, err := logging.New(a.logLevel, a.logFormat)
			if err != nil {
				return err
			}
			a.log = l
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&a.logFormat, "log-format", logging.FormatConsole, "log format (console, json)")

	root.AddCommand(
		newTrainCmd(a),
		newEvaluateCmd(a),
		newSynthCmd(a),
		newInspectCmd(a),
	)
	return root
}

// Execute runs the command line with args. Failures are logged and returned.
func Execute(ctx context.Context, args []string) error {
	a := &app{}
	root := newRootCommand(a)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err != nil {
		if a.log != nil {
			a.log.Error("command failed", zap.Error(err))
			_ = a.log.Sync()
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
	}
	return err
}
