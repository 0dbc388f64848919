package cli

import (
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/sanonone/kektorlink/pkg/graph"
	"github.com/sanonone/kektorlink/pkg/persistence"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newInspectCmd(a *app) *cobra.Command {
	var (
		dataPath    string
		showTensors bool
	)

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show node, edge and relation counts of a bundle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dataPath == "" {
				return errors.New("--data is required")
			}
			g, err := graph.Load(dataPath)
			if err != nil {
				return err
			}
			if n := g.MaskOverlap(); n > 0 {
				a.log.Warn("split masks overlap", zap.Int("edges", n))
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "nodes: %d  edges: %d  features: %d  relations: %d  edge attributes: %t\n",
				g.NumNodes, g.NumEdges(), g.FeatureDim(), g.NumRelations(), g.EdgeAttr != nil)

			total := g.RelationCounts(nil)
			perSplit := make(map[graph.Split][]int, len(graph.Splits))
			for _, s := range graph.Splits {
				perSplit[s] = g.RelationCounts(g.Mask(s))
			}

			table := tablewriter.NewWriter(w)
			table.Header("Relation", "Inverse", "Edges", "Train", "Val", "Test")
			for i, rel := range g.Relations {
				inverse := "-"
				if rel.Inverse >= 0 && rel.Inverse < g.NumRelations() {
					inverse = g.Relations[rel.Inverse].Name
				}
				err := table.Append(
					rel.Name,
					inverse,
					strconv.Itoa(total[i]),
					strconv.Itoa(perSplit[graph.SplitTrain][i]),
					strconv.Itoa(perSplit[graph.SplitVal][i]),
					strconv.Itoa(perSplit[graph.SplitTest][i]),
				)
				if err != nil {
					return err
				}
			}
			if err := table.Render(); err != nil {
				return err
			}

			if showTensors {
				lines, err := bundleSummary(dataPath)
				if err != nil {
					return err
				}
				for _, l := range lines {
					fmt.Fprintln(w, l)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dataPath, "data", "", "graph bundle path (required)")
	cmd.Flags().BoolVar(&showTensors, "tensors", false, "also list the raw tensors of the bundle")
	return cmd
}

// bundleSummary lists the tensors of a bundle file sorted by name.
func bundleSummary(path string) ([]string, error) {
	tensors, err := persistence.ReadTensorFile(path)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(tensors))
	for name, t := range tensors {
		out = append(out, fmt.Sprintf("%s %s %v", name, t.DType, t.Shape))
	}
	slices.Sort(out)
	return out, nil
}
