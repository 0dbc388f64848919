package train

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/sanonone/kektorlink/pkg/eval"
	"github.com/sanonone/kektorlink/pkg/graph"
	"github.com/sanonone/kektorlink/pkg/negative"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// SplitReport is the full-graph evaluation of one split.
type SplitReport struct {
	Split  graph.Split
	Report eval.Report
	// Empty is set when the split has no edges.
	Empty bool
}

// Embeddings runs the encoder on the whole graph in evaluation mode.
func (t *Trainer) Embeddings() (*mat.Dense, error) {
	return t.model.Embed(t.g.Features, MessageEdges(t.g, t.passing))
}

// Evaluate scores every edge of each split against an equal number of
// negatives drawn against the full edge set, using one full-graph forward
// pass.
func (t *Trainer) Evaluate(splits ...graph.Split) ([]SplitReport, error) {
	z, err := t.Embeddings()
	if err != nil {
		return nil, fmt.Errorf("full graph forward: %w", err)
	}
	neg := negative.New(t.rng, t.g.NumNodes, t.g.EdgeSet(), t.strategy)

	out := make([]SplitReport, 0, len(splits))
	for _, s := range splits {
		mask := t.g.Mask(s)
		if mask == nil {
			return nil, fmt.Errorf("unknown split %q", s)
		}
		b := BuildBatch(t.g, mask, neg)
		if b.Positives == 0 {
			t.log.Warn("split has no edges", zap.String("split", string(s)))
			out = append(out, SplitReport{Split: s, Empty: true})
			continue
		}
		probs, err := t.model.Decoder.Probabilities(z, b.Triples)
		if err != nil {
			return nil, err
		}
		rep, err := eval.PerRelation(probs, b.Classes(), b.Triples.Types, t.g.NumRelations())
		if err != nil {
			return nil, fmt.Errorf("%s split: %w", s, err)
		}
		t.recordReport(string(s), rep)
		t.log.Info("evaluated split",
			zap.String("split", string(s)),
			zap.Int("positives", b.Positives),
			zap.Int("negatives", b.Len()-b.Positives),
			zap.Float64("auroc", rep.Overall.AUROC),
			zap.Float64("ap", rep.Overall.AP),
		)
		out = append(out, SplitReport{Split: s, Report: rep})
	}
	return out, nil
}

// RenderTable writes one row per split and, when perRelation is set, one row
// per relation below it.
func RenderTable(w io.Writer, reports []SplitReport, relations []graph.Relation, perRelation bool) error {
	table := tablewriter.NewWriter(w)
	table.Header("Split", "Relation", "Pos", "Neg", "AUROC", "AP")

	for _, sr := range reports {
		if sr.Empty {
			if err := table.Append(string(sr.Split), "all", "0", "0", "-", "-"); err != nil {
				return err
			}
			continue
		}
		if err := table.Append(row(string(sr.Split), "all", sr.Report.Overall)); err != nil {
			return err
		}
		if !perRelation {
			continue
		}
		for _, r := range sr.Report.Relations {
			name := strconv.Itoa(r.Relation)
			if r.Relation < len(relations) {
				name = relations[r.Relation].Name
			}
			if err := table.Append(row(string(sr.Split), name, r.Result)); err != nil {
				return err
			}
		}
	}
	return table.Render()
}

func row(split, relation string, r eval.Result) []string {
	auc, ap := "skipped", "skipped"
	if !r.Skipped {
		auc = strconv.FormatFloat(r.AUROC, 'f', 4, 64)
		ap = strconv.FormatFloat(r.AP, 'f', 4, 64)
	}
	return []string{split, relation, strconv.Itoa(r.Positives), strconv.Itoa(r.Negatives), auc, ap}
}

