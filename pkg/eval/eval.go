// Package eval computes ranking metrics for scored edges.
package eval

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

var (
	// ErrEmpty is returned when there is nothing to score.
	ErrEmpty = errors.New("no samples")
	// ErrSingleClass is returned when every label is the same.
	ErrSingleClass = errors.New("labels contain a single class")
)

func prepare(scores []float64, labels []bool) (int, error) {
	if len(scores) != len(labels) {
		return 0, fmt.Errorf("%d scores for %d labels", len(scores), len(labels))
	}
	if len(scores) == 0 {
		return 0, ErrEmpty
	}
	pos := 0
	for i, s := range scores {
		if math.IsNaN(s) {
			return 0, fmt.Errorf("score %d is NaN", i)
		}
		if labels[i] {
			pos++
		}
	}
	if pos == 0 || pos == len(labels) {
		return pos, ErrSingleClass
	}
	return pos, nil
}

// AUROC returns the area under the ROC curve of scores against labels.
// Tied scores get half credit. The inputs are not modified.
func AUROC(scores []float64, labels []bool) (float64, error) {
	if _, err := prepare(scores, labels); err != nil {
		return 0, err
	}
	y := append([]float64(nil), scores...)
	classes := append([]bool(nil), labels...)
	stat.SortWeightedLabeled(y, classes, nil)

	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	auc := integrate.Trapezoidal(fpr, tpr)
	return clamp01(auc), nil
}

// AveragePrecision returns the step-wise area under the precision-recall
// curve, taking one step per distinct score.
func AveragePrecision(scores []float64, labels []bool) (float64, error) {
	pos, err := prepare(scores, labels)
	if err != nil {
		return 0, err
	}
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] > scores[idx[b]] })

	var ap, prevRecall float64
	tp, seen := 0, 0
	for i := 0; i < len(idx); {
		j := i
		for j < len(idx) && scores[idx[j]] == scores[idx[i]] {
			if labels[idx[j]] {
				tp++
			}
			j++
		}
		seen += j - i
		recall := float64(tp) / float64(pos)
		ap += (recall - prevRecall) * float64(tp) / float64(seen)
		prevRecall = recall
		i = j
	}
	return clamp01(ap), nil
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}

// Result holds the metrics of one group of samples.
type Result struct {
	Positives int
	Negatives int
	AUROC     float64
	AP        float64
	// Skipped is set when the group had a single class; metrics are zero.
	Skipped bool
}

// Compute scores one group of samples. A single-class group is reported as
// skipped rather than failing.
func Compute(scores []float64, labels []bool) (Result, error) {
	var r Result
	for _, l := range labels {
		if l {
			r.Positives++
		} else {
			r.Negatives++
		}
	}
	auc, err := AUROC(scores, labels)
	if errors.Is(err, ErrSingleClass) {
		r.Skipped = true
		return r, nil
	}
	if err != nil {
		return r, err
	}
	ap, err := AveragePrecision(scores, labels)
	if err != nil {
		return r, err
	}
	r.AUROC, r.AP = auc, ap
	return r, nil
}

// RelationResult is the metric of one relation type.
type RelationResult struct {
	Relation int
	Result
}

// Report is the overall metric plus one entry per relation that had samples.
type Report struct {
	Overall   Result
	Relations []RelationResult
}

// PerRelation computes the overall metric and, for each relation type in
// [0, numRelations), the metric over the samples of that type. Relations with
// no samples are left out of the report.
func PerRelation(scores []float64, labels []bool, types []int32, numRelations int) (Report, error) {
	if len(types) != len(scores) {
		return Report{}, fmt.Errorf("%d relation types for %d scores", len(types), len(scores))
	}
	overall, err := Compute(scores, labels)
	if err != nil {
		return Report{}, err
	}
	rep := Report{Overall: overall}

	groups := make([][]int, numRelations)
	for i, t := range types {
		if t < 0 || int(t) >= numRelations {
			return Report{}, fmt.Errorf("sample %d has relation %d outside %d relations", i, t, numRelations)
		}
		groups[t] = append(groups[t], i)
	}
	for rel, members := range groups {
		if len(members) == 0 {
			continue
		}
		s := make([]float64, len(members))
		l := make([]bool, len(members))
		for k, i := range members {
			s[k], l[k] = scores[i], labels[i]
		}
		res, err := Compute(s, l)
		if err != nil {
			return Report{}, fmt.Errorf("relation %d: %w", rel, err)
		}
		rep.Relations = append(rep.Relations, RelationResult{Relation: rel, Result: res})
	}
	return rep, nil
}
