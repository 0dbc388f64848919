package model

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// BCEWithLogits returns the mean binary cross-entropy of σ(logits) against
// labels (1 or 0) and its gradient with respect to the logits.
//
// The per-sample loss is max(x,0) - x*y + log(1+exp(-|x|)), which never
// overflows and is always >= 0.
func BCEWithLogits(logits, labels []float64) (float64, []float64, error) {
	if len(logits) != len(labels) {
		return 0, nil, fmt.Errorf("%w: %d logits for %d labels", ErrShape, len(logits), len(labels))
	}
	if len(logits) == 0 {
		return 0, nil, fmt.Errorf("%w: empty batch", ErrShape)
	}
	inv := 1 / float64(len(logits))
	grad := make([]float64, len(logits))
	var loss float64
	for i, x := range logits {
		y := labels[i]
		loss += math.Max(x, 0) - x*y + math.Log1p(math.Exp(-math.Abs(x)))
		grad[i] = (Sigmoid(x) - y) * inv
	}
	return loss * inv, grad, nil
}

// L2Penalty returns coef * mean(m²) and adds its gradient to grad.
func L2Penalty(coef float64, m, grad *mat.Dense) float64 {
	if coef == 0 {
		return 0
	}
	r, c := m.Dims()
	data := m.RawMatrix().Data
	inv := 1 / float64(r*c)
	penalty := coef * floats.Dot(data, data) * inv
	floats.AddScaled(grad.RawMatrix().Data, 2*coef*inv, data)
	return penalty
}
