package model

import (
	"fmt"
	"math"
)

// Adam implements the Adam optimiser with optional L2 weight decay added to
// the gradient.
type Adam struct {
	LR          float64
	Beta1       float64
	Beta2       float64
	Eps         float64
	WeightDecay float64

	params []*Param
	m, v   [][]float64
	step   int
}

// NewAdam returns an optimiser over params with the usual betas.
func NewAdam(params []*Param, lr, weightDecay float64) (*Adam, error) {
	if lr <= 0 || weightDecay < 0 {
		return nil, fmt.Errorf("invalid adam parameters lr=%g weight_decay=%g", lr, weightDecay)
	}
	a := &Adam{
		LR:          lr,
		Beta1:       0.9,
		Beta2:       0.999,
		Eps:         1e-8,
		WeightDecay: weightDecay,
		params:      params,
		m:           make([][]float64, len(params)),
		v:           make([][]float64, len(params)),
	}
	for i, p := range params {
		a.m[i] = make([]float64, len(p.Data()))
		a.v[i] = make([]float64, len(p.Data()))
	}
	return a, nil
}

// Steps returns the number of updates applied so far.
func (a *Adam) Steps() int { return a.step }

// Step applies one update using the accumulated gradients.
func (a *Adam) Step() {
	a.step++
	bc1 := 1 - math.Pow(a.Beta1, float64(a.step))
	bc2 := 1 - math.Pow(a.Beta2, float64(a.step))
	for i, p := range a.params {
		w, g := p.Data(), p.GradData()
		m, v := a.m[i], a.v[i]
		for j := range w {
			grad := g[j]
			if a.WeightDecay != 0 {
				grad += a.WeightDecay * w[j]
			}
			m[j] = a.Beta1*m[j] + (1-a.Beta1)*grad
			v[j] = a.Beta2*v[j] + (1-a.Beta2)*grad*grad
			w[j] -= a.LR * (m[j] / bc1) / (math.Sqrt(v[j]/bc2) + a.Eps)
		}
	}
}
