package model

import (
	"errors"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ErrShape is returned when an input does not match a layer's dimensions.
var ErrShape = errors.New("shape mismatch")

// Param is a trainable matrix with its accumulated gradient.
type Param struct {
	Name  string
	Value *mat.Dense
	Grad  *mat.Dense
}

func newParam(name string, rows, cols int) *Param {
	return &Param{
		Name:  name,
		Value: mat.NewDense(rows, cols, nil),
		Grad:  mat.NewDense(rows, cols, nil),
	}
}

// Data returns the contiguous row-major values of the parameter.
func (p *Param) Data() []float64 { return p.Value.RawMatrix().Data }

// GradData returns the contiguous row-major gradient of the parameter.
func (p *Param) GradData() []float64 { return p.Grad.RawMatrix().Data }

// Dims returns the parameter shape.
func (p *Param) Dims() (int, int) { return p.Value.Dims() }

// ZeroGrad clears the accumulated gradient.
func (p *Param) ZeroGrad() { p.Grad.Zero() }

// glorot fills p with values from U(-a, a), a = sqrt(6 / (fanIn + fanOut)).
func (p *Param) glorot(rng *rand.Rand, fanIn, fanOut int) {
	limit := math.Sqrt(6 / float64(fanIn+fanOut))
	u := distuv.Uniform{Min: -limit, Max: limit, Src: rng}
	data := p.Data()
	for i := range data {
		data[i] = u.Rand()
	}
}

// ZeroGrads clears the gradients of all params.
func ZeroGrads(params []*Param) {
	for _, p := range params {
		p.ZeroGrad()
	}
}

// GradNorm returns the global L2 norm of the gradients.
func GradNorm(params []*Param) float64 {
	var sq float64
	for _, p := range params {
		n := floats.Norm(p.GradData(), 2)
		sq += n * n
	}
	return math.Sqrt(sq)
}

// ClipGradNorm rescales all gradients so that their global L2 norm is at most
// maxNorm and returns the norm before clipping. maxNorm <= 0 disables clipping.
func ClipGradNorm(params []*Param, maxNorm float64) float64 {
	norm := GradNorm(params)
	if maxNorm <= 0 || norm <= maxNorm || norm == 0 {
		return norm
	}
	scale := maxNorm / (norm + 1e-6)
	for _, p := range params {
		floats.Scale(scale, p.GradData())
	}
	return norm
}
