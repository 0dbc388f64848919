package model

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// Encoder stacks two RGCN layers with a ReLU (and optional dropout) between them.
type Encoder struct {
	Conv1   *RGCNLayer
	Conv2   *RGCNLayer
	Dropout float64
}

// NewEncoder builds an in -> hidden -> out encoder.
func NewEncoder(in, hidden, out, numRelations, numBases int, dropout float64, rng *rand.Rand) (*Encoder, error) {
	if dropout < 0 || dropout >= 1 {
		return nil, fmt.Errorf("%w: dropout %f outside [0,1)", ErrShape, dropout)
	}
	conv1, err := NewRGCNLayer("conv1", in, hidden, numRelations, numBases, rng)
	if err != nil {
		return nil, err
	}
	conv2, err := NewRGCNLayer("conv2", hidden, out, numRelations, numBases, rng)
	if err != nil {
		return nil, err
	}
	return &Encoder{Conv1: conv1, Conv2: conv2, Dropout: dropout}, nil
}

// Params returns the parameters of both layers.
func (e *Encoder) Params() []*Param {
	return append(e.Conv1.Params(), e.Conv2.Params()...)
}

// EncoderCache holds the intermediate state of a forward pass.
type EncoderCache struct {
	c1, c2 *rgcnCache
	// gate is the combined ReLU and dropout multiplier applied to the hidden layer.
	gate []float64
}

// Forward computes node embeddings. rng is only used for dropout and may be
// nil when train is false or dropout is disabled.
func (e *Encoder) Forward(x *mat.Dense, edges Edges, train bool, rng *rand.Rand) (*mat.Dense, *EncoderCache, error) {
	h, c1, err := e.Conv1.Forward(x, edges)
	if err != nil {
		return nil, nil, fmt.Errorf("conv1: %w", err)
	}

	data := h.RawMatrix().Data
	gate := make([]float64, len(data))
	keep := 1.0
	if train && e.Dropout > 0 {
		keep = 1 - e.Dropout
	}
	for i, v := range data {
		if v <= 0 {
			data[i] = 0
			continue
		}
		if keep < 1 && rng.Float64() >= keep {
			data[i] = 0
			continue
		}
		gate[i] = 1 / keep
		data[i] = v * gate[i]
	}

	z, c2, err := e.Conv2.Forward(h, edges)
	if err != nil {
		return nil, nil, fmt.Errorf("conv2: %w", err)
	}
	return z, &EncoderCache{c1: c1, c2: c2, gate: gate}, nil
}

// Backward accumulates gradients for dZ, the gradient of the loss with
// respect to the embeddings returned by Forward.
func (e *Encoder) Backward(c *EncoderCache, dZ *mat.Dense) {
	dH := e.Conv2.Backward(c.c2, dZ, true)
	data := dH.RawMatrix().Data
	for i := range data {
		data[i] *= c.gate[i]
	}
	e.Conv1.Backward(c.c1, dH, false)
}
