// Package model implements the link prediction network: a two-layer
// relational graph convolution encoder and a DistMult decoder, with
// hand-written gradients and an Adam optimiser.
package model

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// Config sizes the network.
type Config struct {
	InputDim     int
	HiddenDim    int
	EmbeddingDim int
	NumRelations int
	// NumBases enables basis decomposition of relation weights when > 0.
	NumBases int
	Dropout  float64
}

// Model couples the encoder with the decoder.
type Model struct {
	Config  Config
	Encoder *Encoder
	Decoder *DistMult
}

// New builds a freshly initialised model.
func New(cfg Config, rng *rand.Rand) (*Model, error) {
	enc, err := NewEncoder(cfg.InputDim, cfg.HiddenDim, cfg.EmbeddingDim, cfg.NumRelations, cfg.NumBases, cfg.Dropout, rng)
	if err != nil {
		return nil, err
	}
	dec, err := NewDistMult(cfg.NumRelations, cfg.EmbeddingDim, rng)
	if err != nil {
		return nil, err
	}
	return &Model{Config: cfg, Encoder: enc, Decoder: dec}, nil
}

// Params returns every trainable parameter in a stable order.
func (m *Model) Params() []*Param {
	return append(m.Encoder.Params(), m.Decoder.Params()...)
}

// NumParams returns the number of scalar parameters.
func (m *Model) NumParams() int {
	n := 0
	for _, p := range m.Params() {
		r, c := p.Dims()
		n += r * c
	}
	return n
}

// ZeroGrad clears all gradients.
func (m *Model) ZeroGrad() { ZeroGrads(m.Params()) }

// Snapshot copies every parameter value, keyed by name.
func (m *Model) Snapshot() map[string]*mat.Dense {
	out := make(map[string]*mat.Dense)
	for _, p := range m.Params() {
		out[p.Name] = mat.DenseCopyOf(p.Value)
	}
	return out
}

// Restore copies values from a snapshot taken from a model of the same shape.
func (m *Model) Restore(snap map[string]*mat.Dense) error {
	for _, p := range m.Params() {
		v, ok := snap[p.Name]
		if !ok {
			return fmt.Errorf("%w: snapshot has no %s", ErrShape, p.Name)
		}
		pr, pc := p.Dims()
		if vr, vc := v.Dims(); vr != pr || vc != pc {
			return fmt.Errorf("%w: %s is %dx%d, snapshot %dx%d", ErrShape, p.Name, pr, pc, vr, vc)
		}
		p.Value.Copy(v)
	}
	return nil
}

// StepResult summarises one forward/backward pass.
type StepResult struct {
	Loss   float64
	Logits []float64
}

// Forward runs the encoder and scores triples without touching gradients.
func (m *Model) Forward(x *mat.Dense, edges Edges, t Triples) ([]float64, error) {
	z, _, err := m.Encoder.Forward(x, edges, false, nil)
	if err != nil {
		return nil, err
	}
	return m.Decoder.Logits(z, t)
}

// Embed returns the node embeddings for x in evaluation mode.
func (m *Model) Embed(x *mat.Dense, edges Edges) (*mat.Dense, error) {
	z, _, err := m.Encoder.Forward(x, edges, false, nil)
	return z, err
}

// Backprop runs a training forward pass, computes the binary cross-entropy of
// the triples against labels plus the optional L2 penalty on embeddings and
// relation vectors, and accumulates gradients into every parameter.
func (m *Model) Backprop(x *mat.Dense, edges Edges, t Triples, labels []float64, reg float64, rng *rand.Rand) (StepResult, error) {
	z, cache, err := m.Encoder.Forward(x, edges, true, rng)
	if err != nil {
		return StepResult{}, err
	}
	logits, err := m.Decoder.Logits(z, t)
	if err != nil {
		return StepResult{}, err
	}
	loss, dLogits, err := BCEWithLogits(logits, labels)
	if err != nil {
		return StepResult{}, err
	}

	dZ := m.Decoder.Backward(z, t, dLogits)
	loss += L2Penalty(reg, z, dZ)
	loss += L2Penalty(reg, m.Decoder.Rel.Value, m.Decoder.Rel.Grad)
	m.Encoder.Backward(cache, dZ)

	return StepResult{Loss: loss, Logits: logits}, nil
}
