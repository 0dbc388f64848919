package model

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/sanonone/kektorlink/pkg/core/vecmath"
	"gonum.org/v1/gonum/mat"
)

// DistMult scores a triple (s, r, o) as Σ_k z_s[k] R_r[k] z_o[k].
type DistMult struct {
	Rel *Param // NumRelations x Dim
}

// NewDistMult builds a decoder with Glorot initialised relation vectors.
func NewDistMult(numRelations, dim int, rng *rand.Rand) (*DistMult, error) {
	if numRelations <= 0 || dim <= 0 {
		return nil, fmt.Errorf("%w: distmult relations=%d dim=%d", ErrShape, numRelations, dim)
	}
	d := &DistMult{Rel: newParam("decoder.rel", numRelations, dim)}
	d.Rel.glorot(rng, numRelations, dim)
	return d, nil
}

// Params returns the relation embedding parameter.
func (d *DistMult) Params() []*Param { return []*Param{d.Rel} }

// Triples lists the (subject, object, relation) triples to score, in local node ids.
type Triples struct {
	Src   []int32
	Dst   []int32
	Types []int32
}

// Len returns the number of triples.
func (t Triples) Len() int { return len(t.Src) }

func (d *DistMult) check(z *mat.Dense, t Triples) error {
	n, dim := z.Dims()
	numRel, relDim := d.Rel.Dims()
	if dim != relDim {
		return fmt.Errorf("%w: embeddings have %d dims, relations %d", ErrShape, dim, relDim)
	}
	if len(t.Dst) != t.Len() || len(t.Types) != t.Len() {
		return fmt.Errorf("%w: triple arrays have lengths %d/%d/%d", ErrShape, len(t.Src), len(t.Dst), len(t.Types))
	}
	for i := range t.Src {
		if t.Src[i] < 0 || int(t.Src[i]) >= n || t.Dst[i] < 0 || int(t.Dst[i]) >= n {
			return fmt.Errorf("%w: triple %d (%d, %d) outside %d nodes", ErrShape, i, t.Src[i], t.Dst[i], n)
		}
		if t.Types[i] < 0 || int(t.Types[i]) >= numRel {
			return fmt.Errorf("%w: triple %d relation %d outside %d relations", ErrShape, i, t.Types[i], numRel)
		}
	}
	return nil
}

// Logits returns the raw bilinear scores of the triples.
func (d *DistMult) Logits(z *mat.Dense, t Triples) ([]float64, error) {
	if err := d.check(z, t); err != nil {
		return nil, err
	}
	out := make([]float64, t.Len())
	for i := range out {
		out[i] = vecmath.TripleDot(
			z.RawRowView(int(t.Src[i])),
			d.Rel.Value.RawRowView(int(t.Types[i])),
			z.RawRowView(int(t.Dst[i])),
		)
	}
	return out, nil
}

// Probabilities returns σ(logit) for each triple, in [0, 1].
func (d *DistMult) Probabilities(z *mat.Dense, t Triples) ([]float64, error) {
	logits, err := d.Logits(z, t)
	if err != nil {
		return nil, err
	}
	for i, v := range logits {
		logits[i] = Sigmoid(v)
	}
	return logits, nil
}

// Backward accumulates the relation gradient for dLogits and returns the
// gradient with respect to z. The triples must have passed Logits.
func (d *DistMult) Backward(z *mat.Dense, t Triples, dLogits []float64) *mat.Dense {
	n, dim := z.Dims()
	dZ := mat.NewDense(n, dim, nil)
	for i, g := range dLogits {
		if g == 0 {
			continue
		}
		zs := z.RawRowView(int(t.Src[i]))
		zo := z.RawRowView(int(t.Dst[i]))
		rel := d.Rel.Value.RawRowView(int(t.Types[i]))

		vecmath.AddTripleScaled(dZ.RawRowView(int(t.Src[i])), g, rel, zo)
		vecmath.AddTripleScaled(dZ.RawRowView(int(t.Dst[i])), g, rel, zs)
		vecmath.AddTripleScaled(d.Rel.Grad.RawRowView(int(t.Types[i])), g, zs, zo)
	}
	return dZ
}

// Sigmoid is the logistic function, stable for large |x|.
func Sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}
