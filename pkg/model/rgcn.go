package model

import (
	"fmt"
	"math/rand/v2"

	"github.com/sanonone/kektorlink/pkg/core/vecmath"
	"gonum.org/v1/gonum/mat"
)

// Edges is the message passing structure of a (sub)graph in local node ids.
// Messages flow from Src[i] to Dst[i] through relation Types[i].
type Edges struct {
	Src   []int32
	Dst   []int32
	Types []int32
}

// Len returns the number of edges.
func (e Edges) Len() int { return len(e.Src) }

// RGCNLayer is a relational graph convolution:
//
//	h_i = W_root x_i + Σ_r Σ_{j∈N_r(i)} x_j W_r / |N_r(i)| + b
//
// With NumBases > 0 the relation weights are decomposed as
// W_r = Σ_b Comp[r,b] Basis_b.
type RGCNLayer struct {
	In, Out      int
	NumRelations int
	NumBases     int

	Root    *Param   // In x Out
	Bias    *Param   // 1 x Out
	Weights []*Param // NumRelations x (In x Out), full parametrisation
	Bases   []*Param // NumBases x (In x Out)
	Comp    *Param   // NumRelations x NumBases
}

// NewRGCNLayer builds a layer with Glorot initialised weights and zero bias.
func NewRGCNLayer(name string, in, out, numRelations, numBases int, rng *rand.Rand) (*RGCNLayer, error) {
	if in <= 0 || out <= 0 || numRelations <= 0 || numBases < 0 {
		return nil, fmt.Errorf("%w: rgcn layer in=%d out=%d relations=%d bases=%d", ErrShape, in, out, numRelations, numBases)
	}
	l := &RGCNLayer{
		In:           in,
		Out:          out,
		NumRelations: numRelations,
		NumBases:     numBases,
		Root:         newParam(name+".root", in, out),
		Bias:         newParam(name+".bias", 1, out),
	}
	l.Root.glorot(rng, in, out)

	if numBases > 0 {
		l.Bases = make([]*Param, numBases)
		for b := range l.Bases {
			l.Bases[b] = newParam(fmt.Sprintf("%s.basis.%d", name, b), in, out)
			l.Bases[b].glorot(rng, in, out)
		}
		l.Comp = newParam(name+".comp", numRelations, numBases)
		l.Comp.glorot(rng, numRelations, numBases)
	} else {
		l.Weights = make([]*Param, numRelations)
		for r := range l.Weights {
			l.Weights[r] = newParam(fmt.Sprintf("%s.weight.%d", name, r), in, out)
			l.Weights[r].glorot(rng, in, out)
		}
	}
	return l, nil
}

// Params returns the trainable parameters of the layer.
func (l *RGCNLayer) Params() []*Param {
	ps := []*Param{l.Root, l.Bias}
	if l.NumBases > 0 {
		ps = append(ps, l.Bases...)
		return append(ps, l.Comp)
	}
	return append(ps, l.Weights...)
}

// relationWeight returns W_r, composing it from the bases when needed.
func (l *RGCNLayer) relationWeight(r int) *mat.Dense {
	if l.NumBases == 0 {
		return l.Weights[r].Value
	}
	w := mat.NewDense(l.In, l.Out, nil)
	wData := w.RawMatrix().Data
	for b, basis := range l.Bases {
		vecmath.Axpy(l.Comp.Value.At(r, b), basis.Data(), wData)
	}
	return w
}

// rgcnCache keeps what Backward needs from a forward pass.
type rgcnCache struct {
	x       *mat.Dense
	edges   Edges
	invDeg  [][]float64  // per relation, per node: 1/|N_r(i)| (0 when no neighbours)
	agg     []*mat.Dense // per relation mean neighbour features, nil when unused
	weights []*mat.Dense // per relation W_r, nil when unused
}

// Forward computes the layer output for node features x (n x In).
func (l *RGCNLayer) Forward(x *mat.Dense, edges Edges) (*mat.Dense, *rgcnCache, error) {
	n, in := x.Dims()
	if n == 0 {
		return nil, nil, fmt.Errorf("%w: no nodes", ErrShape)
	}
	if in != l.In {
		return nil, nil, fmt.Errorf("%w: layer expects %d input features, got %d", ErrShape, l.In, in)
	}
	if len(edges.Dst) != edges.Len() || len(edges.Types) != edges.Len() {
		return nil, nil, fmt.Errorf("%w: edge arrays have lengths %d/%d/%d", ErrShape, len(edges.Src), len(edges.Dst), len(edges.Types))
	}
	for i := range edges.Src {
		s, d, r := edges.Src[i], edges.Dst[i], edges.Types[i]
		if s < 0 || int(s) >= n || d < 0 || int(d) >= n {
			return nil, nil, fmt.Errorf("%w: edge %d (%d->%d) outside %d nodes", ErrShape, i, s, d, n)
		}
		if r < 0 || int(r) >= l.NumRelations {
			return nil, nil, fmt.Errorf("%w: edge %d relation %d outside %d relations", ErrShape, i, r, l.NumRelations)
		}
	}

	c := &rgcnCache{
		x:       x,
		edges:   edges,
		invDeg:  make([][]float64, l.NumRelations),
		agg:     make([]*mat.Dense, l.NumRelations),
		weights: make([]*mat.Dense, l.NumRelations),
	}

	// 1. In-degree per relation
	for i := range edges.Src {
		r := edges.Types[i]
		if c.invDeg[r] == nil {
			c.invDeg[r] = make([]float64, n)
		}
		c.invDeg[r][edges.Dst[i]]++
	}
	for _, deg := range c.invDeg {
		for i, d := range deg {
			if d > 0 {
				deg[i] = 1 / d
			}
		}
	}

	// 2. Mean aggregation of neighbour features per relation
	for i := range edges.Src {
		r, s, d := edges.Types[i], edges.Src[i], edges.Dst[i]
		if c.agg[r] == nil {
			c.agg[r] = mat.NewDense(n, l.In, nil)
		}
		vecmath.Axpy(c.invDeg[r][d], x.RawRowView(int(s)), c.agg[r].RawRowView(int(d)))
	}

	// 3. Root transform, relation transforms and bias
	out := mat.NewDense(n, l.Out, nil)
	out.Mul(x, l.Root.Value)
	var tmp mat.Dense
	for r, agg := range c.agg {
		if agg == nil {
			continue
		}
		c.weights[r] = l.relationWeight(r)
		tmp.Mul(agg, c.weights[r])
		out.Add(out, &tmp)
	}
	bias := l.Bias.Data()
	for i := 0; i < n; i++ {
		vecmath.Axpy(1, bias, out.RawRowView(i))
	}
	return out, c, nil
}

// Backward accumulates parameter gradients for upstream gradient dOut and,
// when needInput is true, returns the gradient with respect to the layer input.
func (l *RGCNLayer) Backward(c *rgcnCache, dOut *mat.Dense, needInput bool) *mat.Dense {
	n, _ := c.x.Dims()

	// Root and bias
	var tmp mat.Dense
	tmp.Mul(c.x.T(), dOut)
	l.Root.Grad.Add(l.Root.Grad, &tmp)
	biasGrad := l.Bias.GradData()
	for i := 0; i < n; i++ {
		vecmath.Axpy(1, dOut.RawRowView(i), biasGrad)
	}

	// Relation weights
	for r, agg := range c.agg {
		if agg == nil {
			continue
		}
		dW := mat.NewDense(l.In, l.Out, nil)
		dW.Mul(agg.T(), dOut)
		if l.NumBases == 0 {
			l.Weights[r].Grad.Add(l.Weights[r].Grad, dW)
			continue
		}
		dWData := dW.RawMatrix().Data
		for b, basis := range l.Bases {
			// dL/dComp[r,b] = <dW_r, Basis_b>, dL/dBasis_b += Comp[r,b] dW_r
			l.Comp.Grad.Set(r, b, l.Comp.Grad.At(r, b)+vecmath.Dot(dWData, basis.Data()))
			vecmath.Axpy(l.Comp.Value.At(r, b), dWData, basis.GradData())
		}
	}

	if !needInput {
		return nil
	}

	// Input gradient: root path plus scattered relation messages
	dX := mat.NewDense(n, l.In, nil)
	dX.Mul(dOut, l.Root.Value.T())
	dAgg := make([]*mat.Dense, l.NumRelations)
	for r, w := range c.weights {
		if w == nil {
			continue
		}
		dAgg[r] = mat.NewDense(n, l.In, nil)
		dAgg[r].Mul(dOut, w.T())
	}
	for i := range c.edges.Src {
		r, s, d := c.edges.Types[i], c.edges.Src[i], c.edges.Dst[i]
		vecmath.Axpy(c.invDeg[r][d], dAgg[r].RawRowView(int(d)), dX.RawRowView(int(s)))
	}
	return dX
}
