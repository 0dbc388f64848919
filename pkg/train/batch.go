package train

import (
	"github.com/sanonone/kektorlink/pkg/graph"
	"github.com/sanonone/kektorlink/pkg/model"
	"github.com/sanonone/kektorlink/pkg/negative"
)

// Batch is a scored set of triples in the local ids of one (sub)graph:
// positives first, then their negatives.
type Batch struct {
	Triples   model.Triples
	Labels    []float64
	Positives int
}

// Len returns the number of triples.
func (b Batch) Len() int { return b.Triples.Len() }

// Classes returns the labels as booleans.
func (b Batch) Classes() []bool {
	out := make([]bool, len(b.Labels))
	for i, l := range b.Labels {
		out[i] = l == 1
	}
	return out
}

// BuildBatch takes the edges of g selected by mask as positives, draws at
// most one negative per positive with neg, and concatenates both with labels
// 1 and 0. A negative gets the relation of the positive it was drawn for.
func BuildBatch(g *graph.Graph, mask []bool, neg *negative.Sampler) Batch {
	pos := graph.EdgesIn(mask)
	if len(pos) == 0 {
		return Batch{}
	}
	posSrc := make([]int32, len(pos))
	posDst := make([]int32, len(pos))
	for i, e := range pos {
		posSrc[i], posDst[i] = g.Src[e], g.Dst[e]
	}
	negSrc, negDst, origin := neg.Sample(posSrc, posDst)

	n := len(pos) + len(negSrc)
	b := Batch{
		Triples: model.Triples{
			Src:   make([]int32, 0, n),
			Dst:   make([]int32, 0, n),
			Types: make([]int32, 0, n),
		},
		Labels:    make([]float64, n),
		Positives: len(pos),
	}
	b.Triples.Src = append(append(b.Triples.Src, posSrc...), negSrc...)
	b.Triples.Dst = append(append(b.Triples.Dst, posDst...), negDst...)
	for _, e := range pos {
		b.Triples.Types = append(b.Triples.Types, g.Types[e])
	}
	for _, i := range origin {
		b.Triples.Types = append(b.Triples.Types, g.Types[pos[i]])
	}
	for i := 0; i < len(pos); i++ {
		b.Labels[i] = 1
	}
	return b
}

// MessagePassing selects the edges that carry messages in the encoder.
type MessagePassing string

const (
	// TrainEdges passes messages along train-mask edges only.
	TrainEdges MessagePassing = "train"
	// AllEdges passes messages along every edge.
	AllEdges MessagePassing = "all"
)

// MessageEdges returns the encoder edges of g under policy p.
func MessageEdges(g *graph.Graph, p MessagePassing) model.Edges {
	if p == AllEdges {
		return model.Edges{Src: g.Src, Dst: g.Dst, Types: g.Types}
	}
	ids := graph.EdgesIn(g.TrainMask)
	e := model.Edges{
		Src:   make([]int32, len(ids)),
		Dst:   make([]int32, len(ids)),
		Types: make([]int32, len(ids)),
	}
	for i, id := range ids {
		e.Src[i], e.Dst[i], e.Types[i] = g.Src[id], g.Dst[id], g.Types[id]
	}
	return e
}
