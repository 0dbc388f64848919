// Package graph holds the heterogeneous knowledge graph used for link
// prediction: node features, a directed typed edge list and the
// train/validation/test edge masks.
package graph

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ErrInvalidGraph is returned when a graph violates its structural invariants.
var ErrInvalidGraph = errors.New("invalid graph")

// Split names one of the three edge partitions.
type Split string

// Edge partitions, selected by the train/val/test masks.
const (
	SplitTrain Split = "train"
	SplitVal   Split = "val"
	SplitTest  Split = "test"
)

// Splits lists the partitions in reporting order.
var Splits = []Split{SplitTrain, SplitVal, SplitTest}

// Graph is an immutable heterogeneous graph. Edge i goes from Src[i] to
// Dst[i] and has relation Types[i].
type Graph struct {
	NumNodes int
	Features *mat.Dense
	// EdgeAttr is optional (nil when the bundle carries none). The encoder
	// does not consume it but samplers carry it along.
	EdgeAttr *mat.Dense

	Src   []int32
	Dst   []int32
	Types []int32

	TrainMask []bool
	ValMask   []bool
	TestMask  []bool

	Relations []Relation

	adj   *CSR
	edges *EdgeSet
}

// NumEdges returns the number of directed edges.
func (g *Graph) NumEdges() int { return len(g.Src) }

// NumRelations returns the size of the relation vocabulary.
func (g *Graph) NumRelations() int { return len(g.Relations) }

// FeatureDim returns the width of the node feature matrix.
func (g *Graph) FeatureDim() int {
	if g.Features == nil {
		return 0
	}
	_, c := g.Features.Dims()
	return c
}

// Mask returns the edge mask of a split.
func (g *Graph) Mask(s Split) []bool {
	switch s {
	case SplitTrain:
		return g.TrainMask
	case SplitVal:
		return g.ValMask
	case SplitTest:
		return g.TestMask
	default:
		return nil
	}
}

// Validate checks the structural invariants of the graph.
func (g *Graph) Validate() error {
	if g.NumNodes <= 0 {
		return fmt.Errorf("%w: no nodes", ErrInvalidGraph)
	}
	if g.Features == nil {
		return fmt.Errorf("%w: missing feature matrix", ErrInvalidGraph)
	}
	if r, _ := g.Features.Dims(); r != g.NumNodes {
		return fmt.Errorf("%w: feature matrix has %d rows for %d nodes", ErrInvalidGraph, r, g.NumNodes)
	}
	m := len(g.Src)
	if len(g.Dst) != m || len(g.Types) != m {
		return fmt.Errorf("%w: edge arrays have lengths %d/%d/%d", ErrInvalidGraph, len(g.Src), len(g.Dst), len(g.Types))
	}
	if g.EdgeAttr != nil {
		if r, _ := g.EdgeAttr.Dims(); r != m {
			return fmt.Errorf("%w: edge attributes have %d rows for %d edges", ErrInvalidGraph, r, m)
		}
	}
	for _, s := range Splits {
		if len(g.Mask(s)) != m {
			return fmt.Errorf("%w: %s mask has length %d for %d edges", ErrInvalidGraph, s, len(g.Mask(s)), m)
		}
	}
	for i := 0; i < m; i++ {
		if g.Src[i] < 0 || int(g.Src[i]) >= g.NumNodes || g.Dst[i] < 0 || int(g.Dst[i]) >= g.NumNodes {
			return fmt.Errorf("%w: edge %d (%d->%d) out of node range [0,%d)", ErrInvalidGraph, i, g.Src[i], g.Dst[i], g.NumNodes)
		}
		if g.Types[i] < 0 || int(g.Types[i]) >= len(g.Relations) {
			return fmt.Errorf("%w: edge %d has relation %d, vocabulary has %d", ErrInvalidGraph, i, g.Types[i], len(g.Relations))
		}
	}
	return nil
}

// MaskOverlap counts edges that belong to more than one split.
func (g *Graph) MaskOverlap() int {
	overlap := 0
	for i := range g.Src {
		n := 0
		for _, s := range Splits {
			if g.Mask(s)[i] {
				n++
			}
		}
		if n > 1 {
			overlap++
		}
	}
	return overlap
}

// EdgesIn returns the ids of the edges selected by mask.
func EdgesIn(mask []bool) []int32 {
	ids := make([]int32, 0, len(mask)/4)
	for i, ok := range mask {
		if ok {
			ids = append(ids, int32(i))
		}
	}
	return ids
}

// RelationCounts counts the edges selected by mask per relation. A nil mask
// selects every edge.
func (g *Graph) RelationCounts(mask []bool) []int {
	counts := make([]int, len(g.Relations))
	for i, t := range g.Types {
		if mask == nil || mask[i] {
			counts[t]++
		}
	}
	return counts
}

// Adjacency returns the outgoing CSR index, building it on first use.
func (g *Graph) Adjacency() *CSR {
	if g.adj == nil {
		g.adj = NewCSR(g.NumNodes, g.Src)
	}
	return g.adj
}

// EdgeSet returns the set of (src, dst) pairs, building it on first use.
func (g *Graph) EdgeSet() *EdgeSet {
	if g.edges == nil {
		g.edges = NewEdgeSet(g.Src, g.Dst)
	}
	return g.edges
}
