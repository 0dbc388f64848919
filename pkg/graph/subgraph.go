package graph

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Subgraph is a node-induced view of a parent graph relabelled to local ids.
// The embedded Graph uses local node ids 0..len(NodeIDs)-1.
type Subgraph struct {
	*Graph
	// NodeIDs maps local node ids to parent node ids.
	NodeIDs []int32
	// EdgeIDs maps local edge ids to parent edge ids.
	EdgeIDs []int32
}

// Induce returns the subgraph spanned by nodes: every parent edge whose two
// endpoints are both in nodes, with features, types, attributes and masks
// carried over. Duplicate node ids are ignored; the first occurrence fixes the
// local id.
func (g *Graph) Induce(nodes []int32) (*Subgraph, error) {
	local := make(map[int32]int32, len(nodes))
	ids := make([]int32, 0, len(nodes))
	for _, n := range nodes {
		if n < 0 || int(n) >= g.NumNodes {
			return nil, fmt.Errorf("%w: node %d out of range [0,%d)", ErrInvalidGraph, n, g.NumNodes)
		}
		if _, seen := local[n]; seen {
			continue
		}
		local[n] = int32(len(ids))
		ids = append(ids, n)
	}

	adj := g.Adjacency()
	var edgeIDs []int32
	for _, n := range ids {
		for _, e := range adj.Out(n) {
			if _, ok := local[g.Dst[e]]; ok {
				edgeIDs = append(edgeIDs, e)
			}
		}
	}

	m := len(edgeIDs)
	sub := &Graph{
		NumNodes:  len(ids),
		Src:       make([]int32, m),
		Dst:       make([]int32, m),
		Types:     make([]int32, m),
		TrainMask: make([]bool, m),
		ValMask:   make([]bool, m),
		TestMask:  make([]bool, m),
		Relations: g.Relations,
	}
	for i, e := range edgeIDs {
		sub.Src[i] = local[g.Src[e]]
		sub.Dst[i] = local[g.Dst[e]]
		sub.Types[i] = g.Types[e]
		sub.TrainMask[i] = g.TrainMask[e]
		sub.ValMask[i] = g.ValMask[e]
		sub.TestMask[i] = g.TestMask[e]
	}

	if len(ids) > 0 {
		sub.Features = gatherRows(g.Features, ids)
	}
	if g.EdgeAttr != nil && m > 0 {
		sub.EdgeAttr = gatherRows(g.EdgeAttr, edgeIDs)
	}

	return &Subgraph{Graph: sub, NodeIDs: ids, EdgeIDs: edgeIDs}, nil
}

func gatherRows(src *mat.Dense, rows []int32) *mat.Dense {
	_, c := src.Dims()
	out := mat.NewDense(len(rows), c, nil)
	for i, r := range rows {
		out.SetRow(i, src.RawRowView(int(r)))
	}
	return out
}
