package graph

import (
	"github.com/tidwall/btree"
)

// CSR indexes edges by source node.
//
// The outgoing edges of node n are EdgeIDs[Starts[n]:Starts[n+1]]; the
// slice is ordered by source and, within a source, by edge id.
type CSR struct {
	Starts  []int32
	EdgeIDs []int32
}

// NewCSR builds the outgoing index for numNodes nodes from the edge sources.
func NewCSR(numNodes int, src []int32) *CSR {
	starts := make([]int32, numNodes+1)
	for _, s := range src {
		starts[s+1]++
	}
	for n := 0; n < numNodes; n++ {
		starts[n+1] += starts[n]
	}

	next := make([]int32, numNodes)
	copy(next, starts[:numNodes])
	ids := make([]int32, len(src))
	for e, s := range src {
		ids[next[s]] = int32(e)
		next[s]++
	}
	return &CSR{Starts: starts, EdgeIDs: ids}
}

// Out returns the ids of the edges leaving node. Don't modify the returned
// slice, it is shared with the index.
func (c *CSR) Out(node int32) []int32 {
	return c.EdgeIDs[c.Starts[node]:c.Starts[node+1]]
}

// EdgeSet is an ordered set of directed (src, dst) pairs used to reject
// negative samples that coincide with real edges.
type EdgeSet struct {
	keys btree.Set[uint64]
}

// EdgeKey packs a directed pair into a single ordered key.
func EdgeKey(src, dst int32) uint64 {
	return uint64(uint32(src))<<32 | uint64(uint32(dst))
}

// NewEdgeSet builds the set of pairs from parallel source and target slices.
func NewEdgeSet(src, dst []int32) *EdgeSet {
	s := &EdgeSet{}
	for i := range src {
		s.keys.Insert(EdgeKey(src[i], dst[i]))
	}
	return s
}

// Add inserts a pair.
func (s *EdgeSet) Add(src, dst int32) {
	s.keys.Insert(EdgeKey(src, dst))
}

// Contains reports whether the pair exists.
func (s *EdgeSet) Contains(src, dst int32) bool {
	return s.keys.Contains(EdgeKey(src, dst))
}

// Len returns the number of distinct pairs.
func (s *EdgeSet) Len() int {
	return s.keys.Len()
}
