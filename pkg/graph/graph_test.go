package graph

import (
	"path/filepath"
	"testing"

	"github.com/sanonone/kektorlink/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// smallGraph builds a 5-node graph:
//
//	0 -targets-> 1, 1 -rev_targets-> 0, 0 -targets-> 2, 2 -rev_targets-> 0,
//	1 -interacts_with-> 3, 3 -interacts_with-> 4
func smallGraph(t *testing.T) *Graph {
	t.Helper()
	features := mat.NewDense(5, 2, []float64{
		0, 0,
		1, 1,
		2, 2,
		3, 3,
		4, 4,
	})
	g := &Graph{
		NumNodes:  5,
		Features:  features,
		Src:       []int32{0, 1, 0, 2, 1, 3},
		Dst:       []int32{1, 0, 2, 0, 3, 4},
		Types:     []int32{RelTargets, RelRevTargets, RelTargets, RelRevTargets, RelInteractsWith, RelInteractsWith},
		TrainMask: []bool{true, true, false, false, true, false},
		ValMask:   []bool{false, false, true, true, false, false},
		TestMask:  []bool{false, false, false, false, false, true},
		Relations: DefaultRelations(),
	}
	require.NoError(t, g.Validate())
	return g
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(g *Graph)
	}{
		{"NoNodes", func(g *Graph) { g.NumNodes = 0 }},
		{"FeatureRows", func(g *Graph) { g.NumNodes = 6 }},
		{"EdgeLengths", func(g *Graph) { g.Types = g.Types[:2] }},
		{"MaskLength", func(g *Graph) { g.ValMask = g.ValMask[:1] }},
		{"NodeRange", func(g *Graph) { g.Dst[0] = 9 }},
		{"NegativeNode", func(g *Graph) { g.Src[0] = -1 }},
		{"RelationRange", func(g *Graph) { g.Types[0] = 42 }},
		{"EdgeAttrRows", func(g *Graph) { g.EdgeAttr = mat.NewDense(1, 1, nil) }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			g := smallGraph(t)
			tc.mutate(g)
			assert.ErrorIs(t, g.Validate(), ErrInvalidGraph)
		})
	}
}

func TestMaskHelpers(t *testing.T) {
	g := smallGraph(t)
	assert.Equal(t, 0, g.MaskOverlap())
	g.TestMask[0] = true
	assert.Equal(t, 1, g.MaskOverlap())

	assert.Equal(t, []int32{0, 1, 4}, EdgesIn(g.TrainMask))

	counts := g.RelationCounts(g.TrainMask)
	assert.Equal(t, 1, counts[RelTargets])
	assert.Equal(t, 1, counts[RelRevTargets])
	assert.Equal(t, 1, counts[RelInteractsWith])
	assert.Equal(t, 6, sum(g.RelationCounts(nil)))
}

func sum(v []int) int {
	s := 0
	for _, x := range v {
		s += x
	}
	return s
}

func TestCSR(t *testing.T) {
	g := smallGraph(t)
	adj := g.Adjacency()

	assert.Equal(t, []int32{0, 2}, adj.Out(0))
	assert.Equal(t, []int32{1, 4}, adj.Out(1))
	assert.Equal(t, []int32{3}, adj.Out(2))
	assert.Empty(t, adj.Out(4))
	assert.Same(t, adj, g.Adjacency(), "adjacency is cached")
}

func TestEdgeSet(t *testing.T) {
	g := smallGraph(t)
	set := g.EdgeSet()
	assert.Equal(t, 6, set.Len())
	assert.True(t, set.Contains(0, 1))
	assert.True(t, set.Contains(1, 0))
	assert.False(t, set.Contains(4, 3), "direction matters")

	set.Add(4, 3)
	assert.True(t, set.Contains(4, 3))
	assert.NotEqual(t, EdgeKey(1, 2), EdgeKey(2, 1))
}

func TestInduce(t *testing.T) {
	g := smallGraph(t)
	sub, err := g.Induce([]int32{1, 0, 3, 1})
	require.NoError(t, err)

	assert.Equal(t, []int32{1, 0, 3}, sub.NodeIDs)
	assert.Equal(t, 3, sub.NumNodes)
	require.NoError(t, sub.Validate())

	// Edges among {0,1,3}: 0->1 (e0), 1->0 (e1), 1->3 (e4).
	assert.ElementsMatch(t, []int32{0, 1, 4}, sub.EdgeIDs)
	for i, e := range sub.EdgeIDs {
		assert.Equal(t, g.Src[e], sub.NodeIDs[sub.Src[i]])
		assert.Equal(t, g.Dst[e], sub.NodeIDs[sub.Dst[i]])
		assert.Equal(t, g.Types[e], sub.Types[i])
		assert.Equal(t, g.TrainMask[e], sub.TrainMask[i])
	}

	// Features follow the local relabelling.
	assert.Equal(t, []float64{1, 1}, sub.Features.RawRowView(0))
	assert.Equal(t, []float64{3, 3}, sub.Features.RawRowView(2))

	_, err = g.Induce([]int32{7})
	assert.ErrorIs(t, err, ErrInvalidGraph)
}

func TestBundleRoundTrip(t *testing.T) {
	g := smallGraph(t)
	g.EdgeAttr = mat.NewDense(6, 1, []float64{1, 2, 3, 4, 5, 6})
	path := filepath.Join(t.TempDir(), "small.klg")
	require.NoError(t, g.Save(path, persistence.Float16))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, g.NumNodes, loaded.NumNodes)
	assert.Equal(t, g.Src, loaded.Src)
	assert.Equal(t, g.Dst, loaded.Dst)
	assert.Equal(t, g.Types, loaded.Types)
	assert.Equal(t, g.TrainMask, loaded.TrainMask)
	assert.Equal(t, g.Relations, loaded.Relations)
	assert.True(t, mat.EqualApprox(g.Features, loaded.Features, 1e-3))
	require.NotNil(t, loaded.EdgeAttr)
	assert.True(t, mat.EqualApprox(g.EdgeAttr, loaded.EdgeAttr, 1e-3))
}

func TestFromTensorsMissing(t *testing.T) {
	g := smallGraph(t)
	tensors := make(map[string]*persistence.Tensor)
	for _, tensor := range g.Tensors(persistence.Float32) {
		tensors[tensor.Name] = tensor
	}
	delete(tensors, TensorValMask)

	_, err := FromTensors(tensors)
	assert.ErrorIs(t, err, ErrInvalidGraph)
}

func TestResolveRelations(t *testing.T) {
	rels, err := resolveRelations(nil, nil, 3)
	require.NoError(t, err)
	assert.Len(t, rels, 9)
	assert.Equal(t, "targets", rels[0].Name)

	_, err = resolveRelations(nil, nil, 11)
	assert.ErrorIs(t, err, ErrInvalidGraph)

	rels, err = resolveRelations([]string{"a", "b", "c"}, []int64{1, 0, -1}, 2)
	require.NoError(t, err)
	assert.Equal(t, []Relation{{"a", 1}, {"b", 0}, {"c", -1}}, rels)

	_, err = resolveRelations([]string{"a", "b"}, []int64{1, 0}, 3)
	assert.ErrorIs(t, err, ErrInvalidGraph)

	_, err = resolveRelations([]string{"a"}, []int64{5}, 1)
	assert.ErrorIs(t, err, ErrInvalidGraph)

	_, err = resolveRelations([]string{"a", "b"}, []int64{1}, 2)
	assert.ErrorIs(t, err, ErrInvalidGraph)
}

func TestFromTensorsRejectsUnknownEdgeType(t *testing.T) {
	cases := []struct {
		name     string
		names    []string
		edgeType int64
	}{
		{"past named vocabulary", []string{"a", "b", "c"}, 12},
		{"past default vocabulary", nil, 3000000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tensors := map[string]*persistence.Tensor{}
			for _, tensor := range smallGraph(t).Tensors(persistence.Float32) {
				tensors[tensor.Name] = tensor
			}
			delete(tensors, TensorRelations)
			delete(tensors, TensorRelationInverse)
			if tc.names != nil {
				tensors[TensorRelations] = persistence.NewStringTensor(TensorRelations, tc.names)
			}
			types := tensors[TensorEdgeType].Ints
			types[len(types)-1] = tc.edgeType

			_, err := FromTensors(tensors)
			require.ErrorIs(t, err, ErrInvalidGraph)
			assert.Contains(t, err.Error(), "outside a vocabulary")
		})
	}
}
