package sampler

import (
	"math/rand/v2"
	"testing"

	"github.com/sanonone/kektorlink/pkg/graph"
	"github.com/sanonone/kektorlink/pkg/synth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGraph(t *testing.T) *graph.Graph {
	t.Helper()
	opts := synth.DefaultOptions()
	opts.Drugs, opts.Proteins, opts.FeatureDim = 30, 60, 4
	g, err := synth.Generate(opts)
	require.NoError(t, err)
	return g
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, Config{BatchSize: 1, WalkLength: 0, NumSteps: 1}.Validate())
	assert.ErrorIs(t, Config{BatchSize: 0, WalkLength: 2, NumSteps: 1}.Validate(), ErrInvalidConfig)
	assert.ErrorIs(t, Config{BatchSize: 1, WalkLength: -1, NumSteps: 1}.Validate(), ErrInvalidConfig)
	assert.ErrorIs(t, Config{BatchSize: 1, WalkLength: 1, NumSteps: 0}.Validate(), ErrInvalidConfig)
}

func TestWalkFollowsEdges(t *testing.T) {
	g := testGraph(t)
	s, err := NewRandomWalk(g, Config{BatchSize: 4, WalkLength: 5, NumSteps: 1}, rand.New(rand.NewPCG(1, 1)))
	require.NoError(t, err)

	set := g.EdgeSet()
	for root := int32(0); root < 10; root++ {
		path := s.Walk(root, nil)
		require.NotEmpty(t, path)
		assert.Equal(t, root, path[0])
		assert.LessOrEqual(t, len(path), 6)
		for i := 1; i < len(path); i++ {
			assert.True(t, set.Contains(path[i-1], path[i]), "step %d->%d is not an edge", path[i-1], path[i])
		}
	}
}

func TestSampleInducesSubgraph(t *testing.T) {
	g := testGraph(t)
	cfg := Config{BatchSize: 8, WalkLength: 2, NumSteps: 3}
	s, err := NewRandomWalk(g, cfg, rand.New(rand.NewPCG(3, 4)))
	require.NoError(t, err)

	count := 0
	for b, err := range s.Batches() {
		require.NoError(t, err)
		count++
		require.NoError(t, b.Validate())
		assert.LessOrEqual(t, b.NumNodes, cfg.BatchSize*(cfg.WalkLength+1))

		inBatch := make(map[int32]bool, len(b.NodeIDs))
		for _, n := range b.NodeIDs {
			inBatch[n] = true
		}
		// Every parent edge between sampled nodes is present exactly once.
		expected := 0
		for e := range g.Src {
			if inBatch[g.Src[e]] && inBatch[g.Dst[e]] {
				expected++
			}
		}
		assert.Equal(t, expected, b.NumEdges())
	}
	assert.Equal(t, cfg.NumSteps, count)
}

func TestSampleDeterministic(t *testing.T) {
	g := testGraph(t)
	cfg := Config{BatchSize: 5, WalkLength: 3, NumSteps: 1}

	s1, err := NewRandomWalk(g, cfg, rand.New(rand.NewPCG(9, 9)))
	require.NoError(t, err)
	s2, err := NewRandomWalk(g, cfg, rand.New(rand.NewPCG(9, 9)))
	require.NoError(t, err)

	b1, err := s1.Sample()
	require.NoError(t, err)
	b2, err := s2.Sample()
	require.NoError(t, err)
	assert.Equal(t, b1.NodeIDs, b2.NodeIDs)
	assert.Equal(t, b1.EdgeIDs, b2.EdgeIDs)
}
