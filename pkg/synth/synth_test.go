package synth

import (
	"testing"

	"github.com/sanonone/kektorlink/pkg/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func smallOptions() Options {
	opts := DefaultOptions()
	opts.Drugs = 20
	opts.Proteins = 40
	opts.FeatureDim = 8
	opts.Communities = 3
	return opts
}

func TestGenerate(t *testing.T) {
	g, err := Generate(smallOptions())
	require.NoError(t, err)
	require.NoError(t, g.Validate())

	assert.Equal(t, 60, g.NumNodes)
	assert.Equal(t, 8, g.FeatureDim())
	assert.Equal(t, 9, g.NumRelations())
	assert.Zero(t, g.MaskOverlap(), "masks partition the edges")

	for i := range g.Src {
		inSplit := g.TrainMask[i] || g.ValMask[i] || g.TestMask[i]
		assert.True(t, inSplit, "edge %d belongs to no split", i)
		assert.NotEqual(t, g.Src[i], g.Dst[i], "no self loops")
	}

	counts := g.RelationCounts(nil)
	for rel, c := range counts {
		assert.Positive(t, c, "relation %s has no edges", g.Relations[rel].Name)
	}
	assert.Equal(t, counts[graph.RelTargets], counts[graph.RelRevTargets])
}

func TestGenerateMirrorsReverseEdges(t *testing.T) {
	g, err := Generate(smallOptions())
	require.NoError(t, err)

	// Edges are appended in (forward, reverse) pairs sharing a split.
	for i := 0; i < g.NumEdges(); i += 2 {
		assert.Equal(t, g.Src[i], g.Dst[i+1])
		assert.Equal(t, g.Dst[i], g.Src[i+1])
		inv := g.Relations[g.Types[i]].Inverse
		if inv >= 0 {
			assert.Equal(t, int32(inv), g.Types[i+1])
		} else {
			assert.Equal(t, g.Types[i], g.Types[i+1])
		}
		assert.Equal(t, g.TrainMask[i], g.TrainMask[i+1])
		assert.Equal(t, g.TestMask[i], g.TestMask[i+1])
	}
}

func TestGenerateDeterministic(t *testing.T) {
	a, err := Generate(smallOptions())
	require.NoError(t, err)
	b, err := Generate(smallOptions())
	require.NoError(t, err)

	assert.Equal(t, a.Src, b.Src)
	assert.Equal(t, a.Types, b.Types)
	assert.Equal(t, a.ValMask, b.ValMask)
	assert.True(t, mat.Equal(a.Features, b.Features))

	opts := smallOptions()
	opts.Seed = 7
	c, err := Generate(opts)
	require.NoError(t, err)
	assert.False(t, mat.Equal(a.Features, c.Features))
}

func TestGenerateInvalid(t *testing.T) {
	for name, mutate := range map[string]func(*Options){
		"NoDrugs":   func(o *Options) { o.Drugs = 0 },
		"Affinity":  func(o *Options) { o.Affinity = 2 },
		"Fractions": func(o *Options) { o.ValFraction, o.TestFraction = 0.6, 0.5 },
		"Degree":    func(o *Options) { o.DegreePerDrug[1] = -1 },
		"Features":  func(o *Options) { o.FeatureDim = 0 },
	} {
		t.Run(name, func(t *testing.T) {
			opts := smallOptions()
			mutate(&opts)
			_, err := Generate(opts)
			assert.ErrorIs(t, err, ErrInvalidOptions)
		})
	}
}
