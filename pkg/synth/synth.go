// Package synth generates synthetic drug/protein knowledge graphs.
//
// Nodes belong to hidden communities. Each forward relation links a drug in
// community c preferentially to a protein in community (c+shift) mod K, with a
// relation-specific shift, and protein-protein interactions stay inside a
// community. Node features are noisy community centroids, so a model that
// learns from features and structure can beat chance on held-out links.
package synth

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/sanonone/kektorlink/pkg/graph"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ErrInvalidOptions is returned for unusable generator options.
var ErrInvalidOptions = errors.New("invalid synth options")

// Options controls the generated graph.
type Options struct {
	Drugs       int
	Proteins    int
	FeatureDim  int
	Communities int

	// DegreePerDrug is the number of outgoing edges per drug for each of the
	// four drug-protein relations (targets, metabolized_by, carried_by,
	// transported_by).
	DegreePerDrug [4]int
	// InteractionsPerProtein is the number of protein-protein partners drawn per protein.
	InteractionsPerProtein int
	// Affinity is the probability that an edge respects the community rule.
	Affinity float64
	// Noise is the standard deviation added to community centroids.
	Noise float64

	ValFraction  float64
	TestFraction float64

	Seed uint64
}

// DefaultOptions returns a graph small enough for quick experiments.
func DefaultOptions() Options {
	return Options{
		Drugs:                  300,
		Proteins:               600,
		FeatureDim:             128,
		Communities:            8,
		DegreePerDrug:          [4]int{6, 3, 2, 2},
		InteractionsPerProtein: 4,
		Affinity:               0.85,
		Noise:                  0.5,
		ValFraction:            0.1,
		TestFraction:           0.1,
		Seed:                   42,
	}
}

func (o Options) validate() error {
	switch {
	case o.Drugs <= 0 || o.Proteins <= 1:
		return fmt.Errorf("%w: need drugs > 0 and proteins > 1", ErrInvalidOptions)
	case o.FeatureDim <= 0 || o.Communities <= 0:
		return fmt.Errorf("%w: feature_dim and communities must be > 0", ErrInvalidOptions)
	case o.Affinity < 0 || o.Affinity > 1:
		return fmt.Errorf("%w: affinity %f outside [0,1]", ErrInvalidOptions, o.Affinity)
	case o.ValFraction < 0 || o.TestFraction < 0 || o.ValFraction+o.TestFraction >= 1:
		return fmt.Errorf("%w: val+test fractions must be in [0,1)", ErrInvalidOptions)
	}
	for _, d := range o.DegreePerDrug {
		if d < 0 {
			return fmt.Errorf("%w: negative degree", ErrInvalidOptions)
		}
	}
	return nil
}

var forwardRelations = [4]int32{graph.RelTargets, graph.RelMetabolizedBy, graph.RelCarriedBy, graph.RelTransportedBy}

type builder struct {
	opts  Options
	rng   *rand.Rand
	seen  *graph.EdgeSet
	g     *graph.Graph
	split []graph.Split
}

// Generate builds a graph from opts. The same options always produce the same graph.
func Generate(opts Options) (*graph.Graph, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	n := opts.Drugs + opts.Proteins

	// 1. Communities and features
	community := make([]int, n)
	for i := range community {
		community[i] = rng.IntN(opts.Communities)
	}
	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: rng}
	centroids := mat.NewDense(opts.Communities, opts.FeatureDim, nil)
	for c := 0; c < opts.Communities; c++ {
		for j := 0; j < opts.FeatureDim; j++ {
			centroids.Set(c, j, normal.Rand())
		}
	}
	features := mat.NewDense(n, opts.FeatureDim, nil)
	for i := 0; i < n; i++ {
		row := features.RawRowView(i)
		copy(row, centroids.RawRowView(community[i]))
		for j := range row {
			row[j] += opts.Noise * normal.Rand()
		}
		// The first feature flags the node kind.
		if i < opts.Drugs {
			row[0] = 1
		} else {
			row[0] = -1
		}
	}

	b := &builder{
		opts: opts,
		rng:  rng,
		seen: graph.NewEdgeSet(nil, nil),
		g: &graph.Graph{
			NumNodes:  n,
			Features:  features,
			Relations: graph.DefaultRelations(),
		},
	}

	// 2. Drug -> protein relations, each mirrored by its reverse relation
	byCommunity := make([][]int32, opts.Communities)
	for p := opts.Drugs; p < n; p++ {
		byCommunity[community[p]] = append(byCommunity[community[p]], int32(p))
	}
	for ri, rel := range forwardRelations {
		shift := ri + 1
		for d := 0; d < opts.Drugs; d++ {
			want := (community[d] + shift) % opts.Communities
			for k := 0; k < opts.DegreePerDrug[ri]; k++ {
				p := b.pickProtein(byCommunity[want])
				b.addPair(int32(d), p, rel, int32(b.g.Relations[rel].Inverse))
			}
		}
	}

	// 3. Protein-protein interactions inside communities, stored in both directions
	for p := opts.Drugs; p < n; p++ {
		for k := 0; k < opts.InteractionsPerProtein; k++ {
			q := b.pickProtein(byCommunity[community[p]])
			if q == int32(p) {
				continue
			}
			b.addPair(int32(p), q, graph.RelInteractsWith, graph.RelInteractsWith)
		}
	}

	// 4. Masks
	m := b.g.NumEdges()
	b.g.TrainMask = make([]bool, m)
	b.g.ValMask = make([]bool, m)
	b.g.TestMask = make([]bool, m)
	for i, s := range b.split {
		switch s {
		case graph.SplitTrain:
			b.g.TrainMask[i] = true
		case graph.SplitVal:
			b.g.ValMask[i] = true
		case graph.SplitTest:
			b.g.TestMask[i] = true
		}
	}

	if err := b.g.Validate(); err != nil {
		return nil, err
	}
	return b.g, nil
}

// pickProtein returns a protein from preferred with probability Affinity,
// otherwise a uniformly random protein.
func (b *builder) pickProtein(preferred []int32) int32 {
	if len(preferred) > 0 && b.rng.Float64() < b.opts.Affinity {
		return preferred[b.rng.IntN(len(preferred))]
	}
	return int32(b.opts.Drugs + b.rng.IntN(b.opts.Proteins))
}

// addPair adds src->dst with rel and dst->src with reverse, both in the same
// split. Duplicate pairs are dropped.
func (b *builder) addPair(src, dst, rel, reverse int32) {
	if b.seen.Contains(src, dst) || b.seen.Contains(dst, src) {
		return
	}
	b.seen.Add(src, dst)
	b.seen.Add(dst, src)

	split := graph.SplitTrain
	switch u := b.rng.Float64(); {
	case u < b.opts.TestFraction:
		split = graph.SplitTest
	case u < b.opts.TestFraction+b.opts.ValFraction:
		split = graph.SplitVal
	}

	b.g.Src = append(b.g.Src, src, dst)
	b.g.Dst = append(b.g.Dst, dst, src)
	b.g.Types = append(b.g.Types, rel, reverse)
	b.split = append(b.split, split, split)
}
