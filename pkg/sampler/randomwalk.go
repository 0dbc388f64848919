// Package sampler draws mini-batch subgraphs from a graph for training.
//
// RandomWalk follows the GraphSAINT random-walk scheme: pick root nodes
// uniformly, walk a fixed number of steps along outgoing edges from each
// root, and take the subgraph induced by every visited node.
package sampler

import (
	"errors"
	"fmt"
	"iter"
	"math/rand/v2"

	"github.com/sanonone/kektorlink/pkg/graph"
)

// ErrInvalidConfig is returned for non-positive sampler parameters.
var ErrInvalidConfig = errors.New("invalid sampler config")

// Config controls the size of sampled subgraphs.
type Config struct {
	// BatchSize is the number of walk roots per batch.
	BatchSize int
	// WalkLength is the number of steps taken from each root.
	WalkLength int
	// NumSteps is the number of batches per epoch.
	NumSteps int
}

// Validate checks the config.
func (c Config) Validate() error {
	if c.BatchSize <= 0 || c.WalkLength < 0 || c.NumSteps <= 0 {
		return fmt.Errorf("%w: batch_size=%d walk_length=%d num_steps=%d",
			ErrInvalidConfig, c.BatchSize, c.WalkLength, c.NumSteps)
	}
	return nil
}

// RandomWalk samples induced subgraphs. It is not safe for concurrent use.
type RandomWalk struct {
	g   *graph.Graph
	cfg Config
	rng *rand.Rand

	nodes []int32
}

// NewRandomWalk creates a sampler over g drawing randomness from rng.
func NewRandomWalk(g *graph.Graph, cfg Config, rng *rand.Rand) (*RandomWalk, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if g.NumNodes == 0 {
		return nil, fmt.Errorf("%w: empty graph", ErrInvalidConfig)
	}
	return &RandomWalk{
		g:     g,
		cfg:   cfg,
		rng:   rng,
		nodes: make([]int32, 0, cfg.BatchSize*(cfg.WalkLength+1)),
	}, nil
}

// Walk returns the nodes visited by a single walk from root, root included.
// A walk stops early at a node with no outgoing edges.
func (s *RandomWalk) Walk(root int32, dst []int32) []int32 {
	adj := s.g.Adjacency()
	dst = append(dst, root)
	cur := root
	for step := 0; step < s.cfg.WalkLength; step++ {
		out := adj.Out(cur)
		if len(out) == 0 {
			break
		}
		cur = s.g.Dst[out[s.rng.IntN(len(out))]]
		dst = append(dst, cur)
	}
	return dst
}

// Sample draws one batch subgraph.
func (s *RandomWalk) Sample() (*graph.Subgraph, error) {
	s.nodes = s.nodes[:0]
	for i := 0; i < s.cfg.BatchSize; i++ {
		root := int32(s.rng.IntN(s.g.NumNodes))
		s.nodes = s.Walk(root, s.nodes)
	}
	return s.g.Induce(s.nodes)
}

// Batches yields NumSteps sampled batches. A sampling error is yielded once
// and ends the sequence.
func (s *RandomWalk) Batches() iter.Seq2[*graph.Subgraph, error] {
	return func(yield func(*graph.Subgraph, error) bool) {
		for i := 0; i < s.cfg.NumSteps; i++ {
			b, err := s.Sample()
			if err != nil {
				yield(nil, fmt.Errorf("batch %d: %w", i, err))
				return
			}
			if !yield(b, nil) {
				return
			}
		}
	}
}
