// Package negative draws negative examples for link prediction: node pairs
// that are not edges of the graph.
package negative

import (
	"fmt"
	"math/rand/v2"

	"github.com/sanonone/kektorlink/pkg/graph"
)

// Strategy selects how negatives are drawn.
type Strategy string

const (
	// Uniform draws both endpoints uniformly at random.
	Uniform Strategy = "uniform"
	// Corrupt replaces either the head or the tail of a positive edge.
	Corrupt Strategy = "corrupt"
)

// ParseStrategy validates a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case Uniform, "":
		return Uniform, nil
	case Corrupt:
		return Corrupt, nil
	default:
		return "", fmt.Errorf("unknown negative sampling strategy %q", s)
	}
}

// maxRounds bounds the rejection loop. Each round draws the number of
// missing samples again; the result can hold fewer than requested on dense
// graphs.
const maxRounds = 8

// Sampler draws negatives against a fixed edge set.
type Sampler struct {
	rng      *rand.Rand
	numNodes int
	existing *graph.EdgeSet
	strategy Strategy
}

// New returns a sampler over numNodes nodes rejecting pairs in existing.
func New(rng *rand.Rand, numNodes int, existing *graph.EdgeSet, strategy Strategy) *Sampler {
	return &Sampler{rng: rng, numNodes: numNodes, existing: existing, strategy: strategy}
}

// Sample returns up to len(posSrc) negative pairs. Negatives are never self
// loops, never existing edges and never repeat. With the Corrupt strategy the
// i-th negative is derived from the i-th positive; with Uniform, posSrc and
// posDst only fix the count.
//
// The returned index slice gives, for each negative, the position of the
// positive it was drawn for, so callers can copy relation types across.
func (s *Sampler) Sample(posSrc, posDst []int32) (src, dst []int32, origin []int) {
	k := len(posSrc)
	if k == 0 || s.numNodes < 2 {
		return nil, nil, nil
	}
	src = make([]int32, 0, k)
	dst = make([]int32, 0, k)
	origin = make([]int, 0, k)
	chosen := graph.NewEdgeSet(nil, nil)

	// pending holds the positions still waiting for a negative.
	pending := make([]int, k)
	for i := range pending {
		pending[i] = i
	}
	for round := 0; round < maxRounds && len(pending) > 0; round++ {
		next := pending[:0]
		for _, i := range pending {
			a, b := s.draw(posSrc[i], posDst[i])
			if a == b || s.existing.Contains(a, b) || chosen.Contains(a, b) {
				next = append(next, i)
				continue
			}
			chosen.Add(a, b)
			src = append(src, a)
			dst = append(dst, b)
			origin = append(origin, i)
		}
		pending = next
	}
	return src, dst, origin
}

func (s *Sampler) draw(ps, pd int32) (int32, int32) {
	if s.strategy == Corrupt {
		r := int32(s.rng.IntN(s.numNodes))
		if s.rng.IntN(2) == 0 {
			return r, pd
		}
		return ps, r
	}
	return int32(s.rng.IntN(s.numNodes)), int32(s.rng.IntN(s.numNodes))
}
