package graph

import "fmt"

// Relation is one edge category of the knowledge graph.
type Relation struct {
	Name string
	// Inverse is the index of the reverse relation, or -1 when the relation
	// is symmetric or has no reverse counterpart.
	Inverse int
}

// Default relation vocabulary of the drug/protein knowledge graph. Forward
// relations point from a drug to a protein; each has a rev_ counterpart.
// Protein-protein interactions are symmetric and carry no reverse type.
const (
	RelTargets = iota
	RelRevTargets
	RelMetabolizedBy
	RelRevMetabolizedBy
	RelCarriedBy
	RelRevCarriedBy
	RelTransportedBy
	RelRevTransportedBy
	RelInteractsWith
)

// DefaultRelations returns a fresh copy of the default vocabulary.
func DefaultRelations() []Relation {
	return []Relation{
		{Name: "targets", Inverse: RelRevTargets},
		{Name: "rev_targets", Inverse: RelTargets},
		{Name: "metabolized_by", Inverse: RelRevMetabolizedBy},
		{Name: "rev_metabolized_by", Inverse: RelMetabolizedBy},
		{Name: "carried_by", Inverse: RelRevCarriedBy},
		{Name: "rev_carried_by", Inverse: RelCarriedBy},
		{Name: "transported_by", Inverse: RelRevTransportedBy},
		{Name: "rev_transported_by", Inverse: RelTransportedBy},
		{Name: "interacts_with", Inverse: -1},
	}
}

// resolveRelations builds the vocabulary for a graph with numTypes relation
// ids. Explicit names win; without names the default vocabulary is used, so
// type ids past it need a relations tensor.
func resolveRelations(names []string, inverse []int64, numTypes int) ([]Relation, error) {
	if len(inverse) > 0 && len(inverse) != len(names) {
		return nil, fmt.Errorf("%w: %d relation names but %d inverse entries", ErrInvalidGraph, len(names), len(inverse))
	}

	var rels []Relation
	if len(names) > 0 {
		rels = make([]Relation, len(names))
		for i, name := range names {
			rels[i] = Relation{Name: name, Inverse: -1}
			if len(inverse) > 0 {
				rels[i].Inverse = int(inverse[i])
			}
		}
	} else {
		rels = DefaultRelations()
	}

	if numTypes > len(rels) {
		return nil, fmt.Errorf("%w: edge type %d outside a vocabulary of %d relations",
			ErrInvalidGraph, numTypes-1, len(rels))
	}

	for i, r := range rels {
		if r.Inverse < -1 || r.Inverse >= len(rels) {
			return nil, fmt.Errorf("%w: relation %q has inverse %d out of range", ErrInvalidGraph, r.Name, r.Inverse)
		}
		if r.Name == "" {
			return nil, fmt.Errorf("%w: relation %d has an empty name", ErrInvalidGraph, i)
		}
	}
	return rels, nil
}
