package graph

import (
	"fmt"
	"math"

	"github.com/sanonone/kektorlink/pkg/persistence"
	"gonum.org/v1/gonum/mat"
)

// Tensor names inside a graph bundle.
const (
	TensorFeatures        = "x"
	TensorEdgeIndex       = "edge_index"
	TensorEdgeAttr        = "edge_attr"
	TensorEdgeType        = "edge_type"
	TensorTrainMask       = "train_mask"
	TensorValMask         = "val_mask"
	TensorTestMask        = "test_mask"
	TensorRelations       = "relations"
	TensorRelationInverse = "relation_inverse"
)

// Load reads a graph bundle from path and validates it.
func Load(path string) (*Graph, error) {
	tensors, err := persistence.ReadTensorFile(path)
	if err != nil {
		return nil, err
	}
	return FromTensors(tensors)
}

// FromTensors assembles a graph from decoded bundle tensors.
func FromTensors(tensors map[string]*persistence.Tensor) (*Graph, error) {
	need := func(name string) (*persistence.Tensor, error) {
		t, ok := tensors[name]
		if !ok {
			return nil, fmt.Errorf("%w: bundle has no %q tensor", ErrInvalidGraph, name)
		}
		return t, nil
	}

	// 1. Node features
	x, err := need(TensorFeatures)
	if err != nil {
		return nil, err
	}
	if len(x.Shape) != 2 || len(x.Floats) == 0 {
		return nil, fmt.Errorf("%w: %s must be a non-empty float matrix, got %s%v", ErrInvalidGraph, TensorFeatures, x.DType, x.Shape)
	}
	g := &Graph{
		NumNodes: x.Shape[0],
		Features: mat.NewDense(x.Shape[0], x.Shape[1], x.Floats),
	}

	// 2. Edges
	ei, err := need(TensorEdgeIndex)
	if err != nil {
		return nil, err
	}
	if ei.DType != persistence.Int64 || len(ei.Shape) != 2 || ei.Shape[0] != 2 {
		return nil, fmt.Errorf("%w: %s must be int64 [2, M], got %s%v", ErrInvalidGraph, TensorEdgeIndex, ei.DType, ei.Shape)
	}
	m := ei.Shape[1]
	if g.Src, err = toInt32(ei.Ints[:m]); err != nil {
		return nil, err
	}
	if g.Dst, err = toInt32(ei.Ints[m:]); err != nil {
		return nil, err
	}

	et, err := need(TensorEdgeType)
	if err != nil {
		return nil, err
	}
	if et.DType != persistence.Int64 {
		return nil, fmt.Errorf("%w: %s must be int64, got %s", ErrInvalidGraph, TensorEdgeType, et.DType)
	}
	if g.Types, err = toInt32(et.Ints); err != nil {
		return nil, err
	}

	if ea, ok := tensors[TensorEdgeAttr]; ok {
		if len(ea.Shape) != 2 || len(ea.Floats) == 0 {
			return nil, fmt.Errorf("%w: %s must be a non-empty float matrix", ErrInvalidGraph, TensorEdgeAttr)
		}
		g.EdgeAttr = mat.NewDense(ea.Shape[0], ea.Shape[1], ea.Floats)
	}

	// 3. Masks
	for _, m := range []struct {
		name string
		dst  *[]bool
	}{
		{TensorTrainMask, &g.TrainMask},
		{TensorValMask, &g.ValMask},
		{TensorTestMask, &g.TestMask},
	} {
		t, err := need(m.name)
		if err != nil {
			return nil, err
		}
		if t.DType != persistence.Bool {
			return nil, fmt.Errorf("%w: %s must be bool, got %s", ErrInvalidGraph, m.name, t.DType)
		}
		*m.dst = t.Bools
	}

	// 4. Relation vocabulary
	maxType := int32(-1)
	for _, t := range g.Types {
		maxType = max(maxType, t)
	}
	var names []string
	if t, ok := tensors[TensorRelations]; ok {
		names = t.Strings
	}
	var inverse []int64
	if t, ok := tensors[TensorRelationInverse]; ok {
		inverse = t.Ints
	}
	if g.Relations, err = resolveRelations(names, inverse, int(maxType)+1); err != nil {
		return nil, err
	}

	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// Tensors converts the graph to bundle tensors. Features and edge attributes
// are stored with the given float precision.
func (g *Graph) Tensors(precision persistence.DType) []*persistence.Tensor {
	m := g.NumEdges()
	edgeIndex := make([]int64, 2*m)
	types := make([]int64, m)
	for i := 0; i < m; i++ {
		edgeIndex[i] = int64(g.Src[i])
		edgeIndex[m+i] = int64(g.Dst[i])
		types[i] = int64(g.Types[i])
	}
	names := make([]string, len(g.Relations))
	inverse := make([]int64, len(g.Relations))
	for i, r := range g.Relations {
		names[i] = r.Name
		inverse[i] = int64(r.Inverse)
	}

	r, c := g.Features.Dims()
	out := []*persistence.Tensor{
		persistence.NewFloatTensor(TensorFeatures, precision, denseData(g.Features), r, c),
		persistence.NewIntTensor(TensorEdgeIndex, edgeIndex, 2, m),
		persistence.NewIntTensor(TensorEdgeType, types, m),
		persistence.NewBoolTensor(TensorTrainMask, g.TrainMask),
		persistence.NewBoolTensor(TensorValMask, g.ValMask),
		persistence.NewBoolTensor(TensorTestMask, g.TestMask),
		persistence.NewStringTensor(TensorRelations, names),
		persistence.NewIntTensor(TensorRelationInverse, inverse, len(inverse)),
	}
	if g.EdgeAttr != nil {
		er, ec := g.EdgeAttr.Dims()
		out = append(out, persistence.NewFloatTensor(TensorEdgeAttr, precision, denseData(g.EdgeAttr), er, ec))
	}
	return out
}

// Save writes the graph as a bundle.
func (g *Graph) Save(path string, precision persistence.DType) error {
	return persistence.WriteTensorFile(path, g.Tensors(precision)...)
}

func toInt32(v []int64) ([]int32, error) {
	out := make([]int32, len(v))
	for i, x := range v {
		if x < math.MinInt32 || x > math.MaxInt32 {
			return nil, fmt.Errorf("%w: index %d does not fit in int32", ErrInvalidGraph, x)
		}
		out[i] = int32(x)
	}
	return out, nil
}

// denseData returns the row-major values of d, copying only when d is a view
// with a stride wider than its columns.
func denseData(d *mat.Dense) []float64 {
	raw := d.RawMatrix()
	if raw.Stride == raw.Cols {
		return raw.Data[:raw.Rows*raw.Cols]
	}
	out := make([]float64, 0, raw.Rows*raw.Cols)
	for i := 0; i < raw.Rows; i++ {
		out = append(out, raw.Data[i*raw.Stride:i*raw.Stride+raw.Cols]...)
	}
	return out
}
