// Package checkpoint saves and restores model parameters and exports node
// embeddings, both as framed tensor files.
package checkpoint

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sanonone/kektorlink/pkg/model"
	"github.com/sanonone/kektorlink/pkg/persistence"
	"gonum.org/v1/gonum/mat"
)

// ErrShapeMismatch is returned when a checkpoint does not fit the model it is
// loaded into.
var ErrShapeMismatch = errors.New("checkpoint does not match model")

const (
	metaTensor       = "meta"
	paramPrefix      = "param/"
	embeddingsTensor = "embeddings"
)

// Meta describes the run a checkpoint comes from.
type Meta struct {
	RunID     string
	Epoch     int
	Model     model.Config
	CreatedAt time.Time
}

func (m Meta) lines() []string {
	c := m.Model
	return []string{
		"run_id=" + m.RunID,
		"epoch=" + strconv.Itoa(m.Epoch),
		"created_at=" + m.CreatedAt.UTC().Format(time.RFC3339),
		"input_dim=" + strconv.Itoa(c.InputDim),
		"hidden_dim=" + strconv.Itoa(c.HiddenDim),
		"embedding_dim=" + strconv.Itoa(c.EmbeddingDim),
		"num_relations=" + strconv.Itoa(c.NumRelations),
		"num_bases=" + strconv.Itoa(c.NumBases),
		"dropout=" + strconv.FormatFloat(c.Dropout, 'g', -1, 64),
	}
}

func parseMeta(lines []string) (Meta, error) {
	var m Meta
	for _, line := range lines {
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return m, fmt.Errorf("malformed meta line %q", line)
		}
		var err error
		switch key {
		case "run_id":
			m.RunID = value
		case "epoch":
			m.Epoch, err = strconv.Atoi(value)
		case "created_at":
			m.CreatedAt, err = time.Parse(time.RFC3339, value)
		case "input_dim":
			m.Model.InputDim, err = strconv.Atoi(value)
		case "hidden_dim":
			m.Model.HiddenDim, err = strconv.Atoi(value)
		case "embedding_dim":
			m.Model.EmbeddingDim, err = strconv.Atoi(value)
		case "num_relations":
			m.Model.NumRelations, err = strconv.Atoi(value)
		case "num_bases":
			m.Model.NumBases, err = strconv.Atoi(value)
		case "dropout":
			m.Model.Dropout, err = strconv.ParseFloat(value, 64)
		}
		// Unknown keys are ignored so newer files stay readable.
		if err != nil {
			return m, fmt.Errorf("meta %s: %w", key, err)
		}
	}
	return m, nil
}

// Save writes every parameter of m as a float64 tensor plus a meta record.
// The file is replaced atomically.
func Save(path string, m *model.Model, meta Meta) error {
	meta.Model = m.Config
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now()
	}
	tensors := []*persistence.Tensor{persistence.NewStringTensor(metaTensor, meta.lines())}
	for _, p := range m.Params() {
		r, c := p.Dims()
		tensors = append(tensors, persistence.NewFloatTensor(paramPrefix+p.Name, persistence.Float64, p.Data(), r, c))
	}
	if err := persistence.WriteTensorFile(path, tensors...); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

func readMeta(tensors map[string]*persistence.Tensor) (Meta, error) {
	t, ok := tensors[metaTensor]
	if !ok || t.DType != persistence.String {
		return Meta{}, fmt.Errorf("%w: missing meta record", ErrShapeMismatch)
	}
	return parseMeta(t.Strings)
}

// ReadMeta returns the meta record of a checkpoint, e.g. to build a model of
// the right shape before Load.
func ReadMeta(path string) (Meta, error) {
	tensors, err := persistence.ReadTensorFile(path)
	if err != nil {
		return Meta{}, err
	}
	return readMeta(tensors)
}

// Load restores the parameters saved at path into m. Every parameter of m
// must be present with the same shape.
func Load(path string, m *model.Model) (Meta, error) {
	tensors, err := persistence.ReadTensorFile(path)
	if err != nil {
		return Meta{}, err
	}
	meta, err := readMeta(tensors)
	if err != nil {
		return meta, err
	}

	snap := make(map[string]*mat.Dense, len(m.Params()))
	for _, p := range m.Params() {
		t, ok := tensors[paramPrefix+p.Name]
		if !ok {
			return meta, fmt.Errorf("%w: no parameter %s", ErrShapeMismatch, p.Name)
		}
		r, c := p.Dims()
		if len(t.Shape) != 2 || t.Shape[0] != r || t.Shape[1] != c || t.Floats == nil {
			return meta, fmt.Errorf("%w: %s has shape %v, model wants [%d %d]", ErrShapeMismatch, p.Name, t.Shape, r, c)
		}
		snap[p.Name] = mat.NewDense(r, c, t.Floats)
	}
	if err := m.Restore(snap); err != nil {
		return meta, fmt.Errorf("%w: %w", ErrShapeMismatch, err)
	}
	return meta, nil
}

// ExportEmbeddings writes z (one row per node) in float32 or float16
// precision, together with the meta record of the producing run.
func ExportEmbeddings(path string, z *mat.Dense, precision persistence.DType, meta Meta) error {
	if precision != persistence.Float32 && precision != persistence.Float16 {
		return fmt.Errorf("embeddings are exported as float32 or float16, not %s", precision)
	}
	r, c := z.Dims()
	data := z.RawMatrix().Data
	if z.RawMatrix().Stride != c {
		data = mat.DenseCopyOf(z).RawMatrix().Data
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now()
	}
	err := persistence.WriteTensorFile(path,
		persistence.NewStringTensor(metaTensor, meta.lines()),
		persistence.NewFloatTensor(embeddingsTensor, precision, data, r, c),
	)
	if err != nil {
		return fmt.Errorf("export embeddings: %w", err)
	}
	return nil
}

// LoadEmbeddings reads a file written by ExportEmbeddings.
func LoadEmbeddings(path string) (*mat.Dense, error) {
	tensors, err := persistence.ReadTensorFile(path)
	if err != nil {
		return nil, err
	}
	t, ok := tensors[embeddingsTensor]
	if !ok || len(t.Shape) != 2 || t.Floats == nil {
		return nil, fmt.Errorf("%s holds no embedding matrix", path)
	}
	return mat.NewDense(t.Shape[0], t.Shape[1], t.Floats), nil
}
