package persistence

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/x448/float16"
)

// DType identifies the on-disk element type of a tensor record.
type DType uint8

const (
	Float32 DType = iota + 1
	Float16
	Float64
	Int64
	Bool
	String
)

// ErrInvalidTensor is returned when a tensor payload cannot be decoded or a
// tensor is inconsistent with its declared shape.
var ErrInvalidTensor = errors.New("invalid tensor record")

func (d DType) String() string {
	switch d {
	case Float32:
		return "float32"
	case Float16:
		return "float16"
	case Float64:
		return "float64"
	case Int64:
		return "int64"
	case Bool:
		return "bool"
	case String:
		return "string"
	default:
		return fmt.Sprintf("dtype(%d)", uint8(d))
	}
}

// ParseFloatDType maps a precision name from config to a floating point dtype.
func ParseFloatDType(name string) (DType, error) {
	switch name {
	case "float32", "":
		return Float32, nil
	case "float16":
		return Float16, nil
	case "float64":
		return Float64, nil
	default:
		return 0, fmt.Errorf("unsupported float precision %q", name)
	}
}

func (d DType) elemSize() int {
	switch d {
	case Float32:
		return 4
	case Float16:
		return 2
	case Float64, Int64:
		return 8
	case Bool:
		return 1
	default:
		return 0
	}
}

func (d DType) isFloat() bool {
	return d == Float32 || d == Float16 || d == Float64
}

// Tensor is a named, shaped block of values.
//
// Floating point tensors always hold their values in Floats regardless of the
// storage DType; the DType only controls the encoding on disk. Integer
// tensors use Ints, boolean masks use Bools and string lists use Strings.
type Tensor struct {
	Name    string
	DType   DType
	Shape   []int
	Floats  []float64
	Ints    []int64
	Bools   []bool
	Strings []string
}

// NewFloatTensor builds a floating point tensor stored with the given dtype.
func NewFloatTensor(name string, dtype DType, data []float64, shape ...int) *Tensor {
	return &Tensor{Name: name, DType: dtype, Shape: shape, Floats: data}
}

// NewIntTensor builds an int64 tensor.
func NewIntTensor(name string, data []int64, shape ...int) *Tensor {
	return &Tensor{Name: name, DType: Int64, Shape: shape, Ints: data}
}

// NewBoolTensor builds a one dimensional mask tensor.
func NewBoolTensor(name string, data []bool) *Tensor {
	return &Tensor{Name: name, DType: Bool, Shape: []int{len(data)}, Bools: data}
}

// NewStringTensor builds a one dimensional string list tensor.
func NewStringTensor(name string, data []string) *Tensor {
	return &Tensor{Name: name, DType: String, Shape: []int{len(data)}, Strings: data}
}

// NumElements returns the product of the tensor dimensions.
func (t *Tensor) NumElements() int {
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// Validate checks that the stored data matches the declared shape.
func (t *Tensor) Validate() error {
	if t.Name == "" || len(t.Name) > math.MaxUint16 {
		return fmt.Errorf("%w: bad name length %d", ErrInvalidTensor, len(t.Name))
	}
	if len(t.Shape) > math.MaxUint8 {
		return fmt.Errorf("%w: %s has rank %d", ErrInvalidTensor, t.Name, len(t.Shape))
	}
	for _, d := range t.Shape {
		if d < 0 || d > math.MaxUint32 {
			return fmt.Errorf("%w: %s has dimension %d", ErrInvalidTensor, t.Name, d)
		}
	}
	n := t.NumElements()
	var got int
	switch {
	case t.DType.isFloat():
		got = len(t.Floats)
	case t.DType == Int64:
		got = len(t.Ints)
	case t.DType == Bool:
		got = len(t.Bools)
	case t.DType == String:
		got = len(t.Strings)
		for _, s := range t.Strings {
			if strings.Contains(s, "\n") {
				return fmt.Errorf("%w: %s contains a newline in a string element", ErrInvalidTensor, t.Name)
			}
		}
	default:
		return fmt.Errorf("%w: %s has unknown dtype %d", ErrInvalidTensor, t.Name, t.DType)
	}
	if got != n {
		return fmt.Errorf("%w: %s shape %v wants %d elements, has %d", ErrInvalidTensor, t.Name, t.Shape, n, got)
	}
	return nil
}

// MarshalBinary encodes the tensor record payload:
// [NameLen(2)][Name][DType(1)][Rank(1)][Dims(4*Rank)][Data]
func (t *Tensor) MarshalBinary() ([]byte, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	var data []byte
	if t.DType == String {
		data = []byte(strings.Join(t.Strings, "\n"))
	} else {
		data = make([]byte, t.NumElements()*t.DType.elemSize())
		t.encodeData(data)
	}

	buf := make([]byte, 0, 2+len(t.Name)+2+4*len(t.Shape)+len(data))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(t.Name)))
	buf = append(buf, t.Name...)
	buf = append(buf, byte(t.DType), byte(len(t.Shape)))
	for _, d := range t.Shape {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(d))
	}
	return append(buf, data...), nil
}

func (t *Tensor) encodeData(dst []byte) {
	switch t.DType {
	case Float32:
		for i, v := range t.Floats {
			binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(float32(v)))
		}
	case Float16:
		for i, v := range t.Floats {
			binary.LittleEndian.PutUint16(dst[i*2:], float16.Fromfloat32(float32(v)).Bits())
		}
	case Float64:
		for i, v := range t.Floats {
			binary.LittleEndian.PutUint64(dst[i*8:], math.Float64bits(v))
		}
	case Int64:
		for i, v := range t.Ints {
			binary.LittleEndian.PutUint64(dst[i*8:], uint64(v))
		}
	case Bool:
		for i, v := range t.Bools {
			if v {
				dst[i] = 1
			}
		}
	}
}

// UnmarshalBinary decodes a payload written by MarshalBinary.
func (t *Tensor) UnmarshalBinary(payload []byte) error {
	if len(payload) < 2 {
		return fmt.Errorf("%w: payload too short", ErrInvalidTensor)
	}
	nameLen := int(binary.LittleEndian.Uint16(payload))
	pos := 2
	if len(payload) < pos+nameLen+2 {
		return fmt.Errorf("%w: truncated header", ErrInvalidTensor)
	}
	t.Name = string(payload[pos : pos+nameLen])
	pos += nameLen
	t.DType = DType(payload[pos])
	rank := int(payload[pos+1])
	pos += 2
	if len(payload) < pos+4*rank {
		return fmt.Errorf("%w: %s truncated shape", ErrInvalidTensor, t.Name)
	}
	t.Shape = make([]int, rank)
	for i := range t.Shape {
		t.Shape[i] = int(binary.LittleEndian.Uint32(payload[pos:]))
		pos += 4
	}
	data := payload[pos:]
	n := t.NumElements()

	if t.DType == String {
		t.Strings = nil
		if n > 0 {
			t.Strings = strings.Split(string(data), "\n")
		}
		if len(t.Strings) != n || (n == 0 && len(data) > 0) {
			return fmt.Errorf("%w: %s declares %d strings, has %d", ErrInvalidTensor, t.Name, n, len(t.Strings))
		}
		return nil
	}

	size := t.DType.elemSize()
	if size == 0 {
		return fmt.Errorf("%w: %s has unknown dtype %d", ErrInvalidTensor, t.Name, t.DType)
	}
	if len(data) != n*size {
		return fmt.Errorf("%w: %s wants %d data bytes, has %d", ErrInvalidTensor, t.Name, n*size, len(data))
	}

	switch t.DType {
	case Float32:
		t.Floats = make([]float64, n)
		for i := range t.Floats {
			t.Floats[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:])))
		}
	case Float16:
		t.Floats = make([]float64, n)
		for i := range t.Floats {
			t.Floats[i] = float64(float16.Frombits(binary.LittleEndian.Uint16(data[i*2:])).Float32())
		}
	case Float64:
		t.Floats = make([]float64, n)
		for i := range t.Floats {
			t.Floats[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
		}
	case Int64:
		t.Ints = make([]int64, n)
		for i := range t.Ints {
			t.Ints[i] = int64(binary.LittleEndian.Uint64(data[i*8:]))
		}
	case Bool:
		t.Bools = make([]bool, n)
		for i := range t.Bools {
			t.Bools[i] = data[i] != 0
		}
	}
	return nil
}
