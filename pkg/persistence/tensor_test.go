package persistence

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	fw := NewFrameWriter(&buf)
	require.NoError(t, fw.WriteFrame(OpCodeTensor, []byte("hello")))
	require.NoError(t, fw.WriteFrame(0x07, nil))

	op, payload, n, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, byte(OpCodeTensor), op)
	assert.Equal(t, []byte("hello"), payload)
	assert.Equal(t, HeaderSize+5, n)

	op, payload, _, err = ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, byte(0x07), op)
	assert.Empty(t, payload)

	_, _, _, err = ReadFrame(&buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestFrameCorruption(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewFrameWriter(&buf).WriteFrame(OpCodeTensor, []byte("payload")))
	raw := buf.Bytes()

	t.Run("Checksum", func(t *testing.T) {
		corrupt := append([]byte(nil), raw...)
		corrupt[len(corrupt)-1] ^= 0xFF
		_, _, _, err := ReadFrame(bytes.NewReader(corrupt))
		assert.ErrorIs(t, err, ErrChecksumMismatch)
	})

	t.Run("Magic", func(t *testing.T) {
		corrupt := append([]byte(nil), raw...)
		corrupt[0] = 0x00
		_, _, _, err := ReadFrame(bytes.NewReader(corrupt))
		assert.ErrorIs(t, err, ErrInvalidMagic)
	})

	t.Run("TruncatedPayload", func(t *testing.T) {
		_, _, _, err := ReadFrame(bytes.NewReader(raw[:len(raw)-2]))
		assert.ErrorIs(t, err, ErrIncompleteFrame)
	})

	t.Run("OversizedLength", func(t *testing.T) {
		corrupt := append([]byte(nil), raw...)
		binary.LittleEndian.PutUint32(corrupt[2:6], MaxFrameSize+1)
		_, _, _, err := ReadFrame(bytes.NewReader(corrupt))
		assert.ErrorIs(t, err, ErrFrameTooLarge)
	})

	t.Run("LengthPastEndOfStream", func(t *testing.T) {
		corrupt := append([]byte(nil), raw...)
		binary.LittleEndian.PutUint32(corrupt[2:6], MaxFrameSize)
		_, _, _, err := ReadFrame(bytes.NewReader(corrupt))
		assert.ErrorIs(t, err, ErrIncompleteFrame)
	})

	t.Run("TruncatedHeader", func(t *testing.T) {
		_, _, _, err := ReadFrame(bytes.NewReader(raw[:4]))
		assert.ErrorIs(t, err, ErrIncompleteFrame)
	})
}

func TestTensorEncoding(t *testing.T) {
	tests := []struct {
		name   string
		tensor *Tensor
		check  func(t *testing.T, got *Tensor)
	}{
		{
			name:   "Float32",
			tensor: NewFloatTensor("x", Float32, []float64{1, -2.5, 3.25, 0}, 2, 2),
			check: func(t *testing.T, got *Tensor) {
				assert.Equal(t, []float64{1, -2.5, 3.25, 0}, got.Floats)
			},
		},
		{
			name:   "Float16",
			tensor: NewFloatTensor("h", Float16, []float64{0.5, 1.5, -4}, 3),
			check: func(t *testing.T, got *Tensor) {
				assert.InDeltaSlice(t, []float64{0.5, 1.5, -4}, got.Floats, 1e-3)
			},
		},
		{
			name:   "Float64",
			tensor: NewFloatTensor("w", Float64, []float64{1e-300, 7}, 1, 2),
			check: func(t *testing.T, got *Tensor) {
				assert.Equal(t, []float64{1e-300, 7}, got.Floats)
			},
		},
		{
			name:   "Int64",
			tensor: NewIntTensor("edge_index", []int64{0, 1, 2, -1, 5, 6}, 2, 3),
			check: func(t *testing.T, got *Tensor) {
				assert.Equal(t, []int64{0, 1, 2, -1, 5, 6}, got.Ints)
				assert.Equal(t, []int{2, 3}, got.Shape)
			},
		},
		{
			name:   "Bool",
			tensor: NewBoolTensor("train_mask", []bool{true, false, true}),
			check: func(t *testing.T, got *Tensor) {
				assert.Equal(t, []bool{true, false, true}, got.Bools)
			},
		},
		{
			name:   "Strings",
			tensor: NewStringTensor("relations", []string{"targets", "", "interacts_with"}),
			check: func(t *testing.T, got *Tensor) {
				assert.Equal(t, []string{"targets", "", "interacts_with"}, got.Strings)
			},
		},
		{
			name:   "EmptyStrings",
			tensor: NewStringTensor("relations", nil),
			check: func(t *testing.T, got *Tensor) {
				assert.Empty(t, got.Strings)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			payload, err := tc.tensor.MarshalBinary()
			require.NoError(t, err)

			got := &Tensor{}
			require.NoError(t, got.UnmarshalBinary(payload))
			assert.Equal(t, tc.tensor.Name, got.Name)
			assert.Equal(t, tc.tensor.DType, got.DType)
			tc.check(t, got)
		})
	}
}

func TestTensorValidate(t *testing.T) {
	bad := NewFloatTensor("x", Float32, []float64{1, 2, 3}, 2, 2)
	_, err := bad.MarshalBinary()
	assert.ErrorIs(t, err, ErrInvalidTensor)

	nl := NewStringTensor("relations", []string{"a\nb"})
	assert.ErrorIs(t, nl.Validate(), ErrInvalidTensor)

	unknown := &Tensor{Name: "u", DType: DType(99)}
	assert.ErrorIs(t, unknown.Validate(), ErrInvalidTensor)
}

func TestTensorFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.klg")

	err := WriteTensorFile(path,
		NewFloatTensor("x", Float16, []float64{1, 2, 3, 4}, 2, 2),
		NewIntTensor("edge_type", []int64{0, 8}, 2),
	)
	require.NoError(t, err)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temporary file must be renamed away")

	tensors, err := ReadTensorFile(path)
	require.NoError(t, err)
	require.Contains(t, tensors, "x")
	require.Contains(t, tensors, "edge_type")
	assert.Equal(t, []float64{1, 2, 3, 4}, tensors["x"].Floats)
	assert.Equal(t, []int64{0, 8}, tensors["edge_type"].Ints)
}

func TestReadTensorsSkipsUnknownFrames(t *testing.T) {
	var buf bytes.Buffer
	fw := NewFrameWriter(&buf)
	require.NoError(t, fw.WriteFrame(0x01, []byte("SET a b")))
	payload, err := NewIntTensor("edge_type", []int64{3}, 1).MarshalBinary()
	require.NoError(t, err)
	require.NoError(t, fw.WriteFrame(OpCodeTensor, payload))

	tensors, err := ReadTensors(&buf)
	require.NoError(t, err)
	assert.Len(t, tensors, 1)
	assert.Equal(t, []int64{3}, tensors["edge_type"].Ints)
}

func TestReadTensorsDetectsTruncation(t *testing.T) {
	var buf bytes.Buffer
	payload, err := NewIntTensor("edge_type", []int64{1, 2, 3}, 3).MarshalBinary()
	require.NoError(t, err)
	require.NoError(t, NewFrameWriter(&buf).WriteFrame(OpCodeTensor, payload))

	raw := buf.Bytes()
	_, err = ReadTensors(bytes.NewReader(raw[:len(raw)-3]))
	assert.ErrorIs(t, err, ErrIncompleteFrame)
}

func TestAbortRemovesTemporaryFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ckpt.klg")
	w, err := CreateTensorFile(path)
	require.NoError(t, err)
	require.NoError(t, w.Write(NewIntTensor("a", []int64{1}, 1)))
	w.Abort()

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
