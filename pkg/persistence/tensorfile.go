package persistence

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
)

// TensorFileWriter writes tensor records to a file.
//
// Records go to a temporary file next to the destination; Close flushes,
// fsyncs and renames it into place so readers never observe a half-written
// bundle or checkpoint.
type TensorFileWriter struct {
	file    *os.File
	buf     *bufio.Writer
	frames  *FrameWriter
	path    string
	tmpPath string
	closed  bool
}

// CreateTensorFile opens a writer that will produce the file at path.
func CreateTensorFile(path string) (*TensorFileWriter, error) {
	tmpPath := path + ".tmp"
	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create tensor file: %w", err)
	}
	buf := bufio.NewWriterSize(file, 1<<16)
	return &TensorFileWriter{
		file:    file,
		buf:     buf,
		frames:  NewFrameWriter(buf),
		path:    path,
		tmpPath: tmpPath,
	}, nil
}

// Write appends one tensor record.
func (w *TensorFileWriter) Write(t *Tensor) error {
	if w.closed {
		return errors.New("tensor file writer is closed")
	}
	payload, err := t.MarshalBinary()
	if err != nil {
		return err
	}
	if err := w.frames.WriteFrame(OpCodeTensor, payload); err != nil {
		return fmt.Errorf("failed to write tensor %s: %w", t.Name, err)
	}
	return nil
}

// Close flushes the buffer, syncs to disk and atomically replaces the
// destination file.
func (w *TensorFileWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.buf.Flush(); err != nil {
		_ = w.file.Close()
		return err
	}
	if err := w.file.Sync(); err != nil {
		_ = w.file.Close()
		return err
	}
	if err := w.file.Close(); err != nil {
		return err
	}
	if err := os.Rename(w.tmpPath, w.path); err != nil {
		return fmt.Errorf("failed to replace tensor file: %w", err)
	}
	return nil
}

// Abort discards everything written so far.
func (w *TensorFileWriter) Abort() {
	if w.closed {
		return
	}
	w.closed = true
	_ = w.file.Close()
	_ = os.Remove(w.tmpPath)
}

// WriteTensorFile writes all tensors to path in one go.
func WriteTensorFile(path string, tensors ...*Tensor) error {
	w, err := CreateTensorFile(path)
	if err != nil {
		return err
	}
	for _, t := range tensors {
		if err := w.Write(t); err != nil {
			w.Abort()
			return err
		}
	}
	return w.Close()
}

// ReadTensors decodes every tensor record from r until EOF. Frames with other
// opcodes are skipped. A repeated tensor name overrides the earlier record.
func ReadTensors(r io.Reader) (map[string]*Tensor, error) {
	tensors := make(map[string]*Tensor)
	var offset int64
	for {
		opCode, payload, n, err := ReadFrame(r)
		if err == io.EOF {
			return tensors, nil
		}
		if err != nil {
			return nil, fmt.Errorf("frame at offset %d: %w", offset, err)
		}
		offset += int64(n)
		if opCode != OpCodeTensor {
			continue
		}
		t := &Tensor{}
		if err := t.UnmarshalBinary(payload); err != nil {
			return nil, fmt.Errorf("frame at offset %d: %w", offset-int64(n), err)
		}
		tensors[t.Name] = t
	}
}

// ReadTensorFile opens path and decodes all tensors in it.
func ReadTensorFile(path string) (map[string]*Tensor, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open tensor file: %w", err)
	}
	defer file.Close()

	tensors, err := ReadTensors(bufio.NewReaderSize(file, 1<<16))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tensors, nil
}
