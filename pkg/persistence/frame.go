package persistence

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"
)

// Constants for the binary frame protocol shared by graph bundles and checkpoints.
const (
	// MagicByte is the marker used to identify the start of a valid frame.
	// It helps in scanning for recovery if the file is heavily corrupted.
	MagicByte = 0xA5

	// HeaderSize is the fixed size of the frame metadata:
	// 1 byte (Magic) + 1 byte (OpCode) + 4 bytes (Length) + 4 bytes (CRC32) = 10 bytes.
	HeaderSize = 10

	// MaxFrameSize bounds a single payload. Larger length fields are treated
	// as corruption.
	MaxFrameSize = 1 << 30

	// OpCodeTensor marks a frame whose payload is an encoded tensor record.
	OpCodeTensor = 0x02
)

var (
	// ErrInvalidMagic indicates the file stream lost synchronization or is not a bundle.
	ErrInvalidMagic = errors.New("invalid magic byte")
	// ErrChecksumMismatch indicates data corruption within the frame payload.
	ErrChecksumMismatch = errors.New("crc32 checksum mismatch")
	// ErrIncompleteFrame indicates the file ended abruptly (e.g., killed during write).
	ErrIncompleteFrame = errors.New("incomplete frame")
	// ErrFrameTooLarge indicates a length field above MaxFrameSize.
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")
)

// FrameWriter handles the writing of binary frames to an io.Writer.
type FrameWriter struct {
	w      io.Writer
	header [HeaderSize]byte
}

// NewFrameWriter creates a writer that wraps an underlying io.Writer.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w}
}

// WriteFrame encodes the payload into a binary frame and writes it.
// Frame Format: [Magic(1)][OpCode(1)][Length(4)][CRC(4)][Payload(N)]
func (fw *FrameWriter) WriteFrame(opCode byte, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return ErrFrameTooLarge
	}
	header := fw.header[:]

	header[0] = MagicByte
	header[1] = opCode
	binary.LittleEndian.PutUint32(header[2:6], uint32(len(payload)))
	binary.LittleEndian.PutUint32(header[6:10], crc32.ChecksumIEEE(payload))

	// Header and payload are written sequentially; callers wrap the file in a
	// bufio.Writer so both end up in the same syscall.
	if _, err := fw.w.Write(header); err != nil {
		return err
	}
	if _, err := fw.w.Write(payload); err != nil {
		return err
	}
	return nil
}

// ReadFrame reads the next frame from the reader.
// It validates the Magic Byte and the CRC32 Checksum and returns the opcode,
// the payload and the total bytes consumed (header + payload).
func ReadFrame(r io.Reader) (byte, []byte, int, error) {
	header := make([]byte, HeaderSize)

	// 1. Read Header
	if _, err := io.ReadFull(r, header); err != nil {
		// EOF exactly at the start of a frame is a clean end of stream.
		if err == io.EOF {
			return 0, nil, 0, io.EOF
		}
		return 0, nil, 0, ErrIncompleteFrame
	}

	// 2. Validate Magic Byte
	if header[0] != MagicByte {
		return 0, nil, HeaderSize, ErrInvalidMagic
	}

	opCode := header[1]
	length := binary.LittleEndian.Uint32(header[2:6])
	expectedCRC := binary.LittleEndian.Uint32(header[6:10])

	if length > MaxFrameSize {
		return 0, nil, HeaderSize, ErrFrameTooLarge
	}

	// 3. Read Payload. The buffer grows with the bytes actually present, so a
	// corrupted length on a short stream cannot force a large allocation.
	var buf bytes.Buffer
	if _, err := io.CopyN(&buf, r, int64(length)); err != nil {
		return 0, nil, HeaderSize, ErrIncompleteFrame
	}
	payload := buf.Bytes()

	// 4. Verify Checksum
	if crc32.ChecksumIEEE(payload) != expectedCRC {
		return 0, nil, HeaderSize + int(length), ErrChecksumMismatch
	}

	return opCode, payload, HeaderSize + int(length), nil
}
