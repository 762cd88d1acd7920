package protocol

import (
	"bytes"
	"encoding/binary"
	"math"
	"sync"

	"github.com/google/uuid"
)

// Writer provides methods for writing packet payload data.
// Uses Little-Endian byte order for all multi-byte values.
type Writer struct {
	buf *bytes.Buffer
}

// writerPool reduces allocations by reusing Writers across encodes.
var writerPool = sync.Pool{
	New: func() any {
		return &Writer{
			buf: bytes.NewBuffer(make([]byte, 0, 512)),
		}
	},
}

// GetWriter returns a Writer from the pool (already reset).
func GetWriter() *Writer {
	w := writerPool.Get().(*Writer)
	w.Reset()
	return w
}

// Release returns the Writer to the pool for reuse.
// The Writer must not be used after calling Release.
func (w *Writer) Release() {
	writerPool.Put(w)
}

// NewWriter creates a new payload writer with the given initial capacity.
func NewWriter(capacity int) *Writer {
	return &Writer{
		buf: bytes.NewBuffer(make([]byte, 0, capacity)),
	}
}

// WriteByte writes a single byte.
func (w *Writer) WriteByte(b byte) error {
	return w.buf.WriteByte(b)
}

// WriteBool writes a bool as a single byte (1 = true, 0 = false).
func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf.WriteByte(1)
	} else {
		w.buf.WriteByte(0)
	}
}

// WriteUint16 writes a uint16 (2 bytes, LE).
func (w *Writer) WriteUint16(val uint16) {
	w.buf.WriteByte(byte(val))
	w.buf.WriteByte(byte(val >> 8))
}

// WriteInt16 writes an int16 (2 bytes, LE).
func (w *Writer) WriteInt16(val int16) {
	w.WriteUint16(uint16(val))
}

// WriteUint32 writes a uint32 (4 bytes, LE).
func (w *Writer) WriteUint32(val uint32) {
	w.buf.WriteByte(byte(val))
	w.buf.WriteByte(byte(val >> 8))
	w.buf.WriteByte(byte(val >> 16))
	w.buf.WriteByte(byte(val >> 24))
}

// WriteInt32 writes an int32 (4 bytes, LE).
func (w *Writer) WriteInt32(val int32) {
	w.WriteUint32(uint32(val))
}

// WriteUint64 writes a uint64 (8 bytes, LE).
func (w *Writer) WriteUint64(val uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], val)
	w.buf.Write(tmp[:])
}

// WriteInt64 writes an int64 (8 bytes, LE).
func (w *Writer) WriteInt64(val int64) {
	w.WriteUint64(uint64(val))
}

// WriteFloat32 writes a float32 (4 bytes, LE, IEEE 754).
func (w *Writer) WriteFloat32(val float32) {
	w.WriteUint32(math.Float32bits(val))
}

// WriteFloat64 writes a float64 (8 bytes, LE, IEEE 754).
func (w *Writer) WriteFloat64(val float64) {
	w.WriteUint64(math.Float64bits(val))
}

// WriteString writes a uint16 length prefix followed by the UTF-8 bytes.
// Strings longer than 65535 bytes are truncated at the limit.
func (w *Writer) WriteString(s string) {
	if len(s) > math.MaxUint16 {
		s = s[:math.MaxUint16]
	}
	w.WriteUint16(uint16(len(s)))
	w.buf.WriteString(s)
}

// WriteUUID writes the 16 raw bytes of a UUID.
func (w *Writer) WriteUUID(id uuid.UUID) {
	w.buf.Write(id[:])
}

// WriteBytes writes raw bytes without a length prefix.
func (w *Writer) WriteBytes(data []byte) {
	w.buf.Write(data)
}

// Bytes returns the accumulated payload data.
// The slice is only valid until the next write or Reset.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// Len returns the current length of the payload.
func (w *Writer) Len() int {
	return w.buf.Len()
}

// Reset clears the buffer for reuse.
func (w *Writer) Reset() {
	w.buf.Reset()
}
