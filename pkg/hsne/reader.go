package hsne

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// maxChunk bounds how many vector elements are buffered per read, so a
// corrupt length prefix surfaces as truncation instead of a huge allocation.
const maxChunk = 1 << 16

// Reader decodes the primitive fields of an HSNE artifact. Every decode
// advances the offset by exactly the number of bytes consumed.
type Reader struct {
	r     io.Reader
	order binary.ByteOrder
	pos   int64
	buf   [8]byte
}

// NewReader returns a Reader over r. A nil order means little-endian.
func NewReader(r io.Reader, order binary.ByteOrder) *Reader {
	if order == nil {
		order = binary.LittleEndian
	}
	return &Reader{r: r, order: order}
}

// Offset returns the number of bytes consumed so far.
func (r *Reader) Offset() int64 { return r.pos }

func (r *Reader) fill(p []byte) error {
	start := r.pos
	n, err := io.ReadFull(r.r, p)
	r.pos += int64(n)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: wanted %d bytes at offset %d, got %d", ErrTruncatedInput, len(p), start, n)
		}
		return fmt.Errorf("read at offset %d: %w", start, err)
	}
	return nil
}

// ReadInt32 reads one 4-byte signed integer.
func (r *Reader) ReadInt32() (int32, error) {
	if err := r.fill(r.buf[:4]); err != nil {
		return 0, err
	}
	return int32(r.order.Uint32(r.buf[:4])), nil
}

// ReadFloat32 reads one 4-byte IEEE-754 float.
func (r *Reader) ReadFloat32() (float32, error) {
	if err := r.fill(r.buf[:4]); err != nil {
		return 0, err
	}
	return math.Float32frombits(r.order.Uint32(r.buf[:4])), nil
}

// readLength reads an int32 length prefix and rejects negative values.
func (r *Reader) readLength(what string) (int, error) {
	n, err := r.ReadInt32()
	if err != nil {
		return 0, fmt.Errorf("%s length: %w", what, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: negative %s length %d at offset %d", ErrFormat, what, n, r.pos-4)
	}
	return int(n), nil
}

// ReadIntVector reads a length-prefixed vector of int32 values.
func (r *Reader) ReadIntVector() ([]int32, error) {
	return readVector(r, "int vector", func(b []byte) int32 {
		return int32(r.order.Uint32(b))
	})
}

// ReadFloatVector reads a length-prefixed vector of float32 values.
func (r *Reader) ReadFloatVector() ([]float32, error) {
	return readVector(r, "float vector", func(b []byte) float32 {
		return math.Float32frombits(r.order.Uint32(b))
	})
}

func readVector[T int32 | float32](r *Reader, what string, decode func([]byte) T) ([]T, error) {
	k, err := r.readLength(what)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, min(k, maxChunk))
	chunk := make([]byte, 4*min(k, maxChunk))
	for remaining := k; remaining > 0; {
		m := min(remaining, maxChunk)
		p := chunk[:4*m]
		if err := r.fill(p); err != nil {
			return nil, fmt.Errorf("%s of length %d: %w", what, k, err)
		}
		for i := 0; i < m; i++ {
			out = append(out, decode(p[4*i:4*i+4]))
		}
		remaining -= m
	}
	return out, nil
}

// ReadSparseMatrix reads a row-major sparse matrix: int32 row count, then
// for every row an int32 entry count followed by (int32 col, float32 weight)
// pairs. The result is square. Column indices are not checked here.
func (r *Reader) ReadSparseMatrix() (*SparseMatrix, error) {
	n, err := r.readLength("matrix row count")
	if err != nil {
		return nil, err
	}
	m := NewSparseMatrix(n, n)
	pair := r.buf[:8]
	for row := 0; row < n; row++ {
		rowLen, err := r.readLength("matrix row")
		if err != nil {
			return nil, fmt.Errorf("row %d of %d: %w", row, n, err)
		}
		for k := 0; k < rowLen; k++ {
			if err := r.fill(pair); err != nil {
				return nil, fmt.Errorf("row %d entry %d of %d: %w", row, k, rowLen, err)
			}
			col := int(int32(r.order.Uint32(pair[:4])))
			w := math.Float32frombits(r.order.Uint32(pair[4:8]))
			m.Append(row, col, float64(w))
		}
	}
	return m, nil
}

func toInts(v []int32) []int {
	out := make([]int, len(v))
	for i, x := range v {
		out[i] = int(x)
	}
	return out
}
