package hsne

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Writer encodes the primitives of an HSNE artifact. The first write error
// is sticky and returned by Err and Flush.
type Writer struct {
	w     *bufio.Writer
	order binary.ByteOrder
	buf   [4]byte
	err   error
}

// NewWriter returns a Writer over w. A nil order means little-endian.
func NewWriter(w io.Writer, order binary.ByteOrder) *Writer {
	if order == nil {
		order = binary.LittleEndian
	}
	return &Writer{w: bufio.NewWriter(w), order: order}
}

func (w *Writer) put(u uint32) {
	if w.err != nil {
		return
	}
	w.order.PutUint32(w.buf[:], u)
	_, w.err = w.w.Write(w.buf[:])
}

func (w *Writer) WriteInt32(v int32)     { w.put(uint32(v)) }
func (w *Writer) WriteFloat32(v float32) { w.put(math.Float32bits(v)) }

func (w *Writer) WriteIntVector(v []int) {
	w.WriteInt32(int32(len(v)))
	for _, x := range v {
		w.WriteInt32(int32(x))
	}
}

func (w *Writer) WriteFloatVector(v []float32) {
	w.WriteInt32(int32(len(v)))
	for _, x := range v {
		w.WriteFloat32(x)
	}
}

// WriteSparseMatrix writes m row by row. Triplets must be grouped by row in
// ascending row order, which holds for every decoded matrix.
func (w *Writer) WriteSparseMatrix(m *SparseMatrix) {
	if w.err == nil {
		if err := m.Validate(); err != nil {
			w.err = err
			return
		}
	}
	rows, _ := m.Dims()
	counts := make([]int, rows)
	prev := 0
	m.DoNonZero(func(i, _ int, _ float64) {
		if i < prev && w.err == nil {
			w.err = fmt.Errorf("%w: triplets are not grouped by row", ErrMalformedMatrix)
		}
		prev = i
		counts[i]++
	})
	w.WriteInt32(int32(rows))
	row := -1
	m.DoNonZero(func(i, j int, v float64) {
		for row < i {
			row++
			w.WriteInt32(int32(counts[row]))
		}
		w.WriteInt32(int32(j))
		w.WriteFloat32(float32(v))
	})
	for row < rows-1 {
		row++
		w.WriteInt32(int32(counts[row]))
	}
}

// writeCompressed writes c as a square matrix with as many columns as rows.
func (w *Writer) writeCompressed(c *CompressedRows) {
	rows, _ := c.Dims()
	w.WriteInt32(int32(rows))
	for i := 0; i < rows; i++ {
		cols, vals := c.Row(i)
		w.WriteInt32(int32(len(cols)))
		for k, j := range cols {
			w.WriteInt32(int32(j))
			w.WriteFloat32(float32(vals[k]))
		}
	}
}

// Err returns the first error encountered.
func (w *Writer) Err() error { return w.err }

// Flush writes buffered data to the underlying writer.
func (w *Writer) Flush() error {
	if w.err != nil {
		return w.err
	}
	return w.w.Flush()
}

// Encode writes h in the artifact format read by Parse. Areas of influence
// are written already truncated, so Encode followed by Parse reproduces h.
func Encode(out io.Writer, h *Hierarchy, order binary.ByteOrder) error {
	w := NewWriter(out, order)
	w.WriteFloat32(0)
	w.WriteFloat32(0)
	w.WriteFloat32(float32(h.NumScales()))
	w.WriteFloat32(float32(h.TopScale().Size()))
	w.WriteSparseMatrix(h.TopScale().TransitionMatrix())
	for _, s := range h.Scales()[1:] {
		sub := s.(*SubScale)
		w.WriteFloat32(float32(sub.Size()))
		w.WriteSparseMatrix(sub.TransitionMatrix())
		w.WriteIntVector(sub.LandmarkToOriginal())
		w.WriteIntVector(sub.LandmarkToPrevious())
		w.WriteFloatVector(sub.LandmarkWeights())
		w.WriteIntVector(sub.PreviousToCurrent())
		w.writeCompressed(sub.AreaOfInfluence())
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("encode hierarchy: %w", err)
	}
	return nil
}
