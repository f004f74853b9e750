package hsne

import (
	"cmp"
	"fmt"
	"slices"

	"gonum.org/v1/gonum/floats"
)

// SparseMatrix is a rows x cols matrix held as (row, col, weight) triplets in
// insertion order. Decoded matrices are filled row by row, so iteration order
// is row-major.
type SparseMatrix struct {
	rows, cols int
	rowIdx     []int
	colIdx     []int
	vals       []float64
}

// NewSparseMatrix returns an empty rows x cols matrix.
func NewSparseMatrix(rows, cols int) *SparseMatrix {
	return &SparseMatrix{rows: rows, cols: cols}
}

// Dims returns the number of rows and columns.
func (m *SparseMatrix) Dims() (rows, cols int) { return m.rows, m.cols }

// NNZ returns the number of stored triplets, duplicates included.
func (m *SparseMatrix) NNZ() int { return len(m.vals) }

// Append stores one triplet. Indices are validated by Compress.
func (m *SparseMatrix) Append(row, col int, w float64) {
	m.rowIdx = append(m.rowIdx, row)
	m.colIdx = append(m.colIdx, col)
	m.vals = append(m.vals, w)
}

// DoNonZero calls fn for every stored triplet in insertion order.
func (m *SparseMatrix) DoNonZero(fn func(i, j int, v float64)) {
	for k, v := range m.vals {
		fn(m.rowIdx[k], m.colIdx[k], v)
	}
}

// Validate reports the first triplet whose indices fall outside the matrix.
func (m *SparseMatrix) Validate() error {
	for k := range m.vals {
		if r, c := m.rowIdx[k], m.colIdx[k]; r < 0 || r >= m.rows || c < 0 || c >= m.cols {
			return fmt.Errorf("%w: entry %d at (%d,%d) outside %dx%d", ErrMalformedMatrix, k, r, c, m.rows, m.cols)
		}
	}
	return nil
}

// TruncateColumns keeps the first k columns. Every stored column must lie in
// [0, cols) before truncation.
func (m *SparseMatrix) TruncateColumns(k int) (*SparseMatrix, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	k = min(k, m.cols)
	out := NewSparseMatrix(m.rows, k)
	for i, c := range m.colIdx {
		if c < k {
			out.Append(m.rowIdx[i], c, m.vals[i])
		}
	}
	return out, nil
}

// Equal reports whether both matrices have the same shape and triplets.
func (m *SparseMatrix) Equal(o *SparseMatrix) bool {
	return m.rows == o.rows && m.cols == o.cols &&
		slices.Equal(m.rowIdx, o.rowIdx) &&
		slices.Equal(m.colIdx, o.colIdx) &&
		slices.Equal(m.vals, o.vals)
}

type entry struct {
	col int
	val float64
}

// Compress converts the matrix to row-compressed form with sorted columns
// and duplicate weights summed.
func (m *SparseMatrix) Compress() (*CompressedRows, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	start := make([]int, m.rows+1)
	for _, r := range m.rowIdx {
		start[r+1]++
	}
	for i := 0; i < m.rows; i++ {
		start[i+1] += start[i]
	}
	buf := make([]entry, len(m.vals))
	next := slices.Clone(start[:m.rows])
	for k, r := range m.rowIdx {
		buf[next[r]] = entry{col: m.colIdx[k], val: m.vals[k]}
		next[r]++
	}

	c := &CompressedRows{
		rows:    m.rows,
		cols:    m.cols,
		indptr:  make([]int, m.rows+1),
		indices: make([]int, 0, len(buf)),
		data:    make([]float64, 0, len(buf)),
	}
	for i := 0; i < m.rows; i++ {
		row := buf[start[i]:start[i+1]]
		slices.SortStableFunc(row, func(a, b entry) int { return cmp.Compare(a.col, b.col) })
		for j, e := range row {
			if j > 0 && e.col == row[j-1].col {
				c.data[len(c.data)-1] += e.val
				continue
			}
			c.indices = append(c.indices, e.col)
			c.data = append(c.data, e.val)
		}
		c.indptr[i+1] = len(c.indices)
	}
	return c, nil
}

// CompressedRows is an immutable row-compressed sparse matrix.
type CompressedRows struct {
	rows, cols int
	indptr     []int
	indices    []int
	data       []float64
}

// Dims returns the number of rows and columns.
func (c *CompressedRows) Dims() (rows, cols int) { return c.rows, c.cols }

// NNZ returns the number of stored entries.
func (c *CompressedRows) NNZ() int { return len(c.data) }

// Row returns the sorted column indices and weights of row i. The returned
// slices must not be modified.
func (c *CompressedRows) Row(i int) ([]int, []float64) {
	lo, hi := c.indptr[i], c.indptr[i+1]
	return c.indices[lo:hi], c.data[lo:hi]
}

// At returns the value at (i, j), zero when no entry is stored.
func (c *CompressedRows) At(i, j int) float64 {
	cols, vals := c.Row(i)
	if k, ok := slices.BinarySearch(cols, j); ok {
		return vals[k]
	}
	return 0
}

// RowArgmax returns, for every row, the column of its largest value with
// ties going to the lowest column. Unstored cells count as zeros, exactly
// as in a dense row.
func (c *CompressedRows) RowArgmax() ([]int, error) {
	if c.cols == 0 && c.rows > 0 {
		return nil, fmt.Errorf("%w: argmax over %d rows with no columns", ErrMalformedMatrix, c.rows)
	}
	out := make([]int, c.rows)
	for i := range out {
		cols, vals := c.Row(i)
		if len(cols) == 0 {
			continue
		}
		k := floats.MaxIdx(vals)
		best, bestVal := cols[k], vals[k]
		if len(cols) < c.cols && bestVal <= 0 {
			if z := firstGap(cols); bestVal < 0 || z < best {
				best = z
			}
		}
		out[i] = best
	}
	return out, nil
}

// firstGap returns the smallest column not present in the sorted cols.
func firstGap(cols []int) int {
	for k, col := range cols {
		if col != k {
			return k
		}
	}
	return len(cols)
}
