package hsne

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

// rawScale is a sub-scale as it appears on disk, before truncation.
type rawScale struct {
	declared          float32
	tmatrix           *SparseMatrix
	lmToOriginal      []int
	lmToPrevious      []int
	lmWeights         []float32
	previousToCurrent []int
	aoi               *SparseMatrix
}

// denseMatrix builds a square sparse matrix from dense rows, skipping zeros.
func denseMatrix(rows [][]float64) *SparseMatrix {
	n := len(rows)
	m := NewSparseMatrix(n, n)
	for i, row := range rows {
		for j, v := range row {
			if v != 0 {
				m.Append(i, j, v)
			}
		}
	}
	return m
}

func writeArtifact(t *testing.T, top *SparseMatrix, subs ...rawScale) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := NewWriter(&buf, nil)
	w.WriteFloat32(1.5)
	w.WriteFloat32(-2)
	w.WriteFloat32(float32(len(subs) + 1))
	rows, _ := top.Dims()
	w.WriteFloat32(float32(rows))
	w.WriteSparseMatrix(top)
	for _, s := range subs {
		w.WriteFloat32(s.declared)
		w.WriteSparseMatrix(s.tmatrix)
		w.WriteIntVector(s.lmToOriginal)
		w.WriteIntVector(s.lmToPrevious)
		w.WriteFloatVector(s.lmWeights)
		w.WriteIntVector(s.previousToCurrent)
		w.WriteSparseMatrix(s.aoi)
	}
	require.NoError(t, w.Flush())
	return buf.Bytes()
}

// scenarioA is a 4-point data scale with a 2-landmark sub-scale whose area
// of influence is [[1,0],[0,1],[1,0],[0,1]].
func scenarioA(t *testing.T) []byte {
	t.Helper()
	top := denseMatrix([][]float64{
		{0, 0, 1, 0},
		{0, 0, 0, 1},
		{1, 0, 0, 0},
		{0, 1, 0, 0},
	})
	return writeArtifact(t, top, rawScale{
		declared:          2,
		tmatrix:           denseMatrix([][]float64{{0.5, 0.5}, {0.5, 0.5}}),
		lmToOriginal:      []int{0, 1},
		lmToPrevious:      []int{0, 1},
		lmWeights:         []float32{2, 2},
		previousToCurrent: []int{0, 1, 0, 1},
		aoi: denseMatrix([][]float64{
			{1, 0, 0, 0},
			{0, 1, 0, 0},
			{1, 0, 0, 0},
			{0, 1, 0, 0},
		}),
	})
}

// threeScales is a 6-point data scale, 3 landmarks at scale 1 and 2 at scale 2.
func threeScales(t *testing.T) []byte {
	t.Helper()
	top := denseMatrix([][]float64{
		{0, 1, 0, 0, 0, 0},
		{1, 0, 0, 0, 0, 0},
		{0, 0, 0, 1, 0, 0},
		{0, 0, 1, 0, 0, 0},
		{0, 0, 0, 0, 0, 1},
		{0, 0, 0, 0, 1, 0},
	})
	s1 := rawScale{
		declared:          3,
		tmatrix:           denseMatrix([][]float64{{0, 1, 0}, {1, 0, 1}, {0, 1, 0}}),
		lmToOriginal:      []int{0, 2, 4},
		lmToPrevious:      []int{0, 2, 4},
		lmWeights:         []float32{2, 2, 2},
		previousToCurrent: []int{0, 0, 1, 1, 2, 2},
		aoi: denseMatrix([][]float64{
			{0.9, 0.1, 0, 0, 0, 0},
			{0.8, 0.2, 0, 0, 0, 0},
			{0.1, 0.6, 0.3, 0, 0, 0},
			{0, 0.7, 0.3, 0, 0, 0},
			{0, 0, 1, 0, 0, 0},
			{0, 0.4, 0.6, 0, 0, 0},
		}),
	}
	s2 := rawScale{
		declared:          2,
		tmatrix:           denseMatrix([][]float64{{0, 1}, {1, 0}}),
		lmToOriginal:      []int{0, 4},
		lmToPrevious:      []int{0, 2},
		lmWeights:         []float32{1.5, 1.5},
		previousToCurrent: []int{0, 1, 1},
		aoi: denseMatrix([][]float64{
			{1, 0, 0},
			{0.5, 0.5, 0},
			{0, 1, 0},
		}),
	}
	return writeArtifact(t, top, s1, s2)
}

func mustParse(t *testing.T, data []byte, opts ...ParseOption) *Hierarchy {
	t.Helper()
	h, err := Parse(bytes.NewReader(data), opts...)
	require.NoError(t, err)
	return h
}
