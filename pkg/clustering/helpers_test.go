package clustering

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gilchrisn/hsne-clustering-service/pkg/hsne"
)

// dense builds a square sparse matrix from dense rows, skipping zeros.
func dense(rows [][]float64) *hsne.SparseMatrix {
	m := hsne.NewSparseMatrix(len(rows), len(rows))
	for i, row := range rows {
		for j, v := range row {
			if v != 0 {
				m.Append(i, j, v)
			}
		}
	}
	return m
}

// scenarioA is a 4-point data scale with 2 landmarks whose area of influence
// is [[1,0],[0,1],[1,0],[0,1]].
func scenarioA(t *testing.T) *hsne.Hierarchy {
	t.Helper()
	top := hsne.NewDataScale(dense([][]float64{
		{0, 0, 1, 0},
		{0, 0, 0, 1},
		{1, 0, 0, 0},
		{0, 1, 0, 0},
	}))
	sub, err := hsne.NewSubScale(1, hsne.SubScaleData{
		TransitionMatrix:   dense([][]float64{{0.5, 0.5}, {0.5, 0.5}}),
		LandmarkToOriginal: []int{0, 1},
		LandmarkToPrevious: []int{0, 1},
		LandmarkWeights:    []float32{2, 2},
		PreviousToCurrent:  []int{0, 1, 0, 1},
		AreaOfInfluence: dense([][]float64{
			{1, 0, 0, 0},
			{0, 1, 0, 0},
			{1, 0, 0, 0},
			{0, 1, 0, 0},
		}),
	})
	require.NoError(t, err)
	h, err := hsne.NewHierarchy(top, sub)
	require.NoError(t, err)
	return h
}

// threeScales is 6 points, 3 landmarks at scale 1 and 2 at scale 2. Best
// representatives are [0,0,1,1,2,2] and [0,0,1].
func threeScales(t *testing.T) *hsne.Hierarchy {
	t.Helper()
	top := hsne.NewDataScale(dense([][]float64{
		{0, 1, 0, 0, 0, 0},
		{1, 0, 0, 0, 0, 0},
		{0, 0, 0, 1, 0, 0},
		{0, 0, 1, 0, 0, 0},
		{0, 0, 0, 0, 0, 1},
		{0, 0, 0, 0, 1, 0},
	}))
	s1, err := hsne.NewSubScale(1, hsne.SubScaleData{
		TransitionMatrix: dense([][]float64{{0, 1, 0}, {1, 0, 1}, {0, 1, 0}}),
		AreaOfInfluence: dense([][]float64{
			{0.9, 0.1, 0, 0, 0, 0},
			{0.8, 0.2, 0, 0, 0, 0},
			{0.1, 0.6, 0.3, 0, 0, 0},
			{0, 0.7, 0.3, 0, 0, 0},
			{0, 0, 1, 0, 0, 0},
			{0, 0.4, 0.6, 0, 0, 0},
		}),
	})
	require.NoError(t, err)
	s2, err := hsne.NewSubScale(2, hsne.SubScaleData{
		TransitionMatrix: dense([][]float64{{0, 1}, {1, 0}}),
		AreaOfInfluence: dense([][]float64{
			{1, 0, 0},
			{0.5, 0.5, 0},
			{0, 1, 0},
		}),
	})
	require.NoError(t, err)
	h, err := hsne.NewHierarchy(top, s1, s2)
	require.NoError(t, err)
	return h
}

// stubPartitioner returns a fixed membership per vertex count and counts calls.
type stubPartitioner struct {
	bySize map[int][]int
	calls  atomic.Int32
}

func newStub(bySize map[int][]int) *stubPartitioner {
	return &stubPartitioner{bySize: bySize}
}

func (s *stubPartitioner) Partition(_ context.Context, g Graph) ([]int, error) {
	s.calls.Add(1)
	m, ok := s.bySize[g.NumVertices]
	if !ok {
		return nil, fmt.Errorf("no membership for %d vertices", g.NumVertices)
	}
	return append([]int(nil), m...), nil
}

// cliques returns two disjoint 4-cliques with every edge listed both ways,
// the way a symmetric transition matrix enumerates them.
func cliques() Graph {
	g := Graph{NumVertices: 8}
	for _, offset := range []int{0, 4} {
		for i := 0; i < 4; i++ {
			for j := 0; j < 4; j++ {
				if i != j {
					g.Edges = append(g.Edges, Edge{From: offset + i, To: offset + j, Weight: 0.25})
				}
			}
		}
	}
	return g
}
