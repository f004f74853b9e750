package clustering

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/gilchrisn/hsne-clustering-service/pkg/hsne"
)

// ScaleLabels holds the labels of every sub-scale for every data point.
type ScaleLabels struct {
	Method Method
	// Matrix[p][s-1] is the label of point p at scale s.
	Matrix [][]int
}

// NumPoints returns the number of rows.
func (l *ScaleLabels) NumPoints() int { return len(l.Matrix) }

// NumScales returns the number of label columns.
func (l *ScaleLabels) NumScales() int {
	if len(l.Matrix) == 0 {
		return 0
	}
	return len(l.Matrix[0])
}

// Column returns the labels of scale s for every point.
func (l *ScaleLabels) Column(s int) []int {
	col := make([]int, len(l.Matrix))
	for p, row := range l.Matrix {
		col[p] = row[s-1]
	}
	return col
}

// ClusterAll clusters every sub-scale and transposes the per-scale label
// vectors into a point-by-scale matrix. With parallel set, scales run
// concurrently on up to numWorkers goroutines.
func (c *Clusterer) ClusterAll(ctx context.Context, method Method, parallel bool, numWorkers int) (*ScaleLabels, error) {
	if _, err := ParseMethod(string(method)); err != nil {
		return nil, err
	}
	numScales := c.hierarchy.NumScales()
	points := c.hierarchy.TopScale().Size()
	perScale := make([][]int, numScales)

	if parallel && numScales > 2 {
		g, gctx := errgroup.WithContext(ctx)
		if numWorkers > 0 {
			g.SetLimit(numWorkers)
		}
		for s := 1; s < numScales; s++ {
			g.Go(func() error {
				labels, err := c.ClusterScale(gctx, s, method)
				if err != nil {
					return err
				}
				perScale[s] = labels
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for s := 1; s < numScales; s++ {
			labels, err := c.ClusterScale(ctx, s, method)
			if err != nil {
				return nil, err
			}
			perScale[s] = labels
		}
	}

	matrix := make([][]int, points)
	for p := range matrix {
		matrix[p] = make([]int, numScales-1)
	}
	for s := 1; s < numScales; s++ {
		if len(perScale[s]) != points {
			return nil, fmt.Errorf("%w: scale %d labeled %d points, data scale has %d",
				hsne.ErrMalformedMatrix, s, len(perScale[s]), points)
		}
		for p, label := range perScale[s] {
			matrix[p][s-1] = label
		}
	}

	c.logger.Info().
		Int("points", points).
		Int("scales", numScales-1).
		Str("method", string(method)).
		Msg("Clustered all scales")
	return &ScaleLabels{Method: method, Matrix: matrix}, nil
}

// SplitBySource slices matrix rows into consecutive blocks ending at each
// cumulative boundary.
func SplitBySource(matrix [][]int, cumulativeLengths []int) ([][][]int, error) {
	out := make([][][]int, 0, len(cumulativeLengths))
	prev := 0
	for i, end := range cumulativeLengths {
		if end < prev || end > len(matrix) {
			return nil, fmt.Errorf("%w: boundary %d is %d after %d with %d rows",
				ErrInvalidBoundaries, i, end, prev, len(matrix))
		}
		out = append(out, matrix[prev:end])
		prev = end
	}
	return out, nil
}

// SourceBoundaries converts per-source point counts into cumulative boundaries.
func SourceBoundaries(counts []int) ([]int, error) {
	bounds := make([]int, len(counts))
	total := 0
	for i, n := range counts {
		if n < 0 {
			return nil, fmt.Errorf("%w: source %d has negative count %d", ErrInvalidBoundaries, i, n)
		}
		total += n
		bounds[i] = total
	}
	return bounds, nil
}

// CheckFinite reports the first NaN or infinite value.
func CheckFinite(values []float64) error {
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: value %v at index %d", ErrNumericAnomaly, v, i)
		}
	}
	return nil
}
