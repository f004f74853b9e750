package hsne

import (
	"fmt"
	"math"
)

// Scale is one level of a hierarchy. Scale 0 is the full dataset, higher
// scales are progressively coarser landmark summaries.
type Scale interface {
	// Number is the position of the scale in its hierarchy.
	Number() int
	// Size is the number of points (scale 0) or landmarks held by the scale.
	Size() int
	// TransitionMatrix is the weighted graph among the scale's points.
	TransitionMatrix() *SparseMatrix
}

// DataScale is the full-resolution scale 0.
type DataScale struct {
	tmatrix *SparseMatrix
}

// NewDataScale wraps the transition matrix of the full dataset.
func NewDataScale(tmatrix *SparseMatrix) *DataScale {
	return &DataScale{tmatrix: tmatrix}
}

func (s *DataScale) Number() int { return 0 }

func (s *DataScale) Size() int {
	rows, _ := s.tmatrix.Dims()
	return rows
}

func (s *DataScale) TransitionMatrix() *SparseMatrix { return s.tmatrix }

// DataPoints returns the point indices 0..Size()-1.
func (s *DataScale) DataPoints() []int {
	points := make([]int, s.Size())
	for i := range points {
		points[i] = i
	}
	return points
}

func (s *DataScale) String() string {
	return fmt.Sprintf("HSNE datascale 0 with %d datapoints", s.Size())
}

// SubScaleData carries the decoded fields of a landmark scale.
type SubScaleData struct {
	TransitionMatrix   *SparseMatrix
	LandmarkToOriginal []int
	LandmarkToPrevious []int
	LandmarkWeights    []float32
	PreviousToCurrent  []int
	// AreaOfInfluence arrives as previous_size x previous_size; only its
	// first Size() columns are meaningful.
	AreaOfInfluence *SparseMatrix
}

// SubScale is a landmark scale 1..num_scales-1.
type SubScale struct {
	number              int
	tmatrix             *SparseMatrix
	lmToOriginal        []int
	lmToPrevious        []int
	lmWeights           []float32
	previousToCurrent   []int
	aoi                 *CompressedRows
	bestRepresentatives []int
}

// NewSubScale builds scale number from its decoded fields, truncating the
// area of influence to the scale's landmarks and deriving the best
// representative of every previous-scale point.
func NewSubScale(number int, d SubScaleData) (*SubScale, error) {
	if number < 1 {
		return nil, fmt.Errorf("%w: sub-scale number %d", ErrInvalidScale, number)
	}
	if d.TransitionMatrix == nil || d.AreaOfInfluence == nil {
		return nil, fmt.Errorf("%w: scale %d is missing a matrix", ErrMalformedMatrix, number)
	}
	size, _ := d.TransitionMatrix.Dims()

	var bad error
	d.AreaOfInfluence.DoNonZero(func(i, j int, v float64) {
		if bad == nil && (math.IsNaN(v) || math.IsInf(v, 0)) {
			bad = fmt.Errorf("%w: scale %d area of influence holds %v at (%d, %d)", ErrMalformedMatrix, number, v, i, j)
		}
	})
	if bad != nil {
		return nil, bad
	}

	truncated, err := d.AreaOfInfluence.TruncateColumns(size)
	if err != nil {
		return nil, fmt.Errorf("scale %d area of influence: %w", number, err)
	}
	aoi, err := truncated.Compress()
	if err != nil {
		return nil, fmt.Errorf("scale %d area of influence: %w", number, err)
	}
	best, err := aoi.RowArgmax()
	if err != nil {
		return nil, fmt.Errorf("scale %d best representatives: %w", number, err)
	}

	return &SubScale{
		number:              number,
		tmatrix:             d.TransitionMatrix,
		lmToOriginal:        d.LandmarkToOriginal,
		lmToPrevious:        d.LandmarkToPrevious,
		lmWeights:           d.LandmarkWeights,
		previousToCurrent:   d.PreviousToCurrent,
		aoi:                 aoi,
		bestRepresentatives: best,
	}, nil
}

func (s *SubScale) Number() int { return s.number }

func (s *SubScale) Size() int {
	rows, _ := s.tmatrix.Dims()
	return rows
}

func (s *SubScale) TransitionMatrix() *SparseMatrix { return s.tmatrix }

// The accessors below return shared slices; callers must not modify them.

func (s *SubScale) LandmarkToOriginal() []int        { return s.lmToOriginal }
func (s *SubScale) LandmarkToPrevious() []int        { return s.lmToPrevious }
func (s *SubScale) LandmarkWeights() []float32       { return s.lmWeights }
func (s *SubScale) PreviousToCurrent() []int         { return s.previousToCurrent }
func (s *SubScale) AreaOfInfluence() *CompressedRows { return s.aoi }

// BestRepresentatives maps every previous-scale point to the landmark of
// this scale with the highest area-of-influence weight.
func (s *SubScale) BestRepresentatives() []int { return s.bestRepresentatives }

func (s *SubScale) String() string {
	return fmt.Sprintf("HSNE subscale %d with %d datapoints", s.number, s.Size())
}
