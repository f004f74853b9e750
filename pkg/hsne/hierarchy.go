package hsne

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/floats"
)

// Hierarchy is an ordered sequence of scales: a DataScale at index 0 followed
// by landmark SubScales. It is immutable once built and safe for concurrent
// readers.
type Hierarchy struct {
	top    *DataScale
	scales []Scale
}

// NewHierarchy assembles a hierarchy from its data scale and sub-scales,
// which must be numbered 1..len(subs) in order. The area of influence of
// every sub-scale needs one row per point of the scale before it, and no
// scale may hold more points than its predecessor.
func NewHierarchy(top *DataScale, subs ...*SubScale) (*Hierarchy, error) {
	if top == nil {
		return nil, fmt.Errorf("%w: hierarchy without a data scale", ErrInvalidScale)
	}
	scales := make([]Scale, 0, len(subs)+1)
	scales = append(scales, top)
	for i, s := range subs {
		if s == nil || s.Number() != i+1 {
			return nil, fmt.Errorf("%w: sub-scale at position %d is not scale %d", ErrInvalidScale, i+1, i+1)
		}
		prev := scales[i].Size()
		if rows, _ := s.AreaOfInfluence().Dims(); rows != prev {
			return nil, fmt.Errorf("%w: scale %d area of influence has %d rows, scale %d has %d points",
				ErrMalformedMatrix, i+1, rows, i, prev)
		}
		if s.Size() > prev {
			return nil, fmt.Errorf("%w: scale %d has %d landmarks, more than the %d points of scale %d",
				ErrMalformedMatrix, i+1, s.Size(), prev, i)
		}
		scales = append(scales, s)
	}
	return &Hierarchy{top: top, scales: scales}, nil
}

func (h *Hierarchy) String() string {
	return fmt.Sprintf("HSNE hierarchy with %d scales", len(h.scales))
}

// NumScales returns the number of scales including the data scale.
func (h *Hierarchy) NumScales() int { return len(h.scales) }

// TopScale returns scale 0.
func (h *Hierarchy) TopScale() *DataScale { return h.top }

// Scales returns the scales in order. The slice must not be modified.
func (h *Hierarchy) Scales() []Scale { return h.scales }

// ScaleAt returns scale i.
func (h *Hierarchy) ScaleAt(i int) (Scale, error) {
	if i < 0 || i >= len(h.scales) {
		return nil, fmt.Errorf("%w: scale %d does not exist, hierarchy has %d scales", ErrInvalidScale, i, len(h.scales))
	}
	return h.scales[i], nil
}

// SubScaleAt returns landmark scale i, 1 <= i < NumScales().
func (h *Hierarchy) SubScaleAt(i int) (*SubScale, error) {
	if i == 0 {
		return nil, fmt.Errorf("%w: scale 0 is the data scale", ErrInvalidScale)
	}
	s, err := h.ScaleAt(i)
	if err != nil {
		return nil, err
	}
	return s.(*SubScale), nil
}

// DataScaleMappings returns, for every data point, the index of its
// representative landmark at scale target, following one best-representative
// hop per scale.
func (h *Hierarchy) DataScaleMappings(target int) ([]int, error) {
	if target <= 0 {
		return nil, fmt.Errorf("%w: cannot map the complete dataset, only sub-scales get clustered", ErrInvalidScale)
	}
	if target > len(h.scales)-1 {
		return nil, fmt.Errorf("%w: scale %d does not exist, hierarchy has %d scales", ErrInvalidScale, target, len(h.scales))
	}

	mapping := h.top.DataPoints()
	for s := 1; s <= target; s++ {
		best := h.scales[s].(*SubScale).BestRepresentatives()
		for i, v := range mapping {
			if v < 0 || v >= len(best) {
				return nil, fmt.Errorf("%w: scale %d has %d best representatives, point %d maps to %d",
					ErrMalformedMatrix, s, len(best), i, v)
			}
			mapping[i] = best[v]
		}
	}
	return mapping, nil
}

// MapByCluster propagates landmark labels at scale down to the data scale.
// At every hop each previous-scale point takes the label whose landmarks
// hold the largest summed area-of-influence weight for it; ties go to the
// smallest label.
func (h *Hierarchy) MapByCluster(scale int, labels []int) ([]int, error) {
	if scale <= 0 {
		return nil, fmt.Errorf("%w: cannot map the complete dataset, only sub-scales get clustered", ErrInvalidScale)
	}
	sub, err := h.SubScaleAt(scale)
	if err != nil {
		return nil, err
	}
	if _, cols := sub.AreaOfInfluence().Dims(); len(labels) != cols {
		return nil, fmt.Errorf("%w: got %d labels for %d landmarks at scale %d",
			ErrLabelCountMismatch, len(labels), cols, scale)
	}

	current := labels
	for s := scale; s >= 1; s-- {
		aoi := h.scales[s].(*SubScale).AreaOfInfluence()
		if _, cols := aoi.Dims(); len(current) != cols {
			return nil, fmt.Errorf("%w: scale %d area of influence has %d columns, previous hop produced %d labels",
				ErrMalformedMatrix, s, cols, len(current))
		}
		current = redistribute(aoi, current)
	}
	return current, nil
}

// redistribute performs one weighted hop: row i of the result is the label
// maximising the summed weight of aoi[i, j] over landmarks j carrying it.
func redistribute(aoi *CompressedRows, labels []int) []int {
	distinct := slices.Clone(labels)
	slices.Sort(distinct)
	distinct = slices.Compact(distinct)

	column := make([]int, len(labels))
	for j, l := range labels {
		column[j], _ = slices.BinarySearch(distinct, l)
	}

	rows, _ := aoi.Dims()
	out := make([]int, rows)
	if len(distinct) == 0 {
		return out
	}
	score := make([]float64, len(distinct))
	for i := range out {
		clear(score)
		cols, vals := aoi.Row(i)
		for k, j := range cols {
			score[column[j]] += vals[k]
		}
		out[i] = distinct[floats.MaxIdx(score)]
	}
	return out
}
