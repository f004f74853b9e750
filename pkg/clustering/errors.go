package clustering

import "errors"

var (
	// ErrInvalidMethod is returned for a propagation method other than
	// "cluster" or "label".
	ErrInvalidMethod = errors.New("clustering: invalid method")

	// ErrNumericAnomaly is returned when an input vector holds NaN or Inf.
	ErrNumericAnomaly = errors.New("clustering: numeric anomaly")

	// ErrPartition is returned when a partitioner fails or returns a
	// membership of the wrong length.
	ErrPartition = errors.New("clustering: partition failed")

	// ErrInvalidBoundaries is returned for source boundaries that are not
	// non-decreasing or exceed the number of points.
	ErrInvalidBoundaries = errors.New("clustering: invalid source boundaries")
)
