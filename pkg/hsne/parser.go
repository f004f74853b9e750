package hsne

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/rs/zerolog"
)

type parseOptions struct {
	order       binary.ByteOrder
	strictSizes bool
	maxDecoded  int64
	logger      zerolog.Logger
}

// ParseOption configures Parse and ParseFile.
type ParseOption func(*parseOptions)

// WithByteOrder overrides the little-endian default.
func WithByteOrder(order binary.ByteOrder) ParseOption {
	return func(o *parseOptions) { o.order = order }
}

// WithStrictSizes rejects artifacts whose declared scale sizes disagree with
// the decoded transition matrices.
func WithStrictSizes(strict bool) ParseOption {
	return func(o *parseOptions) { o.strictSizes = strict }
}

// WithMaxDecodedBytes caps the number of bytes ParseFramed decodes,
// counted after decompression. Zero or less means no cap.
func WithMaxDecodedBytes(n int64) ParseOption {
	return func(o *parseOptions) { o.maxDecoded = n }
}

// WithLogger sets the logger used for parse progress.
func WithLogger(logger zerolog.Logger) ParseOption {
	return func(o *parseOptions) { o.logger = logger }
}

// Parse decodes a complete hierarchy from r. Either the whole hierarchy is
// returned or an error wrapping ErrFormat and its cause.
func Parse(r io.Reader, opts ...ParseOption) (*Hierarchy, error) {
	o := newParseOptions(opts)
	h, err := parse(NewReader(bufio.NewReader(r), o.order), o)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}
	return h, nil
}

func newParseOptions(opts []ParseOption) parseOptions {
	o := parseOptions{order: binary.LittleEndian, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func parse(r *Reader, o parseOptions) (*Hierarchy, error) {
	start := time.Now()

	// Two legacy header fields, never used.
	for i := 0; i < 2; i++ {
		if _, err := r.ReadFloat32(); err != nil {
			return nil, fmt.Errorf("header: %w", err)
		}
	}
	numScalesF, err := r.ReadFloat32()
	if err != nil {
		return nil, fmt.Errorf("header scale count: %w", err)
	}
	if !(numScalesF >= 1) {
		return nil, fmt.Errorf("header declares %v scales, need at least 1", numScalesF)
	}
	// Larger counts run into truncation when the scales are read.
	numScales := int(min(float64(numScalesF), math.MaxInt32))
	declared, err := r.ReadFloat32()
	if err != nil {
		return nil, fmt.Errorf("header scale size: %w", err)
	}

	tmatrix, err := r.ReadSparseMatrix()
	if err != nil {
		return nil, fmt.Errorf("scale 0 transition matrix: %w", err)
	}
	if err := checkDeclaredSize(o, 0, int(declared), tmatrix); err != nil {
		return nil, err
	}
	top := NewDataScale(tmatrix)
	o.logger.Debug().
		Int("scale", 0).
		Int("size", top.Size()).
		Int("nnz", tmatrix.NNZ()).
		Msg("Read data scale")

	var subs []*SubScale
	for i := 1; i < numScales; i++ {
		sub, err := readSubScale(r, i, o)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}

	h, err := NewHierarchy(top, subs...)
	if err != nil {
		return nil, err
	}
	o.logger.Info().
		Int("scales", h.NumScales()).
		Int("points", top.Size()).
		Int64("bytes", r.Offset()).
		Dur("elapsed", time.Since(start)).
		Msg("Parsed HSNE hierarchy")
	return h, nil
}

func readSubScale(r *Reader, i int, o parseOptions) (*SubScale, error) {
	wrap := func(field string, err error) error {
		return fmt.Errorf("scale %d %s: %w", i, field, err)
	}

	declared, err := r.ReadFloat32()
	if err != nil {
		return nil, wrap("size", err)
	}
	tmatrix, err := r.ReadSparseMatrix()
	if err != nil {
		return nil, wrap("transition matrix", err)
	}
	if err := checkDeclaredSize(o, i, int(declared), tmatrix); err != nil {
		return nil, err
	}
	lmToOriginal, err := r.ReadIntVector()
	if err != nil {
		return nil, wrap("landmarks to original", err)
	}
	lmToPrevious, err := r.ReadIntVector()
	if err != nil {
		return nil, wrap("landmarks to previous", err)
	}
	lmWeights, err := r.ReadFloatVector()
	if err != nil {
		return nil, wrap("landmark weights", err)
	}
	previousToCurrent, err := r.ReadIntVector()
	if err != nil {
		return nil, wrap("previous to current", err)
	}
	aoi, err := r.ReadSparseMatrix()
	if err != nil {
		return nil, wrap("area of influence", err)
	}

	sub, err := NewSubScale(i, SubScaleData{
		TransitionMatrix:   tmatrix,
		LandmarkToOriginal: toInts(lmToOriginal),
		LandmarkToPrevious: toInts(lmToPrevious),
		LandmarkWeights:    lmWeights,
		PreviousToCurrent:  toInts(previousToCurrent),
		AreaOfInfluence:    aoi,
	})
	if err != nil {
		return nil, err
	}
	o.logger.Debug().
		Int("scale", i).
		Int("size", sub.Size()).
		Int("nnz", tmatrix.NNZ()).
		Int("aoi_nnz", sub.AreaOfInfluence().NNZ()).
		Msg("Read sub-scale")
	return sub, nil
}

func checkDeclaredSize(o parseOptions, scale, declared int, tmatrix *SparseMatrix) error {
	if !o.strictSizes {
		return nil
	}
	if rows, _ := tmatrix.Dims(); rows != declared {
		return fmt.Errorf("scale %d declares %d points but its transition matrix has %d rows", scale, declared, rows)
	}
	return nil
}
