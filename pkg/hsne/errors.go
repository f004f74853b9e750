package hsne

import "errors"

var (
	// ErrTruncatedInput is returned when the stream ends before a field is fully read.
	ErrTruncatedInput = errors.New("hsne: truncated input")

	// ErrMalformedMatrix is returned when sparse matrix indices do not fit the
	// matrix dimensions, or when scales disagree about each other's sizes.
	ErrMalformedMatrix = errors.New("hsne: malformed matrix")

	// ErrFormat wraps every failure raised while parsing an artifact.
	ErrFormat = errors.New("hsne: format error")

	// ErrInputTooLarge is returned when an artifact decodes to more bytes
	// than the configured limit.
	ErrInputTooLarge = errors.New("hsne: input too large")

	// ErrInvalidScale is returned for a scale index outside the range an operation accepts.
	ErrInvalidScale = errors.New("hsne: invalid scale")

	// ErrLabelCountMismatch is returned when a label vector does not have one
	// label per landmark of the scale it is applied to.
	ErrLabelCountMismatch = errors.New("hsne: label count mismatch")
)
