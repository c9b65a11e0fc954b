package consumption

import "errors"

var (
	// ErrEmptyInput is returned when an aggregation is invoked with zero samples.
	ErrEmptyInput = errors.New("consumption: empty input")
	// ErrNilResolver is returned when an aggregator is built without a resolver.
	ErrNilResolver = errors.New("consumption: nil resolver")
	// ErrInvalidBuckets is returned when daytime bucket hours are out of range.
	ErrInvalidBuckets = errors.New("consumption: invalid bucket hours")
	// ErrNegativeTolerance is returned for a negative missing-day tolerance.
	ErrNegativeTolerance = errors.New("consumption: negative tolerance")
	// ErrEmptyClientID is returned when a sample request names no client.
	ErrEmptyClientID = errors.New("consumption: empty client id")
	// ErrInvalidWindow is returned when a sample window is empty or inverted.
	ErrInvalidWindow = errors.New("consumption: invalid window")
)
