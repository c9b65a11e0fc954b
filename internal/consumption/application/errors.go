package application

import "errors"

var (
	// ErrInvalidRequest is returned when a report request fails validation.
	ErrInvalidRequest = errors.New("report: invalid request")
	// ErrNilSource is returned when the service has no sample source.
	ErrNilSource = errors.New("report: nil sample source")
	// ErrNilAggregator is returned when the service has no resolver to build aggregators from.
	ErrNilAggregator = errors.New("report: nil resolver")
)
