package application

import "errors"

var (
	// ErrInvalidCommand is returned when an override command fails validation.
	ErrInvalidCommand = errors.New("cutoff admin: invalid command")
	// ErrNilResolver is returned when the service has no resolver.
	ErrNilResolver = errors.New("cutoff admin: nil resolver")
)
