package cutoff

import "errors"

var (
	// ErrInvalidScope is returned when a scope lacks its client or provider id.
	ErrInvalidScope = errors.New("cutoff: invalid scope")
	// ErrAmbiguousOverride is returned when the store holds more than one active override for an entity.
	ErrAmbiguousOverride = errors.New("cutoff: ambiguous override")
	// ErrInvalidSetting is returned when a cutoff setting is out of range.
	ErrInvalidSetting = errors.New("cutoff: invalid setting")
	// ErrInvalidLevel is returned for an unknown override level.
	ErrInvalidLevel = errors.New("cutoff: invalid level")
	// ErrEmptyEntityID is returned when an override write has no entity id.
	ErrEmptyEntityID = errors.New("cutoff: empty entity id")
	// ErrInvalidLabel is returned when a period label cannot be parsed.
	ErrInvalidLabel = errors.New("cutoff: invalid label")
	// ErrReadOnlyStore is returned when the resolver has no writer configured.
	ErrReadOnlyStore = errors.New("cutoff: read-only store")
)
