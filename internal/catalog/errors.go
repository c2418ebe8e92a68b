package catalog

import "errors"

var (
	// ErrDuplicateDevice is returned when a device ID appears more than once.
	ErrDuplicateDevice = errors.New("catalog: duplicate device")

	// ErrDuplicateRule is returned when a (location, message type) pair appears more than once.
	ErrDuplicateRule = errors.New("catalog: duplicate alert rule")

	// ErrInvalidEntry is returned for rows with an empty location, type or resource.
	ErrInvalidEntry = errors.New("catalog: invalid entry")
)
