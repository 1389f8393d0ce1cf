package capture

import "errors"

var (
	// ErrNoPhoto means the camera returned nothing to describe.
	ErrNoPhoto = errors.New("capture: no photo")

	// ErrPanic wraps a panic recovered inside a capture cycle.
	ErrPanic = errors.New("capture: panic in cycle")
)
