package perception

import "errors"

var (
	// ErrNotBound is returned when no device is attached to the controller.
	ErrNotBound = errors.New("perception: no device bound")

	// ErrFocused is returned when rebinding while the controller is focused.
	ErrFocused = errors.New("perception: controller is focused")

	// ErrBusy is returned when a capture is already running.
	ErrBusy = errors.New("perception: capture in progress")
)
