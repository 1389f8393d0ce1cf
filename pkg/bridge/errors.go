package bridge

import "errors"

var (
	// ErrNotConnected is returned when addressing a device that is not connected.
	ErrNotConnected = errors.New("bridge: device not connected")

	// ErrDisconnected is returned to pending requests when the device goes away.
	ErrDisconnected = errors.New("bridge: device disconnected")

	// ErrTimeout is returned when the device does not answer in time.
	ErrTimeout = errors.New("bridge: request timed out")

	// ErrDevice wraps an error reported by the device itself.
	ErrDevice = errors.New("bridge: device error")
)
