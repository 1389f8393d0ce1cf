package camera

import (
	"context"
	"errors"
	"time"
)

// Errors returned by devices.
var (
	ErrNotReady = errors.New("camera: not ready")
	ErrNoFrame  = errors.New("camera: no frame captured")
	ErrClosed   = errors.New("camera: device closed")
)

// Photo is a captured, encoded image.
type Photo struct {
	Data     []byte    `json:"-"`
	MimeType string    `json:"mime_type"`
	Width    int       `json:"width"`
	Height   int       `json:"height"`
	TakenAt  time.Time `json:"taken_at"`
}

// Device is the camera peripheral.
type Device interface {
	// Ready reports whether the device can capture right now.
	Ready() bool

	// Capture takes a photo using cfg. It returns ErrNotReady before the
	// device has initialized.
	Capture(ctx context.Context, cfg Config) (*Photo, error)

	// Remount forces the device to re-initialize. Ready reports false until
	// the device is usable again.
	Remount(ctx context.Context) error

	// Close releases the device.
	Close() error
}
