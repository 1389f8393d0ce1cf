//go:build !gocv

package camera

import (
	"context"
	"errors"
	"log/slog"
)

// ErrWebcamUnavailable is returned when the binary was built without OpenCV.
var ErrWebcamUnavailable = errors.New("camera: webcam support requires the gocv build tag")

// Webcam is unavailable without the gocv build tag.
type Webcam struct{}

// NewWebcam returns ErrWebcamUnavailable.
func NewWebcam(ctx context.Context, cfg Config, logger *slog.Logger) (*Webcam, error) {
	return nil, ErrWebcamUnavailable
}

// Ready always reports false.
func (w *Webcam) Ready() bool { return false }

// Capture returns ErrWebcamUnavailable.
func (w *Webcam) Capture(ctx context.Context, cfg Config) (*Photo, error) {
	return nil, ErrWebcamUnavailable
}

// Remount returns ErrWebcamUnavailable.
func (w *Webcam) Remount(ctx context.Context) error { return ErrWebcamUnavailable }

// Close does nothing.
func (w *Webcam) Close() error { return nil }

var _ Device = (*Webcam)(nil)
