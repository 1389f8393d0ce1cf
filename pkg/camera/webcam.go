//go:build gocv

package camera

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"
)

// Webcam captures photos from a local video device through OpenCV.
type Webcam struct {
	logger *slog.Logger

	mu     sync.Mutex
	cap    *gocv.VideoCapture
	cfg    Config
	closed bool

	ready atomic.Bool
}

// NewWebcam opens the device described by cfg.
func NewWebcam(ctx context.Context, cfg Config, logger *slog.Logger) (*Webcam, error) {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Webcam{
		logger: logger.With("component", "camera.webcam"),
		cfg:    cfg,
	}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

// open must be called with mu held or before the webcam is shared.
func (w *Webcam) open() error {
	vc, err := gocv.OpenVideoCapture(w.cfg.DeviceID)
	if err != nil {
		return fmt.Errorf("camera: open device %d: %w", w.cfg.DeviceID, err)
	}
	vc.Set(gocv.VideoCaptureFrameWidth, float64(w.cfg.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(w.cfg.Height))

	frame := gocv.NewMat()
	defer frame.Close()
	for i := 0; i < w.cfg.WarmupFrames; i++ {
		vc.Read(&frame)
	}

	w.cap = vc
	w.ready.Store(true)
	w.logger.Info("webcam opened", "device", w.cfg.DeviceID, "width", w.cfg.Width, "height", w.cfg.Height)
	return nil
}

// Ready reports whether the device is open.
func (w *Webcam) Ready() bool {
	return w.ready.Load()
}

// Capture reads one frame and encodes it as JPEG.
func (w *Webcam) Capture(ctx context.Context, cfg Config) (*Photo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, ErrClosed
	}
	if w.cap == nil || !w.ready.Load() {
		return nil, ErrNotReady
	}

	frame := gocv.NewMat()
	defer frame.Close()
	if ok := w.cap.Read(&frame); !ok || frame.Empty() {
		return nil, ErrNoFrame
	}

	img := frame
	if s := cfg.Scale(frame.Cols(), frame.Rows()); s < 1 {
		resized := gocv.NewMat()
		defer resized.Close()
		gocv.Resize(frame, &resized, image.Point{}, s, s, gocv.InterpolationArea)
		img = resized
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, img, []int{int(gocv.IMWriteJpegQuality), cfg.Quality})
	if err != nil {
		return nil, fmt.Errorf("camera: encode: %w", err)
	}
	defer buf.Close()

	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())

	return &Photo{
		Data:     data,
		MimeType: "image/jpeg",
		Width:    img.Cols(),
		Height:   img.Rows(),
		TakenAt:  time.Now(),
	}, nil
}

// Remount closes and reopens the device.
func (w *Webcam) Remount(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	w.ready.Store(false)
	if w.cap != nil {
		w.cap.Close()
		w.cap = nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return w.open()
}

// Close releases the device.
func (w *Webcam) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.closed = true
	w.ready.Store(false)
	if w.cap != nil {
		err := w.cap.Close()
		w.cap = nil
		return err
	}
	return nil
}

var _ Device = (*Webcam)(nil)
