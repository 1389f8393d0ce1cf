package camera

import (
	"context"
	"sync"
	"time"
)

// MockDevice is a camera for tests. Behaviour is controlled through the
// Func fields; calls are recorded.
type MockDevice struct {
	mu sync.Mutex

	ready    bool
	closed   bool
	captures int
	remounts int

	// CaptureFunc overrides Capture. When nil a small fake JPEG is returned.
	CaptureFunc func(ctx context.Context, cfg Config) (*Photo, error)

	// RemountFunc overrides Remount. When nil the device becomes ready
	// again immediately.
	RemountFunc func(ctx context.Context) error

	// LastConfig is the config passed to the most recent Capture.
	LastConfig Config
}

// NewMockDevice creates a mock that is already ready.
func NewMockDevice() *MockDevice {
	return &MockDevice{ready: true}
}

// SetReady changes the ready flag.
func (m *MockDevice) SetReady(ready bool) {
	m.mu.Lock()
	m.ready = ready
	m.mu.Unlock()
}

// Ready reports the ready flag.
func (m *MockDevice) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready && !m.closed
}

// Capture records the call and returns a photo.
func (m *MockDevice) Capture(ctx context.Context, cfg Config) (*Photo, error) {
	m.mu.Lock()
	m.captures++
	m.LastConfig = cfg
	fn := m.CaptureFunc
	ready := m.ready
	closed := m.closed
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, cfg)
	}
	if closed {
		return nil, ErrClosed
	}
	if !ready {
		return nil, ErrNotReady
	}
	return &Photo{
		Data:     []byte{0xFF, 0xD8, 0xFF, 0xD9},
		MimeType: "image/jpeg",
		Width:    cfg.Width,
		Height:   cfg.Height,
		TakenAt:  time.Now(),
	}, nil
}

// Remount records the call.
func (m *MockDevice) Remount(ctx context.Context) error {
	m.mu.Lock()
	m.remounts++
	fn := m.RemountFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	m.SetReady(true)
	return nil
}

// Close marks the device closed.
func (m *MockDevice) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Captures returns how many times Capture was called.
func (m *MockDevice) Captures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.captures
}

// Remounts returns how many times Remount was called.
func (m *MockDevice) Remounts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remounts
}

var _ Device = (*MockDevice)(nil)
