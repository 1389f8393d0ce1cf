package listener

import (
	"context"
	"sync"
)

// MockRecognizer is a recognizer for tests. Events are injected with the
// Emit methods; Start and Stop emit OnStart and OnEnd synchronously unless
// Manual is set.
type MockRecognizer struct {
	mu sync.Mutex
	cb Callbacks

	// Granted is returned by RequestPermission.
	Granted bool

	// Manual disables the automatic start/end events.
	Manual bool

	// StartErr, when set, is returned by Start.
	StartErr error

	// PermissionFunc, when set, replaces Granted.
	PermissionFunc func(ctx context.Context) (bool, error)

	starts      int
	stops       int
	permissions int
	running     bool
	lastOptions Options
}

// NewMockRecognizer creates a mock that grants permission.
func NewMockRecognizer() *MockRecognizer {
	return &MockRecognizer{Granted: true}
}

// RequestPermission returns Granted.
func (m *MockRecognizer) RequestPermission(ctx context.Context) (bool, error) {
	m.mu.Lock()
	m.permissions++
	fn, granted := m.PermissionFunc, m.Granted
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx)
	}
	return granted, nil
}

// SetCallbacks stores the callbacks.
func (m *MockRecognizer) SetCallbacks(cb Callbacks) {
	m.mu.Lock()
	m.cb = cb
	m.mu.Unlock()
}

// Start records the call.
func (m *MockRecognizer) Start(ctx context.Context, opts Options) error {
	m.mu.Lock()
	if m.StartErr != nil {
		m.mu.Unlock()
		return m.StartErr
	}
	m.starts++
	m.running = true
	m.lastOptions = opts
	manual := m.Manual
	m.mu.Unlock()

	if !manual {
		m.EmitStart()
	}
	return nil
}

// Stop records the call.
func (m *MockRecognizer) Stop() error {
	m.mu.Lock()
	m.stops++
	m.running = false
	manual := m.Manual
	m.mu.Unlock()

	if !manual {
		m.EmitEnd()
	}
	return nil
}

// EmitStart fires OnStart.
func (m *MockRecognizer) EmitStart() {
	if cb := m.callbacks(); cb.OnStart != nil {
		cb.OnStart()
	}
}

// EmitEnd fires OnEnd.
func (m *MockRecognizer) EmitEnd() {
	if cb := m.callbacks(); cb.OnEnd != nil {
		cb.OnEnd()
	}
}

// EmitResult fires OnResult.
func (m *MockRecognizer) EmitResult(text string, final bool) {
	if cb := m.callbacks(); cb.OnResult != nil {
		cb.OnResult(text, final)
	}
}

// EmitError fires OnError.
func (m *MockRecognizer) EmitError(code string, err error) {
	if cb := m.callbacks(); cb.OnError != nil {
		cb.OnError(code, err)
	}
}

func (m *MockRecognizer) callbacks() Callbacks {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cb
}

// Counts returns how many times Start, Stop and RequestPermission were called.
func (m *MockRecognizer) Counts() (starts, stops, permissions int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts, m.stops, m.permissions
}

// Running reports whether Start was called without a matching Stop.
func (m *MockRecognizer) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// LastOptions returns the options of the most recent Start.
func (m *MockRecognizer) LastOptions() Options {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastOptions
}

var _ Recognizer = (*MockRecognizer)(nil)
