package orientation

import (
	"sync"
	"time"
)

// MockSensor delivers samples only when Emit is called.
type MockSensor struct {
	mu        sync.Mutex
	handler   Handler
	interval  time.Duration
	subscribe int
	detached  int

	// SubscribeErr, when set, is returned by Subscribe.
	SubscribeErr error
}

// NewMockSensor creates a mock sensor.
func NewMockSensor() *MockSensor {
	return &MockSensor{}
}

// Subscribe records the handler.
func (m *MockSensor) Subscribe(interval time.Duration, h Handler) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SubscribeErr != nil {
		return nil, m.SubscribeErr
	}
	if h == nil {
		return nil, ErrNoHandler
	}
	m.handler = h
	m.interval = interval
	m.subscribe++
	return &mockSubscription{sensor: m}, nil
}

// Emit delivers a sample synchronously. It does nothing when no handler is
// subscribed.
func (m *MockSensor) Emit(s *Sample) {
	m.mu.Lock()
	h := m.handler
	m.mu.Unlock()
	if h != nil {
		h(s)
	}
}

// EmitDegrees delivers a sample with the given tilt.
func (m *MockSensor) EmitDegrees(deg float64) {
	s := FromDegrees(deg)
	m.Emit(&s)
}

// Subscribed reports whether a handler is attached.
func (m *MockSensor) Subscribed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handler != nil
}

// Counts returns how many times Subscribe and Detach were called.
func (m *MockSensor) Counts() (subscribe, detach int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subscribe, m.detached
}

// Interval returns the interval of the last subscription.
func (m *MockSensor) Interval() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interval
}

type mockSubscription struct {
	once   sync.Once
	sensor *MockSensor
}

func (s *mockSubscription) Detach() {
	s.once.Do(func() {
		s.sensor.mu.Lock()
		s.sensor.handler = nil
		s.sensor.detached++
		s.sensor.mu.Unlock()
	})
}

var _ Sensor = (*MockSensor)(nil)
