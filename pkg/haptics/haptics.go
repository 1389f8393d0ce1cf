// Package haptics defines fire-and-forget vibration feedback.
package haptics

import (
	"log/slog"
	"sync"
)

// Intensity is the strength of a haptic pulse.
type Intensity string

const (
	Light  Intensity = "light"
	Medium Intensity = "medium"
	Rigid  Intensity = "rigid"
)

// Actuator produces a haptic pulse. Implementations must not block on the
// physical effect and must never fail the caller.
type Actuator interface {
	Pulse(Intensity)
}

// Func adapts a function to Actuator.
type Func func(Intensity)

// Pulse calls f.
func (f Func) Pulse(i Intensity) { f(i) }

// Nop discards every pulse.
type Nop struct{}

// Pulse does nothing.
func (Nop) Pulse(Intensity) {}

// Logging records pulses at debug level. Used when no device is attached.
type Logging struct {
	Logger *slog.Logger
}

// Pulse logs the intensity.
func (l Logging) Pulse(i Intensity) {
	if l.Logger != nil {
		l.Logger.Debug("haptic pulse", "intensity", i)
	}
}

// Mock records pulses for tests.
type Mock struct {
	mu     sync.Mutex
	pulses []Intensity
}

// Pulse records the intensity.
func (m *Mock) Pulse(i Intensity) {
	m.mu.Lock()
	m.pulses = append(m.pulses, i)
	m.mu.Unlock()
}

// Pulses returns a copy of the recorded pulses.
func (m *Mock) Pulses() []Intensity {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Intensity, len(m.pulses))
	copy(out, m.pulses)
	return out
}

// Count returns how many pulses were recorded.
func (m *Mock) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pulses)
}

// Reset clears recorded pulses.
func (m *Mock) Reset() {
	m.mu.Lock()
	m.pulses = nil
	m.mu.Unlock()
}

var (
	_ Actuator = Func(nil)
	_ Actuator = Nop{}
	_ Actuator = Logging{}
	_ Actuator = (*Mock)(nil)
)
