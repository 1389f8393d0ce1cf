// Package orientation watches the phone's tilt and reports when it crosses
// the activation angle.
package orientation

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nicholasching/Perception/pkg/haptics"
)

// DefaultInterval is the default sensor sampling interval (about 30 Hz).
const DefaultInterval = 33 * time.Millisecond

// CrossingFunc is called when the tilt crosses the activation angle.
// armed is the new side: true above the threshold, false below.
type CrossingFunc func(armed bool, degrees float64)

// Reading is the monitor's current view of the tilt.
type Reading struct {
	Degrees  float64 `json:"degrees"`
	Previous float64 `json:"previous"`
	Armed    bool    `json:"armed"`
}

// Monitor tracks the tilt stream and raises level-crossing events.
type Monitor struct {
	sensor   Sensor
	actuator haptics.Actuator
	logger   *slog.Logger
	interval time.Duration

	mu        sync.Mutex
	threshold float64
	current   Sample
	reading   Reading
	sub       Subscription
	crossings []CrossingFunc
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithInterval sets the sampling interval.
func WithInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) MonitorOption {
	return func(m *Monitor) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithHaptics sets the actuator pulsed on every crossing and on detach.
func WithHaptics(a haptics.Actuator) MonitorOption {
	return func(m *Monitor) {
		if a != nil {
			m.actuator = a
		}
	}
}

// NewMonitor creates a monitor over sensor. The tilt starts at 0 degrees, so
// the monitor starts inactive for any positive threshold.
func NewMonitor(sensor Sensor, threshold float64, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		sensor:    sensor,
		actuator:  haptics.Nop{},
		logger:    slog.Default(),
		interval:  DefaultInterval,
		threshold: threshold,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "orientation.monitor")
	m.reading.Armed = 0 > threshold
	return m
}

// OnCrossing registers a crossing listener. Listeners run on the sensor
// goroutine in registration order.
func (m *Monitor) OnCrossing(fn CrossingFunc) {
	m.mu.Lock()
	m.crossings = append(m.crossings, fn)
	m.mu.Unlock()
}

// SetThreshold changes the activation angle. The armed side is re-evaluated
// on the next sample.
func (m *Monitor) SetThreshold(deg float64) {
	m.mu.Lock()
	m.threshold = deg
	m.mu.Unlock()
}

// Threshold returns the activation angle in degrees.
func (m *Monitor) Threshold() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.threshold
}

// Attach subscribes to the sensor. Attaching twice is a no-op.
func (m *Monitor) Attach() error {
	m.mu.Lock()
	if m.sub != nil {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	sub, err := m.sensor.Subscribe(m.interval, m.Observe)
	if err != nil {
		return fmt.Errorf("orientation: subscribe: %w", err)
	}

	m.mu.Lock()
	m.sub = sub
	m.mu.Unlock()

	m.logger.Debug("sensor attached", "interval", m.interval)
	return nil
}

// Detach removes the sensor subscription and fires a single exit pulse.
// Detaching when not attached does nothing.
func (m *Monitor) Detach() {
	m.mu.Lock()
	sub := m.sub
	m.sub = nil
	m.mu.Unlock()

	if sub == nil {
		return
	}
	sub.Detach()
	m.actuator.Pulse(haptics.Light)
	m.logger.Debug("sensor detached")
}

// Attached reports whether a subscription is active.
func (m *Monitor) Attached() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sub != nil
}

// Observe processes one sample. A nil sample is ignored.
func (m *Monitor) Observe(s *Sample) {
	if s == nil {
		return
	}

	deg := s.Degrees()

	m.mu.Lock()
	wasArmed := m.reading.Armed
	armed := deg > m.threshold
	m.current = *s
	m.reading = Reading{Degrees: deg, Previous: m.reading.Degrees, Armed: armed}
	var listeners []CrossingFunc
	if armed != wasArmed {
		listeners = make([]CrossingFunc, len(m.crossings))
		copy(listeners, m.crossings)
	}
	m.mu.Unlock()

	if armed == wasArmed {
		return
	}

	m.logger.Debug("threshold crossed", "armed", armed, "degrees", deg)
	m.actuator.Pulse(haptics.Rigid)
	for _, fn := range listeners {
		fn(armed, deg)
	}
}

// Armed reports whether the last sample was above the activation angle.
func (m *Monitor) Armed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reading.Armed
}

// Reading returns the current and previous tilt.
func (m *Monitor) Reading() Reading {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reading
}

// Sample returns the last raw sample.
func (m *Monitor) Sample() Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}
