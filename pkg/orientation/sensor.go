package orientation

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"
)

// Sample is one device-motion reading. Angles are in radians.
type Sample struct {
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
	Gamma float64 `json:"gamma"`
}

// Degrees returns the front-back tilt (beta) in degrees.
func (s Sample) Degrees() float64 {
	return s.Beta * 180 / math.Pi
}

// FromDegrees builds a sample with the given front-back tilt.
func FromDegrees(deg float64) Sample {
	return Sample{Beta: deg * math.Pi / 180}
}

// Handler receives samples. A nil sample means the sensor produced no reading.
type Handler func(*Sample)

// Subscription is an active sensor listener.
type Subscription interface {
	// Detach stops delivery. Safe to call more than once.
	Detach()
}

// Sensor produces a tilt stream at a requested interval.
type Sensor interface {
	Subscribe(interval time.Duration, h Handler) (Subscription, error)
}

// ErrNoHandler is returned when subscribing with a nil handler.
var ErrNoHandler = errors.New("orientation: nil handler")

// ReadFunc returns the current tilt, or nil when unavailable.
type ReadFunc func() *Sample

// TickerSensor polls a ReadFunc on a ticker. It backs sensors that only
// expose a "current value", such as a fixed mount or the last sample pushed
// by a remote device.
type TickerSensor struct {
	read ReadFunc
}

// NewTickerSensor creates a polling sensor.
func NewTickerSensor(read ReadFunc) *TickerSensor {
	return &TickerSensor{read: read}
}

// Fixed returns a sensor that always reports the same tilt.
func Fixed(deg float64) *TickerSensor {
	s := FromDegrees(deg)
	return NewTickerSensor(func() *Sample {
		c := s
		return &c
	})
}

// Subscribe starts polling until the subscription is detached.
func (t *TickerSensor) Subscribe(interval time.Duration, h Handler) (Subscription, error) {
	if h == nil {
		return nil, ErrNoHandler
	}
	if interval <= 0 {
		interval = DefaultInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	sub := &tickerSubscription{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(sub.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h(t.read())
			}
		}
	}()

	return sub, nil
}

type tickerSubscription struct {
	once   sync.Once
	cancel context.CancelFunc
	done   chan struct{}
}

// Detach cancels polling and waits for the loop to exit, so no handler call
// happens after Detach returns.
func (s *tickerSubscription) Detach() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
}

var _ Sensor = (*TickerSensor)(nil)
