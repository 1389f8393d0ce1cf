// Package geo keeps the most recent location fix reported by the device.
package geo

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

// ErrInvalidFix is returned for coordinates outside the valid range.
var ErrInvalidFix = errors.New("geo: invalid coordinates")

// Fix is a single location reading.
type Fix struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy,omitempty"` // metres
	At        time.Time `json:"at"`
}

// Validate checks the coordinate ranges.
func (f Fix) Validate() error {
	if math.IsNaN(f.Latitude) || math.IsNaN(f.Longitude) ||
		f.Latitude < -90 || f.Latitude > 90 ||
		f.Longitude < -180 || f.Longitude > 180 {
		return fmt.Errorf("%w: %v,%v", ErrInvalidFix, f.Latitude, f.Longitude)
	}
	return nil
}

// String formats the fix for speech, e.g. "43.6532 degrees north, 79.3832 degrees west".
func (f Fix) String() string {
	ns, ew := "north", "east"
	if f.Latitude < 0 {
		ns = "south"
	}
	if f.Longitude < 0 {
		ew = "west"
	}
	return fmt.Sprintf("%.4f degrees %s, %.4f degrees %s",
		math.Abs(f.Latitude), ns, math.Abs(f.Longitude), ew)
}

// Tracker holds the last valid fix. Safe for concurrent use.
type Tracker struct {
	mu    sync.RWMutex
	last  Fix
	ok    bool
	count int
	now   func() time.Time
	onFix func(Fix)
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{now: time.Now}
}

// OnFix sets a callback fired for every accepted fix.
func (t *Tracker) OnFix(fn func(Fix)) {
	t.mu.Lock()
	t.onFix = fn
	t.mu.Unlock()
}

// Update records f. A zero At is stamped with the current time.
func (t *Tracker) Update(f Fix) error {
	if err := f.Validate(); err != nil {
		return err
	}
	t.mu.Lock()
	if f.At.IsZero() {
		f.At = t.now()
	}
	t.last = f
	t.ok = true
	t.count++
	fn := t.onFix
	t.mu.Unlock()

	if fn != nil {
		fn(f)
	}
	return nil
}

// Last returns the most recent fix and whether one exists.
func (t *Tracker) Last() (Fix, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.last, t.ok
}

// Fresh returns the last fix if it is younger than maxAge.
func (t *Tracker) Fresh(maxAge time.Duration) (Fix, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.ok || t.now().Sub(t.last.At) > maxAge {
		return Fix{}, false
	}
	return t.last, true
}

// Count returns how many fixes were accepted.
func (t *Tracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.count
}
