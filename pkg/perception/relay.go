package perception

import (
	"log/slog"
	"sync"

	"github.com/nicholasching/Perception/pkg/describe"
	"github.com/nicholasching/Perception/pkg/geo"
)

// Relay forwards alerts and location lookups to whichever device is bound.
// The description service is built once, before any device connects, so it
// is given the relay instead of a device.
type Relay struct {
	mu       sync.RWMutex
	alerter  describe.Alerter
	locator  describe.Locator
	fallback describe.Alerter
}

// NewRelay creates a relay that logs alerts while no device is bound.
func NewRelay(logger *slog.Logger) *Relay {
	return &Relay{fallback: describe.LogAlerter{Logger: logger}}
}

func (r *Relay) set(a describe.Alerter, l describe.Locator) {
	r.mu.Lock()
	r.alerter, r.locator = a, l
	r.mu.Unlock()
}

// Alert shows the alert on the bound device, or logs it.
func (r *Relay) Alert(title, message string) {
	r.mu.RLock()
	a := r.alerter
	r.mu.RUnlock()
	if a == nil {
		a = r.fallback
	}
	a.Alert(title, message)
}

// Last returns the bound device's last location fix.
func (r *Relay) Last() (geo.Fix, bool) {
	r.mu.RLock()
	l := r.locator
	r.mu.RUnlock()
	if l == nil {
		return geo.Fix{}, false
	}
	return l.Last()
}

var (
	_ describe.Alerter = (*Relay)(nil)
	_ describe.Locator = (*Relay)(nil)
)
