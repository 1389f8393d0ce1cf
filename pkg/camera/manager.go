package camera

import (
	"fmt"
	"strings"
	"sync"
)

// Manager owns the capture parameters used for the next photo. The user's
// compression setting lands here on every focus.
type Manager struct {
	mu  sync.RWMutex
	cur Config

	// OnConfigChange, if set, is given each accepted config. An error is
	// returned to the caller but the config stays accepted.
	OnConfigChange func(cfg Config) error
}

func NewManager() *Manager {
	return &Manager{cur: DefaultConfig()}
}

func (m *Manager) GetConfig() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cur
}

// SetConfig replaces the parameters after validating them.
func (m *Manager) SetConfig(cfg Config) error {
	if problems := cfg.Validate(); len(problems) > 0 {
		return fmt.Errorf("camera: invalid config: %s", strings.Join(problems, "; "))
	}
	m.mu.Lock()
	m.cur = cfg
	notify := m.OnConfigChange
	m.mu.Unlock()

	if notify == nil {
		return nil
	}
	if err := notify(cfg); err != nil {
		return fmt.Errorf("camera: apply config: %w", err)
	}
	return nil
}

// SetQuality changes the JPEG quality and nothing else.
func (m *Manager) SetQuality(q int) error {
	cfg := m.GetConfig()
	cfg.Quality = q
	return m.SetConfig(cfg)
}

// UsePreset switches to a named preset, keeping the current quality when it
// is higher than the preset's.
func (m *Manager) UsePreset(name string) error {
	cfg, err := m.Preset(name)
	if err != nil {
		return err
	}
	return m.SetConfig(cfg)
}

// Preset returns the named preset tuned by the current config without
// changing it. One-off captures such as text reading use this.
func (m *Manager) Preset(name string) (Config, error) {
	p := GetPreset(name)
	if p == nil {
		return Config{}, fmt.Errorf("camera: unknown preset %q (have %s)", name, strings.Join(PresetNames(), ", "))
	}
	cur := m.GetConfig()
	if cur.Quality > p.Quality {
		p.Quality = cur.Quality
	}
	p.DeviceID = cur.DeviceID
	return *p, nil
}
