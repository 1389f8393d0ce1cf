package camera

// Preset names for common configurations
const (
	PresetDefault = "default"
	PresetLow     = "low"
	PresetText    = "text"
	PresetSelfie  = "selfie"
)

// Presets returns all available preset configurations.
func Presets() map[string]Config {
	return map[string]Config{
		PresetDefault: DefaultConfig(),
		PresetLow:     LowBandwidthConfig(),
		PresetText:    TextConfig(),
		PresetSelfie:  SelfieConfig(),
	}
}

// PresetNames returns the list of available preset names.
func PresetNames() []string {
	return []string{PresetDefault, PresetLow, PresetText, PresetSelfie}
}

// GetPreset returns a preset config by name, or nil if not found.
func GetPreset(name string) *Config {
	if cfg, ok := Presets()[name]; ok {
		return &cfg
	}
	return nil
}

// LowBandwidthConfig trades detail for upload size on slow connections.
func LowBandwidthConfig() Config {
	cfg := DefaultConfig()
	cfg.Width = 640
	cfg.Height = 480
	cfg.Quality = 35
	cfg.MaxDimension = 640
	return cfg
}

// TextConfig keeps full resolution and higher quality so small or distant
// print stays legible.
func TextConfig() Config {
	cfg := DefaultConfig()
	cfg.Width = 1920
	cfg.Height = 1080
	cfg.Quality = 85
	cfg.MaxDimension = 0
	return cfg
}

// SelfieConfig uses the front lens.
func SelfieConfig() Config {
	cfg := DefaultConfig()
	cfg.Facing = "front"
	return cfg
}
