// Package camera provides the photo-capture peripheral and its runtime
// configuration.
package camera

// Config holds the capture parameters. They can be modified at runtime via
// the settings API.
type Config struct {
	// Requested frame size in pixels.
	Width  int `json:"width"`
	Height int `json:"height"`

	// Quality is the JPEG compression quality 1-100.
	Quality int `json:"quality"`

	// MaxDimension downsizes photos so the longer edge fits. 0 disables.
	MaxDimension int `json:"max_dimension"`

	// Facing selects the lens on devices that have more than one.
	// Values: "back", "front"
	Facing string `json:"facing"`

	// DeviceID is the local video device index used by the webcam backend.
	DeviceID int `json:"device_id"`

	// WarmupFrames are read and discarded after (re)opening the device so
	// auto exposure can settle.
	WarmupFrames int `json:"warmup_frames"`
}

// Limits for configuration values.
const (
	MinWidth        = 160
	MinHeight       = 120
	MaxWidth        = 4096
	MaxHeight       = 4096
	MaxWarmupFrames = 30
)

// DefaultConfig returns the standard capture configuration. 1280x720 at
// 50% quality keeps uploads small while leaving enough detail for scene
// descriptions.
func DefaultConfig() Config {
	return Config{
		Width:        1280,
		Height:       720,
		Quality:      50,
		MaxDimension: 1280,
		Facing:       "back",
		DeviceID:     0,
		WarmupFrames: 3,
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.Width < MinWidth || c.Width > MaxWidth {
		errors = append(errors, "width must be between 160 and 4096")
	}
	if c.Height < MinHeight || c.Height > MaxHeight {
		errors = append(errors, "height must be between 120 and 4096")
	}
	if c.Quality < 1 || c.Quality > 100 {
		errors = append(errors, "quality must be between 1 and 100")
	}
	if c.MaxDimension != 0 && c.MaxDimension < MinHeight {
		errors = append(errors, "max_dimension must be 0 (off) or at least 120")
	}

	validFacing := map[string]bool{"back": true, "front": true}
	if c.Facing != "" && !validFacing[c.Facing] {
		errors = append(errors, "facing must be back or front")
	}

	if c.DeviceID < 0 {
		errors = append(errors, "device_id must not be negative")
	}
	if c.WarmupFrames < 0 || c.WarmupFrames > MaxWarmupFrames {
		errors = append(errors, "warmup_frames must be between 0 and 30")
	}

	return errors
}

// Scale returns the factor that fits w x h inside MaxDimension, or 1 when
// no downsizing is needed.
func (c *Config) Scale(w, h int) float64 {
	if c.MaxDimension <= 0 || w <= 0 || h <= 0 {
		return 1
	}
	longest := max(w, h)
	if longest <= c.MaxDimension {
		return 1
	}
	return float64(c.MaxDimension) / float64(longest)
}
