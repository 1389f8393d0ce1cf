// Package config loads the isight service configuration.
//
// Values come from, in increasing precedence: built-in defaults, a TOML
// file, environment variables (optionally seeded from a .env file), and
// command-line flags applied by the binary.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/nicholasching/Perception/pkg/audioio"
	"github.com/nicholasching/Perception/pkg/camera"
)

// Modes select where the peripherals come from.
const (
	ModeBridge = "bridge"
	ModeLocal  = "local"
)

// Config is the service configuration.
type Config struct {
	Mode     string `toml:"mode" validate:"oneof=bridge local"`
	LogLevel string `toml:"log_level" validate:"oneof=debug info warn warning error"`

	Server   Server   `toml:"server"`
	Settings Settings `toml:"settings"`
	Bridge   Bridge   `toml:"bridge"`
	Google   Google   `toml:"google"`
	OpenAI   OpenAI   `toml:"openai"`
	Weather  Weather  `toml:"weather"`
	Local    Local    `toml:"local"`
}

// Server configures the dashboard.
type Server struct {
	Addr      string `toml:"addr" validate:"required"`
	StaticDir string `toml:"static_dir"`
}

// Settings locates the user settings file and the capture scratch directory.
// Empty paths use the user config dir and a fresh temp dir.
type Settings struct {
	Path       string `toml:"path"`
	CaptureDir string `toml:"capture_dir"`
}

// Bridge configures the device websocket.
type Bridge struct {
	RequestTimeout time.Duration `toml:"request_timeout" validate:"gt=0"`
}

// Google configures speech, text-to-speech and Gemini.
type Google struct {
	// CredentialsFile is a service account JSON for speech and TTS.
	// Empty uses Application Default Credentials.
	CredentialsFile string `toml:"credentials_file"`
	// APIKey authenticates speech and TTS when no credentials are available.
	APIKey       string  `toml:"api_key"`
	Language     string  `toml:"language" validate:"required"`
	SpeakingRate float64 `toml:"speaking_rate" validate:"gte=0.25,lte=4"`
	// GeminiBaseURL overrides the Gemini endpoint.
	GeminiBaseURL string `toml:"gemini_base_url" validate:"omitempty,url"`
}

// OpenAI configures the fallback vision model and voice. Both are disabled
// without a key.
type OpenAI struct {
	APIKey      string `toml:"api_key"`
	VisionModel string `toml:"vision_model"`
	Voice       string `toml:"voice"`
}

// Weather configures prompt enrichment.
type Weather struct {
	Enabled  bool          `toml:"enabled"`
	BaseURL  string        `toml:"base_url" validate:"omitempty,url"`
	CacheTTL time.Duration `toml:"cache_ttl" validate:"gte=0"`
}

// Local configures the on-host peripherals used in local mode.
type Local struct {
	// Angle is the fixed tilt reported by the stand-in orientation sensor.
	Angle       float64        `toml:"angle" validate:"gte=-180,lte=180"`
	CameraIndex int            `toml:"camera_index" validate:"gte=0"`
	Width       int            `toml:"width" validate:"gte=160,lte=4096"`
	Height      int            `toml:"height" validate:"gte=120,lte=4096"`
	Audio       audioio.Config `toml:"audio"`
}

// Default returns the built-in configuration.
func Default() Config {
	cam := camera.DefaultConfig()
	return Config{
		Mode:     ModeBridge,
		LogLevel: "info",
		Server:   Server{Addr: ":8080"},
		Bridge:   Bridge{RequestTimeout: 15 * time.Second},
		Google: Google{
			Language:     "en-GB",
			SpeakingRate: 1.0,
		},
		OpenAI: OpenAI{
			VisionModel: "gpt-4o-mini",
			Voice:       "nova",
		},
		Weather: Weather{
			Enabled:  true,
			CacheTTL: 10 * time.Minute,
		},
		Local: Local{
			Angle:       90,
			CameraIndex: cam.DeviceID,
			Width:       cam.Width,
			Height:      cam.Height,
			Audio:       audioio.DefaultConfig(),
		},
	}
}

// CameraConfig returns the capture config for the local webcam.
func (l Local) CameraConfig() camera.Config {
	cfg := camera.DefaultConfig()
	cfg.DeviceID = l.CameraIndex
	cfg.Width = l.Width
	cfg.Height = l.Height
	return cfg
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads path over the defaults and applies environment overrides.
// A missing file is not an error; an empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// LoadDotEnv loads environment variables from files, ignoring those that
// do not exist. Variables already set are not overridden.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from environment variables looked up with
// lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("ISIGHT_MODE", &c.Mode)
	str("LOG_LEVEL", &c.LogLevel)
	str("ISIGHT_ADDR", &c.Server.Addr)
	str("ISIGHT_STATIC_DIR", &c.Server.StaticDir)
	str("ISIGHT_SETTINGS", &c.Settings.Path)
	str("ISIGHT_CAPTURE_DIR", &c.Settings.CaptureDir)
	str("GOOGLE_APPLICATION_CREDENTIALS", &c.Google.CredentialsFile)
	str("GOOGLE_API_KEY", &c.Google.APIKey)
	str("ISIGHT_LANGUAGE", &c.Google.Language)
	str("OPENAI_API_KEY", &c.OpenAI.APIKey)
	str("OPENAI_VISION_MODEL", &c.OpenAI.VisionModel)
	str("OPENAI_VOICE", &c.OpenAI.Voice)

	if v, ok := lookup("ISIGHT_REQUEST_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: ISIGHT_REQUEST_TIMEOUT: %w", err)
		}
		c.Bridge.RequestTimeout = d
	}
	if v, ok := lookup("ISIGHT_ANGLE"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("config: ISIGHT_ANGLE: %w", err)
		}
		c.Local.Angle = f
	}
	if v, ok := lookup("ISIGHT_WEATHER"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: ISIGHT_WEATHER: %w", err)
		}
		c.Weather.Enabled = b
	}
	return nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, e := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", e.Namespace(), e.Tag()))
			}
			return fmt.Errorf("config: invalid: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("config: %w", err)
	}
	if err := c.Local.Audio.Validate(); err != nil {
		return fmt.Errorf("config: local.audio: %w", err)
	}
	return nil
}
