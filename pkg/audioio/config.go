// Package audioio provides microphone capture and speaker playback.
//
// Backends:
//   - exec: pipes raw PCM from a recorder command (arecord, sox) and plays
//     encoded clips through a player command (ffplay, aplay)
//   - mock: synthetic silence and recorded playback for tests
package audioio

import (
	"fmt"
	"runtime"
	"time"
)

// Backend represents the audio backend type.
type Backend string

const (
	// BackendAuto picks exec on Linux and macOS, mock elsewhere.
	BackendAuto Backend = "auto"
	// BackendExec shells out to recorder and player commands.
	BackendExec Backend = "exec"
	// BackendMock uses a mock implementation for testing.
	BackendMock Backend = "mock"
)

// Config holds audio configuration.
type Config struct {
	// Backend specifies which audio backend to use.
	Backend Backend `toml:"backend" json:"backend"`

	// SampleRate is the capture sample rate in Hz.
	// Default: 16000 (LINEAR16 speech recognition)
	SampleRate int `toml:"sample_rate" json:"sample_rate"`

	// Channels is the number of capture channels.
	Channels int `toml:"channels" json:"channels"`

	// BufferDuration is the size of each captured chunk.
	BufferDuration time.Duration `toml:"buffer_duration" json:"buffer_duration"`

	// Device is the platform-specific input device, e.g. "default" or "plughw:1,0".
	Device string `toml:"device" json:"device"`

	// RecordCommand overrides the recorder argv. It must write raw signed
	// 16-bit little-endian PCM to stdout.
	RecordCommand []string `toml:"record_command" json:"record_command,omitempty"`

	// PlayCommand overrides the player argv. The clip is written to stdin.
	PlayCommand []string `toml:"play_command" json:"play_command,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:        BackendAuto,
		SampleRate:     16000,
		Channels:       1,
		BufferDuration: 100 * time.Millisecond,
		Device:         "",
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", c.Channels)
	}
	if c.BufferDuration <= 0 {
		return fmt.Errorf("buffer_duration must be positive, got %v", c.BufferDuration)
	}
	switch c.Backend {
	case BackendAuto, BackendExec, BackendMock, "":
	default:
		return fmt.Errorf("unsupported backend: %s", c.Backend)
	}
	return nil
}

// BufferSize returns the number of samples per channel per chunk.
func (c *Config) BufferSize() int {
	return int(float64(c.SampleRate) * c.BufferDuration.Seconds())
}

// BufferBytes returns the size of a chunk in bytes.
func (c *Config) BufferBytes() int {
	return c.BufferSize() * c.Channels * 2
}

func (c *Config) resolveBackend() Backend {
	if c.Backend != BackendAuto && c.Backend != "" {
		return c.Backend
	}
	switch runtime.GOOS {
	case "linux", "darwin":
		return BackendExec
	default:
		return BackendMock
	}
}
