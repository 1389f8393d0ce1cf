package audioio

import (
	"context"
	"io"
)

// AudioChunk represents a chunk of PCM16 audio.
type AudioChunk struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// Bytes returns the chunk as little-endian PCM16.
func (c *AudioChunk) Bytes() []byte {
	return SamplesToBytes(c.Samples)
}

// Duration returns the duration of this chunk in seconds.
func (c *AudioChunk) Duration() float64 {
	if c.SampleRate == 0 || c.Channels == 0 {
		return 0
	}
	return float64(len(c.Samples)) / float64(c.SampleRate*c.Channels)
}

// Source captures audio from a microphone.
type Source interface {
	// Start begins audio capture. Starting a running source is a no-op.
	Start(ctx context.Context) error

	// Stop halts audio capture. Safe to call multiple times.
	Stop() error

	// Read returns the next chunk, blocking if necessary.
	// Returns io.EOF once the source is stopped.
	Read(ctx context.Context) (AudioChunk, error)

	// Config returns the audio configuration.
	Config() Config

	// Name returns the backend name.
	Name() string

	io.Closer
}

// Clip is an encoded piece of audio to play back.
type Clip struct {
	Data       []byte
	Format     string // "mp3", "wav", "pcm16"
	SampleRate int
}

// Sink plays clips on a speaker.
type Sink interface {
	// Play blocks until the clip has finished playing, Stop is called, or
	// ctx is cancelled.
	Play(ctx context.Context, clip Clip) error

	// Stop interrupts the clip that is playing, if any.
	Stop() error

	// Name returns the backend name.
	Name() string
}
