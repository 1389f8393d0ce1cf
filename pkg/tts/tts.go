// Package tts provides a unified interface for text-to-speech providers.
//
// Google Cloud Text-to-Speech is the primary backend; OpenAI speech is used
// as a fallback through Chain. All providers implement Provider, so the
// speaker does not care which one produced the audio.
//
// Example usage:
//
//	provider, _ := tts.NewGoogle(ctx,
//	    tts.WithLanguage("en-GB"),
//	    tts.WithGender(tts.GenderFemale),
//	)
//	defer provider.Close()
//
//	result, _ := provider.Synthesize(ctx, "Hello world")
//	// result.Audio contains MP3 bytes
package tts

import (
	"context"
	"time"
)

// Provider defines the TTS provider interface.
type Provider interface {
	// Synthesize converts text to audio, returning the complete audio buffer.
	Synthesize(ctx context.Context, text string) (*AudioResult, error)

	// Health checks provider connectivity and credentials.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error

	// Name identifies the provider in logs and errors.
	Name() string
}

// AudioResult represents a complete audio synthesis result.
type AudioResult struct {
	// Audio contains the encoded audio data.
	Audio []byte

	// Format describes the audio encoding and sample rate.
	Format AudioFormat

	// Duration is the estimated audio playback duration, if known.
	Duration time.Duration

	// CharCount is the number of characters synthesized.
	CharCount int

	// LatencyMs is the request round trip in milliseconds.
	LatencyMs int64
}

// AudioFormat describes the audio encoding parameters.
type AudioFormat struct {
	Encoding   Encoding
	SampleRate int
	Channels   int
	BitDepth   int
}

// Encoding represents audio encoding types.
type Encoding string

const (
	EncodingPCM16 Encoding = "pcm_16000" // 16kHz mono PCM16
	EncodingPCM24 Encoding = "pcm_24000" // 24kHz mono PCM16
	EncodingMP3   Encoding = "mp3"
	EncodingWAV   Encoding = "wav" // LINEAR16 with a RIFF header
	EncodingOpus  Encoding = "opus"
)

// Container returns the short format name players understand
// ("pcm16", "mp3", "wav", "opus").
func (e Encoding) Container() string {
	switch e {
	case EncodingPCM16, EncodingPCM24:
		return "pcm16"
	case "":
		return "mp3"
	default:
		return string(e)
	}
}

// Gender selects a voice gender for providers that pick voices by gender.
type Gender string

const (
	GenderUnspecified Gender = ""
	GenderFemale      Gender = "female"
	GenderMale        Gender = "male"
	GenderNeutral     Gender = "neutral"
)

// SampleRateFromEncoding returns the nominal sample rate of an encoding.
func SampleRateFromEncoding(enc Encoding) int {
	switch enc {
	case EncodingPCM16:
		return 16000
	default:
		return 24000
	}
}
