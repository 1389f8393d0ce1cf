package tts

import (
	"context"
	"sync"
	"time"
)

// Mock is a Provider for tests. It records every phrase it is asked to
// speak and answers with silence sized to the text.
type Mock struct {
	// Err, when set, fails Synthesize and Health.
	Err error
	// Delay is waited before each answer. Cancelling ctx cuts it short.
	Delay time.Duration
	// SynthesizeFunc replaces the silent clip.
	SynthesizeFunc func(ctx context.Context, text string) (*AudioResult, error)

	mu     sync.Mutex
	spoken []string
	checks int
	closed bool
}

// NewMock creates a mock that always succeeds.
func NewMock() *Mock {
	return &Mock{}
}

// WithError returns a mock that fails with err.
func WithError(err error) *Mock {
	return &Mock{Err: err}
}

// WithLatency adds delay to m and returns it.
func WithLatency(m *Mock, delay time.Duration) *Mock {
	m.Delay = delay
	return m
}

// Synthesize records text and returns ~20ms of 24kHz silence per character.
func (m *Mock) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	m.mu.Lock()
	m.spoken = append(m.spoken, text)
	m.mu.Unlock()

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.Err != nil {
		return nil, m.Err
	}
	if m.SynthesizeFunc != nil {
		return m.SynthesizeFunc(ctx, text)
	}
	return silence(text), nil
}

func silence(text string) *AudioResult {
	const bytesPerChar = 960 // 20ms of mono PCM16 at 24kHz
	return &AudioResult{
		Audio: make([]byte, len(text)*bytesPerChar),
		Format: AudioFormat{
			Encoding:   EncodingPCM24,
			SampleRate: 24000,
			Channels:   1,
			BitDepth:   16,
		},
		CharCount: len(text),
		LatencyMs: 1,
		Duration:  time.Duration(len(text)) * 20 * time.Millisecond,
	}
}

// Health counts the check and returns Err.
func (m *Mock) Health(ctx context.Context) error {
	m.mu.Lock()
	m.checks++
	m.mu.Unlock()
	return m.Err
}

// Close marks the mock closed.
func (m *Mock) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Name returns "mock".
func (m *Mock) Name() string { return "mock" }

// Spoken returns every text passed to Synthesize, oldest first.
func (m *Mock) Spoken() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.spoken...)
}

// Last returns the most recent text, or "" if nothing was synthesized.
func (m *Mock) Last() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.spoken) == 0 {
		return ""
	}
	return m.spoken[len(m.spoken)-1]
}

// HealthChecks returns how many times Health was called.
func (m *Mock) HealthChecks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checks
}

// Closed reports whether Close was called.
func (m *Mock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Reset forgets what was spoken.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spoken = nil
	m.checks = 0
}

var _ Provider = (*Mock)(nil)
