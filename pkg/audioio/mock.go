package audioio

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"
)

// MockSource stands in for a microphone. While started it produces one
// chunk of silence per BufferDuration; Feed injects chunks of its own.
type MockSource struct {
	cfg     Config
	logger  *slog.Logger
	silence bool

	mu     sync.Mutex
	closed bool
	run    *mockRun // nil when stopped
}

type mockRun struct {
	chunks chan AudioChunk
	done   chan struct{}
}

func NewMockSource(cfg Config, logger *slog.Logger) *MockSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &MockSource{cfg: cfg, logger: logger, silence: true}
}

// Quiet turns the silence generator off; only fed chunks are read.
func (m *MockSource) Quiet() *MockSource {
	m.silence = false
	return m
}

func (m *MockSource) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.closed:
		return io.ErrClosedPipe
	case m.run != nil:
		return nil
	}
	r := &mockRun{chunks: make(chan AudioChunk, 32), done: make(chan struct{})}
	m.run = r
	if m.silence {
		go m.tick(ctx, r)
	}
	return nil
}

func (m *MockSource) tick(ctx context.Context, r *mockRun) {
	t := time.NewTicker(m.cfg.BufferDuration)
	defer t.Stop()
	frame := m.cfg.BufferSize() * m.cfg.Channels
	for {
		select {
		case <-ctx.Done():
			m.Stop()
			return
		case <-r.done:
			return
		case <-t.C:
			m.Feed(AudioChunk{Samples: make([]int16, frame), SampleRate: m.cfg.SampleRate, Channels: m.cfg.Channels})
		}
	}
}

// Feed queues c for Read. Chunks fed while stopped, or beyond the queue, are lost.
func (m *MockSource) Feed(c AudioChunk) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.run == nil {
		return
	}
	select {
	case m.run.chunks <- c:
	default:
		m.logger.Debug("mock source queue full, chunk dropped")
	}
}

// Stop ends the run. Queued chunks can still be read, then Read returns io.EOF.
func (m *MockSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r := m.run; r != nil {
		m.run = nil
		close(r.done)
		close(r.chunks)
	}
	return nil
}

func (m *MockSource) Read(ctx context.Context) (AudioChunk, error) {
	m.mu.Lock()
	r := m.run
	m.mu.Unlock()
	if r == nil {
		return AudioChunk{}, io.EOF
	}
	select {
	case <-ctx.Done():
		return AudioChunk{}, ctx.Err()
	case c, ok := <-r.chunks:
		if !ok {
			return AudioChunk{}, io.EOF
		}
		return c, nil
	}
}

func (m *MockSource) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.run != nil
}

func (m *MockSource) Config() Config { return m.cfg }
func (m *MockSource) Name() string   { return "mock" }

func (m *MockSource) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return m.Stop()
}

// MockSink pretends to play clips, each lasting PlayDuration unless Stop
// cuts it short. Every clip is kept for inspection.
type MockSink struct {
	PlayDuration time.Duration

	mu      sync.Mutex
	clips   []Clip
	playing chan struct{}
}

func NewMockSink(d time.Duration) *MockSink {
	return &MockSink{PlayDuration: d}
}

func (m *MockSink) Play(ctx context.Context, clip Clip) error {
	cut := make(chan struct{})
	m.mu.Lock()
	m.clips = append(m.clips, clip)
	m.playing = cut
	m.mu.Unlock()

	select {
	case <-time.After(m.PlayDuration):
	case <-cut:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (m *MockSink) Stop() error {
	m.mu.Lock()
	if m.playing != nil {
		close(m.playing)
		m.playing = nil
	}
	m.mu.Unlock()
	return nil
}

// Clips returns a copy of everything played so far.
func (m *MockSink) Clips() []Clip {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Clip(nil), m.clips...)
}

func (m *MockSink) Name() string { return "mock" }

var (
	_ Source = (*MockSource)(nil)
	_ Sink   = (*MockSink)(nil)
)
