// Package speaker turns text into audible speech: a tts.Provider renders the
// audio and an audioio.Sink plays it.
package speaker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/nicholasching/Perception/pkg/audioio"
	"github.com/nicholasching/Perception/pkg/tts"
)

// FallbackPhrase is spoken when asked to say nothing.
const FallbackPhrase = "I have nothing to say."

// Speaker plays one utterance at a time. A new Speak interrupts the previous one.
type Speaker struct {
	provider tts.Provider
	sink     audioio.Sink
	logger   *slog.Logger

	speaking atomic.Bool
	spoken   atomic.Int64
	failed   atomic.Int64

	mu      sync.Mutex
	gen     uint64
	cancel  context.CancelFunc
	onStart func(text string)
	onDone  func(text string, err error)
}

// Option configures a Speaker.
type Option func(*Speaker)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Speaker) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates a speaker.
func New(provider tts.Provider, sink audioio.Sink, opts ...Option) *Speaker {
	s := &Speaker{
		provider: provider,
		sink:     sink,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "speaker", "provider", provider.Name(), "sink", sink.Name())
	return s
}

// OnStart sets a callback fired when playback of an utterance begins.
func (s *Speaker) OnStart(fn func(text string)) {
	s.mu.Lock()
	s.onStart = fn
	s.mu.Unlock()
}

// OnDone sets a callback fired when an utterance finishes, fails, or is
// interrupted.
func (s *Speaker) OnDone(fn func(text string, err error)) {
	s.mu.Lock()
	s.onDone = fn
	s.mu.Unlock()
}

// Speak starts saying text and returns a channel closed when it is done.
// IsSpeaking reports true from the moment Speak returns.
func (s *Speaker) Speak(ctx context.Context, text string) <-chan struct{} {
	text = strings.TrimSpace(text)
	if text == "" {
		text = FallbackPhrase
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.gen++
	gen := s.gen
	sctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.speaking.Store(true)
	onStart, onDone := s.onStart, s.onDone
	s.mu.Unlock()

	s.sink.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer cancel()

		err := s.say(sctx, text, onStart)
		if err != nil && sctx.Err() == nil {
			s.failed.Add(1)
			s.logger.Warn("speech failed", "error", err, "chars", len(text))
		} else if err == nil {
			s.spoken.Add(1)
		}

		// The flag belongs to the newest utterance; gen and speaking change
		// together under mu.
		s.mu.Lock()
		if s.gen == gen {
			s.cancel = nil
			s.speaking.Store(false)
		}
		s.mu.Unlock()
		if onDone != nil {
			onDone(text, err)
		}
	}()
	return done
}

func (s *Speaker) say(ctx context.Context, text string, onStart func(string)) error {
	result, err := s.provider.Synthesize(ctx, text)
	if err != nil {
		return fmt.Errorf("synthesize: %w", err)
	}
	if onStart != nil {
		onStart(text)
	}
	s.logger.Debug("playing", "chars", len(text), "bytes", len(result.Audio), "format", result.Format.Encoding)

	clip := audioio.Clip{
		Data:       result.Audio,
		Format:     result.Format.Encoding.Container(),
		SampleRate: result.Format.SampleRate,
	}
	if err := s.sink.Play(ctx, clip); err != nil {
		return fmt.Errorf("play: %w", err)
	}
	return nil
}

// IsSpeaking reports whether an utterance is being synthesized or played.
func (s *Speaker) IsSpeaking() bool {
	return s.speaking.Load()
}

// Stop interrupts the current utterance.
func (s *Speaker) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.gen++
	s.speaking.Store(false)
	s.mu.Unlock()

	s.sink.Stop()
}

// Stats contains speaker counters.
type Stats struct {
	Spoken   int64 `json:"spoken"`
	Failed   int64 `json:"failed"`
	Speaking bool  `json:"speaking"`
}

// GetStats returns speaker counters.
func (s *Speaker) GetStats() Stats {
	return Stats{
		Spoken:   s.spoken.Load(),
		Failed:   s.failed.Load(),
		Speaking: s.speaking.Load(),
	}
}
