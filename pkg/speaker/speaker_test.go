package speaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nicholasching/Perception/internal/log"
	"github.com/nicholasching/Perception/pkg/audioio"
	"github.com/nicholasching/Perception/pkg/tts"
)

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("utterance did not finish")
	}
}

func TestSpeak(t *testing.T) {
	provider := tts.NewMock()
	sink := audioio.NewMockSink(20 * time.Millisecond)
	s := New(provider, sink, WithLogger(log.Nop()))

	var started, finished string
	s.OnStart(func(text string) { started = text })
	s.OnDone(func(text string, err error) { finished = text })

	done := s.Speak(context.Background(), "Chair ahead")
	if !s.IsSpeaking() {
		t.Error("expected speaking right after Speak")
	}
	waitDone(t, done)

	if s.IsSpeaking() {
		t.Error("still speaking after done")
	}
	if started != "Chair ahead" || finished != "Chair ahead" {
		t.Errorf("callbacks saw %q / %q", started, finished)
	}
	clips := sink.Clips()
	if len(clips) != 1 {
		t.Fatalf("clips = %d, want 1", len(clips))
	}
	if clips[0].Format != "pcm16" || clips[0].SampleRate != 24000 {
		t.Errorf("clip = %s@%d", clips[0].Format, clips[0].SampleRate)
	}
	if got := s.GetStats(); got.Spoken != 1 || got.Failed != 0 {
		t.Errorf("stats = %+v", got)
	}
}

func TestSpeakEmptyUsesFallback(t *testing.T) {
	provider := tts.NewMock()
	s := New(provider, audioio.NewMockSink(time.Millisecond), WithLogger(log.Nop()))

	waitDone(t, s.Speak(context.Background(), "   "))

	if last := provider.Last(); last != FallbackPhrase {
		t.Errorf("synthesized %q, want fallback phrase", last)
	}
}

func TestSpeakInterrupts(t *testing.T) {
	sink := audioio.NewMockSink(time.Second)
	s := New(tts.NewMock(), sink, WithLogger(log.Nop()))
	ctx := context.Background()

	first := s.Speak(ctx, "first")
	time.Sleep(20 * time.Millisecond)
	second := s.Speak(ctx, "second")

	select {
	case <-first:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("first utterance was not interrupted")
	}
	if !s.IsSpeaking() {
		t.Error("interrupted utterance cleared the speaking flag of the new one")
	}

	s.Stop()
	waitDone(t, second)
	if s.IsSpeaking() {
		t.Error("speaking after Stop")
	}
}

func TestSpeakProviderError(t *testing.T) {
	s := New(tts.WithError(errors.New("quota")), audioio.NewMockSink(time.Millisecond), WithLogger(log.Nop()))

	var gotErr error
	s.OnDone(func(text string, err error) { gotErr = err })
	waitDone(t, s.Speak(context.Background(), "hello"))

	if gotErr == nil {
		t.Error("expected error in OnDone")
	}
	if s.IsSpeaking() {
		t.Error("speaking after failure")
	}
	if got := s.GetStats().Failed; got != 1 {
		t.Errorf("failed = %d, want 1", got)
	}
}

func TestStopRacingSpeak(t *testing.T) {
	s := New(tts.NewMock(), audioio.NewMockSink(time.Millisecond), WithLogger(log.Nop()))
	ctx := context.Background()

	for i := 0; i < 200; i++ {
		var (
			wg   sync.WaitGroup
			done <-chan struct{}
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			done = s.Speak(ctx, "door on the left")
		}()
		go func() {
			defer wg.Done()
			s.Stop()
		}()
		wg.Wait()
		waitDone(t, done)

		if s.IsSpeaking() {
			t.Fatalf("round %d: speaking after Stop and a finished utterance", i)
		}
	}
}
