// Package listener manages the continuous speech-recognition session and
// feeds its results into the working transcript.
package listener

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/nicholasching/Perception/pkg/transcript"
)

// Conditions are the external signals that gate a start.
type Conditions struct {
	Armed      bool
	Processing bool
	Speaking   bool
}

// Listener wraps a Recognizer with the start/stop discipline of the assistant.
type Listener struct {
	rec    Recognizer
	buf    *transcript.Buffer
	opts   Options
	logger *slog.Logger

	recognizing atomic.Bool
	starting    atomic.Bool
	denied      atomic.Bool
	resetNext   atomic.Bool

	// gen counts Stop calls. A start begun under an older generation is
	// abandoned; startedGen is the generation of the last rec.Start.
	startMu    sync.Mutex
	gen        atomic.Uint64
	startedGen atomic.Uint64

	mu       sync.Mutex
	onChange func()
	starts   int
	stops    int
	lastErr  string
}

// Option configures a Listener.
type Option func(*Listener)

// WithOptions sets the recognizer options.
func WithOptions(o Options) Option {
	return func(l *Listener) { l.opts = o }
}

// WithLogger sets the logger.
func WithLogger(lg *slog.Logger) Option {
	return func(l *Listener) {
		if lg != nil {
			l.logger = lg
		}
	}
}

// New creates a listener and installs its callbacks on rec. buf is the
// transcript the listener is the sole writer of.
func New(rec Recognizer, buf *transcript.Buffer, opts ...Option) *Listener {
	l := &Listener{
		rec:    rec,
		buf:    buf,
		opts:   DefaultOptions(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("component", "listener")

	rec.SetCallbacks(Callbacks{
		OnStart:  l.handleStart,
		OnEnd:    l.handleEnd,
		OnResult: l.handleResult,
		OnError:  l.handleError,
	})
	return l
}

// OnChange sets a callback fired whenever the recognizing flag or the
// transcript changes.
func (l *Listener) OnChange(fn func()) {
	l.mu.Lock()
	l.onChange = fn
	l.mu.Unlock()
}

// CanStart reports whether a start would be attempted under c.
func (l *Listener) CanStart(c Conditions) bool {
	return c.Armed && !c.Processing && !c.Speaking &&
		!l.recognizing.Load() && !l.starting.Load() && !l.denied.Load()
}

// TryStart starts recognition if the conditions allow it. It returns
// (false, nil) when the conditions do not allow a start or when Stop is
// called while permission is being requested. A permission denial is
// remembered: later calls do nothing until ClearDenial.
func (l *Listener) TryStart(ctx context.Context, c Conditions) (bool, error) {
	if !l.CanStart(c) {
		return false, nil
	}
	if !l.starting.CompareAndSwap(false, true) {
		return false, nil
	}
	gen := l.gen.Load()

	granted, err := l.rec.RequestPermission(ctx)
	if l.gen.Load() != gen {
		// Stop already cleared starting.
		l.logger.Debug("start abandoned after stop")
		return false, nil
	}
	if err != nil {
		l.starting.Store(false)
		return false, fmt.Errorf("listener: request permission: %w", err)
	}
	if !granted {
		l.denied.Store(true)
		l.starting.Store(false)
		l.logger.Warn("speech recognition permission denied")
		return false, ErrPermissionDenied
	}

	l.startMu.Lock()
	if l.gen.Load() != gen {
		l.startMu.Unlock()
		l.logger.Debug("start abandoned after stop")
		return false, nil
	}
	if l.resetNext.Swap(false) {
		l.buf.Reset()
	}
	l.startedGen.Store(gen)
	err = l.rec.Start(ctx, l.opts)
	l.startMu.Unlock()
	if err != nil {
		l.starting.Store(false)
		return false, fmt.Errorf("listener: start: %w", err)
	}

	l.mu.Lock()
	l.starts++
	l.mu.Unlock()
	l.logger.Debug("recognition starting", "language", l.opts.Language)
	return true, nil
}

// Stop ends recognition. It calls the recognizer only when a session is
// running or starting, so repeated calls are harmless. A start still waiting
// on permission is abandoned.
func (l *Listener) Stop() {
	l.startMu.Lock()
	l.gen.Add(1)
	active := l.recognizing.Load() || l.starting.Load()
	l.starting.Store(false)
	l.recognizing.Store(false)
	l.startMu.Unlock()
	if !active {
		return
	}
	l.resetNext.Store(true)

	l.mu.Lock()
	l.stops++
	l.mu.Unlock()

	if err := l.rec.Stop(); err != nil {
		l.logger.Warn("recognizer stop failed", "error", err)
	}
	l.notify()
}

// ClearDenial allows TryStart again after a permission denial. Called when
// the user re-focuses the screen or moves the phone across the threshold.
func (l *Listener) ClearDenial() {
	l.denied.Store(false)
}

// Recognizing reports whether a session is active.
func (l *Listener) Recognizing() bool {
	return l.recognizing.Load()
}

// Denied reports whether the last attempt was refused.
func (l *Listener) Denied() bool {
	return l.denied.Load()
}

// Stats contains listener counters.
type Stats struct {
	Starts    int    `json:"starts"`
	Stops     int    `json:"stops"`
	LastError string `json:"last_error,omitempty"`
}

// GetStats returns listener counters.
func (l *Listener) GetStats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{Starts: l.starts, Stops: l.stops, LastError: l.lastErr}
}

func (l *Listener) handleStart() {
	if l.startedGen.Load() != l.gen.Load() {
		// A session from before the last Stop came up late.
		l.logger.Debug("stopping stale recognition session")
		if err := l.rec.Stop(); err != nil {
			l.logger.Warn("recognizer stop failed", "error", err)
		}
		return
	}
	l.starting.Store(false)
	l.recognizing.Store(true)
	l.notify()
}

func (l *Listener) handleEnd() {
	l.starting.Store(false)
	l.recognizing.Store(false)
	l.notify()
}

func (l *Listener) handleResult(text string, final bool) {
	merged := l.buf.Apply(text)
	l.logger.Debug("recognition result", "partial", text, "final", final, "merged", merged)
	l.notify()
}

func (l *Listener) handleError(code string, err error) {
	l.starting.Store(false)
	l.recognizing.Store(false)
	if code == CodeNotAllowed {
		l.denied.Store(true)
	}

	l.mu.Lock()
	l.lastErr = code
	l.mu.Unlock()

	l.logger.Warn("recognition error", "code", code, "error", err)
	l.notify()
}

func (l *Listener) notify() {
	l.mu.Lock()
	fn := l.onChange
	l.mu.Unlock()
	if fn != nil {
		fn()
	}
}
