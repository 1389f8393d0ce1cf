// Package capture runs the capture/describe cycle: it waits for the spoken
// question to settle, takes a photo, and asks the description service about it.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nicholasching/Perception/pkg/camera"
)

// DefaultInterval is the default stabilization interval.
const DefaultInterval = time.Second

// Action is what a single tick did.
type Action int

const (
	// ActionIdle: no speech has been heard.
	ActionIdle Action = iota
	// ActionStabilizing: the transcript changed since the last tick.
	ActionStabilizing
	// ActionBlocked: the transcript is stable but the phone is not armed, the
	// camera or describer is not ready, or the assistant is speaking.
	ActionBlocked
	// ActionBusy: the transcript is stable but a capture is already in flight.
	ActionBusy
	// ActionCapture: a capture was started.
	ActionCapture
)

func (a Action) String() string {
	switch a {
	case ActionIdle:
		return "idle"
	case ActionStabilizing:
		return "stabilizing"
	case ActionBlocked:
		return "blocked"
	case ActionBusy:
		return "busy"
	case ActionCapture:
		return "capture"
	}
	return "unknown"
}

// Transcript is the working transcript. The cycle only reads it, except for
// clearing it once a capture completes.
type Transcript interface {
	Value() string
	Reset()
}

// Gate reports whether the phone is held above the activation angle.
type Gate interface {
	Armed() bool
}

// Describer answers a prompt about an image.
type Describer interface {
	Describe(ctx context.Context, image []byte, mimeType, prompt string) (string, error)
}

// Speech reports whether the assistant is talking.
type Speech interface {
	IsSpeaking() bool
}

// ConfigSource supplies the capture parameters at the time of each capture.
type ConfigSource interface {
	GetConfig() camera.Config
}

// Cycle is the fixed-interval capture poller.
type Cycle struct {
	transcript Transcript
	gate       Gate
	device     camera.Device
	describer  Describer
	store      *Store
	configs    ConfigSource
	speech     Speech
	ready      func() bool
	logger     *slog.Logger
	interval   time.Duration

	inFlight atomic.Bool
	wg       sync.WaitGroup

	mu         sync.Mutex
	lastStable string
	lastResult string
	captures   uint64
	failures   uint64

	// Callbacks
	onStart   func(prompt string)
	onResult  func(text string)
	onFailure func(err error, fallback string)
	onFinish  func()
}

// Option configures a Cycle.
type Option func(*Cycle)

// WithInterval sets the polling interval.
func WithInterval(d time.Duration) Option {
	return func(c *Cycle) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cycle) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithConfigSource sets where capture parameters come from. Defaults to
// camera.DefaultConfig.
func WithConfigSource(s ConfigSource) Option {
	return func(c *Cycle) {
		if s != nil {
			c.configs = s
		}
	}
}

// WithSpeech holds captures off while s is speaking.
func WithSpeech(s Speech) Option {
	return func(c *Cycle) { c.speech = s }
}

// WithReady sets a check run before each capture. While it returns false no
// photo is taken, so a describer without credentials never costs a capture.
func WithReady(fn func() bool) Option {
	return func(c *Cycle) { c.ready = fn }
}

type defaultConfigs struct{}

func (defaultConfigs) GetConfig() camera.Config { return camera.DefaultConfig() }

// NewCycle creates a cycle.
func NewCycle(t Transcript, gate Gate, device camera.Device, d Describer, store *Store, opts ...Option) *Cycle {
	c := &Cycle{
		transcript: t,
		gate:       gate,
		device:     device,
		describer:  d,
		store:      store,
		configs:    defaultConfigs{},
		logger:     slog.Default(),
		interval:   DefaultInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "capture.cycle")
	return c
}

// OnCaptureStart sets the callback invoked synchronously, on the ticking
// goroutine, when a capture begins. The listener is stopped here.
func (c *Cycle) OnCaptureStart(fn func(prompt string)) {
	c.mu.Lock()
	c.onStart = fn
	c.mu.Unlock()
}

// OnResult sets the callback invoked with a successful description.
func (c *Cycle) OnResult(fn func(text string)) {
	c.mu.Lock()
	c.onResult = fn
	c.mu.Unlock()
}

// OnFailure sets the callback invoked when a capture fails. fallback is the
// user-facing message produced by the describer, if any.
func (c *Cycle) OnFailure(fn func(err error, fallback string)) {
	c.mu.Lock()
	c.onFailure = fn
	c.mu.Unlock()
}

// OnFinish sets the callback invoked after every capture, after the
// transcript has been cleared and the in-flight guard released.
func (c *Cycle) OnFinish(fn func()) {
	c.mu.Lock()
	c.onFinish = fn
	c.mu.Unlock()
}

// Interval returns the polling interval.
func (c *Cycle) Interval() time.Duration {
	return c.interval
}

// InFlight reports whether a capture is outstanding.
func (c *Cycle) InFlight() bool {
	return c.inFlight.Load()
}

// Acquire takes the in-flight guard for a capture made outside Tick. It
// reports false if a capture is already outstanding. Ticks report
// ActionBusy until Release.
func (c *Cycle) Acquire() bool {
	return c.inFlight.CompareAndSwap(false, true)
}

// Release gives back a guard taken with Acquire.
func (c *Cycle) Release() {
	c.inFlight.Store(false)
}

// Tick performs one polling step. When it returns ActionCapture the capture
// runs on its own goroutine; Wait blocks until it completes.
func (c *Cycle) Tick(ctx context.Context) Action {
	current := c.transcript.Value()

	c.mu.Lock()
	last := c.lastStable
	switch {
	case current == "" && last == "":
		c.mu.Unlock()
		return ActionIdle
	case current != last:
		c.lastStable = current
		c.mu.Unlock()
		return ActionStabilizing
	}
	onStart := c.onStart
	c.mu.Unlock()

	if !c.gate.Armed() || !c.device.Ready() {
		return ActionBlocked
	}
	if c.speech != nil && c.speech.IsSpeaking() {
		return ActionBlocked
	}
	if c.ready != nil && !c.ready() {
		c.logger.Debug("describer not ready, capture skipped")
		return ActionBlocked
	}
	if !c.Acquire() {
		return ActionBusy
	}

	// Snapshot before anything else can clear the buffer.
	prompt := strings.TrimSpace(current)

	c.logger.Info("transcript stable, capturing", "prompt", prompt)
	if onStart != nil {
		onStart(prompt)
	}

	c.wg.Add(1)
	go c.run(ctx, prompt)
	return ActionCapture
}

// Wait blocks until the outstanding capture, if any, completes.
func (c *Cycle) Wait() {
	c.wg.Wait()
}

// Run ticks every interval until ctx is cancelled, then waits for the
// outstanding capture.
func (c *Cycle) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	defer c.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Tick(ctx)
		}
	}
}

func (c *Cycle) run(ctx context.Context, prompt string) {
	defer c.wg.Done()
	defer c.finish()
	defer func() {
		if r := recover(); r != nil {
			c.fail(ctx, fmt.Errorf("%w: %v", ErrPanic, r), "")
		}
	}()

	// At most one image is live per session.
	c.store.ReleaseAll()

	photo, err := c.device.Capture(ctx, c.configs.GetConfig())
	if err == nil && photo == nil {
		err = ErrNoPhoto
	}
	if err != nil {
		c.fail(ctx, fmt.Errorf("capture: take photo: %w", err), "")
		return
	}

	img, err := c.store.Put(photo)
	if err != nil {
		c.fail(ctx, err, "")
		return
	}
	defer func() {
		if err := c.store.Release(img); err != nil {
			c.logger.Warn("failed to release capture", "error", err)
		}
	}()

	text, err := c.describer.Describe(ctx, photo.Data, photo.MimeType, prompt)
	if err != nil {
		c.fail(ctx, fmt.Errorf("capture: describe: %w", err), text)
		return
	}

	c.mu.Lock()
	c.lastResult = text
	c.captures++
	onResult := c.onResult
	c.mu.Unlock()

	c.logger.Info("description received", "chars", len(text))
	if onResult != nil {
		onResult(text)
	}
}

func (c *Cycle) fail(ctx context.Context, err error, fallback string) {
	c.logger.Error("capture cycle failed", "error", err)

	c.mu.Lock()
	c.failures++
	onFailure := c.onFailure
	c.mu.Unlock()

	c.HardReset(ctx)
	if onFailure != nil {
		onFailure(err, fallback)
	}
}

func (c *Cycle) finish() {
	c.transcript.Reset()

	c.mu.Lock()
	c.lastStable = ""
	onFinish := c.onFinish
	c.mu.Unlock()

	c.Release()
	if onFinish != nil {
		onFinish()
	}
}

// HardReset discards the live image and the last description and asks the
// camera to re-initialize. Remount errors are logged; the device reports
// not ready until it recovers.
func (c *Cycle) HardReset(ctx context.Context) {
	n := c.store.ReleaseAll()

	c.mu.Lock()
	c.lastResult = ""
	c.mu.Unlock()

	if err := c.device.Remount(ctx); err != nil {
		c.logger.Warn("camera remount failed", "error", err)
	}
	c.logger.Debug("hard reset", "released", n)
}

// LastResult returns the most recent description, or "" after a reset.
func (c *Cycle) LastResult() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastResult
}

// Stats contains cycle counters.
type Stats struct {
	Captures   uint64 `json:"captures"`
	Failures   uint64 `json:"failures"`
	InFlight   bool   `json:"in_flight"`
	LiveImages int    `json:"live_images"`
}

// GetStats returns cycle counters.
func (c *Cycle) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Captures:   c.captures,
		Failures:   c.failures,
		InFlight:   c.inFlight.Load(),
		LiveImages: c.store.Live(),
	}
}
