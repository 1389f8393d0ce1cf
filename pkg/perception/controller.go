// Package perception is the interaction controller. It binds the peripherals
// of one device to the orientation monitor, the voice listener, the
// capture/describe cycle and the speech output, and derives the session
// state from their signals.
package perception

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nicholasching/Perception/pkg/audioio"
	"github.com/nicholasching/Perception/pkg/camera"
	"github.com/nicholasching/Perception/pkg/capture"
	"github.com/nicholasching/Perception/pkg/describe"
	"github.com/nicholasching/Perception/pkg/haptics"
	"github.com/nicholasching/Perception/pkg/listener"
	"github.com/nicholasching/Perception/pkg/orientation"
	"github.com/nicholasching/Perception/pkg/session"
	"github.com/nicholasching/Perception/pkg/settings"
	"github.com/nicholasching/Perception/pkg/speaker"
	"github.com/nicholasching/Perception/pkg/transcript"
	"github.com/nicholasching/Perception/pkg/tts"
)

// DefaultStatusInterval is how often speech and camera status are polled.
const DefaultStatusInterval = 100 * time.Millisecond

// Peripherals are the device-side collaborators of a session.
type Peripherals struct {
	Sensor     orientation.Sensor
	Recognizer listener.Recognizer
	Camera     camera.Device
	Haptics    haptics.Actuator
	Sink       audioio.Sink

	// Alerter and Locator are optional. They are published through the Relay.
	Alerter describe.Alerter
	Locator describe.Locator
}

func (p Peripherals) validate() error {
	switch {
	case p.Sensor == nil:
		return fmt.Errorf("perception: sensor is required")
	case p.Recognizer == nil:
		return fmt.Errorf("perception: recognizer is required")
	case p.Camera == nil:
		return fmt.Errorf("perception: camera is required")
	case p.Sink == nil:
		return fmt.Errorf("perception: audio sink is required")
	}
	return nil
}

// Describer is the description service the controller drives.
type Describer interface {
	Initialize(ctx context.Context, cfg settings.Configuration) error
	Terminate()
	Describe(ctx context.Context, image []byte, mimeType, question string) (string, error)
	DescribeMode(ctx context.Context, image []byte, mimeType string, mode describe.Mode) (string, error)
}

// Deps are the long-lived services shared by every session.
type Deps struct {
	Settings  settings.Store
	Describer Describer
	Voice     tts.Provider
	Images    *capture.Store
	Cameras   *camera.Manager // capture parameters; quality follows settings
	Relay     *Relay          // optional
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithStatusInterval sets the speech/camera status polling interval.
func WithStatusInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.statusInterval = d
		}
	}
}

// WithSensorInterval sets the orientation sampling interval.
func WithSensorInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.sensorInterval = d
		}
	}
}

// WithListenerOptions sets the recognizer options.
func WithListenerOptions(o listener.Options) Option {
	return func(c *Controller) { c.listenerOpts = o }
}

// Controller runs the interaction loop for one bound device.
type Controller struct {
	deps           Deps
	logger         *slog.Logger
	statusInterval time.Duration
	sensorInterval time.Duration
	listenerOpts   listener.Options

	tracker *session.Tracker

	mu       sync.Mutex
	bound    *Peripherals
	cfg      settings.Configuration
	run      *run
	onStatus []func(session.Status)
	onAnswer []func(question, answer string)
	onFail   []func(err error)

	askMu sync.Mutex
}

// run holds the components of one focus period.
type run struct {
	ctx    context.Context
	cancel context.CancelFunc
	p      Peripherals

	monitor  *orientation.Monitor
	buf      *transcript.Buffer
	listener *listener.Listener
	cycle    *capture.Cycle
	speaker  *speaker.Speaker

	wg sync.WaitGroup
}

// New creates an unbound, unfocused controller.
func New(deps Deps, opts ...Option) *Controller {
	c := &Controller{
		deps:           deps,
		logger:         slog.Default(),
		statusInterval: DefaultStatusInterval,
		sensorInterval: orientation.DefaultInterval,
		listenerOpts:   listener.DefaultOptions(),
		tracker:        session.NewTracker(),
		cfg:            settings.Defaults(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "perception")
	if c.deps.Cameras == nil {
		c.deps.Cameras = camera.NewManager()
	}
	c.tracker.OnChange(c.stateChanged)
	return c
}

// OnStatus registers a listener for session state changes.
func (c *Controller) OnStatus(fn func(session.Status)) {
	c.mu.Lock()
	c.onStatus = append(c.onStatus, fn)
	c.mu.Unlock()
}

// OnAnswer registers a listener for successful descriptions.
func (c *Controller) OnAnswer(fn func(question, answer string)) {
	c.mu.Lock()
	c.onAnswer = append(c.onAnswer, fn)
	c.mu.Unlock()
}

// OnFailure registers a listener for failed capture cycles.
func (c *Controller) OnFailure(fn func(err error)) {
	c.mu.Lock()
	c.onFail = append(c.onFail, fn)
	c.mu.Unlock()
}

// Bind attaches a device. It fails while focused.
func (c *Controller) Bind(p Peripherals) error {
	if err := p.validate(); err != nil {
		return err
	}
	if p.Haptics == nil {
		p.Haptics = haptics.Logging{Logger: c.logger}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.run != nil {
		return ErrFocused
	}
	c.bound = &p
	if c.deps.Relay != nil {
		c.deps.Relay.set(p.Alerter, p.Locator)
	}
	return nil
}

// Unbind detaches the device, unfocusing first.
func (c *Controller) Unbind() {
	c.Unfocus()
	c.mu.Lock()
	c.bound = nil
	c.mu.Unlock()
	if c.deps.Relay != nil {
		c.deps.Relay.set(nil, nil)
	}
}

// Focus starts a session: settings are re-read, the description service is
// initialized and the sensor, poller and listener are started. Focusing
// while focused does nothing.
func (c *Controller) Focus(ctx context.Context) error {
	c.mu.Lock()
	if c.run != nil {
		c.mu.Unlock()
		return nil
	}
	if c.bound == nil {
		c.mu.Unlock()
		return ErrNotBound
	}
	p := *c.bound
	c.mu.Unlock()

	cfg := c.loadSettings(ctx)
	if err := c.deps.Describer.Initialize(ctx, cfg); err != nil {
		// The service has already alerted; captures will fail until a key exists.
		c.logger.Warn("description service not ready", "error", err)
	}
	if err := c.deps.Cameras.SetQuality(cfg.CompressionQuality); err != nil {
		c.logger.Warn("invalid compression quality", "quality", cfg.CompressionQuality, "error", err)
	}

	rctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &run{ctx: rctx, cancel: cancel, p: p, buf: &transcript.Buffer{}}

	r.monitor = orientation.NewMonitor(p.Sensor, cfg.UprightAngle,
		orientation.WithInterval(c.sensorInterval),
		orientation.WithHaptics(p.Haptics),
		orientation.WithLogger(c.logger))
	r.listener = listener.New(p.Recognizer, r.buf,
		listener.WithOptions(c.listenerOpts),
		listener.WithLogger(c.logger))
	r.speaker = speaker.New(c.deps.Voice, p.Sink, speaker.WithLogger(c.logger))
	r.cycle = capture.NewCycle(r.buf, r.monitor, p.Camera, c.deps.Describer, c.deps.Images,
		capture.WithInterval(cfg.StabilizationTimeout()),
		capture.WithConfigSource(c.deps.Cameras),
		capture.WithSpeech(r.speaker),
		capture.WithReady(cfg.HasAPIKey),
		capture.WithLogger(c.logger))

	c.wire(r)

	c.mu.Lock()
	if c.run != nil {
		c.mu.Unlock()
		cancel()
		return nil
	}
	c.cfg = cfg
	c.run = r
	c.mu.Unlock()

	c.tracker.Reset()
	if err := r.monitor.Attach(); err != nil {
		c.Unfocus()
		return err
	}

	r.wg.Add(2)
	go func() {
		defer r.wg.Done()
		r.cycle.Run(r.ctx)
	}()
	go func() {
		defer r.wg.Done()
		c.pollStatus(r)
	}()

	c.logger.Info("focused", "threshold", cfg.UprightAngle, "interval", cfg.StabilizationTimeout())
	c.refresh(r)
	return nil
}

// Unfocus stops the session: every timer and subscription is cancelled, the
// listener and speech are stopped and any live image is discarded.
func (c *Controller) Unfocus() {
	c.mu.Lock()
	r := c.run
	c.run = nil
	c.mu.Unlock()
	if r == nil {
		return
	}

	r.monitor.Detach()
	r.listener.Stop()
	r.speaker.Stop()
	r.cancel()
	r.wg.Wait()
	// A start that raced the first Stop is undone here.
	r.listener.Stop()

	if n := c.deps.Images.ReleaseAll(); n > 0 {
		c.logger.Debug("released images on unfocus", "count", n)
	}
	c.deps.Describer.Terminate()
	c.tracker.Reset()
	c.logger.Info("unfocused")
}

// Focused reports whether a session is running.
func (c *Controller) Focused() bool {
	return c.current() != nil
}

// Status returns the last derived session state.
func (c *Controller) Status() session.Status {
	return c.tracker.Current()
}

// Settings returns the settings loaded at the last focus.
func (c *Controller) Settings() settings.Configuration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

func (c *Controller) current() *run {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.run
}

func (c *Controller) loadSettings(ctx context.Context) settings.Configuration {
	cfg, issues, err := settings.Load(ctx, c.deps.Settings, settings.Defaults())
	if err != nil {
		c.logger.Error("failed to load settings", "error", err)
		c.alert("Settings", "Could not load your settings. Defaults are in use.")
		return settings.Defaults()
	}
	for _, is := range issues {
		c.logger.Warn("invalid setting replaced by default", "issue", is.String())
	}
	return cfg
}

func (c *Controller) alert(title, message string) {
	if c.deps.Relay != nil {
		c.deps.Relay.Alert(title, message)
		return
	}
	c.logger.Warn("alert", "title", title, "message", message)
}

// wire connects the callbacks of one run.
func (c *Controller) wire(r *run) {
	r.monitor.OnCrossing(func(armed bool, deg float64) {
		if c.current() != r {
			return
		}
		r.cycle.HardReset(r.ctx)
		r.listener.ClearDenial()
		if !armed {
			r.listener.Stop()
		}
		c.refresh(r)
	})

	r.listener.OnChange(func() { c.refresh(r) })

	r.cycle.OnCaptureStart(func(prompt string) {
		r.listener.Stop()
		c.refresh(r)
	})
	r.cycle.OnResult(func(text string) {
		r.speaker.Speak(r.ctx, text)
		c.mu.Lock()
		fns := append([]func(string, string){}, c.onAnswer...)
		c.mu.Unlock()
		for _, fn := range fns {
			fn(r.buf.Text(), text)
		}
	})
	r.cycle.OnFailure(func(err error, fallback string) {
		if fallback != "" {
			r.speaker.Speak(r.ctx, fallback)
		}
		c.mu.Lock()
		fns := append([]func(error){}, c.onFail...)
		c.mu.Unlock()
		for _, fn := range fns {
			fn(err)
		}
	})
	r.cycle.OnFinish(func() { c.refresh(r) })

	r.speaker.OnStart(func(string) { c.refresh(r) })
	r.speaker.OnDone(func(string, error) { c.refresh(r) })
}

// pollStatus re-derives the state every statusInterval. Speech completion and
// camera readiness have no callback on every backend, so they are polled.
func (c *Controller) pollStatus(r *run) {
	ticker := time.NewTicker(c.statusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			c.refresh(r)
		}
	}
}

// refresh recomputes the session state and restarts the listener when its
// start conditions hold.
func (c *Controller) refresh(r *run) {
	if c.current() != r {
		return
	}

	in := session.Inputs{
		Armed:       r.monitor.Armed(),
		CameraReady: r.p.Camera.Ready(),
		Recognizing: r.listener.Recognizing(),
		Processing:  r.cycle.InFlight(),
		Speaking:    r.speaker.IsSpeaking(),
		Transcript:  r.buf.Value(),
	}
	c.tracker.Update(in)

	cond := listener.Conditions{Armed: in.Armed, Processing: in.Processing, Speaking: in.Speaking}
	if !r.listener.CanStart(cond) {
		return
	}

	// Registering under mu keeps the goroutine visible to Unfocus's Wait.
	c.mu.Lock()
	if c.run != r {
		c.mu.Unlock()
		return
	}
	r.wg.Add(1)
	c.mu.Unlock()
	go func() {
		defer r.wg.Done()
		if _, err := r.listener.TryStart(r.ctx, cond); err != nil && r.ctx.Err() == nil {
			c.logger.Warn("listener start failed", "error", err)
		}
	}()
}

// stateChanged pulses the haptics on entering Listening or Processing and
// notifies observers.
func (c *Controller) stateChanged(prev, next session.Status) {
	c.mu.Lock()
	r := c.run
	fns := append([]func(session.Status){}, c.onStatus...)
	c.mu.Unlock()

	if r != nil && prev.State != next.State {
		switch next.State {
		case session.Listening:
			r.p.Haptics.Pulse(haptics.Light)
		case session.Processing:
			r.p.Haptics.Pulse(haptics.Medium)
		}
	}
	c.logger.Debug("state", "from", prev.State, "to", next.State)
	for _, fn := range fns {
		fn(next)
	}
}

// Ask captures a photo and answers a canned question about it, outside the
// spoken flow. While a session is running it holds the cycle's capture guard
// and keeps the listener stopped, and the answer is also spoken.
func (c *Controller) Ask(ctx context.Context, mode describe.Mode) (string, error) {
	c.mu.Lock()
	bound := c.bound
	r := c.run
	c.mu.Unlock()
	if bound == nil {
		return "", ErrNotBound
	}
	if !c.askMu.TryLock() {
		return "", ErrBusy
	}
	defer c.askMu.Unlock()

	if r != nil {
		if !r.cycle.Acquire() {
			return "", ErrBusy
		}
		defer func() {
			r.cycle.Release()
			c.refresh(r)
		}()
		r.listener.Stop()
		c.refresh(r)
	}

	shot := c.deps.Cameras.GetConfig()
	if mode == describe.ModeReadText {
		if text, err := c.deps.Cameras.Preset(camera.PresetText); err == nil {
			shot = text
		}
	}
	photo, err := bound.Camera.Capture(ctx, shot)
	if err != nil {
		return "", fmt.Errorf("perception: capture: %w", err)
	}
	img, err := c.deps.Images.Put(photo)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := c.deps.Images.Release(img); err != nil {
			c.logger.Warn("failed to release capture", "error", err)
		}
	}()

	text, err := c.deps.Describer.DescribeMode(ctx, photo.Data, photo.MimeType, mode)
	if r != nil && c.current() == r && text != "" {
		r.speaker.Speak(r.ctx, text)
	}
	return text, err
}

// OrientationStats is the monitor's view of the phone.
type OrientationStats struct {
	orientation.Reading
	Threshold float64            `json:"threshold"`
	Sample    orientation.Sample `json:"sample"`
}

// Stats aggregates component counters for the current session.
type Stats struct {
	Focused     bool             `json:"focused"`
	Status      session.Status   `json:"status"`
	Orientation OrientationStats `json:"orientation"`
	Listener    listener.Stats   `json:"listener"`
	Capture     capture.Stats    `json:"capture"`
	Speaker     speaker.Stats    `json:"speaker"`
}

// GetStats returns counters for the current session.
func (c *Controller) GetStats() Stats {
	st := Stats{Status: c.Status()}
	r := c.current()
	if r == nil {
		return st
	}
	st.Focused = true
	st.Orientation = OrientationStats{
		Reading:   r.monitor.Reading(),
		Threshold: r.monitor.Threshold(),
		Sample:    r.monitor.Sample(),
	}
	st.Listener = r.listener.GetStats()
	st.Capture = r.cycle.GetStats()
	st.Speaker = r.speaker.GetStats()
	return st
}
