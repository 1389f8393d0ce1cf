package perception

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nicholasching/Perception/internal/log"
	"github.com/nicholasching/Perception/pkg/audioio"
	"github.com/nicholasching/Perception/pkg/camera"
	"github.com/nicholasching/Perception/pkg/capture"
	"github.com/nicholasching/Perception/pkg/describe"
	"github.com/nicholasching/Perception/pkg/haptics"
	"github.com/nicholasching/Perception/pkg/listener"
	"github.com/nicholasching/Perception/pkg/orientation"
	"github.com/nicholasching/Perception/pkg/session"
	"github.com/nicholasching/Perception/pkg/settings"
	"github.com/nicholasching/Perception/pkg/tts"
)

type harness struct {
	ctrl    *Controller
	sensor  *orientation.MockSensor
	rec     *listener.MockRecognizer
	cam     *camera.MockDevice
	haptics *haptics.Mock
	sink    *audioio.MockSink
	voice   *tts.Mock
	model   *describe.Mock
	images  *capture.Store
	store   *settings.MemoryStore

	mu     sync.Mutex
	alerts []string
}

func (h *harness) alertTitles() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.alerts...)
}

func withKey() settings.Configuration {
	cfg := settings.Defaults()
	cfg.GeminiAPIKey = "test-key"
	cfg.AudioTimeout = 200
	return cfg
}

func newHarness(t *testing.T, cfg settings.Configuration) *harness {
	t.Helper()

	images, err := capture.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	h := &harness{
		sensor:  orientation.NewMockSensor(),
		rec:     listener.NewMockRecognizer(),
		cam:     camera.NewMockDevice(),
		haptics: &haptics.Mock{},
		sink:    audioio.NewMockSink(30 * time.Millisecond),
		voice:   tts.NewMock(),
		model:   describe.NewMock(),
		images:  images,
		store:   settings.NewMemoryStore(),
	}
	if err := h.store.Set(context.Background(), cfg); err != nil {
		t.Fatal(err)
	}

	relay := NewRelay(log.Nop())
	svc := describe.NewService(func(ctx context.Context, cfg settings.Configuration) (describe.Provider, error) {
		return h.model, nil
	}, describe.WithAlerter(relay), describe.WithServiceLogger(log.Nop()))

	h.ctrl = New(Deps{
		Settings:  h.store,
		Describer: svc,
		Voice:     h.voice,
		Images:    images,
		Relay:     relay,
	}, WithLogger(log.Nop()), WithStatusInterval(10*time.Millisecond))

	err = h.ctrl.Bind(Peripherals{
		Sensor:     h.sensor,
		Recognizer: h.rec,
		Camera:     h.cam,
		Haptics:    h.haptics,
		Sink:       h.sink,
		Alerter: describe.AlertFunc(func(title, message string) {
			h.mu.Lock()
			h.alerts = append(h.alerts, title+": "+message)
			h.mu.Unlock()
		}),
	})
	if err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	t.Cleanup(h.ctrl.Unfocus)
	return h
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (h *harness) starts() int {
	s, _, _ := h.rec.Counts()
	return s
}

func (h *harness) stops() int {
	_, s, _ := h.rec.Counts()
	return s
}

func (h *harness) permissions() int {
	_, _, p := h.rec.Counts()
	return p
}

func (h *harness) state() session.State {
	return h.ctrl.Status().State
}

func TestFocusRequiresBinding(t *testing.T) {
	ctrl := New(Deps{}, WithLogger(log.Nop()))
	if err := ctrl.Focus(context.Background()); !errors.Is(err, ErrNotBound) {
		t.Fatalf("Focus() error = %v, want ErrNotBound", err)
	}
	if _, err := ctrl.Ask(context.Background(), describe.ModeGeneral); !errors.Is(err, ErrNotBound) {
		t.Fatalf("Ask() error = %v, want ErrNotBound", err)
	}
	if err := ctrl.Bind(Peripherals{}); err == nil {
		t.Fatal("Bind() with no peripherals should fail")
	}
}

func TestBindWhileFocused(t *testing.T) {
	h := newHarness(t, withKey())
	if err := h.ctrl.Focus(context.Background()); err != nil {
		t.Fatal(err)
	}
	err := h.ctrl.Bind(Peripherals{Sensor: h.sensor, Recognizer: h.rec, Camera: h.cam, Sink: h.sink})
	if !errors.Is(err, ErrFocused) {
		t.Fatalf("Bind() error = %v, want ErrFocused", err)
	}
}

func TestFocusStartsInactive(t *testing.T) {
	h := newHarness(t, withKey())
	if err := h.ctrl.Focus(context.Background()); err != nil {
		t.Fatalf("Focus() error = %v", err)
	}

	if !h.ctrl.Focused() {
		t.Fatal("Focused() = false after Focus")
	}
	if !h.sensor.Subscribed() {
		t.Fatal("sensor not subscribed")
	}
	if h.state() != session.Inactive {
		t.Errorf("state = %v, want inactive", h.state())
	}

	time.Sleep(50 * time.Millisecond)
	if h.starts() != 0 {
		t.Errorf("listener started while not armed")
	}
}

func TestQuestionAnswerCycle(t *testing.T) {
	h := newHarness(t, withKey())

	var (
		mu      sync.Mutex
		answers []string
	)
	h.ctrl.OnAnswer(func(question, answer string) {
		mu.Lock()
		answers = append(answers, question+"|"+answer)
		mu.Unlock()
	})

	if err := h.ctrl.Focus(context.Background()); err != nil {
		t.Fatal(err)
	}

	h.sensor.EmitDegrees(80)

	if p := h.haptics.Pulses(); len(p) == 0 || p[0] != haptics.Rigid {
		t.Errorf("crossing pulse = %v, want rigid first", p)
	}
	if h.cam.Remounts() != 1 {
		t.Errorf("remounts = %d, want 1 after crossing", h.cam.Remounts())
	}

	waitFor(t, "listener start", func() bool { return h.starts() == 1 })
	waitFor(t, "listening state", func() bool { return h.state() == session.Listening })

	h.rec.EmitResult("what is", false)
	h.rec.EmitResult("is in front of me", false)
	waitFor(t, "transcript preview", func() bool { return h.state() == session.TranscriptPreview })
	if got := h.ctrl.Status().Transcript; got != "what is in front of me" {
		t.Errorf("transcript = %q", got)
	}

	waitFor(t, "description", func() bool { return h.model.Described() == 1 })
	if !strings.Contains(h.model.LastPrompt(), "what is in front of me") {
		t.Errorf("prompt = %q", h.model.LastPrompt())
	}
	if h.stops() < 1 {
		t.Error("listener should stop when processing begins")
	}

	waitFor(t, "speech", func() bool { return len(h.sink.Clips()) == 1 })
	if last := h.voice.Last(); last != "I see a mock image" {
		t.Errorf("spoken = %q", last)
	}

	// Once speech finishes the listener comes back with a fresh transcript.
	waitFor(t, "listener restart", func() bool { return h.starts() == 2 })
	waitFor(t, "listening again", func() bool { return h.state() == session.Listening })

	if h.images.Live() != 0 {
		t.Errorf("live images = %d, want 0", h.images.Live())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(answers) != 1 || answers[0] != "what is in front of me|I see a mock image" {
		t.Errorf("answers = %v", answers)
	}

	pulses := h.haptics.Pulses()
	var sawMedium bool
	for _, p := range pulses {
		if p == haptics.Medium {
			sawMedium = true
		}
	}
	if !sawMedium {
		t.Errorf("pulses = %v, want a medium pulse on processing", pulses)
	}
}

func TestDropBelowThresholdStopsListener(t *testing.T) {
	h := newHarness(t, withKey())
	if err := h.ctrl.Focus(context.Background()); err != nil {
		t.Fatal(err)
	}

	h.sensor.EmitDegrees(80)
	waitFor(t, "listening", func() bool { return h.state() == session.Listening })
	stops := h.stops()

	h.sensor.EmitDegrees(10)

	if h.stops() != stops+1 {
		t.Errorf("stops = %d, want %d", h.stops(), stops+1)
	}
	if h.cam.Remounts() != 2 {
		t.Errorf("remounts = %d, want 2", h.cam.Remounts())
	}
	waitFor(t, "inactive", func() bool { return h.state() == session.Inactive })

	time.Sleep(50 * time.Millisecond)
	if h.starts() != 1 {
		t.Errorf("starts = %d, listener restarted while disarmed", h.starts())
	}
}

func TestUnfocusCancelsEverything(t *testing.T) {
	h := newHarness(t, withKey())
	if err := h.ctrl.Focus(context.Background()); err != nil {
		t.Fatal(err)
	}
	h.sensor.EmitDegrees(80)
	waitFor(t, "listening", func() bool { return h.state() == session.Listening })
	h.haptics.Reset()

	h.ctrl.Unfocus()

	if h.ctrl.Focused() {
		t.Error("Focused() = true after Unfocus")
	}
	if h.sensor.Subscribed() {
		t.Error("sensor still subscribed")
	}
	if _, detach := h.sensor.Counts(); detach != 1 {
		t.Errorf("detach count = %d, want 1", detach)
	}
	if p := h.haptics.Pulses(); len(p) != 1 || p[0] != haptics.Light {
		t.Errorf("exit pulses = %v, want one light pulse", p)
	}
	if h.rec.Running() {
		t.Error("recognizer still running")
	}

	starts := h.starts()
	h.sensor.EmitDegrees(80)
	time.Sleep(50 * time.Millisecond)
	if h.starts() != starts {
		t.Error("listener started after Unfocus")
	}

	// Unfocusing twice is harmless.
	h.ctrl.Unfocus()
}

func TestMissingAPIKeyAlerts(t *testing.T) {
	cfg := settings.Defaults()
	cfg.AudioTimeout = 200
	h := newHarness(t, cfg)

	if err := h.ctrl.Focus(context.Background()); err != nil {
		t.Fatal(err)
	}
	alerts := h.alertTitles()
	if len(alerts) != 1 || !strings.Contains(alerts[0], describe.MissingKeyMessage) {
		t.Fatalf("alerts = %v", alerts)
	}

	h.sensor.EmitDegrees(80)
	waitFor(t, "listening", func() bool { return h.state() == session.Listening })
	remounts := h.cam.Remounts()
	h.rec.EmitResult("what is this", false)

	// Several stabilization intervals pass without a photo, a remount or a
	// second alert.
	time.Sleep(700 * time.Millisecond)
	if n := h.cam.Captures(); n != 0 {
		t.Errorf("captures = %d, want 0", n)
	}
	if n := h.cam.Remounts(); n != remounts {
		t.Errorf("remounts = %d, want %d", n, remounts)
	}
	if n := len(h.alertTitles()); n != 1 {
		t.Errorf("alerts = %d, want 1", n)
	}
	if !h.rec.Running() {
		t.Error("listener stopped without a capture")
	}
	if n := h.model.Described(); n != 0 {
		t.Errorf("Describe calls = %d, want 0", n)
	}
	if n := len(h.sink.Clips()); n != 0 {
		t.Errorf("clips = %d, want 0", n)
	}
}

func TestDescribeFailureSpeaksApology(t *testing.T) {
	h := newHarness(t, withKey())
	h.model.DescribeFunc = func(ctx context.Context, req *describe.Request) (*describe.Response, error) {
		return nil, &describe.APIError{StatusCode: 500, Message: "boom"}
	}

	var failures sync.WaitGroup
	failures.Add(1)
	var once sync.Once
	h.ctrl.OnFailure(func(err error) { once.Do(failures.Done) })

	if err := h.ctrl.Focus(context.Background()); err != nil {
		t.Fatal(err)
	}
	h.sensor.EmitDegrees(80)
	waitFor(t, "listening", func() bool { return h.state() == session.Listening })
	remounts := h.cam.Remounts()

	h.rec.EmitResult("read this sign", false)
	waitFor(t, "apology", func() bool { return len(h.sink.Clips()) == 1 })

	failures.Wait()
	if last := h.voice.Last(); last != describe.Apology(settings.DefaultUsername) {
		t.Errorf("spoken = %q", last)
	}
	if h.cam.Remounts() != remounts+1 {
		t.Errorf("remounts = %d, want hard reset after failure", h.cam.Remounts())
	}
	if h.images.Live() != 0 {
		t.Errorf("live images = %d, want 0", h.images.Live())
	}
}

func TestPermissionDeniedIsNotRetried(t *testing.T) {
	h := newHarness(t, withKey())
	h.rec.Granted = false
	if err := h.ctrl.Focus(context.Background()); err != nil {
		t.Fatal(err)
	}

	h.sensor.EmitDegrees(80)
	waitFor(t, "permission request", func() bool { return h.permissions() == 1 })
	time.Sleep(80 * time.Millisecond)
	if h.permissions() != 1 {
		t.Errorf("permissions = %d, denial was retried", h.permissions())
	}
	if h.state() != session.Recording {
		t.Errorf("state = %v, want recording", h.state())
	}

	// A crossing clears the denial.
	h.sensor.EmitDegrees(10)
	h.sensor.EmitDegrees(80)
	waitFor(t, "second permission request", func() bool { return h.permissions() == 2 })
}

func TestSettingsAppliedOnFocus(t *testing.T) {
	cfg := withKey()
	cfg.UprightAngle = 30
	cfg.CompressionQuality = 80
	h := newHarness(t, cfg)

	if err := h.ctrl.Focus(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := h.ctrl.Settings().UprightAngle; got != 30 {
		t.Errorf("UprightAngle = %v, want 30", got)
	}

	h.sensor.EmitDegrees(40)
	waitFor(t, "armed at 40 degrees", func() bool { return h.state() != session.Inactive })
	tilt := h.ctrl.GetStats().Orientation
	if tilt.Threshold != 30 || !tilt.Armed || math.Abs(tilt.Degrees-40) > 0.01 {
		t.Errorf("orientation stats = %+v", tilt)
	}
	if tilt.Sample.Beta == 0 {
		t.Error("raw sample missing from stats")
	}

	// A change made while focused waits for the next focus.
	cfg.UprightAngle = 60
	if err := h.store.Set(context.Background(), cfg); err != nil {
		t.Fatal(err)
	}
	if got := h.ctrl.Settings().UprightAngle; got != 30 {
		t.Errorf("UprightAngle changed while focused: %v", got)
	}

	h.ctrl.Unfocus()
	if err := h.ctrl.Focus(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := h.ctrl.Settings().UprightAngle; got != 60 {
		t.Errorf("UprightAngle = %v after refocus, want 60", got)
	}

	if _, err := h.ctrl.Ask(context.Background(), describe.ModeGeneral); err != nil {
		t.Fatal(err)
	}
	if q := h.cam.LastConfig.Quality; q != 80 {
		t.Errorf("capture quality = %d, want 80", q)
	}
}

func TestAsk(t *testing.T) {
	h := newHarness(t, withKey())
	if err := h.ctrl.Focus(context.Background()); err != nil {
		t.Fatal(err)
	}

	text, err := h.ctrl.Ask(context.Background(), describe.ModeReadText)
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if text != "I see a mock image" {
		t.Errorf("text = %q", text)
	}
	if !strings.Contains(h.model.LastPrompt(), describe.ModeReadText.Question()) {
		t.Errorf("prompt = %q", h.model.LastPrompt())
	}
	if w := h.cam.LastConfig.Width; w != 1920 {
		t.Errorf("text capture width = %d, want the text preset's 1920", w)
	}
	waitFor(t, "spoken answer", func() bool { return len(h.sink.Clips()) == 1 })
	if h.images.Live() != 0 {
		t.Errorf("live images = %d, want 0", h.images.Live())
	}

	stats := h.ctrl.GetStats()
	if !stats.Focused {
		t.Error("stats.Focused = false")
	}
}

func TestAskHoldsCaptureGuard(t *testing.T) {
	h := newHarness(t, withKey())

	var active, peak atomic.Int32
	h.cam.CaptureFunc = func(ctx context.Context, cfg camera.Config) (*camera.Photo, error) {
		n := active.Add(1)
		defer active.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(600 * time.Millisecond)
		return &camera.Photo{Data: []byte{0xFF, 0xD8, 0xFF, 0xD9}, MimeType: "image/jpeg"}, nil
	}

	if err := h.ctrl.Focus(context.Background()); err != nil {
		t.Fatal(err)
	}
	h.sensor.EmitDegrees(80)
	waitFor(t, "listening", func() bool { return h.state() == session.Listening })

	done := make(chan error, 1)
	go func() {
		_, err := h.ctrl.Ask(context.Background(), describe.ModeGeneral)
		done <- err
	}()
	waitFor(t, "ask capture", func() bool { return active.Load() == 1 })

	if h.rec.Running() {
		t.Error("recognizer running during Ask")
	}
	if h.state() != session.Processing {
		t.Errorf("state = %v during Ask, want processing", h.state())
	}
	if _, err := h.ctrl.Ask(context.Background(), describe.ModeGeneral); !errors.Is(err, ErrBusy) {
		t.Errorf("second Ask = %v, want ErrBusy", err)
	}

	// A late result settles while Ask is still capturing.
	h.rec.EmitResult("what is this", false)

	if err := <-done; err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if p := peak.Load(); p != 1 {
		t.Errorf("peak concurrent captures = %d, want 1", p)
	}
}

func TestRelayFallsBackWithoutDevice(t *testing.T) {
	r := NewRelay(log.Nop())
	r.Alert("title", "message")
	if _, ok := r.Last(); ok {
		t.Error("Last() should report no fix without a device")
	}
}
