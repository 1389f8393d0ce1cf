package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"

	"github.com/nicholasching/Perception/internal/log"
	"github.com/nicholasching/Perception/pkg/audioio"
	"github.com/nicholasching/Perception/pkg/camera"
	"github.com/nicholasching/Perception/pkg/haptics"
	"github.com/nicholasching/Perception/pkg/listener"
	"github.com/nicholasching/Perception/pkg/orientation"
	"github.com/nicholasching/Perception/pkg/protocol"
)

// startBridge serves a bridge on port and returns it with its base URL.
func startBridge(t *testing.T, port int, opts ...Option) (*Bridge, string) {
	t.Helper()
	b := New(append([]Option{WithLogger(log.Nop())}, opts...)...)
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	b.RegisterRoutes(app)

	go app.Listen(fmt.Sprintf(":%d", port))
	t.Cleanup(func() { _ = app.Shutdown() })
	time.Sleep(100 * time.Millisecond)

	return b, fmt.Sprintf("ws://localhost:%d/ws/device", port)
}

// phone is the client side of a device connection.
type phone struct {
	t  *testing.T
	ws *websocket.Conn
}

func dial(t *testing.T, url string) *phone {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("WebSocket dial error: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return &phone{t: t, ws: ws}
}

func (p *phone) send(msg *protocol.Message, err error) {
	p.t.Helper()
	if err != nil {
		p.t.Fatalf("build message: %v", err)
	}
	data, err := msg.Bytes()
	if err != nil {
		p.t.Fatalf("encode message: %v", err)
	}
	if err := p.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		p.t.Fatalf("write: %v", err)
	}
}

// expect reads until a message of type typ arrives.
func (p *phone) expect(typ protocol.MessageType) *protocol.Message {
	p.t.Helper()
	_ = p.ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := p.ws.ReadMessage()
		if err != nil {
			p.t.Fatalf("waiting for %s: %v", typ, err)
		}
		msg, err := protocol.ParseMessage(data)
		if err != nil {
			p.t.Fatalf("parse: %v", err)
		}
		if msg.Type == typ {
			return msg
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNew(t *testing.T) {
	b := New()
	if b.Count() != 0 {
		t.Error("Count should be 0 initially")
	}
	if b.Device("nope") != nil {
		t.Error("Device should return nil for unknown id")
	}
	stats := b.GetStats()
	if stats.DeviceCount != 0 || stats.MessagesReceived != 0 || stats.MessagesSent != 0 {
		t.Errorf("unexpected initial stats %+v", stats)
	}
	if len(b.Infos()) != 0 {
		t.Error("Infos should be empty initially")
	}
}

func TestConnectAndHello(t *testing.T) {
	b, url := startBridge(t, 18181)

	connected := make(chan *Device, 1)
	disconnected := make(chan *Device, 1)
	b.OnConnect(func(d *Device) { connected <- d })
	b.OnDisconnect(func(d *Device) { disconnected <- d })

	p := dial(t, url+"/phone-1")

	select {
	case d := <-connected:
		if d.ID != "phone-1" {
			t.Errorf("ID = %q, want phone-1", d.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OnConnect not called")
	}

	p.send(protocol.NewMessage(protocol.TypeHello, protocol.HelloData{
		Name:         "Test Phone",
		Platform:     "sim",
		Capabilities: []string{protocol.CapCamera},
	}))
	p.send(protocol.NewMessage(protocol.TypeCameraState, protocol.CameraStateData{Ready: true}))

	d := b.Device("phone-1")
	if d == nil {
		t.Fatal("device not registered")
	}
	waitFor(t, "camera ready", d.Ready)

	info := d.Info()
	if info.Name != "Test Phone" || info.Platform != "sim" {
		t.Errorf("Info = %+v", info)
	}
	if !info.CameraReady {
		t.Error("Info.CameraReady should be true")
	}

	_ = p.ws.Close()

	select {
	case <-disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("OnDisconnect not called")
	}
	waitFor(t, "device removal", func() bool { return b.Count() == 0 })

	select {
	case <-d.Done():
	default:
		t.Error("Done should be closed after disconnect")
	}
}

func TestCaptureRoundTrip(t *testing.T) {
	b, url := startBridge(t, 18182)
	p := dial(t, url+"/cam")
	waitFor(t, "device", func() bool { return b.Device("cam") != nil })
	d := b.Device("cam")

	if _, err := d.Capture(context.Background(), camera.DefaultConfig()); !errors.Is(err, camera.ErrNotReady) {
		t.Fatalf("Capture before ready error = %v, want ErrNotReady", err)
	}

	p.send(protocol.NewMessage(protocol.TypeCameraState, protocol.CameraStateData{Ready: true}))
	waitFor(t, "camera ready", d.Ready)

	jpeg := []byte{0xFF, 0xD8, 0xFF, 0xE0}
	done := make(chan struct{})
	go func() {
		defer close(done)
		req := p.expect(protocol.TypeCapture)
		var cr protocol.CaptureRequest
		if err := req.ParseData(&cr); err != nil || cr.Quality != 50 {
			t.Errorf("capture request = %+v, %v", cr, err)
		}
		p.send(protocol.NewPhotoMessage(req.ID, 640, 480, "image/jpeg", jpeg))
	}()

	photo, err := d.Capture(context.Background(), camera.DefaultConfig())
	<-done
	if err != nil {
		t.Fatalf("Capture() error = %v", err)
	}
	if string(photo.Data) != string(jpeg) {
		t.Error("photo data mismatch")
	}
	if photo.Width != 640 || photo.MimeType != "image/jpeg" {
		t.Errorf("photo = %+v", photo)
	}
	if b.GetStats().PhotosReceived != 1 {
		t.Errorf("PhotosReceived = %d, want 1", b.GetStats().PhotosReceived)
	}
}

func TestCaptureDeviceError(t *testing.T) {
	b, url := startBridge(t, 18183)
	p := dial(t, url+"/cam")
	waitFor(t, "device", func() bool { return b.Device("cam") != nil })
	d := b.Device("cam")
	p.send(protocol.NewMessage(protocol.TypeCameraState, protocol.CameraStateData{Ready: true}))
	waitFor(t, "camera ready", d.Ready)

	go func() {
		req := p.expect(protocol.TypeCapture)
		p.send(protocol.NewErrorMessage(req.ID, "shutter jammed"))
	}()

	_, err := d.Capture(context.Background(), camera.DefaultConfig())
	if !errors.Is(err, ErrDevice) {
		t.Fatalf("Capture() error = %v, want ErrDevice", err)
	}
}

func TestRequestTimeout(t *testing.T) {
	b, url := startBridge(t, 18184, WithRequestTimeout(100*time.Millisecond))
	_ = dial(t, url+"/slow")
	waitFor(t, "device", func() bool { return b.Device("slow") != nil })

	_, err := b.Device("slow").RequestPermission(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("RequestPermission() error = %v, want ErrTimeout", err)
	}
}

func TestPendingRequestFailsOnDisconnect(t *testing.T) {
	b, url := startBridge(t, 18185)
	p := dial(t, url+"/gone")
	waitFor(t, "device", func() bool { return b.Device("gone") != nil })
	d := b.Device("gone")

	go func() {
		p.expect(protocol.TypeRecognize)
		_ = p.ws.Close()
	}()

	_, err := d.RequestPermission(context.Background())
	if !errors.Is(err, ErrDisconnected) {
		t.Fatalf("RequestPermission() error = %v, want ErrDisconnected", err)
	}
}

func TestRecognizer(t *testing.T) {
	b, url := startBridge(t, 18186)
	p := dial(t, url+"/mic")
	waitFor(t, "device", func() bool { return b.Device("mic") != nil })
	d := b.Device("mic")

	var (
		mu      sync.Mutex
		events  []string
		results []string
	)
	record := func(e string) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}
	d.SetCallbacks(listener.Callbacks{
		OnStart: func() { record("start") },
		OnEnd:   func() { record("end") },
		OnResult: func(text string, final bool) {
			mu.Lock()
			results = append(results, text)
			mu.Unlock()
			record("result")
		},
		OnError: func(code string, err error) { record("error:" + code) },
	})

	go func() {
		req := p.expect(protocol.TypeRecognize)
		p.send(protocol.NewRequest(protocol.TypePermission, req.ID, protocol.PermissionData{Granted: true}))
	}()
	granted, err := d.RequestPermission(context.Background())
	if err != nil || !granted {
		t.Fatalf("RequestPermission() = %v, %v", granted, err)
	}

	opts := listener.DefaultOptions()
	if err := d.Start(context.Background(), opts); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	start := p.expect(protocol.TypeRecognize)
	var cmd protocol.RecognizeCommand
	if err := start.ParseData(&cmd); err != nil {
		t.Fatal(err)
	}
	if cmd.Action != protocol.RecognizeStart || cmd.Language != "en-GB" || !cmd.Continuous {
		t.Errorf("start command = %+v", cmd)
	}

	p.send(protocol.NewRecognitionMessage(protocol.RecognitionStart, "", false))
	p.send(protocol.NewRecognitionMessage(protocol.RecognitionResult, "what is", false))
	p.send(protocol.NewMessage(protocol.TypeRecognition, protocol.RecognitionData{Event: protocol.RecognitionError, Code: listener.CodeNoSpeech}))
	p.send(protocol.NewRecognitionMessage(protocol.RecognitionEnd, "", false))

	waitFor(t, "recognition events", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 4
	})

	mu.Lock()
	defer mu.Unlock()
	want := []string{"start", "result", "error:no-speech", "end"}
	for i, e := range want {
		if events[i] != e {
			t.Errorf("events[%d] = %q, want %q", i, events[i], e)
		}
	}
	if results[0] != "what is" {
		t.Errorf("result = %q, want %q", results[0], "what is")
	}
}

func TestOrientationSubscription(t *testing.T) {
	b, url := startBridge(t, 18187)
	p := dial(t, url+"/tilt")
	waitFor(t, "device", func() bool { return b.Device("tilt") != nil })
	d := b.Device("tilt")

	samples := make(chan *orientation.Sample, 4)
	sub, err := d.Subscribe(50*time.Millisecond, func(s *orientation.Sample) { samples <- s })
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	var cmd protocol.SensorCommand
	if err := p.expect(protocol.TypeSensor).ParseData(&cmd); err != nil {
		t.Fatal(err)
	}
	if !cmd.Enabled || cmd.IntervalMs != 50 {
		t.Errorf("sensor command = %+v", cmd)
	}

	p.send(protocol.NewOrientationMessage(0, 1.2, 0))
	select {
	case s := <-samples:
		if s.Beta != 1.2 {
			t.Errorf("Beta = %v, want 1.2", s.Beta)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sample not delivered")
	}

	sub.Detach()
	sub.Detach()
	if err := p.expect(protocol.TypeSensor).ParseData(&cmd); err != nil {
		t.Fatal(err)
	}
	if cmd.Enabled {
		t.Error("expected sensor disable after last detach")
	}

	p.send(protocol.NewOrientationMessage(0, 0.1, 0))
	select {
	case <-samples:
		t.Error("sample delivered after Detach")
	case <-time.After(100 * time.Millisecond):
	}

	if _, err := d.Subscribe(0, nil); !errors.Is(err, orientation.ErrNoHandler) {
		t.Errorf("Subscribe(nil) error = %v", err)
	}
}

func TestSpeakerAndHaptics(t *testing.T) {
	b, url := startBridge(t, 18188)
	p := dial(t, url+"/spk")
	waitFor(t, "device", func() bool { return b.Device("spk") != nil })
	d := b.Device("spk")

	played := make(chan error, 1)
	go func() {
		played <- d.Speaker().Play(context.Background(), audioio.Clip{Data: []byte{1, 2}, Format: "mp3", SampleRate: 24000})
	}()

	req := p.expect(protocol.TypeSpeak)
	speak, err := protocol.Decode[protocol.SpeakData](req)
	if err != nil || speak.Format != "mp3" {
		t.Fatalf("speak data = %+v, %v", speak, err)
	}

	p.send(protocol.NewRequest(protocol.TypePlayback, req.ID, protocol.PlaybackData{Event: protocol.PlaybackStarted}))
	select {
	case <-played:
		t.Fatal("Play returned on started event")
	case <-time.After(100 * time.Millisecond):
	}

	p.send(protocol.NewRequest(protocol.TypePlayback, req.ID, protocol.PlaybackData{Event: protocol.PlaybackFinished}))
	select {
	case err := <-played:
		if err != nil {
			t.Errorf("Play() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Play did not return")
	}

	d.Pulse(haptics.Rigid)
	var h protocol.HapticData
	if err := p.expect(protocol.TypeHaptic).ParseData(&h); err != nil {
		t.Fatal(err)
	}
	if h.Intensity != "rigid" {
		t.Errorf("Intensity = %q, want rigid", h.Intensity)
	}

	d.Alert("Missing key", "Please enter a valid API key in settings.")
	var a protocol.AlertData
	if err := p.expect(protocol.TypeAlert).ParseData(&a); err != nil {
		t.Fatal(err)
	}
	if a.Title != "Missing key" {
		t.Errorf("Title = %q", a.Title)
	}
}

func TestRemountClearsReady(t *testing.T) {
	b, url := startBridge(t, 18189)
	p := dial(t, url+"/cam")
	waitFor(t, "device", func() bool { return b.Device("cam") != nil })
	d := b.Device("cam")
	p.send(protocol.NewMessage(protocol.TypeCameraState, protocol.CameraStateData{Ready: true}))
	waitFor(t, "camera ready", d.Ready)

	if err := d.Remount(context.Background()); err != nil {
		t.Fatalf("Remount() error = %v", err)
	}
	if d.Ready() {
		t.Error("Ready should be false right after Remount")
	}
	p.expect(protocol.TypeRemount)
}

func TestLocationAndPing(t *testing.T) {
	b, url := startBridge(t, 18190)
	p := dial(t, url+"/geo")
	waitFor(t, "device", func() bool { return b.Device("geo") != nil })
	d := b.Device("geo")

	p.send(protocol.NewMessage(protocol.TypeLocation, protocol.LocationData{Latitude: 51.5, Longitude: -0.12}))
	waitFor(t, "location", func() bool {
		_, ok := d.Location().Last()
		return ok
	})
	fix, _ := d.Location().Last()
	if fix.Latitude != 51.5 {
		t.Errorf("Latitude = %v, want 51.5", fix.Latitude)
	}

	p.send(protocol.NewPingMessage("p-1"))
	pong, err := protocol.Decode[protocol.PongData](p.expect(protocol.TypePong))
	if err != nil {
		t.Fatal(err)
	}
	if pong.ID != "p-1" {
		t.Errorf("pong ID = %q, want p-1", pong.ID)
	}
}
