package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"github.com/nicholasching/Perception/pkg/audioio"
	"github.com/nicholasching/Perception/pkg/camera"
	"github.com/nicholasching/Perception/pkg/describe"
	"github.com/nicholasching/Perception/pkg/geo"
	"github.com/nicholasching/Perception/pkg/haptics"
	"github.com/nicholasching/Perception/pkg/listener"
	"github.com/nicholasching/Perception/pkg/orientation"
	"github.com/nicholasching/Perception/pkg/protocol"
	"github.com/nicholasching/Perception/pkg/session"
)

// Device is one connected phone. It implements every peripheral interface
// the controller consumes, translating calls into protocol messages.
type Device struct {
	ID        string
	Connected time.Time

	conn    *websocket.Conn
	bridge  *Bridge
	logger  *slog.Logger
	timeout time.Duration

	writeMu sync.Mutex

	mu       sync.Mutex
	hello    protocol.HelloData
	lastSeen time.Time
	pending  map[string]chan *protocol.Message
	subs     map[*subscription]struct{}
	cb       listener.Callbacks

	cameraReady atomic.Bool
	location    *geo.Tracker

	// events runs sensor and recognition callbacks off the read loop, so a
	// callback may issue requests whose answers the read loop delivers.
	events chan func()

	closeOnce sync.Once
	done      chan struct{}
}

// eventQueueSize bounds callbacks waiting to run.
const eventQueueSize = 256

func newDevice(id string, c *websocket.Conn, b *Bridge) *Device {
	now := time.Now()
	return &Device{
		ID:        id,
		Connected: now,
		conn:      c,
		bridge:    b,
		logger:    b.logger.With("device", id),
		timeout:   b.timeout,
		lastSeen:  now,
		pending:   make(map[string]chan *protocol.Message),
		subs:      make(map[*subscription]struct{}),
		location:  geo.NewTracker(),
		events:    make(chan func(), eventQueueSize),
		done:      make(chan struct{}),
	}
}

// runEvents executes queued callbacks in order until the device disconnects.
func (d *Device) runEvents() {
	for {
		select {
		case fn := <-d.events:
			fn()
		case <-d.done:
			return
		}
	}
}

// enqueue schedules fn on the event goroutine. Lossy events are dropped when
// the queue is full; others wait for room.
func (d *Device) enqueue(fn func(), lossy bool) {
	if lossy {
		select {
		case d.events <- fn:
		default:
			d.logger.Debug("event queue full, sample dropped")
		}
		return
	}
	select {
	case d.events <- fn:
	case <-d.done:
	}
}

// Done is closed when the device disconnects.
func (d *Device) Done() <-chan struct{} {
	return d.done
}

// Location returns the tracker fed by the device's location fixes.
func (d *Device) Location() *geo.Tracker {
	return d.location
}

// Info returns a snapshot of the device's metadata.
func (d *Device) Info() Info {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Info{
		ID:           d.ID,
		Name:         d.hello.Name,
		Platform:     d.hello.Platform,
		Capabilities: append([]string(nil), d.hello.Capabilities...),
		CameraReady:  d.cameraReady.Load(),
		Connected:    d.Connected,
		LastSeen:     d.lastSeen,
	}
}

// send writes a message to the device.
func (d *Device) send(msg *protocol.Message) error {
	select {
	case <-d.done:
		return ErrNotConnected
	default:
	}

	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	if err := d.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("bridge: write to %s: %w", d.ID, err)
	}
	d.bridge.messagesSent.Add(1)
	return nil
}

// notify builds and sends a message, logging failures.
func (d *Device) notify(msgType protocol.MessageType, data interface{}) {
	msg, err := protocol.NewMessage(msgType, data)
	if err == nil {
		err = d.send(msg)
	}
	if err != nil {
		d.logger.Warn("send failed", "type", msgType, "error", err)
	}
}

// request sends a message with a fresh id and waits for the answer.
func (d *Device) request(ctx context.Context, msgType protocol.MessageType, data interface{}) (*protocol.Message, error) {
	id := uuid.NewString()
	msg, err := protocol.NewRequest(msgType, id, data)
	if err != nil {
		return nil, err
	}

	reply := make(chan *protocol.Message, 1)
	d.mu.Lock()
	d.pending[id] = reply
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		delete(d.pending, id)
		d.mu.Unlock()
	}()

	if err := d.send(msg); err != nil {
		return nil, err
	}

	timer := time.NewTimer(d.timeout)
	defer timer.Stop()

	select {
	case resp := <-reply:
		if resp.Type == protocol.TypeError {
			var e protocol.ErrorData
			_ = resp.ParseData(&e)
			return nil, fmt.Errorf("%w: %s", ErrDevice, e.Message)
		}
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-d.done:
		return nil, ErrDisconnected
	case <-timer.C:
		return nil, fmt.Errorf("%w: %s", ErrTimeout, msgType)
	}
}

// resolve hands an answer to the waiting request, if any.
func (d *Device) resolve(msg *protocol.Message) bool {
	if msg.ID == "" {
		return false
	}
	d.mu.Lock()
	reply, ok := d.pending[msg.ID]
	d.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case reply <- msg:
	default:
	}
	return true
}

// shutdown releases everything waiting on the device.
func (d *Device) shutdown() {
	d.closeOnce.Do(func() {
		close(d.done)
		d.cameraReady.Store(false)
		_ = d.conn.Close()
	})
}

// handle dispatches one message from the device.
func (d *Device) handle(msg *protocol.Message) {
	d.mu.Lock()
	d.lastSeen = time.Now()
	d.mu.Unlock()

	switch msg.Type {
	case protocol.TypeHello:
		var hello protocol.HelloData
		if err := msg.ParseData(&hello); err != nil {
			d.logger.Warn("bad hello", "error", err)
			return
		}
		d.mu.Lock()
		d.hello = hello
		d.mu.Unlock()
		d.logger.Info("device introduced", "name", hello.Name, "platform", hello.Platform)

	case protocol.TypeOrientation:
		var o protocol.OrientationData
		if err := msg.ParseData(&o); err != nil {
			return
		}
		sample := &orientation.Sample{Alpha: o.Alpha, Beta: o.Beta, Gamma: o.Gamma}
		d.enqueue(func() { d.deliverSample(sample) }, true)

	case protocol.TypeRecognition:
		var r protocol.RecognitionData
		if err := msg.ParseData(&r); err != nil {
			return
		}
		d.enqueue(func() { d.deliverRecognition(r) }, false)

	case protocol.TypeCameraState:
		var s protocol.CameraStateData
		if err := msg.ParseData(&s); err != nil {
			return
		}
		d.cameraReady.Store(s.Ready)

	case protocol.TypeLocation:
		var l protocol.LocationData
		if err := msg.ParseData(&l); err != nil {
			return
		}
		if err := d.location.Update(geo.Fix{Latitude: l.Latitude, Longitude: l.Longitude, Accuracy: l.Accuracy}); err != nil {
			d.logger.Warn("location rejected", "error", err)
		}

	case protocol.TypePhoto:
		d.bridge.photosReceived.Add(1)
		if !d.resolve(msg) {
			d.logger.Debug("unsolicited photo dropped", "id", msg.ID)
		}

	case protocol.TypePlayback:
		var p protocol.PlaybackData
		if err := msg.ParseData(&p); err != nil {
			return
		}
		if p.Event != protocol.PlaybackStarted {
			d.resolve(msg)
		}

	case protocol.TypePermission, protocol.TypeError:
		d.resolve(msg)

	case protocol.TypePing:
		ping, err := protocol.Decode[protocol.PingData](msg)
		if err != nil {
			return
		}
		pong, err := protocol.NewPongMessage(ping.ID, msg.Timestamp, time.Now().UnixMilli())
		if err == nil {
			_ = d.send(pong)
		}

	case protocol.TypePong:
		// keepalive only

	default:
		d.logger.Debug("unknown message type", "type", msg.Type)
	}
}

// =============================================================================
// orientation.Sensor
// =============================================================================

type subscription struct {
	device *Device
	h      orientation.Handler

	mu     sync.Mutex
	active bool
}

// Detach stops delivery. Once it returns no handler call is in progress.
func (s *subscription) Detach() {
	s.mu.Lock()
	wasActive := s.active
	s.active = false
	s.mu.Unlock()
	if !wasActive {
		return
	}

	d := s.device
	d.mu.Lock()
	delete(d.subs, s)
	remaining := len(d.subs)
	d.mu.Unlock()

	if remaining == 0 {
		d.notify(protocol.TypeSensor, protocol.SensorCommand{Enabled: false})
	}
}

func (s *subscription) deliver(sample *orientation.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		s.h(sample)
	}
}

// Subscribe asks the device to stream tilt samples at interval.
func (d *Device) Subscribe(interval time.Duration, h orientation.Handler) (orientation.Subscription, error) {
	if h == nil {
		return nil, orientation.ErrNoHandler
	}
	if interval <= 0 {
		interval = orientation.DefaultInterval
	}

	s := &subscription{device: d, h: h, active: true}
	d.mu.Lock()
	d.subs[s] = struct{}{}
	d.mu.Unlock()

	msg, err := protocol.NewMessage(protocol.TypeSensor, protocol.SensorCommand{
		Enabled:    true,
		IntervalMs: int(interval / time.Millisecond),
	})
	if err == nil {
		err = d.send(msg)
	}
	if err != nil {
		s.mu.Lock()
		s.active = false
		s.mu.Unlock()
		d.mu.Lock()
		delete(d.subs, s)
		d.mu.Unlock()
		return nil, err
	}
	return s, nil
}

func (d *Device) deliverSample(sample *orientation.Sample) {
	d.mu.Lock()
	subs := make([]*subscription, 0, len(d.subs))
	for s := range d.subs {
		subs = append(subs, s)
	}
	d.mu.Unlock()

	for _, s := range subs {
		s.deliver(sample)
	}
}

// =============================================================================
// listener.Recognizer
// =============================================================================

// RequestPermission asks the device for microphone and recognition access.
func (d *Device) RequestPermission(ctx context.Context) (bool, error) {
	resp, err := d.request(ctx, protocol.TypeRecognize, protocol.RecognizeCommand{
		Action: protocol.RecognizePermission,
	})
	if err != nil {
		return false, err
	}
	var p protocol.PermissionData
	if err := resp.ParseData(&p); err != nil {
		return false, fmt.Errorf("bridge: bad permission answer: %w", err)
	}
	return p.Granted, nil
}

// SetCallbacks installs the recognition event handlers.
func (d *Device) SetCallbacks(cb listener.Callbacks) {
	d.mu.Lock()
	d.cb = cb
	d.mu.Unlock()
}

// Start begins recognition on the device.
func (d *Device) Start(ctx context.Context, opts listener.Options) error {
	msg, err := protocol.NewMessage(protocol.TypeRecognize, protocol.RecognizeCommand{
		Action:          protocol.RecognizeStart,
		Language:        opts.Language,
		InterimResults:  opts.InterimResults,
		Continuous:      opts.Continuous,
		MaxAlternatives: opts.MaxAlternatives,
	})
	if err != nil {
		return err
	}
	return d.send(msg)
}

// Stop ends recognition. The device answers with an end event.
func (d *Device) Stop() error {
	msg, err := protocol.NewMessage(protocol.TypeRecognize, protocol.RecognizeCommand{
		Action: protocol.RecognizeStop,
	})
	if err != nil {
		return err
	}
	return d.send(msg)
}

func (d *Device) deliverRecognition(r protocol.RecognitionData) {
	d.mu.Lock()
	cb := d.cb
	d.mu.Unlock()

	switch r.Event {
	case protocol.RecognitionStart:
		if cb.OnStart != nil {
			cb.OnStart()
		}
	case protocol.RecognitionEnd:
		if cb.OnEnd != nil {
			cb.OnEnd()
		}
	case protocol.RecognitionResult:
		if cb.OnResult != nil {
			cb.OnResult(r.Text, r.Final)
		}
	case protocol.RecognitionError:
		code := r.Code
		if code == "" {
			code = listener.CodeUnknown
		}
		if cb.OnError != nil {
			cb.OnError(code, fmt.Errorf("%w: %s", ErrDevice, code))
		}
	}
}

// =============================================================================
// camera.Device
// =============================================================================

// Ready reports whether the device's camera has signalled it is usable.
func (d *Device) Ready() bool {
	return d.cameraReady.Load()
}

// Capture asks the device for a photo.
func (d *Device) Capture(ctx context.Context, cfg camera.Config) (*camera.Photo, error) {
	if !d.Ready() {
		return nil, camera.ErrNotReady
	}

	resp, err := d.request(ctx, protocol.TypeCapture, protocol.CaptureRequest{
		Quality:      cfg.Quality,
		MaxDimension: cfg.MaxDimension,
		Facing:       cfg.Facing,
	})
	if err != nil {
		return nil, err
	}

	photo, err := protocol.Decode[protocol.PhotoData](resp)
	if err != nil {
		return nil, fmt.Errorf("bridge: bad photo: %w", err)
	}
	data, err := photo.Bytes()
	if err != nil {
		return nil, fmt.Errorf("bridge: decode photo: %w", err)
	}
	if len(data) == 0 {
		return nil, camera.ErrNoFrame
	}

	mimeType := photo.MimeType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return &camera.Photo{
		Data:     data,
		MimeType: mimeType,
		Width:    photo.Width,
		Height:   photo.Height,
		TakenAt:  time.Now(),
	}, nil
}

// Remount tells the device to tear down and reopen its camera. Ready reports
// false until the device reports the camera ready again.
func (d *Device) Remount(ctx context.Context) error {
	d.cameraReady.Store(false)
	msg, err := protocol.NewMessage(protocol.TypeRemount, nil)
	if err != nil {
		return err
	}
	return d.send(msg)
}

// Close is a no-op; the connection belongs to the bridge.
func (d *Device) Close() error {
	return nil
}

// =============================================================================
// haptics.Actuator, audioio.Sink, describe.Alerter
// =============================================================================

// Pulse triggers a haptic pulse on the device. Failures are logged only.
func (d *Device) Pulse(i haptics.Intensity) {
	d.notify(protocol.TypeHaptic, protocol.HapticData{Intensity: string(i)})
}

// Play sends a clip to the device and waits until it finishes playing.
func (d *Device) Play(ctx context.Context, clip audioio.Clip) error {
	id := uuid.NewString()
	msg, err := protocol.NewSpeakMessage(id, clip.Data, clip.Format, clip.SampleRate)
	if err != nil {
		return err
	}

	reply := make(chan *protocol.Message, 1)
	d.mu.Lock()
	d.pending[id] = reply
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		delete(d.pending, id)
		d.mu.Unlock()
	}()

	if err := d.send(msg); err != nil {
		return err
	}

	// Playback length is unknown up front, so no request timeout applies.
	select {
	case <-reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		return ErrDisconnected
	}
}

// stopPlayback interrupts playback. Stop is taken by the recognizer, so the
// sink side is exposed through Speaker.
func (d *Device) stopPlayback() error {
	msg, err := protocol.NewMessage(protocol.TypeStopSpeak, nil)
	if err != nil {
		return err
	}
	return d.send(msg)
}

// Speaker returns the device's loudspeaker as an audioio.Sink.
func (d *Device) Speaker() audioio.Sink {
	return deviceSink{d}
}

type deviceSink struct{ d *Device }

func (s deviceSink) Play(ctx context.Context, clip audioio.Clip) error {
	return s.d.Play(ctx, clip)
}

func (s deviceSink) Stop() error {
	return s.d.stopPlayback()
}

func (s deviceSink) Name() string {
	return "bridge"
}

// Alert shows a blocking alert on the device.
func (d *Device) Alert(title, message string) {
	d.notify(protocol.TypeAlert, protocol.AlertData{Title: title, Message: message})
}

// PushStatus mirrors the session state to the device UI.
func (d *Device) PushStatus(s session.Status) {
	d.notify(protocol.TypeStatus, protocol.StatusData{State: s.State.String(), Transcript: s.Transcript})
}

var (
	_ orientation.Sensor  = (*Device)(nil)
	_ listener.Recognizer = (*Device)(nil)
	_ camera.Device       = (*Device)(nil)
	_ haptics.Actuator    = (*Device)(nil)
	_ describe.Alerter    = (*Device)(nil)
	_ audioio.Sink        = deviceSink{}
)
