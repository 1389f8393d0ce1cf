package main

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"log/slog"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nicholasching/Perception/pkg/protocol"
)

// Sim plays the part of the phone: it streams tilt samples, answers
// capture and permission requests, and speaks a scripted question once
// recognition starts.
type Sim struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	logger  *slog.Logger

	// Question is uttered word by word after recognition starts.
	Question string
	// Repeat utters Question on every recognition start, not just the first.
	Repeat bool
	// Deny refuses the recognition permission.
	Deny bool
	// WordDelay spaces the partial results.
	WordDelay time.Duration
	// PlayDelay is how long a clip of unknown length "plays".
	PlayDelay time.Duration

	photo       []byte
	photoMime   string
	photoWidth  int
	photoHeight int

	degrees atomic.Uint64 // math.Float64bits
	asked   atomic.Bool

	mu         sync.Mutex
	sensorStop chan struct{}
	playStop   chan struct{}

	// Heard receives every status, alert and haptic message, for scripting.
	Heard chan *protocol.Message
}

// Dial connects to a bridge endpoint such as ws://host:8080/ws/device/sim.
func Dial(ctx context.Context, url string, logger *slog.Logger) (*Sim, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sim{
		conn:      conn,
		logger:    logger.With("component", "devicesim"),
		WordDelay: 150 * time.Millisecond,
		PlayDelay: 500 * time.Millisecond,
		Heard:     make(chan *protocol.Message, 64),
	}
	s.SetPhoto(placeholderJPEG(320, 240), "image/jpeg", 320, 240)
	return s, nil
}

// SetPhoto sets the image returned for capture requests.
func (s *Sim) SetPhoto(data []byte, mimeType string, width, height int) {
	s.photo, s.photoMime, s.photoWidth, s.photoHeight = data, mimeType, width, height
}

// SetAngle sets the tilt reported from now on, in degrees.
func (s *Sim) SetAngle(deg float64) {
	s.degrees.Store(math.Float64bits(deg))
}

// Angle returns the reported tilt in degrees.
func (s *Sim) Angle() float64 {
	return math.Float64frombits(s.degrees.Load())
}

// Close closes the connection.
func (s *Sim) Close() error {
	s.stopSensor()
	return s.conn.Close()
}

func (s *Sim) send(msg *protocol.Message, err error) error {
	if err != nil {
		return err
	}
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Sim) sendLogged(msg *protocol.Message, err error) {
	if err := s.send(msg, err); err != nil {
		s.logger.Warn("send failed", "error", err)
	}
}

// Run introduces the device and serves requests until ctx is cancelled or
// the connection closes.
func (s *Sim) Run(ctx context.Context) error {
	hello := protocol.HelloData{
		Name:     "devicesim",
		Platform: "sim",
		Capabilities: []string{
			protocol.CapOrientation, protocol.CapRecognition, protocol.CapCamera,
			protocol.CapHaptics, protocol.CapSpeaker, protocol.CapLocation,
		},
	}
	if err := s.send(protocol.NewMessage(protocol.TypeHello, hello)); err != nil {
		return err
	}
	if err := s.send(protocol.NewMessage(protocol.TypeCameraState, protocol.CameraStateData{Ready: true})); err != nil {
		return err
	}
	if err := s.send(protocol.NewMessage(protocol.TypeLocation, protocol.LocationData{
		Latitude: 43.4723, Longitude: -80.5449, Accuracy: 25,
	})); err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		s.Close()
	}()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		msg, err := protocol.ParseMessage(data)
		if err != nil {
			s.logger.Warn("invalid message", "error", err)
			continue
		}
		s.handle(ctx, msg)
	}
}

func (s *Sim) handle(ctx context.Context, msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypeSensor:
		var cmd protocol.SensorCommand
		if err := msg.ParseData(&cmd); err != nil {
			return
		}
		if cmd.Enabled {
			s.startSensor(time.Duration(cmd.IntervalMs) * time.Millisecond)
		} else {
			s.stopSensor()
		}

	case protocol.TypeRecognize:
		var cmd protocol.RecognizeCommand
		if err := msg.ParseData(&cmd); err != nil {
			return
		}
		s.recognize(ctx, msg.ID, cmd)

	case protocol.TypeCapture:
		fmt.Println("📸 capture requested")
		s.sendLogged(protocol.NewPhotoMessage(msg.ID, s.photoWidth, s.photoHeight, s.photoMime, s.photo))

	case protocol.TypeRemount:
		go func() {
			time.Sleep(50 * time.Millisecond)
			s.sendLogged(protocol.NewMessage(protocol.TypeCameraState, protocol.CameraStateData{Ready: true}))
		}()

	case protocol.TypeSpeak:
		sd, err := protocol.Decode[protocol.SpeakData](msg)
		if err != nil {
			s.sendLogged(protocol.NewErrorMessage(msg.ID, err.Error()))
			return
		}
		go s.play(msg.ID, sd)

	case protocol.TypeStopSpeak:
		s.mu.Lock()
		if s.playStop != nil {
			close(s.playStop)
			s.playStop = nil
		}
		s.mu.Unlock()

	case protocol.TypePing:
		pd, err := protocol.Decode[protocol.PingData](msg)
		if err != nil {
			return
		}
		s.sendLogged(protocol.NewPongMessage(pd.ID, pd.Timestamp, time.Now().UnixMilli()))

	case protocol.TypeHaptic:
		var h protocol.HapticData
		if msg.ParseData(&h) == nil {
			fmt.Printf("📳 haptic %s\n", h.Intensity)
		}
		s.hear(msg)

	case protocol.TypeAlert:
		var a protocol.AlertData
		if msg.ParseData(&a) == nil {
			fmt.Printf("⚠️  %s: %s\n", a.Title, a.Message)
		}
		s.hear(msg)

	case protocol.TypeStatus:
		var st protocol.StatusData
		if msg.ParseData(&st) == nil {
			fmt.Printf("🔄 %s %s\n", st.State, st.Transcript)
		}
		s.hear(msg)
	}
}

func (s *Sim) hear(msg *protocol.Message) {
	select {
	case s.Heard <- msg:
	default:
	}
}

func (s *Sim) recognize(ctx context.Context, id string, cmd protocol.RecognizeCommand) {
	switch cmd.Action {
	case protocol.RecognizePermission:
		s.sendLogged(protocol.NewRequest(protocol.TypePermission, id, protocol.PermissionData{Granted: !s.Deny}))

	case protocol.RecognizeStart:
		fmt.Println("🎤 listening")
		s.sendLogged(protocol.NewRecognitionMessage(protocol.RecognitionStart, "", false))
		if s.Question == "" {
			return
		}
		if s.Repeat || !s.asked.Swap(true) {
			go s.utter(ctx)
		}

	case protocol.RecognizeStop:
		s.sendLogged(protocol.NewRecognitionMessage(protocol.RecognitionEnd, "", false))
	}
}

// utter sends the question as growing partial results, the way a phone
// recognizer refines its hypothesis.
func (s *Sim) utter(ctx context.Context) {
	words := strings.Fields(s.Question)
	for i := range words {
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.WordDelay):
		}
		partial := strings.Join(words[:i+1], " ")
		s.sendLogged(protocol.NewRecognitionMessage(protocol.RecognitionResult, partial, i == len(words)-1))
	}
	fmt.Printf("🗣️  %q\n", s.Question)
}

func (s *Sim) play(id string, sd *protocol.SpeakData) {
	audio, err := sd.Bytes()
	if err != nil {
		s.sendLogged(protocol.NewErrorMessage(id, err.Error()))
		return
	}

	d := s.PlayDelay
	if sd.Format == "pcm16" && sd.SampleRate > 0 {
		d = time.Duration(len(audio)/2) * time.Second / time.Duration(sd.SampleRate)
	}

	stop := make(chan struct{})
	s.mu.Lock()
	if s.playStop != nil {
		close(s.playStop)
	}
	s.playStop = stop
	s.mu.Unlock()

	fmt.Printf("🔊 playing %d bytes of %s\n", len(audio), sd.Format)
	s.sendLogged(protocol.NewRequest(protocol.TypePlayback, id, protocol.PlaybackData{Event: protocol.PlaybackStarted}))

	event := protocol.PlaybackFinished
	select {
	case <-time.After(d):
	case <-stop:
		event = protocol.PlaybackStopped
	}

	s.mu.Lock()
	if s.playStop == stop {
		s.playStop = nil
	}
	s.mu.Unlock()
	s.sendLogged(protocol.NewRequest(protocol.TypePlayback, id, protocol.PlaybackData{Event: event}))
}

func (s *Sim) startSensor(interval time.Duration) {
	if interval <= 0 {
		interval = 33 * time.Millisecond
	}
	s.stopSensor()

	stop := make(chan struct{})
	s.mu.Lock()
	s.sensorStop = stop
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				beta := s.Angle() * math.Pi / 180
				if err := s.send(protocol.NewOrientationMessage(0, beta, 0)); err != nil {
					return
				}
			}
		}
	}()
}

func (s *Sim) stopSensor() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sensorStop != nil {
		close(s.sensorStop)
		s.sensorStop = nil
	}
}

// placeholderJPEG draws a gradient so the model has something to look at.
func placeholderJPEG(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	_ = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 70})
	return buf.Bytes()
}
