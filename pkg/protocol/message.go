// Package protocol defines the WebSocket messages exchanged between the
// phone (or simulator) and the iSight server.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of WebSocket message
type MessageType string

const (
	// Device → Server messages
	TypeHello       MessageType = "hello"       // Device introduction
	TypeOrientation MessageType = "orientation" // Tilt sample
	TypeRecognition MessageType = "recognition" // Speech recognition event
	TypePermission  MessageType = "permission"  // Answer to a permission request
	TypePhoto       MessageType = "photo"       // Answer to a capture request
	TypeCameraState MessageType = "camera"      // Camera readiness
	TypeLocation    MessageType = "location"    // Location fix
	TypePlayback    MessageType = "playback"    // Speech playback progress

	// Server → Device messages
	TypeHaptic      MessageType = "haptic"       // Haptic pulse
	TypeSpeak       MessageType = "speak"        // Audio to play
	TypeStopSpeak   MessageType = "stop_speak"   // Interrupt playback
	TypeCapture     MessageType = "capture"      // Take a photo
	TypeRemount     MessageType = "remount"      // Tear down and reopen the camera
	TypeRecognize   MessageType = "recognize"    // Recognition control
	TypeSensor      MessageType = "sensor"       // Orientation stream control
	TypeAlert       MessageType = "alert"        // Blocking user alert
	TypeStatus      MessageType = "status"       // Session state for the device UI

	// Bidirectional
	TypePing  MessageType = "ping"  // Health check
	TypePong  MessageType = "pong"  // Health check response
	TypeError MessageType = "error" // Request failed
)

// Message is the base wrapper for all WebSocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	ID        string          `json:"id,omitempty"` // Correlates a request with its answer
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// NewRequest creates a message carrying a correlation id.
func NewRequest(msgType MessageType, id string, data interface{}) (*Message, error) {
	msg, err := NewMessage(msgType, data)
	if err != nil {
		return nil, err
	}
	msg.ID = id
	return msg, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("failed to parse message: missing type")
	}
	return &msg, nil
}

// =============================================================================
// Device → Server Message Types
// =============================================================================

// HelloData introduces a device.
type HelloData struct {
	Name         string   `json:"name,omitempty"`
	Platform     string   `json:"platform,omitempty"` // "ios", "android", "sim"
	Capabilities []string `json:"capabilities,omitempty"`
}

// Device capabilities announced in HelloData.
const (
	CapOrientation = "orientation"
	CapRecognition = "recognition"
	CapCamera      = "camera"
	CapHaptics     = "haptics"
	CapSpeaker     = "speaker"
	CapLocation    = "location"
)

// OrientationData is one tilt sample, in radians.
type OrientationData struct {
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
	Gamma float64 `json:"gamma"`
}

// Recognition events.
const (
	RecognitionStart  = "start"
	RecognitionEnd    = "end"
	RecognitionResult = "result"
	RecognitionError  = "error"
)

// RecognitionData is a speech recognition session event.
type RecognitionData struct {
	Event string `json:"event"`
	Text  string `json:"text,omitempty"`
	Final bool   `json:"final,omitempty"`
	Code  string `json:"code,omitempty"` // error code, e.g. "not-allowed"
}

// PermissionData answers a recognition permission request.
type PermissionData struct {
	Granted bool `json:"granted"`
}

// PhotoData answers a capture request.
type PhotoData struct {
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	MimeType string `json:"mime_type"`
	Data     string `json:"data"` // base64 encoded
}

// CameraStateData reports camera readiness.
type CameraStateData struct {
	Ready bool `json:"ready"`
}

// LocationData is a location fix.
type LocationData struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy,omitempty"`
}

// Playback events.
const (
	PlaybackStarted  = "started"
	PlaybackFinished = "finished"
	PlaybackStopped  = "stopped"
)

// PlaybackData reports progress of a speak request.
type PlaybackData struct {
	Event string `json:"event"`
}

// =============================================================================
// Server → Device Message Types
// =============================================================================

// HapticData triggers a haptic pulse.
type HapticData struct {
	Intensity string `json:"intensity"` // "light", "medium", "rigid"
}

// SpeakData contains audio to play
type SpeakData struct {
	Format     string `json:"format"`      // "pcm16", "mp3", "wav"
	SampleRate int    `json:"sample_rate"` // e.g., 24000
	Channels   int    `json:"channels"`    // 1 for mono
	Data       string `json:"data"`        // base64 encoded
}

// CaptureRequest asks for a photo.
type CaptureRequest struct {
	Quality      int    `json:"quality"`
	MaxDimension int    `json:"max_dimension,omitempty"`
	Facing       string `json:"facing,omitempty"`
}

// Recognition control actions.
const (
	RecognizePermission = "permission"
	RecognizeStart      = "start"
	RecognizeStop       = "stop"
)

// RecognizeCommand controls the device recognizer.
type RecognizeCommand struct {
	Action          string `json:"action"`
	Language        string `json:"language,omitempty"`
	InterimResults  bool   `json:"interim_results,omitempty"`
	Continuous      bool   `json:"continuous,omitempty"`
	MaxAlternatives int    `json:"max_alternatives,omitempty"`
}

// SensorCommand starts or stops the orientation stream.
type SensorCommand struct {
	Enabled    bool `json:"enabled"`
	IntervalMs int  `json:"interval_ms,omitempty"`
}

// AlertData is a blocking alert.
type AlertData struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// StatusData mirrors the session state.
type StatusData struct {
	State      string `json:"state"`
	Transcript string `json:"transcript,omitempty"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}

// ErrorData reports a failed request.
type ErrorData struct {
	Message string `json:"message"`
}
