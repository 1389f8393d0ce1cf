package protocol

import (
	"encoding/base64"
	"time"
)

func NewOrientationMessage(alpha, beta, gamma float64) (*Message, error) {
	return NewMessage(TypeOrientation, OrientationData{Alpha: alpha, Beta: beta, Gamma: gamma})
}

func NewRecognitionMessage(event, text string, final bool) (*Message, error) {
	return NewMessage(TypeRecognition, RecognitionData{Event: event, Text: text, Final: final})
}

// NewPhotoMessage answers capture request id.
func NewPhotoMessage(id string, width, height int, mimeType string, data []byte) (*Message, error) {
	return NewRequest(TypePhoto, id, PhotoData{
		Width: width, Height: height, MimeType: mimeType,
		Data: base64.StdEncoding.EncodeToString(data),
	})
}

// NewSpeakMessage carries one mono clip to the phone.
func NewSpeakMessage(id string, audio []byte, format string, sampleRate int) (*Message, error) {
	return NewRequest(TypeSpeak, id, SpeakData{
		Format: format, SampleRate: sampleRate, Channels: 1,
		Data: base64.StdEncoding.EncodeToString(audio),
	})
}

func NewHapticMessage(intensity string) (*Message, error) {
	return NewMessage(TypeHaptic, HapticData{Intensity: intensity})
}

func NewAlertMessage(title, message string) (*Message, error) {
	return NewMessage(TypeAlert, AlertData{Title: title, Message: message})
}

// NewErrorMessage fails request id.
func NewErrorMessage(id, message string) (*Message, error) {
	return NewRequest(TypeError, id, ErrorData{Message: message})
}

func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{ID: id, Timestamp: time.Now().UnixMilli()})
}

// NewPongMessage echoes a ping; LatencyMs is the one-way estimate the
// phone can show.
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{ID: id, PingTS: pingTS, PongTS: pongTS, LatencyMs: pongTS - pingTS})
}

// Decode unmarshals the payload of m into a new T.
//
//	photo, err := protocol.Decode[protocol.PhotoData](msg)
func Decode[T any](m *Message) (*T, error) {
	v := new(T)
	if err := m.ParseData(v); err != nil {
		return nil, err
	}
	return v, nil
}

// Bytes returns the decoded image.
func (p *PhotoData) Bytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(p.Data)
}

// Bytes returns the decoded audio.
func (s *SpeakData) Bytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(s.Data)
}
