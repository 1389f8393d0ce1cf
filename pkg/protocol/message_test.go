package protocol

import (
	"testing"
	"time"
)

func TestNewMessage(t *testing.T) {
	tests := []struct {
		name    string
		msgType MessageType
		data    interface{}
		wantErr bool
	}{
		{
			name:    "orientation message",
			msgType: TypeOrientation,
			data:    OrientationData{Beta: 0.4},
		},
		{
			name:    "recognition message",
			msgType: TypeRecognition,
			data:    RecognitionData{Event: RecognitionResult, Text: "hello"},
		},
		{
			name:    "nil data",
			msgType: TypePing,
			data:    nil,
		},
		{
			name:    "unmarshalable data",
			msgType: TypeStatus,
			data:    func() {},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewMessage(tt.msgType, tt.data)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewMessage() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}
			if msg.Type != tt.msgType {
				t.Errorf("NewMessage() type = %v, want %v", msg.Type, tt.msgType)
			}
			if msg.Timestamp == 0 {
				t.Error("NewMessage() timestamp should be set")
			}
		})
	}
}

func TestParseMessage(t *testing.T) {
	if _, err := ParseMessage([]byte("not json")); err == nil {
		t.Error("expected error for invalid JSON")
	}
	if _, err := ParseMessage([]byte(`{"data":{}}`)); err == nil {
		t.Error("expected error for missing type")
	}

	msg, err := ParseMessage([]byte(`{"type":"remount"}`))
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	var empty struct{}
	if err := msg.ParseData(&empty); err != nil {
		t.Errorf("ParseData() on empty data error = %v", err)
	}
}

func TestPhotoMessageRoundTrip(t *testing.T) {
	jpegData := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10}

	msg, err := NewPhotoMessage("req-1", 640, 480, "image/jpeg", jpegData)
	if err != nil {
		t.Fatalf("NewPhotoMessage() error = %v", err)
	}

	raw, err := msg.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}
	parsed, err := ParseMessage(raw)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}

	if parsed.Type != TypePhoto {
		t.Errorf("Type = %v, want %v", parsed.Type, TypePhoto)
	}
	if parsed.ID != "req-1" {
		t.Errorf("ID = %q, want req-1", parsed.ID)
	}

	photo, err := Decode[PhotoData](parsed)
	if err != nil {
		t.Fatalf("Decode(photo) error = %v", err)
	}
	if photo.Width != 640 || photo.Height != 480 {
		t.Errorf("size = %dx%d, want 640x480", photo.Width, photo.Height)
	}
	decoded, err := photo.Bytes()
	if err != nil {
		t.Fatalf("PhotoData.Bytes() error = %v", err)
	}
	if string(decoded) != string(jpegData) {
		t.Error("decoded photo does not match")
	}
}

func TestSpeakMessage(t *testing.T) {
	audioData := []byte{0x00, 0x01, 0x02, 0x03}

	msg, err := NewSpeakMessage("utt-1", audioData, "pcm16", 24000)
	if err != nil {
		t.Fatalf("NewSpeakMessage() error = %v", err)
	}

	if msg.Type != TypeSpeak {
		t.Errorf("Type = %v, want %v", msg.Type, TypeSpeak)
	}

	speakData, err := Decode[SpeakData](msg)
	if err != nil {
		t.Fatalf("Decode(speak) error = %v", err)
	}
	if speakData.Format != "pcm16" {
		t.Errorf("Format = %v, want pcm16", speakData.Format)
	}
	if speakData.SampleRate != 24000 {
		t.Errorf("SampleRate = %v, want 24000", speakData.SampleRate)
	}
	if speakData.Channels != 1 {
		t.Errorf("Channels = %v, want 1", speakData.Channels)
	}

	decoded, err := speakData.Bytes()
	if err != nil {
		t.Fatalf("SpeakData.Bytes() error = %v", err)
	}
	if len(decoded) != len(audioData) {
		t.Errorf("Decoded length = %v, want %v", len(decoded), len(audioData))
	}
}

func TestRecognitionMessage(t *testing.T) {
	msg, err := NewRecognitionMessage(RecognitionResult, "what is this", true)
	if err != nil {
		t.Fatalf("NewRecognitionMessage() error = %v", err)
	}

	var data RecognitionData
	if err := msg.ParseData(&data); err != nil {
		t.Fatalf("ParseData() error = %v", err)
	}
	if data.Event != RecognitionResult || data.Text != "what is this" || !data.Final {
		t.Errorf("unexpected recognition data %+v", data)
	}
}

func TestErrorMessage(t *testing.T) {
	msg, err := NewErrorMessage("req-9", "camera unavailable")
	if err != nil {
		t.Fatalf("NewErrorMessage() error = %v", err)
	}
	if msg.ID != "req-9" {
		t.Errorf("ID = %q, want req-9", msg.ID)
	}
	var data ErrorData
	if err := msg.ParseData(&data); err != nil {
		t.Fatal(err)
	}
	if data.Message != "camera unavailable" {
		t.Errorf("Message = %q", data.Message)
	}
}

func TestPingPongMessage(t *testing.T) {
	pingMsg, err := NewPingMessage("test-123")
	if err != nil {
		t.Fatalf("NewPingMessage() error = %v", err)
	}

	pingData, err := Decode[PingData](pingMsg)
	if err != nil {
		t.Fatalf("Decode(ping) error = %v", err)
	}
	if pingData.ID != "test-123" {
		t.Errorf("ID = %v, want test-123", pingData.ID)
	}

	now := time.Now().UnixMilli()
	pongMsg, err := NewPongMessage("test-123", pingMsg.Timestamp, now)
	if err != nil {
		t.Fatalf("NewPongMessage() error = %v", err)
	}
	if pongMsg.Type != TypePong {
		t.Errorf("Type = %v, want %v", pongMsg.Type, TypePong)
	}

	pongData, err := Decode[PongData](pongMsg)
	if err != nil {
		t.Fatalf("Decode(pong) error = %v", err)
	}
	if pongData.LatencyMs < 0 {
		t.Errorf("LatencyMs = %v, should be >= 0", pongData.LatencyMs)
	}
}
