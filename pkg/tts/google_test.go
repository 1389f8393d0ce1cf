package tts

import (
	"testing"

	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
)

func TestBuildGoogleRequest(t *testing.T) {
	cfg := DefaultConfig()
	req := buildGoogleRequest(cfg, "Door on your left")

	if got := req.GetInput().GetText(); got != "Door on your left" {
		t.Errorf("text = %q", got)
	}
	voice := req.GetVoice()
	if voice.GetLanguageCode() != "en-GB" {
		t.Errorf("language = %q", voice.GetLanguageCode())
	}
	if voice.GetSsmlGender() != texttospeechpb.SsmlVoiceGender_FEMALE {
		t.Errorf("gender = %v", voice.GetSsmlGender())
	}
	if enc := req.GetAudioConfig().GetAudioEncoding(); enc != texttospeechpb.AudioEncoding_MP3 {
		t.Errorf("encoding = %v", enc)
	}
}

func TestGoogleEncoding(t *testing.T) {
	tests := []struct {
		in   Encoding
		want texttospeechpb.AudioEncoding
		out  Encoding
	}{
		{EncodingMP3, texttospeechpb.AudioEncoding_MP3, EncodingMP3},
		{EncodingWAV, texttospeechpb.AudioEncoding_LINEAR16, EncodingWAV},
		{EncodingPCM24, texttospeechpb.AudioEncoding_LINEAR16, EncodingWAV},
		{EncodingOpus, texttospeechpb.AudioEncoding_OGG_OPUS, EncodingOpus},
	}
	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			if got := googleEncoding(tt.in); got != tt.want {
				t.Errorf("googleEncoding = %v, want %v", got, tt.want)
			}
			if got := googleFormat(tt.in).Encoding; got != tt.out {
				t.Errorf("googleFormat = %v, want %v", got, tt.out)
			}
		})
	}
}
