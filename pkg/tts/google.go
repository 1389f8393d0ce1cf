package tts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"google.golang.org/api/option"
)

const providerGoogle = "google"

// Google implements Provider for Google Cloud Text-to-Speech.
type Google struct {
	config *Config
	client *texttospeech.Client
	logger *slog.Logger
}

// NewGoogle creates a Google Cloud TTS provider. Credentials come from
// WithClientOptions, WithAPIKey, or Application Default Credentials.
func NewGoogle(ctx context.Context, opts ...Option) (*Google, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.ValidateVoice(); err != nil {
		return nil, err
	}

	clientOpts := cfg.ClientOptions
	if cfg.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(cfg.BaseURL))
	}

	client, err := texttospeech.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, WrapError(providerGoogle, fmt.Errorf("create client: %w", err))
	}

	return &Google{
		config: cfg,
		client: client,
		logger: cfg.Logger.With("component", "tts.google"),
	}, nil
}

// Synthesize converts text to audio.
func (g *Google) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	if text == "" {
		return nil, WrapError(providerGoogle, ErrEmptyText)
	}
	if g.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := g.client.SynthesizeSpeech(ctx, buildGoogleRequest(g.config, text))
	if err != nil {
		return nil, WrapError(providerGoogle, err)
	}
	latency := time.Since(start).Milliseconds()

	audio := resp.GetAudioContent()
	if len(audio) == 0 {
		return nil, WrapError(providerGoogle, ErrEmptyAudio)
	}

	g.logger.Debug("synthesized audio",
		"chars", len(text),
		"bytes", len(audio),
		"latency_ms", latency,
		"language", g.config.LanguageCode,
	)

	return &AudioResult{
		Audio:     audio,
		Format:    googleFormat(g.config.OutputFormat),
		CharCount: len(text),
		LatencyMs: latency,
	}, nil
}

// Health lists voices for the configured language.
func (g *Google) Health(ctx context.Context) error {
	resp, err := g.client.ListVoices(ctx, &texttospeechpb.ListVoicesRequest{
		LanguageCode: g.config.LanguageCode,
	})
	if err != nil {
		return WrapError(providerGoogle, fmt.Errorf("health check: %w", err))
	}
	if len(resp.GetVoices()) == 0 {
		return WrapError(providerGoogle, fmt.Errorf("no voices for %q", g.config.LanguageCode))
	}
	return nil
}

// Close releases the gRPC connection.
func (g *Google) Close() error {
	return g.client.Close()
}

// Name returns "google".
func (g *Google) Name() string { return providerGoogle }

func buildGoogleRequest(cfg *Config, text string) *texttospeechpb.SynthesizeSpeechRequest {
	return &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: cfg.LanguageCode,
			Name:         cfg.VoiceID,
			SsmlGender:   googleGender(cfg.Gender),
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding: googleEncoding(cfg.OutputFormat),
			SpeakingRate:  cfg.SpeakingRate,
		},
	}
}

func googleGender(g Gender) texttospeechpb.SsmlVoiceGender {
	switch g {
	case GenderFemale:
		return texttospeechpb.SsmlVoiceGender_FEMALE
	case GenderMale:
		return texttospeechpb.SsmlVoiceGender_MALE
	case GenderNeutral:
		return texttospeechpb.SsmlVoiceGender_NEUTRAL
	default:
		return texttospeechpb.SsmlVoiceGender_SSML_VOICE_GENDER_UNSPECIFIED
	}
}

// googleEncoding maps an output format. Raw PCM is requested as LINEAR16,
// which Google returns with a WAV header.
func googleEncoding(e Encoding) texttospeechpb.AudioEncoding {
	switch e {
	case EncodingWAV, EncodingPCM16, EncodingPCM24:
		return texttospeechpb.AudioEncoding_LINEAR16
	case EncodingOpus:
		return texttospeechpb.AudioEncoding_OGG_OPUS
	default:
		return texttospeechpb.AudioEncoding_MP3
	}
}

func googleFormat(e Encoding) AudioFormat {
	switch e {
	case EncodingWAV, EncodingPCM16, EncodingPCM24:
		return AudioFormat{Encoding: EncodingWAV, SampleRate: 24000, Channels: 1, BitDepth: 16}
	case EncodingOpus:
		return AudioFormat{Encoding: EncodingOpus, SampleRate: 48000, Channels: 1}
	default:
		return AudioFormat{Encoding: EncodingMP3, SampleRate: 24000, Channels: 1}
	}
}

var _ Provider = (*Google)(nil)
