package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const providerOpenAI = "openai"

// OpenAI voice options
const (
	VoiceAlloy   = "alloy"   // Neutral voice
	VoiceEcho    = "echo"    // Male voice
	VoiceFable   = "fable"   // British accent
	VoiceOnyx    = "onyx"    // Deep male voice
	VoiceNova    = "nova"    // Female voice
	VoiceShimmer = "shimmer" // Soft female voice
)

// OpenAI model options
const (
	ModelTTS1   = "tts-1"    // Standard quality, faster
	ModelTTS1HD = "tts-1-hd" // Higher quality, slower
)

// OpenAI implements Provider for OpenAI speech synthesis.
type OpenAI struct {
	config *Config
	client openai.Client
	logger *slog.Logger
}

// NewOpenAI creates a new OpenAI TTS provider.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := DefaultConfig()
	cfg.ModelID = ModelTTS1
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.VoiceID == "" {
		cfg.VoiceID = voiceForGender(cfg.Gender)
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		clientOpts = append(clientOpts, option.WithRequestTimeout(cfg.Timeout))
	}

	return &OpenAI{
		config: cfg,
		client: openai.NewClient(clientOpts...),
		logger: cfg.Logger.With("component", "tts.openai"),
	}, nil
}

// Synthesize converts text to audio, returning the complete audio buffer.
func (o *OpenAI) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	if text == "" {
		return nil, WrapError(providerOpenAI, ErrEmptyText)
	}
	start := time.Now()

	params := openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModel(o.config.ModelID),
		Voice:          openai.AudioSpeechNewParamsVoice(o.config.VoiceID),
		ResponseFormat: openaiResponseFormat(o.config.OutputFormat),
	}
	if o.config.SpeakingRate > 0 && o.config.SpeakingRate != 1.0 {
		params.Speed = openai.Float(o.config.SpeakingRate)
	}

	resp, err := o.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, o.wrap(err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(providerOpenAI, fmt.Errorf("read response: %w", err))
	}
	if len(audio) == 0 {
		return nil, WrapError(providerOpenAI, ErrEmptyAudio)
	}
	latency := time.Since(start).Milliseconds()

	o.logger.Debug("synthesized audio",
		"chars", len(text),
		"bytes", len(audio),
		"latency_ms", latency,
		"voice", o.config.VoiceID,
	)

	return &AudioResult{
		Audio:     audio,
		Format:    openaiFormat(o.config.OutputFormat),
		CharCount: len(text),
		LatencyMs: latency,
	}, nil
}

// Health fetches the configured model.
func (o *OpenAI) Health(ctx context.Context) error {
	if _, err := o.client.Models.Get(ctx, o.config.ModelID); err != nil {
		return o.wrap(err)
	}
	return nil
}

// Close releases resources.
func (o *OpenAI) Close() error {
	return nil
}

// Name returns "openai".
func (o *OpenAI) Name() string { return providerOpenAI }

// VoiceID returns the configured voice.
func (o *OpenAI) VoiceID() string {
	return o.config.VoiceID
}

// wrap converts SDK errors into APIError so callers can check status codes.
func (o *OpenAI) wrap(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &APIError{
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Message,
			Code:       apiErr.Code,
			Provider:   providerOpenAI,
		}
	}
	return WrapError(providerOpenAI, err)
}

func voiceForGender(g Gender) string {
	switch g {
	case GenderMale:
		return VoiceOnyx
	case GenderNeutral:
		return VoiceFable
	default:
		return VoiceNova
	}
}

func openaiResponseFormat(e Encoding) openai.AudioSpeechNewParamsResponseFormat {
	switch e {
	case EncodingWAV:
		return openai.AudioSpeechNewParamsResponseFormatWAV
	case EncodingPCM24:
		return openai.AudioSpeechNewParamsResponseFormatPCM
	case EncodingOpus:
		return openai.AudioSpeechNewParamsResponseFormatOpus
	default:
		return openai.AudioSpeechNewParamsResponseFormatMP3
	}
}

// openaiFormat describes what the API returns. Its raw PCM is 24kHz.
func openaiFormat(e Encoding) AudioFormat {
	switch e {
	case EncodingWAV:
		return AudioFormat{Encoding: EncodingWAV, SampleRate: 24000, Channels: 1, BitDepth: 16}
	case EncodingPCM24:
		return AudioFormat{Encoding: EncodingPCM24, SampleRate: 24000, Channels: 1, BitDepth: 16}
	case EncodingOpus:
		return AudioFormat{Encoding: EncodingOpus, SampleRate: 48000, Channels: 1}
	default:
		return AudioFormat{Encoding: EncodingMP3, SampleRate: 24000, Channels: 1}
	}
}

var _ Provider = (*OpenAI)(nil)
