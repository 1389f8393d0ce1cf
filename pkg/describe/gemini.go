package describe

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"
)

const providerGemini = "gemini"

// Gemini implements Provider with the Gemini API.
type Gemini struct {
	config *Config
	client *genai.Client
	logger *slog.Logger
}

// NewGemini creates a Gemini provider.
func NewGemini(ctx context.Context, opts ...Option) (*Gemini, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, WrapError(providerGemini, err)
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, WrapError(providerGemini, fmt.Errorf("create client: %w", err))
	}

	return &Gemini{
		config: cfg,
		client: client,
		logger: cfg.Logger.With("component", "describe.gemini"),
	}, nil
}

// Describe sends the photo followed by the prompt as one user turn.
func (g *Gemini) Describe(ctx context.Context, req *Request) (*Response, error) {
	if err := req.Image.Validate(); err != nil {
		return nil, WrapError(providerGemini, err)
	}
	if g.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.config.Timeout)
		defer cancel()
	}

	model := req.Model
	if model == "" {
		model = g.config.Model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = g.config.MaxTokens
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(req.Image.Data, req.Image.MimeType),
			genai.NewPartFromText(req.Prompt),
		}, genai.RoleUser),
	}
	gc := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(g.config.Temperature)),
		MaxOutputTokens: int32(maxTokens),
	}

	start := time.Now()
	result, err := g.client.Models.GenerateContent(ctx, model, contents, gc)
	if err != nil {
		return nil, WrapError(providerGemini, err)
	}
	latency := time.Since(start).Milliseconds()

	text := strings.TrimSpace(result.Text())
	if text == "" {
		return nil, WrapError(providerGemini, ErrEmptyResponse)
	}

	g.logger.Debug("described image",
		"model", model,
		"bytes", len(req.Image.Data),
		"latency_ms", latency,
	)

	return &Response{
		Text:      text,
		Model:     model,
		Provider:  providerGemini,
		LatencyMs: latency,
	}, nil
}

// Name returns "gemini".
func (g *Gemini) Name() string { return providerGemini }

// Close is a no-op; the SDK client holds no resources of its own.
func (g *Gemini) Close() error { return nil }

var _ Provider = (*Gemini)(nil)
