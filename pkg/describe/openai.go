package describe

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const providerOpenAI = "openai"

// OpenAI implements Provider with OpenAI chat completions and image input.
type OpenAI struct {
	config *Config
	client openai.Client
	logger *slog.Logger
}

// NewOpenAI creates an OpenAI provider.
func NewOpenAI(opts ...Option) (*OpenAI, error) {
	cfg := DefaultConfig()
	cfg.Model = DefaultOpenAIModel
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, WrapError(providerOpenAI, err)
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(cfg.HTTPClient))
	}
	if cfg.Timeout > 0 {
		clientOpts = append(clientOpts, option.WithRequestTimeout(cfg.Timeout))
	}

	return &OpenAI{
		config: cfg,
		client: openai.NewClient(clientOpts...),
		logger: cfg.Logger.With("component", "describe.openai"),
	}, nil
}

// Describe sends the prompt and the photo as a data URL.
func (o *OpenAI) Describe(ctx context.Context, req *Request) (*Response, error) {
	if err := req.Image.Validate(); err != nil {
		return nil, WrapError(providerOpenAI, err)
	}

	model := req.Model
	if model == "" {
		model = o.config.Model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = o.config.MaxTokens
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(req.Prompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: dataURL(req.Image),
				}),
			}),
		},
		MaxCompletionTokens: openai.Int(int64(maxTokens)),
		Temperature:         openai.Float(o.config.Temperature),
	}

	start := time.Now()
	completion, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, o.wrap(err)
	}
	latency := time.Since(start).Milliseconds()

	if len(completion.Choices) == 0 {
		return nil, WrapError(providerOpenAI, ErrEmptyResponse)
	}
	text := strings.TrimSpace(completion.Choices[0].Message.Content)
	if text == "" {
		return nil, WrapError(providerOpenAI, ErrEmptyResponse)
	}

	o.logger.Debug("described image",
		"model", model,
		"bytes", len(req.Image.Data),
		"latency_ms", latency,
		"tokens", completion.Usage.TotalTokens,
	)

	return &Response{
		Text:      text,
		Model:     completion.Model,
		Provider:  providerOpenAI,
		LatencyMs: latency,
	}, nil
}

// Name returns "openai".
func (o *OpenAI) Name() string { return providerOpenAI }

// Close is a no-op.
func (o *OpenAI) Close() error { return nil }

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

func dataURL(img Image) string {
	return fmt.Sprintf("data:%s;base64,%s", img.MimeType, base64.StdEncoding.EncodeToString(img.Data))
}

var _ Provider = (*OpenAI)(nil)
