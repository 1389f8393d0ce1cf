// Package describe answers a spoken question about a photo using a
// multimodal model.
//
// Providers (Gemini, OpenAI) implement Provider. Service owns the provider
// lifecycle, the user's name and key, and turns a raw question into the
// guide prompt.
//
// Example usage:
//
//	svc := describe.NewService(describe.GeminiFactory(), describe.WithAlerter(alerts))
//	if err := svc.Initialize(ctx, cfg); err != nil {
//	    // key missing: the user has been alerted
//	}
//	defer svc.Terminate()
//
//	text, err := svc.Describe(ctx, jpeg, "image/jpeg", "what is in front of me")
package describe

import (
	"context"
	"errors"
)

// Provider describes an image in response to a prompt.
type Provider interface {
	// Describe sends the image and prompt to the model and returns its text.
	Describe(ctx context.Context, req *Request) (*Response, error)

	// Name identifies the provider in logs and errors.
	Name() string

	// Close releases any resources held by the provider.
	Close() error
}

// Image is an encoded photo.
type Image struct {
	Data     []byte
	MimeType string
}

// Validate checks that the image has content and a type.
func (i Image) Validate() error {
	if len(i.Data) == 0 {
		return ErrEmptyImage
	}
	if i.MimeType == "" {
		return errors.New("describe: image mime type required")
	}
	return nil
}

// Request is a single describe call.
type Request struct {
	Image  Image
	Prompt string

	// Model overrides the provider default.
	Model string

	// MaxTokens limits the response length. Zero uses the provider default.
	MaxTokens int
}

// Response is the model's answer.
type Response struct {
	Text      string
	Model     string
	Provider  string
	LatencyMs int64
}
