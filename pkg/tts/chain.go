package tts

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

// Chain speaks through the first provider that answers. Google is normally
// first with OpenAI behind it.
type Chain struct {
	providers []Provider
	logger    *slog.Logger
}

// NewChain returns ErrProviderUnavailable when given no providers.
func NewChain(providers ...Provider) (*Chain, error) {
	return NewChainWithLogger(slog.Default(), providers...)
}

func NewChainWithLogger(logger *slog.Logger, providers ...Provider) (*Chain, error) {
	if len(providers) == 0 {
		return nil, ErrProviderUnavailable
	}
	return &Chain{providers: providers, logger: logger.With("component", "tts.chain")}, nil
}

func (c *Chain) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	failed := &ChainError{}
	for _, p := range c.providers {
		result, err := p.Synthesize(ctx, text)
		if err == nil {
			if len(failed.Errors) > 0 {
				c.logger.Info("spoke via fallback", "provider", p.Name(), "skipped", len(failed.Errors))
			}
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn("synthesis failed", "provider", p.Name(), "error", err)
		failed.Errors = append(failed.Errors, err)
	}
	return nil, failed
}

// Health passes while at least one provider is healthy.
func (c *Chain) Health(ctx context.Context) error {
	var errs []error
	for _, p := range c.providers {
		err := p.Health(ctx)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Chain) Close() error {
	errs := make([]error, 0, len(c.providers))
	for _, p := range c.providers {
		errs = append(errs, p.Close())
	}
	return errors.Join(errs...)
}

// Name is "chain(a,b)".
func (c *Chain) Name() string {
	var b strings.Builder
	b.WriteString("chain(")
	for i, p := range c.providers {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(p.Name())
	}
	b.WriteByte(')')
	return b.String()
}

var _ Provider = (*Chain)(nil)
