package describe

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

// Chain asks each provider in turn and returns the first answer.
type Chain struct {
	providers []Provider
	logger    *slog.Logger
}

// NewChain needs at least one provider.
func NewChain(providers ...Provider) (*Chain, error) {
	return NewChainWithLogger(slog.Default(), providers...)
}

func NewChainWithLogger(logger *slog.Logger, providers ...Provider) (*Chain, error) {
	if len(providers) == 0 {
		return nil, ErrProviderUnavailable
	}
	return &Chain{providers: providers, logger: logger.With("component", "describe.chain")}, nil
}

func (c *Chain) Describe(ctx context.Context, req *Request) (*Response, error) {
	var failed ChainError
	for _, p := range c.providers {
		resp, err := p.Describe(ctx, req)
		if err == nil {
			if n := len(failed.Errors); n > 0 {
				c.logger.Info("answered by fallback", "provider", p.Name(), "skipped", n)
			}
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn("provider failed", "provider", p.Name(), "error", err)
		failed.Errors = append(failed.Errors, err)
	}
	return nil, &failed
}

func (c *Chain) Name() string {
	names := make([]string, 0, len(c.providers))
	for _, p := range c.providers {
		names = append(names, p.Name())
	}
	return "chain(" + strings.Join(names, ",") + ")"
}

func (c *Chain) Close() error {
	var errs []error
	for _, p := range c.providers {
		errs = append(errs, p.Close())
	}
	return errors.Join(errs...)
}

var _ Provider = (*Chain)(nil)
