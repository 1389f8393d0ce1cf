package describe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/nicholasching/Perception/pkg/settings"
)

// Factory builds a provider from the user's settings.
type Factory func(ctx context.Context, cfg settings.Configuration) (Provider, error)

// GeminiFactory builds Gemini providers keyed and modelled from settings.
func GeminiFactory(opts ...Option) Factory {
	return func(ctx context.Context, cfg settings.Configuration) (Provider, error) {
		all := append([]Option{}, opts...)
		all = append(all, WithAPIKey(cfg.GeminiAPIKey), WithModel(cfg.GeminiModel))
		return NewGemini(ctx, all...)
	}
}

// ChainFactory puts the provider built by primary in front of fallbacks.
func ChainFactory(primary Factory, logger *slog.Logger, fallbacks ...Provider) Factory {
	return func(ctx context.Context, cfg settings.Configuration) (Provider, error) {
		p, err := primary(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if len(fallbacks) == 0 {
			return p, nil
		}
		if logger == nil {
			logger = slog.Default()
		}
		return NewChainWithLogger(logger, append([]Provider{p}, fallbacks...)...)
	}
}

// Service owns the describe provider for the lifetime of a session.
type Service struct {
	factory  Factory
	alerter  Alerter
	enricher *Enricher
	logger   *slog.Logger

	mu       sync.RWMutex
	provider Provider
	cfg      settings.Configuration
	haveCfg  bool

	calls    atomic.Int64
	failures atomic.Int64
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithAlerter sets where blocking messages go.
func WithAlerter(a Alerter) ServiceOption {
	return func(s *Service) { s.alerter = a }
}

// WithEnricher sets the prompt enricher.
func WithEnricher(e *Enricher) ServiceOption {
	return func(s *Service) { s.enricher = e }
}

// WithServiceLogger sets the logger.
func WithServiceLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates an uninitialized service.
func NewService(factory Factory, opts ...ServiceOption) *Service {
	s := &Service{
		factory: factory,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "describe.service")
	if s.alerter == nil {
		s.alerter = LogAlerter{Logger: s.logger}
	}
	return s
}

// Initialize reads the name, key and model from cfg. Blank name and model
// take their defaults. A missing key raises an alert and returns ErrNoAPIKey;
// no remote call is made until a key is configured. Calling Initialize
// again with the same key and model keeps the existing provider.
func (s *Service) Initialize(ctx context.Context, cfg settings.Configuration) error {
	if strings.TrimSpace(cfg.Username) == "" {
		cfg.Username = DefaultUsername
	}
	if strings.TrimSpace(cfg.GeminiModel) == "" {
		cfg.GeminiModel = DefaultGeminiModel
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.cfg
	s.cfg = cfg
	s.haveCfg = true

	if !cfg.HasAPIKey() {
		s.closeLocked()
		s.alerter.Alert("Missing API key", MissingKeyMessage)
		return ErrNoAPIKey
	}

	if s.provider != nil && prev.GeminiAPIKey == cfg.GeminiAPIKey && prev.GeminiModel == cfg.GeminiModel {
		return nil
	}

	s.closeLocked()
	p, err := s.factory(ctx, cfg)
	if err != nil {
		return fmt.Errorf("describe: initialize: %w", err)
	}
	s.provider = p
	s.logger.Info("describe service ready", "provider", p.Name(), "model", cfg.GeminiModel, "user", cfg.Username)
	return nil
}

// Terminate releases the provider. A later Describe initializes again from
// the last settings.
func (s *Service) Terminate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

func (s *Service) closeLocked() {
	if s.provider == nil {
		return
	}
	if err := s.provider.Close(); err != nil {
		s.logger.Warn("provider close failed", "error", err)
	}
	s.provider = nil
}

// Initialized reports whether a provider is ready.
func (s *Service) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.provider != nil
}

// Username returns the configured name.
func (s *Service) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cfg.Username == "" {
		return DefaultUsername
	}
	return s.cfg.Username
}

func (s *Service) ensure(ctx context.Context) (Provider, settings.Configuration, error) {
	s.mu.RLock()
	p, cfg, have := s.provider, s.cfg, s.haveCfg
	s.mu.RUnlock()
	if p != nil {
		return p, cfg, nil
	}
	if !have {
		return nil, cfg, ErrNotInitialized
	}
	if err := s.Initialize(ctx, cfg); err != nil {
		return nil, cfg, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.provider == nil {
		return nil, s.cfg, ErrNotInitialized
	}
	return s.provider, s.cfg, nil
}

// Describe answers question about the image. On a provider failure it
// returns the apology to speak together with the error. A missing key
// returns ErrNoAPIKey and no text; the user has already been alerted.
func (s *Service) Describe(ctx context.Context, image []byte, mimeType, question string) (string, error) {
	p, cfg, err := s.ensure(ctx)
	if err != nil {
		if errors.Is(err, ErrNoAPIKey) {
			return "", err
		}
		return Apology(cfg.Username), err
	}
	s.calls.Add(1)

	var extra []string
	if s.enricher != nil {
		extra = s.enricher.Context(ctx, question)
	}

	resp, err := p.Describe(ctx, &Request{
		Image:  Image{Data: image, MimeType: mimeType},
		Prompt: BuildPrompt(cfg.Username, question, extra...),
	})
	if err != nil {
		s.failures.Add(1)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.IsAuthError() {
			s.alerter.Alert("Invalid API key", MissingKeyMessage)
		}
		return Apology(cfg.Username), err
	}

	s.logger.Debug("description ready", "provider", resp.Provider, "latency_ms", resp.LatencyMs, "chars", len(resp.Text))
	return resp.Text, nil
}

// DescribeMode answers the canned question of mode.
func (s *Service) DescribeMode(ctx context.Context, image []byte, mimeType string, mode Mode) (string, error) {
	q := mode.Question()
	if q == "" {
		return "", fmt.Errorf("describe: unknown mode %q", mode)
	}
	return s.Describe(ctx, image, mimeType, q)
}

// ServiceStats contains service counters.
type ServiceStats struct {
	Initialized bool   `json:"initialized"`
	Provider    string `json:"provider,omitempty"`
	Model       string `json:"model,omitempty"`
	Calls       int64  `json:"calls"`
	Failures    int64  `json:"failures"`
}

// GetStats returns service counters.
func (s *Service) GetStats() ServiceStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := ServiceStats{
		Initialized: s.provider != nil,
		Model:       s.cfg.GeminiModel,
		Calls:       s.calls.Load(),
		Failures:    s.failures.Load(),
	}
	if s.provider != nil {
		st.Provider = s.provider.Name()
	}
	return st
}
