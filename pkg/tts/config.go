package tts

import (
	"log/slog"
	"time"

	"google.golang.org/api/option"
)

// Config is shared by the Google and OpenAI providers. Fields a provider
// has no use for are ignored.
type Config struct {
	APIKey        string // OpenAI
	BaseURL       string // OpenAI, for tests and proxies
	ClientOptions []option.ClientOption

	LanguageCode string
	Gender       Gender
	VoiceID      string // provider voice name, overrides Gender when set
	ModelID      string
	SpeakingRate float64

	OutputFormat Encoding

	Timeout    time.Duration
	MaxRetries int

	Logger *slog.Logger
}

// Option configures a provider.
type Option func(*Config)

func WithAPIKey(key string) Option  { return func(c *Config) { c.APIKey = key } }
func WithBaseURL(url string) Option { return func(c *Config) { c.BaseURL = url } }

// WithClientOptions appends Google Cloud client options, usually the
// credentials resolved by internal/gcloud.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(c *Config) { c.ClientOptions = append(c.ClientOptions, opts...) }
}

// WithLanguage takes a BCP-47 code such as "en-GB". WithVoice picks a voice
// by name, and Google then ignores Gender.
func WithLanguage(code string) Option { return func(c *Config) { c.LanguageCode = code } }
func WithGender(g Gender) Option      { return func(c *Config) { c.Gender = g } }

func WithVoice(name string) Option          { return func(c *Config) { c.VoiceID = name } }
func WithModel(id string) Option            { return func(c *Config) { c.ModelID = id } }
func WithSpeakingRate(rate float64) Option  { return func(c *Config) { c.SpeakingRate = rate } }
func WithOutputFormat(enc Encoding) Option  { return func(c *Config) { c.OutputFormat = enc } }
func WithTimeout(d time.Duration) Option    { return func(c *Config) { c.Timeout = d } }
func WithRetry(n int) Option                { return func(c *Config) { c.MaxRetries = n } }
func WithLogger(logger *slog.Logger) Option { return func(c *Config) { c.Logger = logger } }

// DefaultConfig returns a British English female voice producing MP3.
func DefaultConfig() *Config {
	return &Config{
		LanguageCode: "en-GB",
		Gender:       GenderFemale,
		SpeakingRate: 1.0,
		OutputFormat: EncodingMP3,
		Timeout:      30 * time.Second,
		MaxRetries:   2,
		Logger:       slog.Default(),
	}
}

func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate is used by key-based providers.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrNoAPIKey
	}
	return nil
}

// ValidateVoice checks that a language or a voice name is present.
func (c *Config) ValidateVoice() error {
	if c.LanguageCode == "" && c.VoiceID == "" {
		return ErrNoVoice
	}
	return nil
}
