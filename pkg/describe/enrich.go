package describe

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/nicholasching/Perception/pkg/geo"
	"github.com/nicholasching/Perception/pkg/weather"
)

// Locator reports the last known position.
type Locator interface {
	Last() (geo.Fix, bool)
}

// WeatherSource reports current conditions at a position.
type WeatherSource interface {
	Current(ctx context.Context, lat, lon float64) (*weather.Report, error)
}

var (
	timeWords     = []string{"time", "clock", "date", "day", "today"}
	weatherWords  = []string{"weather", "temperature", "rain", "raining", "snow", "snowing", "cold", "hot", "warm", "umbrella", "jacket"}
	locationWords = []string{"location", "where", "address"}
)

// Enricher adds facts the camera cannot see (clock, weather, position) when
// the question asks for them.
type Enricher struct {
	locator Locator
	weather WeatherSource
	now     func() time.Time
	logger  *slog.Logger
}

// EnricherOption configures an Enricher.
type EnricherOption func(*Enricher)

// WithLocator sets the position source.
func WithLocator(l Locator) EnricherOption {
	return func(e *Enricher) { e.locator = l }
}

// WithWeather sets the weather source.
func WithWeather(w WeatherSource) EnricherOption {
	return func(e *Enricher) { e.weather = w }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) EnricherOption {
	return func(e *Enricher) { e.now = now }
}

// WithEnricherLogger sets the logger.
func WithEnricherLogger(l *slog.Logger) EnricherOption {
	return func(e *Enricher) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEnricher creates an enricher. Sources left unset are skipped.
func NewEnricher(opts ...EnricherOption) *Enricher {
	e := &Enricher{now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "describe.enrich")
	return e
}

// Context returns the context lines relevant to question.
func (e *Enricher) Context(ctx context.Context, question string) []string {
	words := wordSet(question)
	var lines []string

	if words.any(timeWords) {
		now := e.now()
		lines = append(lines, fmt.Sprintf("The current local time is %s on %s.",
			now.Format("3:04 PM"), now.Format("Monday, 2 January 2006")))
	}

	wantWeather := words.any(weatherWords)
	wantLocation := words.any(locationWords)
	if !wantWeather && !wantLocation {
		return lines
	}

	var fix geo.Fix
	var haveFix bool
	if e.locator != nil {
		fix, haveFix = e.locator.Last()
	}

	if wantLocation {
		if haveFix {
			lines = append(lines, "The user's last known position is "+fix.String()+".")
		} else {
			lines = append(lines, "The user's position is not available.")
		}
	}

	if wantWeather && haveFix && e.weather != nil {
		report, err := e.weather.Current(ctx, fix.Latitude, fix.Longitude)
		if err != nil {
			e.logger.Warn("weather lookup failed", "error", err)
		} else {
			lines = append(lines, "The current weather outside is "+report.Summary()+".")
		}
	}
	return lines
}

type wordBag map[string]struct{}

func wordSet(s string) wordBag {
	bag := make(wordBag)
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r)
	}) {
		bag[w] = struct{}{}
	}
	return bag
}

func (b wordBag) any(words []string) bool {
	for _, w := range words {
		if _, ok := b[w]; ok {
			return true
		}
	}
	return false
}
