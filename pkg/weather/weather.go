// Package weather fetches current conditions from Open-Meteo.
package weather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/nicholasching/Perception/internal/httpc"
)

const (
	DefaultBaseURL  = "https://api.open-meteo.com/v1/forecast"
	DefaultCacheTTL = 10 * time.Minute
)

// ErrNoData is returned when the response carries no current block.
var ErrNoData = errors.New("weather: no current conditions in response")

// Report is the current weather at a location.
type Report struct {
	TemperatureC float64   `json:"temperature_c"`
	ApparentC    float64   `json:"apparent_c"`
	WindKmh      float64   `json:"wind_kmh"`
	Code         int       `json:"code"`
	Condition    string    `json:"condition"`
	ObservedAt   time.Time `json:"observed_at"`
}

// Summary renders the report as a short spoken sentence fragment.
func (r *Report) Summary() string {
	s := fmt.Sprintf("%s, %.0f°C", r.Condition, r.TemperatureC)
	if math.Abs(r.ApparentC-r.TemperatureC) >= 2 {
		s += fmt.Sprintf(" (feels like %.0f°C)", r.ApparentC)
	}
	if r.WindKmh >= 20 {
		s += fmt.Sprintf(", wind %.0f km/h", r.WindKmh)
	}
	return s
}

// Client queries Open-Meteo and caches results per location.
type Client struct {
	baseURL string
	http    *http.Client
	ttl     time.Duration
	logger  *slog.Logger
	now     func() time.Time

	mu    sync.Mutex
	cache map[string]cached
}

type cached struct {
	report  *Report
	fetched time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient sets the HTTP client. Nil keeps the shared one.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithCacheTTL sets how long a report is reused.
func WithCacheTTL(d time.Duration) Option {
	return func(c *Client) { c.ttl = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates an Open-Meteo client. No API key is needed.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		ttl:     DefaultCacheTTL,
		logger:  slog.Default(),
		now:     time.Now,
		cache:   make(map[string]cached),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "weather")
	return c
}

type forecastResponse struct {
	Current *struct {
		Time        string  `json:"time"`
		Temperature float64 `json:"temperature_2m"`
		Apparent    float64 `json:"apparent_temperature"`
		WeatherCode int     `json:"weather_code"`
		WindSpeed   float64 `json:"wind_speed_10m"`
	} `json:"current"`
}

// Current returns the weather at lat/lon, from cache when fresh.
// Locations are cached at roughly 1 km resolution.
func (c *Client) Current(ctx context.Context, lat, lon float64) (*Report, error) {
	key := cacheKey(lat, lon)

	c.mu.Lock()
	if e, ok := c.cache[key]; ok && c.now().Sub(e.fetched) < c.ttl {
		c.mu.Unlock()
		return e.report, nil
	}
	c.mu.Unlock()

	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', 4, 64))
	q.Set("current", "temperature_2m,apparent_temperature,weather_code,wind_speed_10m")
	q.Set("timezone", "auto")

	var resp forecastResponse
	if err := httpc.GetJSON(ctx, c.http, c.baseURL+"?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("weather: %w", err)
	}
	if resp.Current == nil {
		return nil, ErrNoData
	}

	report := &Report{
		TemperatureC: resp.Current.Temperature,
		ApparentC:    resp.Current.Apparent,
		WindKmh:      resp.Current.WindSpeed,
		Code:         resp.Current.WeatherCode,
		Condition:    Condition(resp.Current.WeatherCode),
	}
	if t, err := time.Parse("2006-01-02T15:04", resp.Current.Time); err == nil {
		report.ObservedAt = t
	}

	c.mu.Lock()
	c.cache[key] = cached{report: report, fetched: c.now()}
	c.mu.Unlock()

	c.logger.Debug("fetched weather", "key", key, "condition", report.Condition, "temp", report.TemperatureC)
	return report, nil
}

func cacheKey(lat, lon float64) string {
	return fmt.Sprintf("%.2f,%.2f", lat, lon)
}

// Condition maps a WMO weather code to plain words.
func Condition(code int) string {
	switch {
	case code == 0:
		return "clear sky"
	case code == 1:
		return "mainly clear"
	case code == 2:
		return "partly cloudy"
	case code == 3:
		return "overcast"
	case code == 45 || code == 48:
		return "fog"
	case code >= 51 && code <= 57:
		return "drizzle"
	case code >= 61 && code <= 67:
		return "rain"
	case code >= 71 && code <= 77:
		return "snow"
	case code >= 80 && code <= 82:
		return "rain showers"
	case code == 85 || code == 86:
		return "snow showers"
	case code >= 95:
		return "thunderstorm"
	default:
		return "unknown conditions"
	}
}
