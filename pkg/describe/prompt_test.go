package describe

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nicholasching/Perception/internal/log"
	"github.com/nicholasching/Perception/pkg/geo"
	"github.com/nicholasching/Perception/pkg/weather"
)

func TestBuildPrompt(t *testing.T) {
	got := BuildPrompt("Ana", "is the light green?")
	want := "You are a computer vision model; your task is to act as a guide for the visually impaired. " +
		"Your output is going to be turned into speech, please respond to Ana's prompt in a concise manner: is the light green?"
	if got != want {
		t.Errorf("BuildPrompt =\n%q\nwant\n%q", got, want)
	}

	withCtx := BuildPrompt("", "q", "", "It is 3 PM.")
	if !strings.Contains(withCtx, "respond to User's prompt") {
		t.Error("blank username should default to User")
	}
	if !strings.HasSuffix(withCtx, "\n- It is 3 PM.") {
		t.Errorf("context not appended: %q", withCtx)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeGeneral, false},
		{"general", ModeGeneral, false},
		{" READ_TEXT ", ModeReadText, false},
		{"poem", "", true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseMode(%q) = %q, %v", tt.in, got, err)
		}
	}
}

type fakeWeather struct {
	report *weather.Report
	err    error
	calls  int
}

func (f *fakeWeather) Current(ctx context.Context, lat, lon float64) (*weather.Report, error) {
	f.calls++
	return f.report, f.err
}

func TestEnricherContext(t *testing.T) {
	clock := func() time.Time { return time.Date(2026, 3, 2, 15, 4, 0, 0, time.UTC) }
	tracker := geo.NewTracker()
	wx := &fakeWeather{report: &weather.Report{Condition: "overcast", TemperatureC: 7, ApparentC: 6}}
	e := NewEnricher(WithClock(clock), WithLocator(tracker), WithWeather(wx), WithEnricherLogger(log.Nop()))
	ctx := context.Background()

	t.Run("no keywords", func(t *testing.T) {
		if lines := e.Context(ctx, "what is in front of me"); len(lines) != 0 {
			t.Errorf("lines = %v", lines)
		}
	})

	t.Run("time", func(t *testing.T) {
		lines := e.Context(ctx, "What time is it?")
		if len(lines) != 1 || lines[0] != "The current local time is 3:04 PM on Monday, 2 March 2026." {
			t.Errorf("lines = %v", lines)
		}
	})

	t.Run("location unknown", func(t *testing.T) {
		lines := e.Context(ctx, "where am I")
		if len(lines) != 1 || !strings.Contains(lines[0], "not available") {
			t.Errorf("lines = %v", lines)
		}
	})

	tracker.Update(geo.Fix{Latitude: 51.5, Longitude: -0.12})

	t.Run("weather", func(t *testing.T) {
		lines := e.Context(ctx, "do I need an umbrella")
		if len(lines) != 1 || lines[0] != "The current weather outside is overcast, 7°C." {
			t.Errorf("lines = %v", lines)
		}
	})

	t.Run("weather failure skipped", func(t *testing.T) {
		wx.err = errors.New("offline")
		lines := e.Context(ctx, "what's the weather and where am I")
		if len(lines) != 1 || !strings.Contains(lines[0], "51.5000 degrees north") {
			t.Errorf("lines = %v", lines)
		}
	})

	t.Run("substring does not match", func(t *testing.T) {
		if lines := e.Context(ctx, "sometimes somewhere"); len(lines) != 0 {
			t.Errorf("lines = %v", lines)
		}
	})
}
