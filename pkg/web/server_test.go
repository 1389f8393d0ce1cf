package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nicholasching/Perception/internal/log"
	"github.com/nicholasching/Perception/pkg/bridge"
	"github.com/nicholasching/Perception/pkg/describe"
	"github.com/nicholasching/Perception/pkg/orientation"
	"github.com/nicholasching/Perception/pkg/perception"
	"github.com/nicholasching/Perception/pkg/session"
	"github.com/nicholasching/Perception/pkg/settings"
)

type mockController struct {
	status  session.Status
	stats   perception.Stats
	askFunc func(ctx context.Context, mode describe.Mode) (string, error)
	asked   []describe.Mode
}

func (m *mockController) Status() session.Status { return m.status }

func (m *mockController) GetStats() perception.Stats { return m.stats }

func (m *mockController) Ask(ctx context.Context, mode describe.Mode) (string, error) {
	m.asked = append(m.asked, mode)
	if m.askFunc != nil {
		return m.askFunc(ctx, mode)
	}
	return "a quiet street", nil
}

type fakeDevices []bridge.Info

func (f fakeDevices) Infos() []bridge.Info { return f }

func newTestServer(ctrl *mockController, store settings.Store) *Server {
	return NewServer(Config{Addr: ":0", Logger: log.Nop()}, ctrl, store,
		fakeDevices{{ID: "phone-1", Platform: "sim"}})
}

func do(t *testing.T, s *Server, method, target, body string) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.App().Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, target, err)
	}
	defer resp.Body.Close()

	var out map[string]any
	data, _ := io.ReadAll(resp.Body)
	if len(data) > 0 && data[0] == '{' {
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatalf("decode %s: %v", data, err)
		}
	}
	return resp.StatusCode, out
}

func TestStatus(t *testing.T) {
	ctrl := &mockController{status: session.Status{State: session.TranscriptPreview, Transcript: "what is"}}
	s := newTestServer(ctrl, settings.NewMemoryStore())

	code, body := do(t, s, http.MethodGet, "/api/status", "")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if body["state"] != "transcript_preview" || body["transcript"] != "what is" {
		t.Errorf("body = %v", body)
	}
}

func TestStats(t *testing.T) {
	ctrl := &mockController{stats: perception.Stats{
		Focused: true,
		Orientation: perception.OrientationStats{
			Reading:   orientation.Reading{Degrees: 72, Previous: 40, Armed: true},
			Threshold: 55,
		},
	}}
	s := newTestServer(ctrl, settings.NewMemoryStore())

	code, body := do(t, s, http.MethodGet, "/api/stats", "")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	tilt, ok := body["orientation"].(map[string]any)
	if !ok {
		t.Fatalf("body = %v", body)
	}
	if tilt["degrees"] != 72.0 || tilt["threshold"] != 55.0 || tilt["armed"] != true {
		t.Errorf("orientation = %v", tilt)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	store := settings.NewMemoryStore()
	s := newTestServer(&mockController{}, store)

	code, body := do(t, s, http.MethodGet, "/api/settings", "")
	if code != http.StatusOK {
		t.Fatalf("GET status = %d", code)
	}
	if body["uprightAngle"] != settings.DefaultUprightAngle {
		t.Errorf("uprightAngle = %v, want default", body["uprightAngle"])
	}

	code, body = do(t, s, http.MethodPut, "/api/settings", `{"uprightAngle": 65, "geminiApiKey": "secret-key-1234"}`)
	if code != http.StatusOK {
		t.Fatalf("PUT status = %d body = %v", code, body)
	}
	if body["geminiApiKey"] != "***********1234" {
		t.Errorf("key not redacted: %v", body["geminiApiKey"])
	}

	cfg, _, err := settings.Load(context.Background(), store, settings.Defaults())
	if err != nil {
		t.Fatal(err)
	}
	if cfg.UprightAngle != 65 || cfg.GeminiAPIKey != "secret-key-1234" {
		t.Errorf("stored config = %+v", cfg)
	}
	if cfg.Username != settings.DefaultUsername {
		t.Errorf("absent field changed: Username = %q", cfg.Username)
	}
}

func TestPutSettingsRejectsInvalid(t *testing.T) {
	store := settings.NewMemoryStore()
	s := newTestServer(&mockController{}, store)

	code, body := do(t, s, http.MethodPut, "/api/settings", `{"uprightAngle": 120}`)
	if code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", code)
	}
	if body["issues"] == nil {
		t.Error("expected issues in response")
	}

	p, _ := store.Get(context.Background())
	if p != nil {
		t.Error("invalid settings should not be stored")
	}

	code, _ = do(t, s, http.MethodPut, "/api/settings", `{not json`)
	if code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", code)
	}
}

func TestDevices(t *testing.T) {
	s := newTestServer(&mockController{}, settings.NewMemoryStore())

	code, body := do(t, s, http.MethodGet, "/api/devices", "")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if body["count"] != float64(1) {
		t.Errorf("count = %v, want 1", body["count"])
	}
}

func TestDescribe(t *testing.T) {
	ctrl := &mockController{}
	s := newTestServer(ctrl, settings.NewMemoryStore())

	t.Run("default mode", func(t *testing.T) {
		code, body := do(t, s, http.MethodPost, "/api/describe", "")
		if code != http.StatusOK {
			t.Fatalf("status = %d", code)
		}
		if body["text"] != "a quiet street" || body["mode"] != "general" {
			t.Errorf("body = %v", body)
		}
	})

	t.Run("read text", func(t *testing.T) {
		code, _ := do(t, s, http.MethodPost, "/api/describe?mode=read_text", "")
		if code != http.StatusOK {
			t.Fatalf("status = %d", code)
		}
		if last := ctrl.asked[len(ctrl.asked)-1]; last != describe.ModeReadText {
			t.Errorf("mode = %q, want read_text", last)
		}
	})

	t.Run("unknown mode", func(t *testing.T) {
		code, _ := do(t, s, http.MethodPost, "/api/describe?mode=dance", "")
		if code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", code)
		}
	})

	t.Run("missing key", func(t *testing.T) {
		ctrl.askFunc = func(context.Context, describe.Mode) (string, error) {
			return "", describe.ErrNoAPIKey
		}
		defer func() { ctrl.askFunc = nil }()
		code, _ := do(t, s, http.MethodPost, "/api/describe", "")
		if code != http.StatusPreconditionFailed {
			t.Errorf("status = %d, want 412", code)
		}
	})

	t.Run("provider failure", func(t *testing.T) {
		ctrl.askFunc = func(context.Context, describe.Mode) (string, error) {
			return describe.Apology("User"), errors.New("boom")
		}
		defer func() { ctrl.askFunc = nil }()
		code, body := do(t, s, http.MethodPost, "/api/describe", "")
		if code != http.StatusBadGateway {
			t.Errorf("status = %d, want 502", code)
		}
		if body["text"] != describe.Apology("User") {
			t.Errorf("text = %v", body["text"])
		}
	})
}

func TestLogs(t *testing.T) {
	s := newTestServer(&mockController{}, settings.NewMemoryStore())
	for i := 0; i < maxLogEntries+10; i++ {
		s.AddLog("info", "entry")
	}
	if n := len(s.Logs()); n != maxLogEntries {
		t.Errorf("len(Logs) = %d, want %d", n, maxLogEntries)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/logs", nil)
	resp, err := s.App().Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var entries []LogEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != maxLogEntries {
		t.Errorf("served %d entries, want %d", len(entries), maxLogEntries)
	}
}

func TestWebSocketRequiresUpgrade(t *testing.T) {
	s := newTestServer(&mockController{}, settings.NewMemoryStore())
	code, _ := do(t, s, http.MethodGet, "/ws/status", "")
	if code != http.StatusUpgradeRequired {
		t.Errorf("status = %d, want 426", code)
	}
}
