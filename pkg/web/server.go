// Package web provides the dashboard and settings API for the assistant.
package web

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/nicholasching/Perception/pkg/bridge"
	"github.com/nicholasching/Perception/pkg/describe"
	"github.com/nicholasching/Perception/pkg/hub"
	"github.com/nicholasching/Perception/pkg/perception"
	"github.com/nicholasching/Perception/pkg/session"
	"github.com/nicholasching/Perception/pkg/settings"
)

// maxLogEntries bounds the activity log kept for new dashboard clients.
const maxLogEntries = 500

// Controller is the part of the assistant the dashboard reads and drives.
type Controller interface {
	// Status returns the current session state.
	Status() session.Status

	// Ask captures a photo and describes it with a canned question.
	Ask(ctx context.Context, mode describe.Mode) (string, error)

	// GetStats returns counters for the running session.
	GetStats() perception.Stats
}

// DeviceLister reports connected devices.
type DeviceLister interface {
	Infos() []bridge.Info
}

// LogEntry represents an activity line for the dashboard
type LogEntry struct {
	Time    string `json:"time"`
	Type    string `json:"type"` // info, question, answer, error
	Message string `json:"message"`
}

// Config configures the dashboard server.
type Config struct {
	Addr      string
	StaticDir string // optional directory served at /
	Logger    *slog.Logger
}

// Server is the web dashboard server
type Server struct {
	app    *fiber.App
	addr   string
	logger *slog.Logger

	ctrl     Controller
	settings settings.Store
	devices  DeviceLister

	// Log buffer (last maxLogEntries entries)
	logs   []LogEntry
	logsMu sync.RWMutex

	// Hubs for websocket broadcast
	statusHub *hub.Hub
	logHub    *hub.Hub
}

// NewServer creates a new dashboard server
func NewServer(cfg Config, ctrl Controller, store settings.Store, devices DeviceLister) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "web")

	s := &Server{
		addr:      cfg.Addr,
		logger:    logger,
		ctrl:      ctrl,
		settings:  store,
		devices:   devices,
		logs:      make([]LogEntry, 0, maxLogEntries),
		statusHub: hub.New("status", logger),
		logHub:    hub.New("logs", logger, hub.WithReplay(100)),
	}

	app := fiber.New(fiber.Config{
		AppName:               "iSight",
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
	})

	// CORS for local development
	app.Use(cors.New())

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	// API routes
	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/stats", s.handleStats)
	api.Get("/settings", s.handleGetSettings)
	api.Put("/settings", s.handlePutSettings)
	api.Get("/devices", s.handleDevices)
	api.Post("/describe", s.handleDescribe)
	api.Get("/logs", s.handleGetLogs)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// WebSocket routes
	app.Get("/ws/status", s.statusHub.Handler())
	app.Get("/ws/logs", s.logHub.Handler())

	s.app = app
	return s
}

// App returns the fiber app so other components can mount routes.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start runs the hubs and serves until the listener fails or Shutdown is
// called. The hubs stop when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("🌐 dashboard listening", "addr", s.addr)

	go s.statusHub.Run(ctx)
	go s.logHub.Run(ctx)

	return s.app.Listen(s.addr)
}

// UpdateStatus broadcasts a session state change to dashboard clients.
func (s *Server) UpdateStatus(st session.Status) {
	if err := s.statusHub.BroadcastEvent("status", st); err != nil {
		s.logger.Warn("status broadcast failed", "error", err)
	}
}

// AddLog records an activity entry and broadcasts it to clients
func (s *Server) AddLog(logType, message string) {
	entry := LogEntry{
		Time:    time.Now().Format("15:04:05"),
		Type:    logType,
		Message: message,
	}

	s.logsMu.Lock()
	s.logs = append(s.logs, entry)
	if len(s.logs) > maxLogEntries {
		s.logs = s.logs[1:]
	}
	s.logsMu.Unlock()

	if err := s.logHub.BroadcastEvent("log", entry); err != nil {
		s.logger.Warn("log broadcast failed", "error", err)
	}
}

// Logs returns a copy of the activity log.
func (s *Server) Logs() []LogEntry {
	s.logsMu.RLock()
	defer s.logsMu.RUnlock()
	out := make([]LogEntry, len(s.logs))
	copy(out, s.logs)
	return out
}

// Shutdown gracefully stops the web server
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
