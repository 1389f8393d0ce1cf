// Package bridge connects phones (or the simulator) to the server over a
// WebSocket and exposes each one as the set of peripherals the controller
// needs: tilt sensor, speech recognizer, camera, haptics, speaker, location
// and alerts.
package bridge

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/nicholasching/Perception/pkg/protocol"
)

// DefaultRequestTimeout bounds how long a request waits for its answer.
const DefaultRequestTimeout = 15 * time.Second

// Bridge manages WebSocket connections from devices.
type Bridge struct {
	mu      sync.RWMutex
	devices map[string]*Device
	logger  *slog.Logger
	timeout time.Duration

	// Callbacks
	onConnect    func(d *Device)
	onDisconnect func(d *Device)

	// Stats
	messagesReceived atomic.Uint64
	messagesSent     atomic.Uint64
	photosReceived   atomic.Uint64
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithRequestTimeout sets how long capture and permission requests wait.
func WithRequestTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// New creates a device bridge.
func New(opts ...Option) *Bridge {
	b := &Bridge{
		devices: make(map[string]*Device),
		logger:  slog.Default(),
		timeout: DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "bridge")
	return b
}

// OnConnect sets the callback fired when a device connects.
func (b *Bridge) OnConnect(callback func(d *Device)) {
	b.mu.Lock()
	b.onConnect = callback
	b.mu.Unlock()
}

// OnDisconnect sets the callback fired when a device goes away.
func (b *Bridge) OnDisconnect(callback func(d *Device)) {
	b.mu.Lock()
	b.onDisconnect = callback
	b.mu.Unlock()
}

// RegisterRoutes registers the device WebSocket endpoint on a Fiber app.
func (b *Bridge) RegisterRoutes(app *fiber.App) {
	app.Use("/ws/device", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/device", websocket.New(b.handleDevice))
	app.Get("/ws/device/:id", websocket.New(b.handleDevice))
}

// handleDevice serves one device connection until it closes.
func (b *Bridge) handleDevice(c *websocket.Conn) {
	id := c.Params("id")
	if id == "" {
		id = uuid.NewString()
	}

	d := newDevice(id, c, b)
	go d.runEvents()

	b.mu.Lock()
	if old, ok := b.devices[id]; ok {
		// A reconnect under the same id replaces the stale connection.
		old.shutdown()
	}
	b.devices[id] = d
	count := len(b.devices)
	connectCb := b.onConnect
	b.mu.Unlock()

	b.logger.Info("device connected", "device", id, "total", count)

	defer func() {
		d.shutdown()

		b.mu.Lock()
		if b.devices[id] == d {
			delete(b.devices, id)
		}
		count := len(b.devices)
		disconnectCb := b.onDisconnect
		b.mu.Unlock()

		b.logger.Info("device disconnected", "device", id, "total", count)
		if disconnectCb != nil {
			disconnectCb(d)
		}
	}()

	if connectCb != nil {
		// The callback may issue requests, which need the read loop running.
		go connectCb(d)
	}

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			b.logger.Debug("device read error", "device", id, "error", err)
			return
		}
		b.messagesReceived.Add(1)

		msg, err := protocol.ParseMessage(data)
		if err != nil {
			b.logger.Warn("parse error", "device", id, "error", err)
			continue
		}
		d.handle(msg)
	}
}

// Device returns a connected device by ID, or nil.
func (b *Bridge) Device(id string) *Device {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.devices[id]
}

// Devices returns all connected devices.
func (b *Bridge) Devices() []*Device {
	b.mu.RLock()
	defer b.mu.RUnlock()

	devices := make([]*Device, 0, len(b.devices))
	for _, d := range b.devices {
		devices = append(devices, d)
	}
	return devices
}

// Count returns the number of connected devices.
func (b *Bridge) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.devices)
}

// Broadcast sends a message to every connected device.
func (b *Bridge) Broadcast(msg *protocol.Message) {
	for _, d := range b.Devices() {
		if err := d.send(msg); err != nil {
			b.logger.Warn("broadcast error", "device", d.ID, "error", err)
		}
	}
}

// Stats contains bridge statistics
type Stats struct {
	DeviceCount      int    `json:"device_count"`
	MessagesReceived uint64 `json:"messages_received"`
	MessagesSent     uint64 `json:"messages_sent"`
	PhotosReceived   uint64 `json:"photos_received"`
}

// GetStats returns bridge statistics
func (b *Bridge) GetStats() Stats {
	return Stats{
		DeviceCount:      b.Count(),
		MessagesReceived: b.messagesReceived.Load(),
		MessagesSent:     b.messagesSent.Load(),
		PhotosReceived:   b.photosReceived.Load(),
	}
}

// Info describes a connected device.
type Info struct {
	ID           string    `json:"id"`
	Name         string    `json:"name,omitempty"`
	Platform     string    `json:"platform,omitempty"`
	Capabilities []string  `json:"capabilities,omitempty"`
	CameraReady  bool      `json:"camera_ready"`
	Connected    time.Time `json:"connected"`
	LastSeen     time.Time `json:"last_seen"`
}

// Infos returns info about all connected devices.
func (b *Bridge) Infos() []Info {
	devices := b.Devices()
	infos := make([]Info, 0, len(devices))
	for _, d := range devices {
		infos = append(infos, d.Info())
	}
	return infos
}
