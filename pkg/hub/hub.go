package hub

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

const clientBuffer = 256

// Hub fans messages out to dashboard clients. A single loop goroutine owns
// membership changes; readers take mu only to count.
type Hub struct {
	name   string
	logger *slog.Logger

	joins  chan *Client
	leaves chan *Client
	out    chan Message

	mu      sync.RWMutex
	clients map[*Client]struct{}

	// recent is replayed to every client that joins, oldest first.
	recent []Message
	keep   int

	running atomic.Bool
	done    chan struct{}
}

// Option configures a Hub.
type Option func(*Hub)

// WithReplay keeps the last n messages for new clients. The default is 1,
// so a status dashboard opens on the current state. n is capped at half a
// client's buffer.
func WithReplay(n int) Option {
	return func(h *Hub) {
		h.keep = max(0, min(n, clientBuffer/2))
	}
}

func New(name string, logger *slog.Logger, opts ...Option) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		name:    name,
		logger:  logger.With("component", "hub", "hub", name),
		joins:   make(chan *Client),
		leaves:  make(chan *Client),
		out:     make(chan Message, clientBuffer),
		clients: make(map[*Client]struct{}),
		keep:    1,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run serves membership and broadcasts until ctx ends, then disconnects
// every client.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.joins:
			h.add(c)
		case c := <-h.leaves:
			h.remove(c, "left")
		case m := <-h.out:
			h.fanout(m)
		}
	}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	for _, m := range h.recent {
		c.send <- m
	}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("🔌 dashboard connected", "clients", n)
}

func (h *Hub) remove(c *Client, why string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		h.logger.Info("🔌 dashboard disconnected", "reason", why, "clients", n)
	}
}

func (h *Hub) fanout(m Message) {
	h.mu.Lock()
	if h.keep > 0 {
		h.recent = append(h.recent, m)
		if over := len(h.recent) - h.keep; over > 0 {
			h.recent = append(h.recent[:0], h.recent[over:]...)
		}
	}
	var slow []*Client
	for c := range h.clients {
		select {
		case c.send <- m:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.Unlock()
	for _, c := range slow {
		h.remove(c, "too slow")
	}
}

func (h *Hub) shutdown() {
	h.running.Store(false)
	close(h.done)
	h.mu.Lock()
	for c := range h.clients {
		close(c.send)
	}
	clear(h.clients)
	h.mu.Unlock()
}

// Broadcast queues msg for every client. It never blocks; when the queue
// is full the message is dropped.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.out <- msg:
	default:
		h.logger.Warn("⚠️  broadcast queue full, message dropped")
	}
}

// BroadcastEvent wraps data in an Event of the given type and broadcasts it.
func (h *Hub) BroadcastEvent(eventType string, data any) error {
	msg, err := Event{Type: eventType, Data: data}.Encode()
	if err != nil {
		return err
	}
	h.Broadcast(msg)
	return nil
}

// Handler upgrades the request and serves it as a client of h.
func (h *Hub) Handler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		NewClient(h, conn).Run()
	})
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) IsRunning() bool { return h.running.Load() }
