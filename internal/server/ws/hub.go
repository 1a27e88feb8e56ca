// Package ws bridges the tick bus and the spread evaluator to WebSocket
// clients. Spread clients receive an initial snapshot and a recomputed
// spread table on every tick; tick clients receive the raw normalized
// ticks as they arrive.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/spreadwatch/internal/domain"
	"github.com/alanyoungcy/spreadwatch/internal/spread"
	"github.com/gorilla/websocket"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 1024

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 256
)

// Kind distinguishes the two client feeds, selected by endpoint.
type Kind string

const (
	KindSpreads Kind = "spreads"
	KindTicks   Kind = "ticks"
)

// upgrader configures the WebSocket upgrade parameters.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins. In production, restrict this to known origins.
		return true
	},
}

// wsConn is the subset of *websocket.Conn the pumps use.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(string) error)
	Close() error
}

// client represents a single WebSocket connection. send is never closed;
// shutdown is signalled through done so that broadcast can never race a
// channel close.
type client struct {
	hub  *Hub
	conn wsConn
	kind Kind
	send chan []byte
	done chan struct{}
}

// Config bounds the hub and sets the idle heartbeat cadence.
type Config struct {
	MaxConnections    int
	HeartbeatInterval time.Duration
}

// Hub manages connected WebSocket clients. It subscribes to the per-contract
// tick channels and fans out tick and spread_update messages; with no bus
// attached it degrades to periodic heartbeats so clients can still verify
// liveness.
type Hub struct {
	bus       domain.TickBus
	evaluator *spread.Evaluator
	logger    *slog.Logger
	cfg       Config
	startedAt time.Time

	mu      sync.RWMutex
	clients map[*client]bool

	sent    atomic.Int64
	dropped atomic.Int64
}

// Stats is the snapshot served by the ws stats endpoint.
type Stats struct {
	SpreadClients   int   `json:"spread_clients"`
	TickClients     int   `json:"tick_clients"`
	MaxConnections  int   `json:"max_connections"`
	MessagesSent    int64 `json:"messages_sent"`
	MessagesDropped int64 `json:"messages_dropped"`
	UptimeSeconds   int64 `json:"uptime_seconds"`
}

// NewHub creates a hub. A nil bus is allowed; the hub then only heartbeats.
func NewHub(bus domain.TickBus, evaluator *spread.Evaluator, logger *slog.Logger, cfg Config) *Hub {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 100
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	return &Hub{
		bus:       bus,
		evaluator: evaluator,
		logger:    logger.With(slog.String("component", "ws_hub")),
		cfg:       cfg,
		startedAt: time.Now().UTC(),
		clients:   make(map[*client]bool),
	}
}

// Run consumes the tick channels until the context is cancelled, then closes
// every client. Should be called in a goroutine.
func (h *Hub) Run(ctx context.Context) error {
	defer h.closeAll()

	if h.bus == nil {
		return h.heartbeatLoop(ctx)
	}

	msgCh, err := h.bus.Subscribe(ctx, domain.TickChannelPrefix+"*")
	if err != nil {
		h.logger.Error("tick subscription failed", slog.String("error", err.Error()))
		return err
	}
	h.logger.Info("subscribed to tick channels",
		slog.String("pattern", domain.TickChannelPrefix+"*"),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-msgCh:
			if !ok {
				h.logger.Warn("tick subscription closed")
				return nil
			}
			h.onTick(payload)
		}
	}
}

// heartbeatLoop keeps clients alive when no tick bus is attached.
func (h *Hub) heartbeatLoop(ctx context.Context) error {
	ticker := time.NewTicker(h.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			msg, err := json.Marshal(map[string]any{
				"type":           "heartbeat",
				"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
				"timestamp":      time.Now().UTC().Format(time.RFC3339),
			})
			if err != nil {
				continue
			}
			h.broadcast(KindSpreads, msg)
			h.broadcast(KindTicks, msg)
		}
	}
}

// onTick handles one published tick: forward it to tick clients, then
// recompute all spreads and push the table to spread clients with the
// triggering tick attached.
func (h *Hub) onTick(payload []byte) {
	tick, err := domain.DecodeTick(payload)
	if err != nil {
		h.logger.Warn("undecodable tick on channel", slog.String("error", err.Error()))
		return
	}
	tick.TsEmit = time.Now().UnixMilli()

	now := time.Now().UTC().Format(time.RFC3339)

	if msg, err := json.Marshal(map[string]any{
		"type":      "tick",
		"timestamp": now,
		"tick":      tick,
	}); err == nil {
		h.broadcast(KindTicks, msg)
	}

	results := h.evaluator.EvaluateAll()
	msg, err := json.Marshal(map[string]any{
		"type":      "spread_update",
		"timestamp": now,
		"spreads":   results,
		"trigger_tick": map[string]any{
			"source":      tick.Source,
			"contract_id": tick.ContractID,
			"price":       tick.Price,
			"latency_ms":  tick.EmitLatencyMS(),
		},
	})
	if err != nil {
		return
	}
	h.broadcast(KindSpreads, msg)
}

// broadcast sends a message to every client of the given kind. Clients whose
// send buffers are full are treated as dead and removed after the snapshot
// iteration completes.
func (h *Hub) broadcast(kind Kind, msg []byte) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		if c.kind == kind {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	var dead []*client
	for _, c := range targets {
		select {
		case c.send <- msg:
			h.sent.Add(1)
		default:
			h.dropped.Add(1)
			dead = append(dead, c)
		}
	}

	for _, c := range dead {
		h.logger.Warn("removing unresponsive client", slog.String("kind", string(c.kind)))
		h.remove(c)
	}
}

// HandleSpreads upgrades the connection as a spread client and sends the
// current spread table as an initial snapshot.
// GET /ws/spreads
func (h *Hub) HandleSpreads(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, KindSpreads)
}

// HandleTicks upgrades the connection as a raw tick client.
// GET /ws/ticks
func (h *Hub) HandleTicks(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, KindTicks)
}

func (h *Hub) handle(w http.ResponseWriter, r *http.Request, kind Kind) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		kind: kind,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}

	if err := h.add(c); err != nil {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "max connections reached"))
		conn.Close()
		return
	}

	if kind == KindSpreads {
		c.sendInitialSnapshot()
	}

	go c.writePump()
	go c.readPump()
}

// add registers the client, enforcing the connection cap.
func (h *Hub) add(c *client) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.clients) >= h.cfg.MaxConnections {
		h.logger.Warn("connection rejected, hub full",
			slog.Int("max_connections", h.cfg.MaxConnections),
		)
		return domain.ErrTooManyClients
	}
	h.clients[c] = true
	h.logger.Info("client connected",
		slog.String("kind", string(c.kind)),
		slog.Int("total_clients", len(h.clients)),
	)
	return nil
}

// remove unregisters the client and signals writePump to shut down via the
// done channel. send is left open: broadcast may still be holding a snapshot
// that includes this client, and a send into the abandoned buffer is
// harmless while a send on a closed channel would panic the hub. Only the
// goroutine that wins the map delete closes done, so the close happens
// exactly once.
func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	total := len(h.clients)
	h.mu.Unlock()

	close(c.done)
	h.logger.Info("client disconnected",
		slog.String("kind", string(c.kind)),
		slog.Int("total_clients", total),
	)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
		delete(h.clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		close(c.done)
	}
}

// Statistics returns a snapshot of hub counters.
func (h *Hub) Statistics() Stats {
	h.mu.RLock()
	var spreads, ticks int
	for c := range h.clients {
		switch c.kind {
		case KindSpreads:
			spreads++
		case KindTicks:
			ticks++
		}
	}
	h.mu.RUnlock()

	return Stats{
		SpreadClients:   spreads,
		TickClients:     ticks,
		MaxConnections:  h.cfg.MaxConnections,
		MessagesSent:    h.sent.Load(),
		MessagesDropped: h.dropped.Load(),
		UptimeSeconds:   int64(time.Since(h.startedAt).Seconds()),
	}
}

// sendInitialSnapshot queues the current spread table so a new client does
// not have to wait for the next tick.
func (c *client) sendInitialSnapshot() {
	msg, err := json.Marshal(map[string]any{
		"type":      "initial_spreads",
		"spreads":   c.hub.evaluator.EvaluateAll(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// readPump drains the connection so ping/pong keepalive works; incoming
// frames carry no meaning for either feed.
func (c *client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("unexpected close",
					slog.String("error", err.Error()),
				)
			}
			return
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection and
// sends periodic ping frames for keepalive.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			// The hub removed this client.
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
