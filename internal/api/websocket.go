package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/nhc-bridge/internal/infrastructure/config"
	"github.com/nerrad567/nhc-bridge/internal/infrastructure/logging"
)

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

const (
	wsQueueSize = 256

	defaultWSPingInterval   = 30
	defaultWSPongTimeout    = 10
	defaultWSMaxMessageSize = 8192
)

// WSMessage is the envelope of every frame exchanged with a WebSocket client.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload of subscribe and unsubscribe requests.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// wsRequest is an inbound frame; the payload is decoded per type.
type wsRequest struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// Hub fans bridge events out to WebSocket clients by channel.
type Hub struct {
	logger   *logging.Logger
	origins  []string
	upgrader websocket.Upgrader

	pingEvery time.Duration
	idleLimit time.Duration // read deadline: one ping period plus the pong allowance
	writeWait time.Duration
	readLimit int64

	mu    sync.RWMutex
	conns map[*wsConn]struct{}
}

// NewHub creates a hub. Zero timing and size settings fall back to defaults.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	ping, pong, size := cfg.PingInterval, cfg.PongTimeout, cfg.MaxMessageSize
	if ping <= 0 {
		ping = defaultWSPingInterval
	}
	if pong <= 0 {
		pong = defaultWSPongTimeout
	}
	if size <= 0 {
		size = defaultWSMaxMessageSize
	}

	h := &Hub{
		logger:    logger,
		origins:   cfg.AllowedOrigins,
		pingEvery: time.Duration(ping) * time.Second,
		writeWait: time.Duration(pong) * time.Second,
		readLimit: int64(size),
		conns:     make(map[*wsConn]struct{}),
	}
	h.idleLimit = h.pingEvery + h.writeWait
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.originAllowed,
	}
	return h
}

// originAllowed admits requests without an Origin header, and any origin
// when no allow-list is configured.
func (h *Hub) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.origins) == 0 {
		return true
	}
	for _, o := range h.origins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	conns := h.conns
	h.conns = make(map[*wsConn]struct{})
	h.mu.Unlock()

	for c := range conns {
		c.shutdown()
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Broadcast queues an event frame for every client subscribed to channel.
// Clients whose queue is full miss the event.
func (h *Hub) Broadcast(channel string, payload any) {
	frame, err := encodeFrame(WSMessage{Type: WSTypeEvent, EventType: channel, Payload: payload})
	if err != nil {
		h.logger.Error("encoding websocket event failed", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*wsConn, 0, len(h.conns))
	for c := range h.conns {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if c.wants(channel) && c.queue(frame) {
			delivered++
		}
	}
	if delivered > 0 {
		h.logger.Debug("websocket event sent", "channel", channel, "clients", delivered)
	}
}

func (h *Hub) add(c *wsConn) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	n := len(h.conns)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

func (h *Hub) remove(c *wsConn) {
	h.mu.Lock()
	delete(h.conns, c)
	n := len(h.conns)
	h.mu.Unlock()
	c.shutdown()
	h.logger.Debug("websocket client disconnected", "clients", n)
}

// handleWebSocket upgrades the request and serves the connection until the
// client goes away or the hub stops.
//
// Clients may pre-subscribe with ?channels=device.changed,controller.state
// and adjust their channels later with subscribe and unsubscribe requests.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &wsConn{
		hub:      s.hub,
		ws:       ws,
		out:      make(chan []byte, wsQueueSize),
		done:     make(chan struct{}),
		channels: make(map[string]struct{}),
	}
	c.subscribe(strings.Split(r.URL.Query().Get("channels"), ","))

	s.hub.add(c)
	go c.writeLoop()
	c.readLoop()
	s.hub.remove(c)
}

// wsConn is one WebSocket client. Frames reach the socket only through the
// out queue, which writeLoop drains until done is closed.
type wsConn struct {
	hub  *Hub
	ws   *websocket.Conn
	out  chan []byte
	done chan struct{}
	once sync.Once

	mu       sync.RWMutex
	channels map[string]struct{}
}

func (c *wsConn) shutdown() {
	c.once.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

// queue reports whether frame was accepted for delivery.
func (c *wsConn) queue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.out <- frame:
		return true
	default:
		return false
	}
}

func (c *wsConn) wants(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.channels[channel]
	return ok
}

func (c *wsConn) subscribe(channels []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range channels {
		if ch = strings.TrimSpace(ch); ch != "" {
			c.channels[ch] = struct{}{}
		}
	}
}

func (c *wsConn) unsubscribe(channels []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range channels {
		delete(c.channels, strings.TrimSpace(ch))
	}
}

func (c *wsConn) readLoop() {
	c.ws.SetReadLimit(c.hub.readLimit)
	extend := func() error { return c.ws.SetReadDeadline(time.Now().Add(c.hub.idleLimit)) }
	extend() //nolint:errcheck // A failed deadline surfaces as a read error
	c.ws.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read failed", "error", err)
			}
			return
		}
		// Browsers may not answer protocol pings, so any frame counts as liveness.
		extend() //nolint:errcheck // A failed deadline surfaces as a read error
		c.handle(data)
	}
}

func (c *wsConn) writeLoop() {
	ping := time.NewTicker(c.hub.pingEvery)
	defer ping.Stop()

	write := func(kind int, data []byte) bool {
		c.ws.SetWriteDeadline(time.Now().Add(c.hub.writeWait)) //nolint:errcheck // Write error is checked
		return c.ws.WriteMessage(kind, data) == nil
	}

	for {
		select {
		case <-c.done:
			return
		case frame := <-c.out:
			if !write(websocket.TextMessage, frame) {
				c.shutdown()
				return
			}
		case <-ping.C:
			if !write(websocket.PingMessage, nil) {
				c.shutdown()
				return
			}
		}
	}
}

func (c *wsConn) handle(data []byte) {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.reply("", WSTypeError, errorBody("invalid JSON message"))
		return
	}

	switch req.Type {
	case WSTypePing:
		c.reply(req.ID, WSTypePong, nil)
	case WSTypeSubscribe, WSTypeUnsubscribe:
		var body WSSubscribePayload
		if len(req.Payload) > 0 {
			if err := json.Unmarshal(req.Payload, &body); err != nil {
				c.reply(req.ID, WSTypeError, errorBody("invalid "+req.Type+" payload"))
				return
			}
		}
		if req.Type == WSTypeSubscribe {
			c.subscribe(body.Channels)
			c.reply(req.ID, WSTypeResponse, map[string][]string{"subscribed": body.Channels})
		} else {
			c.unsubscribe(body.Channels)
			c.reply(req.ID, WSTypeResponse, map[string][]string{"unsubscribed": body.Channels})
		}
	default:
		c.reply(req.ID, WSTypeError, errorBody("unknown message type: "+req.Type))
	}
}

func (c *wsConn) reply(id, kind string, payload any) {
	frame, err := encodeFrame(WSMessage{Type: kind, ID: id, Payload: payload})
	if err != nil {
		c.hub.logger.Error("encoding websocket reply failed", "type", kind, "error", err)
		return
	}
	c.queue(frame)
}

func errorBody(msg string) map[string]string {
	return map[string]string{"message": msg}
}

// encodeFrame stamps msg with the current UTC time and marshals it.
func encodeFrame(msg WSMessage) ([]byte, error) {
	msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	return json.Marshal(msg)
}
