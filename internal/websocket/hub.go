// Package websocket streams scan progress and outcomes to browser clients.
// Each client subscribes to one session, or to all sessions with "*".
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Krimson/strokeguard/internal/scan"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 256

	// replayTTL bounds how long the last message of a session is kept.
	replayTTL = 10 * time.Minute

	// AllSessions subscribes a client to every session.
	AllSessions = "*"
)

type MessageType string

const (
	MessageProgress MessageType = "progress"
	MessageComplete MessageType = "complete"
	MessageAbort    MessageType = "abort"
)

// Message is the JSON frame sent to clients.
type Message struct {
	Type      MessageType    `json:"type"`
	SessionID string         `json:"session_id"`
	State     scan.State     `json:"state"`
	Progress  *scan.Progress `json:"progress,omitempty"`
	Outcome   *scan.Outcome  `json:"outcome,omitempty"`
	At        time.Time      `json:"at"`
}

type replay struct {
	payload []byte
	at      time.Time
}

type envelope struct {
	sessionID string
	payload   []byte
}

// Hub manages websocket clients.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan envelope
	done       chan struct{}
	mu         sync.RWMutex

	// last message per session, replayed to late subscribers
	last   map[string]replay
	lastMu sync.RWMutex

	logger *zap.Logger
}

// Client is one websocket connection.
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	sessionID string
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan envelope, sendBufferSize),
		done:       make(chan struct{}),
		last:       make(map[string]replay),
		logger:     logger,
	}
}

// Run serves registrations and broadcasts until ctx is done, then closes
// every client.
func (h *Hub) Run(ctx context.Context) {
	prune := time.NewTicker(time.Minute)
	defer prune.Stop()

	for {
		select {
		case now := <-prune.C:
			h.pruneReplays(now)

		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			if msg, ok := h.lastMessage(client.sessionID); ok {
				client.send <- msg
			}
			h.logger.Debug("[WEBSOCKET] client registered", zap.String("session_id", client.sessionID), zap.Int("clients", h.ClientCount()))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Debug("[WEBSOCKET] client unregistered", zap.String("session_id", client.sessionID), zap.Int("clients", h.ClientCount()))

		case env := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if client.sessionID != env.sessionID && client.sessionID != AllSessions {
					continue
				}
				select {
				case client.send <- env.payload:
				default:
					// slow consumer
					delete(h.clients, client)
					close(client.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish queues msg for the session's subscribers. It never blocks; when the
// queue is full the message is dropped.
func (h *Hub) Publish(msg Message) {
	if msg.At.IsZero() {
		msg.At = time.Now()
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("[WEBSOCKET] failed to marshal message", zap.Error(err))
		return
	}

	h.lastMu.Lock()
	h.last[msg.SessionID] = replay{payload: payload, at: time.Now()}
	h.lastMu.Unlock()

	select {
	case h.broadcast <- envelope{sessionID: msg.SessionID, payload: payload}:
	default:
		h.logger.Warn("[WEBSOCKET] broadcast channel full, dropping message", zap.String("session_id", msg.SessionID))
	}
}

// Forget drops the replay message of a session.
func (h *Hub) Forget(sessionID string) {
	h.lastMu.Lock()
	delete(h.last, sessionID)
	h.lastMu.Unlock()
}

func (h *Hub) lastMessage(sessionID string) ([]byte, bool) {
	if sessionID == AllSessions {
		return nil, false
	}
	h.lastMu.RLock()
	defer h.lastMu.RUnlock()
	r, ok := h.last[sessionID]
	if !ok || time.Since(r.at) > replayTTL {
		return nil, false
	}
	return r.payload, true
}

func (h *Hub) pruneReplays(now time.Time) {
	h.lastMu.Lock()
	defer h.lastMu.Unlock()
	for id, r := range h.last {
		if now.Sub(r.at) > replayTTL {
			delete(h.last, id)
		}
	}
}

// ForSession returns a scan.Sink that publishes to the session's subscribers.
func (h *Hub) ForSession(sessionID string) scan.Sink {
	return &sessionSink{hub: h, sessionID: sessionID}
}

type sessionSink struct {
	hub       *Hub
	sessionID string
}

func (s *sessionSink) Progress(ctx context.Context, p scan.Progress) error {
	s.hub.Publish(Message{Type: MessageProgress, SessionID: s.sessionID, State: p.State, Progress: &p, At: p.At})
	return nil
}

func (s *sessionSink) Complete(ctx context.Context, o scan.Outcome) error {
	s.hub.Publish(Message{Type: MessageComplete, SessionID: s.sessionID, State: o.State, Outcome: &o, At: o.FinishedAt})
	return nil
}

func (s *sessionSink) Abort(ctx context.Context, o scan.Outcome) error {
	s.hub.Publish(Message{Type: MessageAbort, SessionID: s.sessionID, State: o.State, Outcome: &o, At: o.FinishedAt})
	return nil
}

// HandleWebSocket upgrades the request. The session_id query parameter
// selects the stream; it defaults to all sessions.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("[WEBSOCKET] failed to upgrade connection", zap.Error(err))
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		sessionID = AllSessions
	}

	client := &Client{
		hub:       h,
		conn:      conn,
		send:      make(chan []byte, sendBufferSize),
		sessionID: sessionID,
	}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump discards client messages and detects disconnects.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("[WEBSOCKET] read error", zap.Error(err))
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.logger.Warn("[WEBSOCKET] failed to write message", zap.Error(err))
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
