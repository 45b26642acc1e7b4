package transport

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gofiber/websocket/v2"
)

// DiagMessageType labels a diagnostic WebSocket push.
type DiagMessageType string

const (
	DiagFrame   DiagMessageType = "frame"
	DiagPattern DiagMessageType = "pattern"
	DiagLog     DiagMessageType = "log"
	DiagMetrics DiagMessageType = "metrics"
)

// DiagMessage is one push to every connected diagnostic client.
type DiagMessage struct {
	Type      DiagMessageType        `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

type diagClient struct {
	id   string
	conn *websocket.Conn
	send chan DiagMessage
}

// DiagHub fans out frame/pattern/log/metrics events to every
// connected diagnostic WebSocket client. The logger package's
// wsBridgeCore broadcasts log lines through the same Broadcast call.
type DiagHub struct {
	mu      sync.RWMutex
	clients map[string]*diagClient

	register   chan *diagClient
	unregister chan *diagClient
	broadcast  chan DiagMessage
}

func NewDiagHub() *DiagHub {
	return &DiagHub{
		clients:    make(map[string]*diagClient),
		register:   make(chan *diagClient),
		unregister: make(chan *diagClient),
		broadcast:  make(chan DiagMessage, 256),
	}
}

// Run drives the hub's event loop; it blocks, so callers start it in
// its own goroutine.
func (h *DiagHub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.id] = c
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c.id]; ok {
				delete(h.clients, c.id)
				close(c.send)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			for _, c := range h.clients {
				select {
				case c.send <- msg:
				default:
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast queues a message for every connected client.
func (h *DiagHub) Broadcast(msgType DiagMessageType, data map[string]interface{}) {
	h.broadcast <- DiagMessage{Type: msgType, Timestamp: time.Now(), Data: data}
}

// BroadcastLog has logger.BroadcastFunc's signature, so it can be
// wired directly via logger.SetBroadcaster to fan log entries out to
// diagnostic clients as DiagLog messages.
func (h *DiagHub) BroadcastLog(level, message, source string, fields map[string]interface{}) {
	data := map[string]interface{}{"level": level, "message": message, "source": source}
	for k, v := range fields {
		data[k] = v
	}
	h.Broadcast(DiagLog, data)
}

func (h *DiagHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleConn takes ownership of an accepted WebSocket connection
// until it closes.
func (h *DiagHub) HandleConn(conn *websocket.Conn) {
	c := &diagClient{id: uuid.NewString(), conn: conn, send: make(chan DiagMessage, 256)}
	h.register <- c

	go h.writePump(c)
	h.readPump(c)
}

func (h *DiagHub) readPump(c *diagClient) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *DiagHub) writePump(c *diagClient) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
