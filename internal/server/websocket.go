package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/woozymasta/vitals/internal/ledger"
	"github.com/woozymasta/vitals/internal/logger"
	"github.com/woozymasta/vitals/internal/models"
)

// Live feed message types.
const (
	MessageServerStatus = "server_status"
	MessageSessionJoin  = "session_join"
	MessageSessionLeave = "session_leave"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Message is the envelope of every live feed frame.
type Message struct {
	Data any    `json:"data"`
	Type string `json:"type"`
}

type wsClient struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	remoteAddr string
}

// Hub fans live feed messages out to connected websocket clients.
// Slow clients whose buffer is full are disconnected.
type Hub struct {
	clients    map[*wsClient]struct{}
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *wsClient
	stopped    chan struct{}
	log        zerolog.Logger
	mu         sync.RWMutex
}

// NewHub creates a Hub; call Run to start it.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*wsClient]struct{}),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		stopped:    make(chan struct{}),
		log:        logger.Component("live"),
	}
}

// Run serves registrations and broadcasts until done is closed, then disconnects everyone.
func (h *Hub) Run(done <-chan struct{}) {
	defer close(h.stopped)

	for {
		select {
		case <-done:
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Debug().Str("ip", c.remoteAddr).Int("clients", n).Msg("Live feed client connected")

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Debug().Str("ip", c.remoteAddr).Int("clients", n).Msg("Live feed client disconnected")

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					delete(h.clients, c)
					close(c.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues a message for every client. Messages are dropped when the queue is full.
func (h *Hub) Broadcast(kind string, data any) {
	payload, err := json.Marshal(Message{Type: kind, Data: data})
	if err != nil {
		h.log.Error().Err(err).Str("type", kind).Msg("Failed to encode live feed message")
		return
	}

	select {
	case h.broadcast <- payload:
	default:
		h.log.Warn().Str("type", kind).Msg("Live feed queue full, message dropped")
	}
}

// PublishSnapshot is the collector hook for accepted heartbeats.
func (h *Hub) PublishSnapshot(view models.SnapshotView) {
	h.Broadcast(MessageServerStatus, view)
}

// PublishSession is the ledger hook for session changes.
func (h *Hub) PublishSession(ev ledger.Event) {
	kind := MessageSessionJoin
	if ev.Type == ledger.EventLeave {
		kind = MessageSessionLeave
	}
	h.Broadcast(kind, ev.Session)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and registers the connection with the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug().Err(err).Msg("Websocket upgrade failed")
		return
	}

	c := &wsClient{
		hub:        h,
		conn:       conn,
		send:       make(chan []byte, sendBuffer),
		remoteAddr: r.RemoteAddr,
	}
	select {
	case h.register <- c:
	case <-h.stopped:
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// readPump only watches for close and pong frames, clients send nothing.
func (c *wsClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.stopped:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNoStatusReceived) {
				c.hub.log.Debug().Err(err).Msg("Live feed read failed")
			}
			return
		}
	}
}

// writePump sends one frame per message and pings idle connections.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
