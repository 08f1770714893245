// Package live pushes index updates to WebSocket clients.
package live

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rcookie777/pizza-api/pkg/config"
	"github.com/rcookie777/pizza-api/pkg/logging"
)

var log = logging.Component("live")

// Hub manages WebSocket connections for live index streaming
type Hub struct {
	// Registered clients
	clients map[*websocket.Conn]bool

	// Register requests from clients
	register chan *websocket.Conn

	// Unregister requests from clients
	unregister chan *websocket.Conn

	// Broadcast channel for index updates
	broadcast chan []byte

	upgrader websocket.Upgrader

	// Closed when Run returns
	done     chan struct{}
	stopOnce sync.Once

	mu sync.RWMutex
}

// NewHub creates a new WebSocket hub. allowedOrigins may contain "*".
func NewHub(allowedOrigins []string) *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		register:   make(chan *websocket.Conn, config.WSChannelBuffer),
		unregister: make(chan *websocket.Conn, config.WSChannelBuffer),
		broadcast:  make(chan []byte, config.WSBroadcastBuffer),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin:     originChecker(allowedOrigins),
			ReadBufferSize:  config.WSReadBufferSize,
			WriteBufferSize: config.WSWriteBufferSize,
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// No Origin header = non-browser client
		if origin == "" || origin == "http://"+r.Host || origin == "https://"+r.Host {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// Run starts the hub's main loop
func (h *Hub) Run(ctx context.Context) {
	defer h.stopOnce.Do(func() { close(h.done) })

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
			}
			h.clients = make(map[*websocket.Conn]bool)
			h.mu.Unlock()
			return
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			count := len(h.clients)
			h.mu.Unlock()
			log.WithField("clients", count).Info("websocket client connected")
		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			count := len(h.clients)
			h.mu.Unlock()
			log.WithField("clients", count).Info("websocket client disconnected")
		case message := <-h.broadcast:
			h.mu.RLock()
			var failed []*websocket.Conn
			for conn := range h.clients {
				conn.SetWriteDeadline(time.Now().Add(config.WSWriteDeadline))
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					log.WithError(err).Warn("websocket write failed")
					failed = append(failed, conn)
				}
			}
			h.mu.RUnlock()

			// Unregister after releasing the lock; Run is the only reader
			// of unregister, so send from a goroutine.
			for _, conn := range failed {
				conn := conn
				go h.enqueue(h.unregister, conn)
			}
		}
	}
}

// enqueue hands conn to Run. It reports false once Run has returned.
func (h *Hub) enqueue(ch chan<- *websocket.Conn, conn *websocket.Conn) bool {
	select {
	case <-h.done:
		return false
	default:
	}
	select {
	case ch <- conn:
		return true
	case <-h.done:
		return false
	}
}

// Broadcast sends a message to all connected clients.
// Messages are dropped when the buffer is full.
func (h *Hub) Broadcast(data interface{}) error {
	message, err := json.Marshal(data)
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- message:
	default:
		log.Warn("broadcast channel full, dropping message")
	}
	return nil
}

// HasClients returns true if there are any connected WebSocket clients
func (h *Hub) HasClients() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients) > 0
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket upgrades the request and keeps the connection until the
// client goes away. greeting, when non-nil, is sent once after connecting.
func (h *Hub) HandleWebSocket(greeting func(ctx context.Context) (interface{}, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.WithError(err).Warn("websocket upgrade failed")
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		if greeting != nil {
			if msg, err := greeting(ctx); err == nil {
				if payload, err := json.Marshal(msg); err == nil {
					conn.SetWriteDeadline(time.Now().Add(config.WSWriteDeadline))
					_ = conn.WriteMessage(websocket.TextMessage, payload)
				}
			}
		}

		if !h.enqueue(h.register, conn) {
			conn.Close()
			return
		}

		// Ping sender keeps the connection alive
		go func() {
			ticker := time.NewTicker(config.WSPingInterval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(config.WSWriteDeadline)); err != nil {
						return
					}
				}
			}
		}()

		defer func() {
			cancel()
			if !h.enqueue(h.unregister, conn) {
				conn.Close()
			}
		}()

		conn.SetReadDeadline(time.Now().Add(config.WSReadDeadline))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(config.WSReadDeadline))
			return nil
		})

		// Read loop only handles control frames and detects close
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.WithError(err).Warn("websocket closed unexpectedly")
				}
				return
			}
		}
	}
}
