package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ayusman/detectcam/internal/app"
	"github.com/ayusman/detectcam/internal/detector"
)

const (
	clientBuffer = 8
	writeWait    = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// Message is the JSON sent to websocket clients for every published tick.
type Message struct {
	SessionID  string               `json:"session_id"`
	Tick       uint64               `json:"tick"`
	Timestamp  int64                `json:"timestamp"`
	Width      int                  `json:"width"`
	Height     int                  `json:"height"`
	Inferred   bool                 `json:"inferred"`
	Detections []detector.Detection `json:"detections"`
}

// Hub broadcasts detections to websocket clients. Slow clients drop messages
// instead of holding up the capture loop.
type Hub struct {
	clients map[*websocket.Conn]chan []byte
	mu      sync.RWMutex
	logger  *zap.Logger
	closed  bool
}

// NewHub creates an empty Hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]chan []byte),
		logger:  logger,
	}
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade error", zap.Error(err))
		return
	}
	defer conn.Close()

	send := make(chan []byte, clientBuffer)
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.clients[conn] = send
	h.mu.Unlock()

	defer h.remove(conn)

	go h.write(conn, send)

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (h *Hub) write(conn *websocket.Conn, send <-chan []byte) {
	for msg := range send {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			conn.Close()
			return
		}
	}
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if send, ok := h.clients[conn]; ok {
		close(send)
		delete(h.clients, conn)
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish sends r's detections to every client without blocking.
func (h *Hub) Publish(r app.Result) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.clients) == 0 {
		return
	}

	dets := r.Detections
	if dets == nil {
		dets = []detector.Detection{}
	}
	msg, err := json.Marshal(Message{
		SessionID:  r.SessionID,
		Tick:       r.Tick,
		Timestamp:  r.Time.UnixMilli(),
		Width:      r.Width,
		Height:     r.Height,
		Inferred:   r.Inferred,
		Detections: dets,
	})
	if err != nil {
		h.logger.Warn("failed to encode detections", zap.Error(err))
		return
	}

	for conn, send := range h.clients {
		select {
		case send <- msg:
		default:
			h.logger.Debug("dropping message for slow client", zap.String("remote", conn.RemoteAddr().String()))
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for conn, send := range h.clients {
		close(send)
		delete(h.clients, conn)
	}
}
