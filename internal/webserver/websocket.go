package webserver

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/Nemupy/tokumei-jinro/internal/broadcast"
	"github.com/Nemupy/tokumei-jinro/internal/shared/logger"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSMessage はWebSocketメッセージの構造を定義
type WSMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// WSClient は観戦クライアント1接続
type WSClient struct {
	conn        *websocket.Conn
	send        chan []byte
	clientID    string
	connectedAt time.Time
}

// WSHub はすべてのWebSocket接続を管理
type WSHub struct {
	clients    map[*WSClient]bool
	register   chan *WSClient
	unregister chan *WSClient
	broadcast  chan WSMessage
	mu         sync.RWMutex
	startOnce  sync.Once

	// latest holds the last encoded event of each replayed type, owned by run.
	latest map[string][]byte
}

// replayedEvents are sent to a spectator right after it connects, in this order,
// so a page opened mid-game shows the current game instead of an empty feed.
var replayedEvents = []string{
	broadcast.EventSessionChanged,
	broadcast.EventVoteProgress,
	broadcast.EventReveal,
}

var wsUpgrader = websocket.Upgrader{
	// spectator pages are served from anywhere (OBS, phones via QR)
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

var wsHub = newWSHub()

func newWSHub() *WSHub {
	return &WSHub{
		clients:    make(map[*WSClient]bool),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
		broadcast:  make(chan WSMessage, 256),
		latest:     make(map[string][]byte),
	}
}

// StartWSHub WebSocketハブを起動
func StartWSHub() {
	wsHub.startOnce.Do(func() {
		go wsHub.run()
	})
}

// ClientCount returns the number of connected spectators.
func ClientCount() int {
	wsHub.mu.RLock()
	defer wsHub.mu.RUnlock()
	return len(wsHub.clients)
}

func (h *WSHub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()

			logger.Info("WebSocket client connected",
				zap.String("clientId", client.clientID),
				zap.Int("total_clients", total))

			connData, _ := json.Marshal(map[string]string{"clientId": client.clientID})
			if data, err := json.Marshal(WSMessage{Type: "connected", Data: connData}); err == nil {
				client.trySend(data)
			}
			for _, eventType := range replayedEvents {
				if data, ok := h.latest[eventType]; ok {
					client.trySend(data)
				}
			}

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				remaining := len(h.clients)
				h.mu.Unlock()

				logger.Info("WebSocket client disconnected",
					zap.String("clientId", client.clientID),
					zap.Duration("watched_for", time.Since(client.connectedAt)),
					zap.Int("remaining_clients", remaining))
			} else {
				h.mu.Unlock()
			}

		case message := <-h.broadcast:
			data, err := json.Marshal(message)
			if err != nil {
				logger.Error("Failed to marshal WebSocket message", zap.Error(err))
				continue
			}
			h.remember(message.Type, data)

			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					// slow spectator: drop it rather than stall the game
					go func(c *WSClient) {
						h.unregister <- c
						c.conn.Close()
					}(client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// remember keeps the latest state event for late spectators. A new or finished game
// starts a fresh timeline, so earlier progress and results are forgotten.
func (h *WSHub) remember(eventType string, data []byte) {
	switch eventType {
	case broadcast.EventSessionChanged:
		delete(h.latest, broadcast.EventVoteProgress)
		delete(h.latest, broadcast.EventReveal)
		h.latest[eventType] = data
	case broadcast.EventVoteProgress, broadcast.EventReveal:
		h.latest[eventType] = data
	}
}

func (c *WSClient) trySend(data []byte) {
	select {
	case c.send <- data:
	default:
	}
}

// BroadcastWSMessage すべてのクライアントにメッセージを送信
func BroadcastWSMessage(msgType string, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		logger.Error("Failed to marshal WebSocket broadcast data", zap.Error(err))
		return
	}

	select {
	case wsHub.broadcast <- WSMessage{Type: msgType, Data: jsonData}:
		logger.Debug("WebSocket message queued for broadcast", zap.String("message_type", msgType))
	default:
		logger.Warn("WebSocket broadcast channel full, message dropped", zap.String("message_type", msgType))
	}
}

// handleWS WebSocket接続を処理
func handleWS(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("clientId")
	if clientID == "" {
		clientID = uuid.New().String()
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Failed to upgrade to WebSocket", zap.Error(err))
		return
	}

	client := &WSClient{
		conn:        conn,
		send:        make(chan []byte, 256),
		clientID:    clientID,
		connectedAt: time.Now(),
	}

	wsHub.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *WSClient) readPump() {
	defer func() {
		wsHub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	// spectators are read-only; reads only keep the deadline fresh
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug("WebSocket read error", zap.Error(err))
			}
			break
		}
	}
}

func (c *WSClient) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
