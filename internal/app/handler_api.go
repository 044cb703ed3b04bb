package app

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsSendBuffer = 16
	wsWriteWait  = 2 * time.Second
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// wsClient is a websocket connection with its own outbound queue.
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *wsClient) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (a *App) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Warn("failed to write response", zap.Error(err))
	}
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, map[string]string{"status": "ok"})
}

// handleAlerts lists recent alerts, oldest first. ?limit=N keeps the newest N.
func (a *App) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	a.writeJSON(w, a.Alerts(limit))
}

// handleLatest returns the most recent alert.
func (a *App) handleLatest(w http.ResponseWriter, r *http.Request) {
	latest := a.Alerts(1)
	if len(latest) == 0 {
		http.Error(w, "no alerts yet", http.StatusNotFound)
		return
	}
	a.writeJSON(w, latest[0])
}

func (a *App) handleStats(w http.ResponseWriter, r *http.Request) {
	if a.stats == nil {
		http.Error(w, "stats unavailable", http.StatusNotFound)
		return
	}
	a.writeJSON(w, a.stats())
}

// handleWS upgrades HTTP to websocket and registers the client for broadcasts.
func (a *App) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &wsClient{
		conn: conn,
		send: make(chan []byte, wsSendBuffer),
		done: make(chan struct{}),
	}
	a.wsMu.Lock()
	a.clients[c] = struct{}{}
	a.wsMu.Unlock()
	a.logger.Debug("websocket client connected", zap.String("remote", r.RemoteAddr))

	go a.writePump(c)
	go func() {
		defer a.dropClient(c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// writePump is the only writer on c.conn. Each write is bounded by
// wsWriteWait so a client that stops reading is dropped instead of holding
// up the sender.
func (a *App) writePump(c *wsClient) {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				a.logger.Debug("websocket write failed", zap.Error(err))
				a.dropClient(c)
				return
			}
		}
	}
}

func (a *App) dropClient(c *wsClient) {
	a.wsMu.Lock()
	delete(a.clients, c)
	a.wsMu.Unlock()
	c.close()
}

// broadcast queues msg for every websocket client without blocking. A
// client whose queue is full is dropped.
func (a *App) broadcast(msg []byte) {
	a.wsMu.Lock()
	defer a.wsMu.Unlock()
	for c := range a.clients {
		select {
		case c.send <- msg:
		default:
			a.logger.Warn("websocket client too slow, dropping", zap.String("remote", c.conn.RemoteAddr().String()))
			delete(a.clients, c)
			c.close()
		}
	}
}

// Clients returns the number of connected websocket clients.
func (a *App) Clients() int {
	a.wsMu.Lock()
	defer a.wsMu.Unlock()
	return len(a.clients)
}
