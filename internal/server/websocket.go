package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/goccy/go-json"

	"github.com/conneroisu/taglet/internal/logging"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peer with this period.
	pingPeriod = 54 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

// client is one connected browser.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// hub fans reload messages out to every connected browser.
type hub struct {
	logger  logging.Logger
	mu      sync.RWMutex
	clients map[*client]struct{}
}

func newHub(logger logging.Logger) *hub {
	return &hub{logger: logger, clients: make(map[*client]struct{})}
}

func (h *hub) add(c *client) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	return len(h.clients)
}

// remove unregisters c and closes its send channel exactly once.
func (h *hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// count returns the number of connected clients.
func (h *hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *hub) broadcast(msg UpdateMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Warn(context.Background(), err, "Failed to marshal message")
		data = []byte(`{"type":"reload"}`)
	}

	h.mu.RLock()
	var slow []*client
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	// Clients that cannot keep up are dropped; they reconnect and reload.
	for _, c := range slow {
		h.remove(c)
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.opts.AllowedOrigins,
	})
	if err != nil {
		s.logger.Warn(r.Context(), err, "WebSocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxMessageSize)

	c := &client{conn: conn, send: make(chan []byte, 16)}
	total := s.hub.add(c)
	s.logger.Debug(r.Context(), "Client connected", "total", total)

	ctx, cancel := context.WithCancel(context.Background())
	go s.readPump(ctx, cancel, c)
	s.writePump(ctx, c)
	cancel()
	s.hub.remove(c)
	s.logger.Debug(r.Context(), "Client disconnected", "total", s.hub.count())
}

// readPump drains the connection so control frames are processed, and
// cancels ctx when the browser goes away.
func (s *Server) readPump(ctx context.Context, cancel context.CancelFunc, c *client) {
	defer cancel()
	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && ctx.Err() == nil {
				s.logger.Debug(ctx, "WebSocket read ended", "error", err.Error())
			}
			return
		}
	}
}

func (s *Server) writePump(ctx context.Context, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case message, ok := <-c.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(writeCtx, websocket.MessageText, message)
			cancel()
			if err != nil {
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
