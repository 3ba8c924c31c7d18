// Websocket telemetry broadcaster
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package telemetry

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/Iprobablydontknowwhatimdoing/reefscape/pkg/log"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	clientBuf  = 16
)

// Hub streams frames to websocket clients as JSON. Publish never blocks:
// frames beyond the rate limit, or for clients whose buffer is full, are
// dropped.
type Hub struct {
	upgrader websocket.Upgrader
	limiter  *rate.Limiter
	log      *log.Logger

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	dropped uint64
}

type wsClient struct {
	conn *websocket.Conn
	send chan Frame
	once sync.Once
}

func (c *wsClient) close() {
	c.once.Do(func() { close(c.send) })
}

// NewHub limits the stream to perSecond frames; zero or less streams
// every frame.
func NewHub(perSecond float64) *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log:     log.GetLogger("telemetry"),
		clients: make(map[*wsClient]struct{}),
	}
	if perSecond > 0 {
		h.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
	return h
}

func (h *Hub) Publish(f Frame) error {
	if h.limiter != nil && !h.limiter.Allow() {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- f:
		default:
			h.dropped++
		}
	}
	return nil
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Dropped returns how many frames were dropped for slow clients.
func (h *Hub) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.close()
		delete(h.clients, c)
	}
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()
}

// ServeHTTP upgrades the request and streams frames until the client
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	c := &wsClient{conn: conn, send: make(chan Frame, clientBuf)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.log.WithField("remote", r.RemoteAddr).Debug("telemetry client connected")

	go h.writePump(c)
	h.readPump(c)
}

// readPump discards client messages and notices disconnects.
func (h *Hub) readPump(c *wsClient) {
	defer func() {
		h.remove(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.WithError(err).Debug("telemetry client read error")
			}
			return
		}
	}
}

func (h *Hub) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case f, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(f); err != nil {
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
