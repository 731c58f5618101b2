package main

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/lyzr/flow/common/logger"
)

const (
	// Time allowed to write a frame to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong from the peer
	pongWait = 30 * time.Second

	// Ping interval; must be shorter than pongWait
	pingPeriod = 25 * time.Second

	// Clients only send pongs, never data
	maxMessageSize = 512

	// Outbound buffer per client, sized for event bursts from loop-heavy runs
	sendBuffer = 512
)

// Client is one WebSocket subscriber.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	key  string
	send chan []byte
	log  *logger.Logger
}

// NewClient wraps an upgraded connection subscribed to key.
func NewClient(hub *Hub, conn *websocket.Conn, key string) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		key:  key,
		send: make(chan []byte, sendBuffer),
		log:  hub.log,
	}
}

// readPump drains the connection. The relay is server-push only, so the
// read side exists to service pings and notice disconnects.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Debug("websocket read failed", "key", c.key, "error", err)
			}
			return
		}
		// Inbound frames are ignored.
	}
}

// writePump pushes hub messages to the peer and keeps the connection
// alive with pings. Every event goes out as its own text frame so
// consumers can parse each JSON object on its own.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub dropped us.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// Flush whatever queued up behind this frame, one frame each.
			n := len(c.send)
			for i := 0; i < n; i++ {
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := c.conn.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
					return
				}
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
