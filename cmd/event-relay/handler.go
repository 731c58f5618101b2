package main

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/lyzr/flow/common/logger"
	"github.com/lyzr/flow/common/redis"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The relay only pushes events out; cross-origin dashboards are the
	// expected consumers.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler owns the relay's HTTP surface: the WebSocket upgrade endpoint
// and a health probe.
type Handler struct {
	hub   *Hub
	redis *redis.Client
	log   *logger.Logger
}

// NewHandler creates a new Handler instance.
func NewHandler(hub *Hub, redisClient *redis.Client, log *logger.Logger) *Handler {
	return &Handler{
		hub:   hub,
		redis: redisClient,
		log:   log,
	}
}

// Subscribe upgrades the connection and registers it with the hub.
// GET /ws?executionId=<id> watches a single execution; omitting the
// parameter subscribes to every event the engine emits.
func (h *Handler) Subscribe(c echo.Context) error {
	key := c.QueryParam("executionId")
	if key == "" {
		key = firehoseKey
	}

	conn, err := upgrader.Upgrade(c.Response().Writer, c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		h.log.Warn("websocket upgrade failed", "error", err)
		return nil
	}

	client := NewClient(h.hub, conn, key)
	h.hub.register <- client

	h.log.Info("websocket connected", "key", key, "remote", c.Request().RemoteAddr)

	go client.writePump()
	go client.readPump()
	return nil
}

// Health reports Redis connectivity and live connection counts.
func (h *Handler) Health(c echo.Context) error {
	ctx := c.Request().Context()

	if err := h.redis.Health(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
			"status": "degraded",
			"error":  err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"connections": h.hub.ConnectionCount(),
		"channels":    h.hub.KeyCount(),
	})
}
