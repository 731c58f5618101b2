package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lyzr/flow/common/registry"
)

// NodesHandler exposes the node type catalog.
type NodesHandler struct {
	registry *registry.Registry
}

func NewNodesHandler(reg *registry.Registry) *NodesHandler {
	return &NodesHandler{registry: reg}
}

// List handles GET /nodes
func (h *NodesHandler) List(c echo.Context) error {
	descriptors := h.registry.Descriptors()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"nodes": descriptors,
		"count": len(descriptors),
	})
}
