package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/lyzr/flow/cmd/flow-server/container"
	"github.com/lyzr/flow/cmd/flow-server/handlers"
	"github.com/lyzr/flow/cmd/flow-server/middleware"
)

// RegisterSystemRoutes registers the node catalog and the health probe.
// Health stays open for load balancers and liveness checks.
func RegisterSystemRoutes(e *echo.Echo, c *container.Container) {
	nh := handlers.NewNodesHandler(c.Registry)
	hh := handlers.NewHealthHandler(c.Components)

	e.GET("/nodes", nh.List, middleware.RequireBearer(c.Components.Config.Security.AuthToken))
	e.GET("/health", hh.Health)
}
