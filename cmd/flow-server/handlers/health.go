package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lyzr/flow/common/bootstrap"
)

// HealthHandler reports process liveness plus backing-store reachability.
type HealthHandler struct {
	components *bootstrap.Components
}

func NewHealthHandler(components *bootstrap.Components) *HealthHandler {
	return &HealthHandler{components: components}
}

// Health handles GET /health
func (h *HealthHandler) Health(c echo.Context) error {
	if err := h.components.Health(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
			"status": "degraded",
			"error":  err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"status": "ok"})
}
