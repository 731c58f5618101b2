package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lyzr/flow/cmd/flow-server/container"
	"github.com/lyzr/flow/cmd/flow-server/handlers"
)

// RegisterWebhookRoutes registers the external delivery endpoint. Webhooks
// are deliberately outside the bearer-auth group: callers are third-party
// systems that only know the URL.
func RegisterWebhookRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewWebhookHandler(c.WorkflowService, c.RunService, c.Components.Logger)

	methods := []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete}
	e.Match(methods, "/webhook/:workflowId", h.Handle)
}
