package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/lyzr/flow/cmd/flow-server/container"
	"github.com/lyzr/flow/cmd/flow-server/handlers"
	"github.com/lyzr/flow/cmd/flow-server/middleware"
)

// RegisterExecutionRoutes registers execution reads and the SSE streaming
// endpoints.
func RegisterExecutionRoutes(e *echo.Echo, c *container.Container) {
	rh := handlers.NewRunHandler(c.RunService, c.Components.Logger)
	sh := handlers.NewStreamHandler(c.WorkflowService, c.RunService, c.Components.Logger)

	auth := middleware.RequireBearer(c.Components.Config.Security.AuthToken)

	ex := e.Group("/executions", auth)
	{
		ex.GET("/:id", rh.GetExecution) // GET /executions/:id
	}

	stream := e.Group("/execution-stream", auth)
	{
		stream.GET("/:id", sh.StreamSaved)    // GET /execution-stream/:id
		stream.POST("/adhoc", sh.StreamAdhoc) // POST /execution-stream/adhoc
	}
}
