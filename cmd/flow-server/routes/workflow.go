package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/lyzr/flow/cmd/flow-server/container"
	"github.com/lyzr/flow/cmd/flow-server/handlers"
	"github.com/lyzr/flow/cmd/flow-server/middleware"
)

// RegisterWorkflowRoutes registers definition CRUD and the synchronous run
// endpoints.
func RegisterWorkflowRoutes(e *echo.Echo, c *container.Container) {
	wh := handlers.NewWorkflowHandler(c.WorkflowService, c.Components.Logger)
	rh := handlers.NewRunHandler(c.RunService, c.Components.Logger)

	wf := e.Group("/workflows")
	wf.Use(middleware.RequireBearer(c.Components.Config.Security.AuthToken))
	{
		wf.GET("", wh.List)                          // GET /workflows
		wf.POST("", wh.Create)                       // POST /workflows
		wf.POST("/run-adhoc", rh.RunAdhoc)           // POST /workflows/run-adhoc
		wf.GET("/:id", wh.Get)                       // GET /workflows/:id
		wf.PUT("/:id", wh.Update)                    // PUT /workflows/:id
		wf.PATCH("/:id", wh.Patch)                   // PATCH /workflows/:id
		wf.DELETE("/:id", wh.Delete)                 // DELETE /workflows/:id
		wf.POST("/:id/run", rh.Run)                  // POST /workflows/:id/run
		wf.GET("/:id/executions", rh.ListExecutions) // GET /workflows/:id/executions
	}
}
