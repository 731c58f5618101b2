package handlers

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lyzr/flow/cmd/flow-server/models"
	"github.com/lyzr/flow/cmd/flow-server/service"
	"github.com/lyzr/flow/common/logger"
)

// WorkflowHandler handles workflow definition CRUD.
type WorkflowHandler struct {
	workflows *service.WorkflowService
	log       *logger.Logger
}

func NewWorkflowHandler(workflows *service.WorkflowService, log *logger.Logger) *WorkflowHandler {
	return &WorkflowHandler{workflows: workflows, log: log}
}

// Create handles POST /workflows
func (h *WorkflowHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()

	var req models.CreateWorkflowRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	record, err := h.workflows.Create(ctx, &req)
	if err != nil {
		return serviceError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, record)
}

// Get handles GET /workflows/:id
func (h *WorkflowHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	if id == "" {
		return badRequest(c, "workflow id is required")
	}

	record, err := h.workflows.Get(ctx, id)
	if err != nil {
		return serviceError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, record)
}

// List handles GET /workflows
func (h *WorkflowHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	records, err := h.workflows.List(ctx)
	if err != nil {
		return serviceError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"workflows": records,
		"count":     len(records),
	})
}

// Update handles PUT /workflows/:id
func (h *WorkflowHandler) Update(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	if id == "" {
		return badRequest(c, "workflow id is required")
	}

	var req models.UpdateWorkflowRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	record, err := h.workflows.Update(ctx, id, &req)
	if err != nil {
		return serviceError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, record)
}

// Patch handles PATCH /workflows/:id. The body is either an RFC 6902
// operation array or a merge-patch object; the service dispatches on shape.
func (h *WorkflowHandler) Patch(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	if id == "" {
		return badRequest(c, "workflow id is required")
	}

	patch, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return badRequest(c, "failed to read request body")
	}
	if len(patch) == 0 {
		return badRequest(c, "patch body is required")
	}

	record, err := h.workflows.Patch(ctx, id, patch)
	if err != nil {
		return serviceError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, record)
}

// Delete handles DELETE /workflows/:id
func (h *WorkflowHandler) Delete(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	if id == "" {
		return badRequest(c, "workflow id is required")
	}

	if err := h.workflows.Delete(ctx, id); err != nil {
		return serviceError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"deleted": id})
}
