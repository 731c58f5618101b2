package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/lyzr/flow/cmd/flow-server/models"
	"github.com/lyzr/flow/cmd/flow-server/service"
	"github.com/lyzr/flow/common/logger"
)

// RunHandler handles synchronous workflow execution and the execution
// history reads.
type RunHandler struct {
	runs *service.RunService
	log  *logger.Logger
}

func NewRunHandler(runs *service.RunService, log *logger.Logger) *RunHandler {
	return &RunHandler{runs: runs, log: log}
}

// Run handles POST /workflows/:id/run. The request body is optional; an
// empty body runs from the workflow's trigger with a single empty item.
func (h *RunHandler) Run(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	if id == "" {
		return badRequest(c, "workflow id is required")
	}

	req := models.RunWorkflowRequest{}
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		if err := c.Validate(&req); err != nil {
			return err
		}
	}

	h.log.Info("run requested", "workflow_id", id, "start_node", req.StartNode, "mode", req.Mode)

	record, err := h.runs.RunSaved(ctx, id, &req, nil)
	if err != nil {
		return serviceError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, record)
}

// RunAdhoc handles POST /workflows/run-adhoc: execute a definition without
// saving it first.
func (h *RunHandler) RunAdhoc(c echo.Context) error {
	ctx := c.Request().Context()

	var req models.AdhocRunRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	h.log.Info("adhoc run requested", "workflow", req.Workflow.Name, "nodes", len(req.Workflow.Nodes))

	record, err := h.runs.RunAdhoc(ctx, &req, nil)
	if err != nil {
		return serviceError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, record)
}

// GetExecution handles GET /executions/:id
func (h *RunHandler) GetExecution(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	if id == "" {
		return badRequest(c, "execution id is required")
	}

	record, err := h.runs.GetExecution(ctx, id)
	if err != nil {
		return serviceError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, record)
}

// ListExecutions handles GET /workflows/:id/executions?limit=N
func (h *RunHandler) ListExecutions(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	if id == "" {
		return badRequest(c, "workflow id is required")
	}

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return badRequest(c, "limit must be a non-negative integer")
		}
		limit = parsed
	}

	records, err := h.runs.ListExecutions(ctx, id, limit)
	if err != nil {
		return serviceError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"workflowId": id,
		"executions": records,
		"count":      len(records),
	})
}
