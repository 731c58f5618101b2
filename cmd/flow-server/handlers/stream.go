package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/lyzr/flow/cmd/flow-server/models"
	"github.com/lyzr/flow/cmd/flow-server/service"
	"github.com/lyzr/flow/common/logger"
	"github.com/lyzr/flow/common/runner"
	"github.com/lyzr/flow/common/workflow"
)

// StreamHandler runs workflows while streaming their events to the caller as
// server-sent events. The run happens on the request goroutine, so the
// observer writes each frame as it is emitted.
type StreamHandler struct {
	workflows *service.WorkflowService
	runs      *service.RunService
	log       *logger.Logger
}

func NewStreamHandler(workflows *service.WorkflowService, runs *service.RunService, log *logger.Logger) *StreamHandler {
	return &StreamHandler{workflows: workflows, runs: runs, log: log}
}

// streamResult is the closing frame carrying the full outcome.
type streamResult struct {
	Type        string                     `json:"type"`
	ExecutionID string                     `json:"executionId"`
	Status      string                     `json:"status"`
	NodeData    map[string][]workflow.Item `json:"nodeData"`
	Errors      []runner.ExecutionError    `json:"errors"`
}

// StreamSaved handles GET /execution-stream/:id. Optional startNode and mode
// query parameters mirror the run request body.
func (h *StreamHandler) StreamSaved(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	if id == "" {
		return badRequest(c, "workflow id is required")
	}

	req := &models.RunWorkflowRequest{
		StartNode: c.QueryParam("startNode"),
		Mode:      c.QueryParam("mode"),
	}
	if err := c.Validate(req); err != nil {
		return err
	}

	// Resolve before committing to the stream so a missing workflow or
	// triggerless definition still gets a proper JSON error status.
	stored, err := h.workflows.Get(ctx, id)
	if err != nil {
		return serviceError(c, h.log, err)
	}
	if _, err := service.StartNodeFor(stored.Definition(), req.StartNode); err != nil {
		return serviceError(c, h.log, err)
	}

	res := beginStream(c)
	record, _ := h.runs.RunSaved(ctx, id, req, sseObserver(res))
	closeStream(res, record)
	return nil
}

// StreamAdhoc handles POST /execution-stream/adhoc: stream the run of a
// definition posted in the request body.
func (h *StreamHandler) StreamAdhoc(c echo.Context) error {
	ctx := c.Request().Context()

	var req models.AdhocRunRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if err := req.Workflow.Validate(); err != nil {
		return serviceError(c, h.log, err)
	}
	if _, err := service.StartNodeFor(&req.Workflow, req.StartNode); err != nil {
		return serviceError(c, h.log, err)
	}

	res := beginStream(c)
	record, _ := h.runs.RunAdhoc(ctx, &req, sseObserver(res))
	closeStream(res, record)
	return nil
}

func beginStream(c echo.Context) *echo.Response {
	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.WriteHeader(http.StatusOK)
	res.Flush()
	return res
}

// closeStream writes the execution:result frame. Start failures still have a
// record, so the frame goes out on every path.
func closeStream(res *echo.Response, record *models.ExecutionRecord) {
	if record == nil {
		return
	}
	writeSSE(res, streamResult{
		Type:        "execution:result",
		ExecutionID: record.ID,
		Status:      record.Status,
		NodeData:    record.NodeData,
		Errors:      record.Errors,
	})
}

func sseObserver(res *echo.Response) runner.Observer {
	return func(event runner.Event) {
		writeSSE(res, event)
	}
}

func writeSSE(res *echo.Response, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(res, "data: %s\n\n", data)
	res.Flush()
}
