package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/lyzr/flow/cmd/flow-server/service"
	"github.com/lyzr/flow/common/logger"
	"github.com/lyzr/flow/common/nodes"
	"github.com/lyzr/flow/common/workflow"
)

// WebhookHandler delivers external HTTP calls into a workflow's webhook
// node. The registered path accepts GET, POST, PUT and DELETE; the request
// is wrapped into a single item carrying method, headers, query and body.
type WebhookHandler struct {
	workflows *service.WorkflowService
	runs      *service.RunService
	log       *logger.Logger
}

func NewWebhookHandler(workflows *service.WorkflowService, runs *service.RunService, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{workflows: workflows, runs: runs, log: log}
}

// Handle handles /webhook/:workflowId for every registered method.
func (h *WebhookHandler) Handle(c echo.Context) error {
	ctx := c.Request().Context()
	workflowID := c.Param("workflowId")
	if workflowID == "" {
		return badRequest(c, "workflow id is required")
	}

	stored, err := h.workflows.Get(ctx, workflowID)
	if err != nil {
		return serviceError(c, h.log, err)
	}

	webhooks := stored.Definition().NodesOfType(nodes.TypeWebhook)
	if len(webhooks) == 0 {
		return c.JSON(http.StatusNotFound, map[string]interface{}{
			"error": "workflow has no webhook node",
		})
	}
	responseMode := webhookResponseMode(webhooks[0])

	item := webhookItem(c)
	h.log.Info("webhook received",
		"workflow_id", workflowID,
		"method", c.Request().Method,
		"response_mode", responseMode)

	record, err := h.runs.RunForWebhook(ctx, workflowID, []workflow.Item{item})
	if err != nil {
		return serviceError(c, h.log, err)
	}

	if responseMode == "lastNode" {
		output := record.LastOutput()
		if len(output) == 0 {
			return c.JSON(http.StatusOK, map[string]interface{}{})
		}
		return c.JSON(http.StatusOK, output[len(output)-1].JSON)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":      record.Status,
		"executionId": record.ID,
	})
}

func webhookResponseMode(node *workflow.Node) string {
	if raw, ok := node.Parameters["responseMode"].(string); ok && raw != "" {
		return raw
	}
	return "onReceived"
}

// webhookItem wraps the inbound request into the item shape workflows see.
// JSON bodies are parsed; anything else is passed through as a string.
func webhookItem(c echo.Context) workflow.Item {
	req := c.Request()

	headers := map[string]interface{}{}
	for name, values := range req.Header {
		headers[strings.ToLower(name)] = strings.Join(values, ", ")
	}

	query := map[string]interface{}{}
	for name, values := range c.QueryParams() {
		if len(values) == 1 {
			query[name] = values[0]
		} else {
			query[name] = strings.Join(values, ",")
		}
	}

	var body interface{}
	if raw, err := io.ReadAll(req.Body); err == nil && len(raw) > 0 {
		var parsed interface{}
		if json.Unmarshal(raw, &parsed) == nil {
			body = parsed
		} else {
			body = string(raw)
		}
	}

	return workflow.Item{JSON: map[string]interface{}{
		"method":  req.Method,
		"headers": headers,
		"query":   query,
		"body":    body,
	}}
}
