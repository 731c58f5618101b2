package models

import (
	"time"

	"github.com/lyzr/flow/common/workflow"
)

// WorkflowRecord is the persisted shape of a workflow definition.
type WorkflowRecord struct {
	ID              string                `json:"id"`
	Name            string                `json:"name"`
	Active          bool                  `json:"active"`
	Nodes           []workflow.Node       `json:"nodes"`
	Connections     []workflow.Connection `json:"connections"`
	ErrorWorkflowID string                `json:"errorWorkflowId,omitempty"`
	CreatedAt       time.Time             `json:"createdAt"`
	UpdatedAt       time.Time             `json:"updatedAt"`
}

// Definition converts the record into the engine's workflow shape.
func (r *WorkflowRecord) Definition() *workflow.Workflow {
	return &workflow.Workflow{
		ID:              r.ID,
		Name:            r.Name,
		Active:          r.Active,
		Nodes:           r.Nodes,
		Connections:     r.Connections,
		ErrorWorkflowID: r.ErrorWorkflowID,
	}
}

// CreateWorkflowRequest is the payload for POST /workflows.
type CreateWorkflowRequest struct {
	Name            string                `json:"name" validate:"required"`
	Active          bool                  `json:"active"`
	Nodes           []workflow.Node       `json:"nodes" validate:"required,min=1"`
	Connections     []workflow.Connection `json:"connections"`
	ErrorWorkflowID string                `json:"errorWorkflowId"`
}

// UpdateWorkflowRequest is the payload for PUT /workflows/:id. The full
// definition is replaced.
type UpdateWorkflowRequest struct {
	Name            string                `json:"name" validate:"required"`
	Active          bool                  `json:"active"`
	Nodes           []workflow.Node       `json:"nodes" validate:"required,min=1"`
	Connections     []workflow.Connection `json:"connections"`
	ErrorWorkflowID string                `json:"errorWorkflowId"`
}

// RunWorkflowRequest is the payload for POST /workflows/:id/run. All fields
// are optional: the start node defaults to the workflow's trigger and the
// items to a single empty item.
type RunWorkflowRequest struct {
	StartNode string          `json:"startNode"`
	Items     []workflow.Item `json:"items"`
	Mode      string          `json:"mode" validate:"omitempty,oneof=manual webhook cron"`
}

// AdhocRunRequest is the payload for POST /workflows/run-adhoc and
// POST /execution-stream/adhoc: an unsaved definition plus run options.
type AdhocRunRequest struct {
	Workflow  workflow.Workflow `json:"workflow" validate:"required"`
	StartNode string            `json:"startNode"`
	Items     []workflow.Item   `json:"items"`
	Mode      string            `json:"mode" validate:"omitempty,oneof=manual webhook cron"`
}
