package models

import (
	"time"

	"github.com/lyzr/flow/common/runner"
	"github.com/lyzr/flow/common/workflow"
)

// Execution statuses.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusError   = "error"
)

// ExecutionRecord is the persisted outcome of one workflow run.
type ExecutionRecord struct {
	ID           string                     `json:"id"`
	WorkflowID   string                     `json:"workflowId,omitempty"`
	WorkflowName string                     `json:"workflowName"`
	Status       string                     `json:"status"`
	Mode         string                     `json:"mode"`
	StartTime    time.Time                  `json:"startTime"`
	EndTime      time.Time                  `json:"endTime"`
	LastNode     string                     `json:"lastNode,omitempty"`
	Errors       []runner.ExecutionError    `json:"errors"`
	NodeData     map[string][]workflow.Item `json:"nodeData"`
}

// LastOutput returns the recorded items of the node that completed last.
// Webhook lastNode responses proxy the final entry of this slice.
func (r *ExecutionRecord) LastOutput() []workflow.Item {
	if r.LastNode == "" {
		return nil
	}
	return r.NodeData[r.LastNode]
}

// RecordFromContext builds the persisted record out of a finished run.
func RecordFromContext(ec *runner.ExecutionContext, workflowID string) *ExecutionRecord {
	status := StatusSuccess
	if ec.Failed() {
		status = StatusError
	}
	errs := ec.Errors
	if errs == nil {
		errs = []runner.ExecutionError{}
	}
	return &ExecutionRecord{
		ID:           ec.ExecutionID,
		WorkflowID:   workflowID,
		WorkflowName: ec.WorkflowName,
		Status:       status,
		Mode:         ec.Mode,
		StartTime:    ec.StartTime,
		EndTime:      ec.EndTime,
		LastNode:     ec.LastNode,
		Errors:       errs,
		NodeData:     ec.NodeStates,
	}
}
