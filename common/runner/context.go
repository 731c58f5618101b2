package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/lyzr/flow/common/expr"
	"github.com/lyzr/flow/common/registry"
	"github.com/lyzr/flow/common/workflow"
)

// ExecutionError is one recorded failure. An empty NodeName marks an error
// attributed to the engine itself (step ceiling, cancellation).
type ExecutionError struct {
	NodeName  string    `json:"nodeName,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ExecutionContext is the full state of one run. The runner mutates it while
// stepping and returns it to the caller at quiescence; afterwards it is a
// plain value and safe to serialize.
type ExecutionContext struct {
	ExecutionID  string    `json:"executionId"`
	WorkflowID   string    `json:"workflowId,omitempty"`
	WorkflowName string    `json:"workflowName,omitempty"`
	Mode         string    `json:"mode"`
	StartTime    time.Time `json:"startTime"`
	EndTime      time.Time `json:"endTime"`

	// NodeStates holds each completed node's recorded output items.
	NodeStates map[string][]workflow.Item `json:"nodeData"`
	// NodeRunCounts counts completions per node across loop iterations.
	NodeRunCounts map[string]int `json:"nodeRunCounts"`
	// NodeInternalState is the opaque per-node slot (batch loops use it).
	NodeInternalState map[string]interface{} `json:"-"`
	// PendingInputs buffers multi-input deliveries keyed "<node>:<runIndex>",
	// then "<sourceNode>:<sourceOutput>" within the bucket.
	PendingInputs map[string]map[string]workflow.PortValue `json:"-"`

	Errors []ExecutionError `json:"errors"`
	// LastNode is the most recently completed node, used by callers that
	// respond with the terminal output.
	LastNode string `json:"lastNode,omitempty"`
	Steps    int    `json:"steps"`
}

func newExecutionContext(id string, wf *workflow.Workflow, mode string) *ExecutionContext {
	return &ExecutionContext{
		ExecutionID:       id,
		WorkflowID:        wf.ID,
		WorkflowName:      wf.Name,
		Mode:              mode,
		StartTime:         time.Now().UTC(),
		NodeStates:        make(map[string][]workflow.Item),
		NodeRunCounts:     make(map[string]int),
		NodeInternalState: make(map[string]interface{}),
		PendingInputs:     make(map[string]map[string]workflow.PortValue),
	}
}

func (ec *ExecutionContext) appendError(nodeName, message string) {
	ec.Errors = append(ec.Errors, ExecutionError{
		NodeName:  nodeName,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
}

func (ec *ExecutionContext) recordState(nodeName string, items []workflow.Item) {
	ec.NodeStates[nodeName] = items
	ec.LastNode = nodeName
}

// LastNodeOutput returns the recorded output of the node that completed
// last, for response modes that proxy the terminal result.
func (ec *ExecutionContext) LastNodeOutput() []workflow.Item {
	if ec.LastNode == "" {
		return nil
	}
	return ec.NodeStates[ec.LastNode]
}

// Failed reports whether any error was recorded during the run.
func (ec *ExecutionContext) Failed() bool { return len(ec.Errors) > 0 }

func pendingKey(nodeName string, runIndex int) string {
	return fmt.Sprintf("%s:%d", nodeName, runIndex)
}

func deliveryKey(sourceNode, sourceOutput string) string {
	return sourceNode + ":" + sourceOutput
}

// job is one unit of work in the FIFO queue: a delivery of items to a node.
// Activation jobs carry no payload; they wake a multi-input node whose join
// buffer was completed by a dead delivery.
type job struct {
	nodeName     string
	items        []workflow.Item
	sourceNode   string
	sourceOutput string
	runIndex     int
	activation   bool
}

// runContext adapts one execution to the registry.RunContext the executors
// see. Runs are single-threaded, so no locking is needed here.
type runContext struct {
	ctx      context.Context
	runner   *Runner
	wf       *workflow.Workflow
	ec       *ExecutionContext
	env      map[string]string
	runIndex int
}

func (rc *runContext) Context() context.Context { return rc.ctx }
func (rc *runContext) ExecutionID() string      { return rc.ec.ExecutionID }
func (rc *runContext) Mode() string             { return rc.ec.Mode }
func (rc *runContext) RunIndex() int            { return rc.runIndex }

func (rc *runContext) NodeOutput(name string) ([]workflow.Item, bool) {
	items, ok := rc.ec.NodeStates[name]
	return items, ok
}

func (rc *runContext) NodeOutputs() map[string][]workflow.Item {
	return rc.ec.NodeStates
}

func (rc *runContext) RawNode(name string) *workflow.Node {
	return rc.wf.NodeByName(name)
}

func (rc *runContext) ResolveForItem(nodeName string, items []workflow.Item, index int) map[string]interface{} {
	node := rc.wf.NodeByName(nodeName)
	if node == nil {
		return map[string]interface{}{}
	}
	return rc.runner.engine.ResolveParameters(node.Parameters, rc.scopeFor(items, index))
}

// scopeFor binds the expression scope to one item of the in-flight input.
func (rc *runContext) scopeFor(items []workflow.Item, index int) *expr.Scope {
	scope := expr.NewScope()
	scope.Input = items
	scope.ItemIndex = index
	if index >= 0 && index < len(items) && items[index].JSON != nil {
		scope.JSON = items[index].JSON
	}
	for name, outputs := range rc.ec.NodeStates {
		scope.AddNodeOutput(name, outputs)
	}
	scope.Env = rc.env
	scope.Execution = map[string]interface{}{
		"id":   rc.ec.ExecutionID,
		"mode": rc.ec.Mode,
	}
	return scope
}

func (rc *runContext) InternalState(node string) interface{} {
	return rc.ec.NodeInternalState[node]
}

func (rc *runContext) SetInternalState(node string, state interface{}) {
	if state == nil {
		delete(rc.ec.NodeInternalState, node)
		return
	}
	rc.ec.NodeInternalState[node] = state
}

func (rc *runContext) PendingBucket(node string, runIndex int) map[string]workflow.PortValue {
	key := pendingKey(node, runIndex)
	bucket, ok := rc.ec.PendingInputs[key]
	if !ok {
		bucket = make(map[string]workflow.PortValue)
		rc.ec.PendingInputs[key] = bucket
	}
	return bucket
}

func (rc *runContext) ClearPendingBucket(node string, runIndex int) {
	delete(rc.ec.PendingInputs, pendingKey(node, runIndex))
}

func (rc *runContext) InputEdges(node string) []workflow.Connection {
	return rc.wf.ConnectionsInto(node)
}

func (rc *runContext) Logger() registry.Logger { return rc.runner.logger }
