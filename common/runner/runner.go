package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lyzr/flow/common/expr"
	"github.com/lyzr/flow/common/registry"
	"github.com/lyzr/flow/common/workflow"
)

// ErrStartNodeNotFound is returned when the requested entry node does not
// exist in the workflow.
var ErrStartNodeNotFound = errors.New("start node not found")

// boundedAbortMessage is recorded verbatim when the step ceiling trips.
const boundedAbortMessage = "Execution exceeded maximum iterations"

// DefaultMaxSteps bounds a single run. The ceiling protects against loop
// edges that never drain.
const DefaultMaxSteps = 1000

// Runner drives one workflow graph to quiescence: a FIFO queue of item
// deliveries, one job at a time, no intra-run parallelism. Parallel branches
// are interleavings of independent jobs through the single queue.
type Runner struct {
	registry *registry.Registry
	engine   *expr.Engine
	logger   registry.Logger
	maxSteps int
}

// New builds a runner. maxSteps <= 0 selects DefaultMaxSteps.
func New(reg *registry.Registry, engine *expr.Engine, log registry.Logger, maxSteps int) *Runner {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	return &Runner{registry: reg, engine: engine, logger: log, maxSteps: maxSteps}
}

// Run executes wf from startNode with the given seed items and drives the
// queue until it drains, the step ceiling trips, or ctx is cancelled. The
// returned context carries per-node outputs and all recorded errors; the
// error return is reserved for failures to start at all.
func (r *Runner) Run(ctx context.Context, wf *workflow.Workflow, startNode string, initialItems []workflow.Item, mode string, observer Observer) (*ExecutionContext, error) {
	wf.Normalize()
	ec := newExecutionContext(uuid.New().String(), wf, mode)

	r.emit(observer, Event{
		Type:        EventExecutionStart,
		ExecutionID: ec.ExecutionID,
		Timestamp:   time.Now().UTC(),
	})

	if wf.NodeByName(startNode) == nil {
		err := fmt.Errorf("%w: %q", ErrStartNodeNotFound, startNode)
		ec.appendError("", err.Error())
		r.emit(observer, Event{
			Type:        EventExecutionError,
			ExecutionID: ec.ExecutionID,
			Timestamp:   time.Now().UTC(),
			Error:       err.Error(),
		})
		r.finish(observer, ec)
		return ec, err
	}

	if len(initialItems) == 0 {
		initialItems = []workflow.Item{workflow.NewItem()}
	}

	rc := &runContext{
		ctx:    ctx,
		runner: r,
		wf:     wf,
		ec:     ec,
		env:    expr.SnapshotEnv(),
	}
	state := &runState{
		queue:     []job{{nodeName: startNode, items: initialItems}},
		started:   make(map[string]bool),
		completed: make(map[string]bool),
	}

	r.logger.Info("execution started",
		"execution_id", ec.ExecutionID,
		"workflow", wf.Name,
		"start_node", startNode,
		"mode", mode)

	for len(state.queue) > 0 {
		if err := ctx.Err(); err != nil {
			ec.appendError("", fmt.Sprintf("execution cancelled: %v", err))
			r.emit(observer, Event{
				Type:        EventExecutionError,
				ExecutionID: ec.ExecutionID,
				Timestamp:   time.Now().UTC(),
				Error:       ec.Errors[len(ec.Errors)-1].Message,
			})
			break
		}

		ec.Steps++
		if ec.Steps > r.maxSteps {
			ec.appendError("", boundedAbortMessage)
			r.emit(observer, Event{
				Type:        EventExecutionError,
				ExecutionID: ec.ExecutionID,
				Timestamp:   time.Now().UTC(),
				Error:       boundedAbortMessage,
			})
			break
		}

		current := state.queue[0]
		state.queue = state.queue[1:]
		r.step(rc, state, observer, current)
	}

	r.finish(observer, ec)
	return ec, nil
}

// runState is the per-run scheduling bookkeeping that does not belong in the
// caller-visible ExecutionContext.
type runState struct {
	queue     []job
	started   map[string]bool
	completed map[string]bool
}

// step processes one dequeued job end to end: join routing, pinned data,
// parameter resolution, retries, error policy, state recording and fan-out.
func (r *Runner) step(rc *runContext, state *runState, observer Observer, current job) {
	ec := rc.ec
	node := rc.wf.NodeByName(current.nodeName)
	if node == nil {
		ec.appendError(current.nodeName, fmt.Sprintf("node %q not found in workflow", current.nodeName))
		return
	}
	rc.runIndex = current.runIndex

	if !state.started[node.Name] {
		state.started[node.Name] = true
		r.emit(observer, Event{
			Type:        EventNodeStart,
			ExecutionID: ec.ExecutionID,
			Timestamp:   time.Now().UTC(),
			NodeName:    node.Name,
			NodeType:    node.Type,
			Progress:    r.progress(rc.wf, state),
		})
	}

	items := current.items
	inputCount := r.registry.InputCountFor(rc.wf, node.Type, node.Name)
	if inputCount > 1 {
		merged, ready := r.routeJoin(rc, current, inputCount)
		if !ready {
			return
		}
		items = merged
	}

	if len(node.PinnedData) > 0 {
		// Pinned data substitutes for execution during development.
		pinned := workflow.CloneItems(node.PinnedData)
		ec.NodeRunCounts[node.Name]++
		ec.recordState(node.Name, pinned)
		if inputCount > 1 {
			rc.ClearPendingBucket(node.Name, current.runIndex)
		}
		r.fanOut(rc, state, node.Name, &registry.Result{Outputs: map[string]workflow.PortValue{
			workflow.PortMain: workflow.Output(pinned),
		}}, current.runIndex)
		r.completeNode(rc, state, observer, node, pinned)
		return
	}

	var result *registry.Result
	var execErr error
	if node.Disabled {
		result = registry.MainOutput(items)
	} else {
		result, execErr = r.executeWithRetry(rc, node, items)
	}

	if execErr != nil {
		ec.appendError(node.Name, execErr.Error())
		r.emit(observer, Event{
			Type:        EventNodeError,
			ExecutionID: ec.ExecutionID,
			Timestamp:   time.Now().UTC(),
			NodeName:    node.Name,
			NodeType:    node.Type,
			Error:       execErr.Error(),
		})
		r.logger.Error("node execution failed",
			"execution_id", ec.ExecutionID,
			"node", node.Name,
			"error", execErr.Error())

		if !node.ContinueOnFail {
			r.propagateDead(rc, state, node.Name, current.runIndex, map[string]bool{})
			return
		}
		// continueOnFail turns the failure into a recoverable item.
		errorItem := workflow.NewItem()
		errorItem.JSON["error"] = execErr.Error()
		errorItem.JSON["_errorNode"] = node.Name
		result = registry.MainOutput([]workflow.Item{errorItem})
	}

	ec.NodeRunCounts[node.Name]++
	recorded := r.recordedOutput(node.Type, result)
	ec.recordState(node.Name, recorded)
	r.fanOut(rc, state, node.Name, result, current.runIndex)
	r.completeNode(rc, state, observer, node, recorded)
}

// routeJoin buffers the delivery and reports readiness: the join fires once
// the bucket holds one entry per unique inbound edge. Duplicate deliveries
// from the same edge overwrite. The merged input is the concatenation of
// live deliveries in edge declaration order; executors that need per-edge
// structure read the bucket themselves.
func (r *Runner) routeJoin(rc *runContext, current job, required int) ([]workflow.Item, bool) {
	bucket := rc.ec.PendingInputs[pendingKey(current.nodeName, current.runIndex)]
	if !current.activation {
		bucket = rc.PendingBucket(current.nodeName, current.runIndex)
		bucket[deliveryKey(current.sourceNode, current.sourceOutput)] = workflow.Output(current.items)
	}
	if len(bucket) < required {
		return nil, false
	}

	var merged []workflow.Item
	seen := map[string]bool{}
	for _, conn := range rc.wf.ConnectionsInto(current.nodeName) {
		key := deliveryKey(conn.SourceNode, conn.SourceOutput)
		if seen[key] {
			continue
		}
		seen[key] = true
		if pv, ok := bucket[key]; ok && !pv.IsDead() {
			merged = append(merged, pv.Items...)
		}
	}
	return merged, true
}

// executeWithRetry resolves parameters against the first item and runs the
// executor up to retryOnFail+1 times. Only the final failure surfaces;
// earlier attempts are logged and retried after retryDelay.
func (r *Runner) executeWithRetry(rc *runContext, node *workflow.Node, items []workflow.Item) (*registry.Result, error) {
	executor, err := r.registry.Get(node.Type)
	if err != nil {
		return nil, err
	}

	resolved := *node
	resolved.Parameters = r.engine.ResolveParameters(node.Parameters, rc.scopeFor(items, 0))

	attempts := node.RetryOnFail + 1
	if attempts < 1 {
		attempts = 1
	}
	delay := time.Duration(node.RetryDelay) * time.Millisecond

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, execErr := executor.Execute(rc, &resolved, items)
		if execErr == nil {
			if result == nil {
				result = &registry.Result{Outputs: map[string]workflow.PortValue{}}
			}
			return result, nil
		}
		lastErr = execErr
		if attempt == attempts {
			break
		}
		r.logger.Warn("node attempt failed, retrying",
			"execution_id", rc.ec.ExecutionID,
			"node", node.Name,
			"attempt", attempt,
			"error", execErr.Error())
		if delay > 0 {
			select {
			case <-rc.ctx.Done():
				return nil, rc.ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return nil, lastErr
}

// recordedOutput picks the items to store in nodeStates: the main port when
// live, otherwise the first live port in the descriptor's declared order.
func (r *Runner) recordedOutput(nodeType string, result *registry.Result) []workflow.Item {
	if pv, ok := result.Outputs[workflow.PortMain]; ok && !pv.IsDead() {
		return pv.Items
	}
	if desc, err := r.registry.Describe(nodeType); err == nil {
		for _, port := range desc.Outputs {
			if pv, ok := result.Outputs[port]; ok && !pv.IsDead() && len(pv.Items) > 0 {
				return pv.Items
			}
		}
	}
	for _, pv := range result.Outputs {
		if !pv.IsDead() && len(pv.Items) > 0 {
			return pv.Items
		}
	}
	return []workflow.Item{}
}

// completeNode emits node:complete on the first completion of the node in
// this run.
func (r *Runner) completeNode(rc *runContext, state *runState, observer Observer, node *workflow.Node, data []workflow.Item) {
	if state.completed[node.Name] {
		return
	}
	state.completed[node.Name] = true
	r.emit(observer, Event{
		Type:        EventNodeComplete,
		ExecutionID: rc.ec.ExecutionID,
		Timestamp:   time.Now().UTC(),
		NodeName:    node.Name,
		NodeType:    node.Type,
		Progress:    r.progress(rc.wf, state),
		Data:        data,
	})
}

// fanOut walks the result's ports and delivers along matching connections in
// declaration order. A loop port bumps the run index so each iteration gets
// its own join namespace. Dead ports deliver markers to multi-input targets
// and kill single-input branches transitively.
func (r *Runner) fanOut(rc *runContext, state *runState, nodeName string, result *registry.Result, runIndex int) {
	for _, conn := range rc.wf.Connections {
		if conn.SourceNode != nodeName {
			continue
		}
		pv, ok := result.Outputs[conn.SourceOutput]
		if !ok {
			// Missing port: empty sequence, nothing to deliver.
			continue
		}
		nextRunIndex := runIndex
		if conn.SourceOutput == workflow.PortLoop {
			nextRunIndex = runIndex + 1
		}

		switch {
		case pv.IsDead():
			r.deliverDead(rc, state, conn, nextRunIndex, map[string]bool{})
		case len(pv.Items) > 0:
			state.queue = append(state.queue, job{
				nodeName:     conn.TargetNode,
				items:        pv.Items,
				sourceNode:   conn.SourceNode,
				sourceOutput: conn.SourceOutput,
				runIndex:     nextRunIndex,
			})
		default:
			// Empty but live: the branch succeeded with no data.
		}
	}
}

// deliverDead routes a no-output marker over one connection. Multi-input
// targets buffer the marker toward readiness; single-input targets never
// fire, and their own outgoing edges are killed recursively so joins behind
// them still resolve. Markers follow the same run-index rule as live items,
// so a dead loop port cascades into the next iteration's namespace.
func (r *Runner) deliverDead(rc *runContext, state *runState, conn workflow.Connection, runIndex int, visited map[string]bool) {
	target := rc.wf.NodeByName(conn.TargetNode)
	if target == nil {
		return
	}
	inputCount := r.registry.InputCountFor(rc.wf, target.Type, target.Name)
	if inputCount > 1 {
		bucket := rc.PendingBucket(target.Name, runIndex)
		before := len(bucket)
		bucket[deliveryKey(conn.SourceNode, conn.SourceOutput)] = workflow.NoOutput()
		if len(bucket) == before || len(bucket) < inputCount {
			return
		}
		if bucketAllDead(bucket) {
			// Every inbound edge died: the join itself is dead.
			rc.ClearPendingBucket(target.Name, runIndex)
			r.propagateDead(rc, state, target.Name, runIndex, visited)
			return
		}
		state.queue = append(state.queue, job{
			nodeName:   target.Name,
			runIndex:   runIndex,
			activation: true,
		})
		return
	}
	r.propagateDead(rc, state, target.Name, runIndex, visited)
}

func bucketAllDead(bucket map[string]workflow.PortValue) bool {
	for _, pv := range bucket {
		if !pv.IsDead() {
			return false
		}
	}
	return true
}

// propagateDead kills every branch leaving nodeName. The visited set bounds
// the walk on cyclic graphs.
func (r *Runner) propagateDead(rc *runContext, state *runState, nodeName string, runIndex int, visited map[string]bool) {
	key := pendingKey(nodeName, runIndex)
	if visited[key] {
		return
	}
	visited[key] = true
	for _, conn := range rc.wf.Connections {
		if conn.SourceNode != nodeName {
			continue
		}
		r.deliverDead(rc, state, conn, runIndex, visited)
	}
}

func (r *Runner) progress(wf *workflow.Workflow, state *runState) *Progress {
	return &Progress{Completed: len(state.completed), Total: len(wf.Nodes)}
}

// finish stamps the end time and emits the terminal event. It always runs,
// errors or not.
func (r *Runner) finish(observer Observer, ec *ExecutionContext) {
	ec.EndTime = time.Now().UTC()
	r.emit(observer, Event{
		Type:        EventExecutionComplete,
		ExecutionID: ec.ExecutionID,
		Timestamp:   ec.EndTime,
	})
	r.logger.Info("execution finished",
		"execution_id", ec.ExecutionID,
		"steps", ec.Steps,
		"errors", len(ec.Errors),
		"duration_ms", ec.EndTime.Sub(ec.StartTime).Milliseconds())
}
