package nodes

import (
	"github.com/lyzr/flow/common/registry"
	"github.com/lyzr/flow/common/workflow"
)

// batchState survives across loop iterations in the node's internal state
// slot. The first invocation captures the input sequence; later invocations
// ignore their input and drain the remainder.
type batchState struct {
	Remaining      []workflow.Item
	TotalItems     int
	BatchesEmitted int
}

// splitInBatchesExecutor drives the loop/done pair. Every invocation emits
// the next batch on loop (and the no-output marker on done) until the
// captured sequence is exhausted, then emits a summary on done, clearing its
// state so a later run of the same workflow starts fresh.
type splitInBatchesExecutor struct{}

func (e *splitInBatchesExecutor) Type() string { return TypeSplitInBatches }

func (e *splitInBatchesExecutor) Execute(rc registry.RunContext, node *workflow.Node, items []workflow.Item) (*registry.Result, error) {
	state, _ := rc.InternalState(node.Name).(*batchState)
	if state == nil {
		state = &batchState{
			Remaining:  workflow.CloneItems(items),
			TotalItems: len(items),
		}
	}

	if len(state.Remaining) == 0 {
		rc.SetInternalState(node.Name, nil)
		summary := workflow.NewItem()
		summary.JSON["totalProcessed"] = state.TotalItems
		summary.JSON["batchesProcessed"] = state.BatchesEmitted
		return &registry.Result{Outputs: map[string]workflow.PortValue{
			workflow.PortDone: workflow.Output([]workflow.Item{summary}),
			workflow.PortLoop: workflow.NoOutput(),
		}}, nil
	}

	size := intParam(node.Parameters, "batchSize", 10)
	if size < 1 {
		size = 1
	}
	if size > len(state.Remaining) {
		size = len(state.Remaining)
	}
	batch := state.Remaining[:size]
	state.Remaining = state.Remaining[size:]
	state.BatchesEmitted++
	rc.SetInternalState(node.Name, state)

	return &registry.Result{Outputs: map[string]workflow.PortValue{
		workflow.PortLoop: workflow.Output(batch),
		workflow.PortDone: workflow.NoOutput(),
	}}, nil
}
