package nodes

import (
	"fmt"

	"github.com/lyzr/flow/common/expr"
	"github.com/lyzr/flow/common/registry"
	"github.com/lyzr/flow/common/workflow"
)

// mergeExecutor joins fan-in branches. The engine only schedules it once
// every unique inbound edge has delivered data or the no-output marker, so
// Execute drains the pending bucket, combines per the configured mode, and
// clears the bucket for the next activation at this run index.
type mergeExecutor struct{}

func (e *mergeExecutor) Type() string { return TypeMerge }

func (e *mergeExecutor) Execute(rc registry.RunContext, node *workflow.Node, items []workflow.Item) (*registry.Result, error) {
	inputs := collectInputs(rc, node.Name)
	defer rc.ClearPendingBucket(node.Name, rc.RunIndex())

	mode := stringParam(node.Parameters, "mode", "append")
	switch mode {
	case "append":
		var combined []workflow.Item
		for _, input := range inputs {
			combined = append(combined, input...)
		}
		return registry.MainOutput(combined), nil

	case "waitForAll":
		sequences := make([]interface{}, len(inputs))
		for i, input := range inputs {
			payloads := make([]interface{}, len(input))
			for j := range input {
				payloads[j] = input[j].JSON
			}
			sequences[i] = payloads
		}
		item := workflow.NewItem()
		item.JSON["inputs"] = sequences
		return registry.MainOutput([]workflow.Item{item}), nil

	case "keepMatches":
		key := stringParam(node.Parameters, "propertyName", "id")
		return registry.MainOutput(keepMatches(inputs, key)), nil

	case "combinePairs":
		return registry.MainOutput(combinePairs(inputs)), nil

	default:
		return nil, fmt.Errorf("unknown merge mode %q", mode)
	}
}

// collectInputs reads the join buffer in declaration order of the inbound
// edges, one slot per unique (sourceNode, sourceOutput) pair. Dead branches
// contribute an empty sequence.
func collectInputs(rc registry.RunContext, nodeName string) [][]workflow.Item {
	bucket := rc.PendingBucket(nodeName, rc.RunIndex())
	seen := map[string]bool{}
	var inputs [][]workflow.Item
	for _, conn := range rc.InputEdges(nodeName) {
		key := conn.SourceNode + ":" + conn.SourceOutput
		if seen[key] {
			continue
		}
		seen[key] = true
		pv, ok := bucket[key]
		if !ok || pv.IsDead() {
			inputs = append(inputs, nil)
			continue
		}
		inputs = append(inputs, pv.Items)
	}
	return inputs
}

// keepMatches keeps items from the first input whose key value also appears
// in every other input, preserving first-input order.
func keepMatches(inputs [][]workflow.Item, key string) []workflow.Item {
	if len(inputs) == 0 {
		return nil
	}
	var kept []workflow.Item
	for _, candidate := range inputs[0] {
		value, ok := workflow.GetPath(candidate.JSON, key)
		if !ok {
			continue
		}
		matchesAll := true
		for _, other := range inputs[1:] {
			if !containsValue(other, key, value) {
				matchesAll = false
				break
			}
		}
		if matchesAll {
			kept = append(kept, candidate)
		}
	}
	return kept
}

func containsValue(items []workflow.Item, key string, value interface{}) bool {
	want := expr.Stringify(value)
	for _, item := range items {
		got, ok := workflow.GetPath(item.JSON, key)
		if ok && expr.Stringify(got) == want {
			return true
		}
	}
	return false
}

// combinePairs zips inputs by index into {input0, input1, ...} objects. The
// result is as long as the longest input; shorter inputs simply contribute
// no key past their end.
func combinePairs(inputs [][]workflow.Item) []workflow.Item {
	longest := 0
	for _, input := range inputs {
		if len(input) > longest {
			longest = len(input)
		}
	}
	out := make([]workflow.Item, 0, longest)
	for i := 0; i < longest; i++ {
		item := workflow.NewItem()
		for slot, input := range inputs {
			if i < len(input) {
				item.JSON[fmt.Sprintf("input%d", slot)] = input[i].JSON
			}
		}
		out = append(out, item)
	}
	return out
}
