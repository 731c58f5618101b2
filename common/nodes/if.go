package nodes

import (
	"github.com/lyzr/flow/common/registry"
	"github.com/lyzr/flow/common/workflow"
)

// Output ports of the branching executors.
const (
	PortTrue  = "true"
	PortFalse = "false"
)

// ifExecutor routes each item to the true or false port by evaluating its
// conditions against the item. A port that receives no items emits the
// no-output marker so downstream joins can tell "branch not taken" from
// "branch pending".
type ifExecutor struct{}

func (e *ifExecutor) Type() string { return TypeIf }

func (e *ifExecutor) Execute(rc registry.RunContext, node *workflow.Node, items []workflow.Item) (*registry.Result, error) {
	var truthy, falsy []workflow.Item
	for i := range items {
		params := rc.ResolveForItem(node.Name, items, i)
		matched, err := evaluateConditions(params)
		if err != nil {
			return nil, err
		}
		if matched {
			truthy = append(truthy, items[i])
		} else {
			falsy = append(falsy, items[i])
		}
	}

	result := &registry.Result{Outputs: map[string]workflow.PortValue{
		PortTrue:  portFor(truthy),
		PortFalse: portFor(falsy),
	}}
	return result, nil
}

func portFor(items []workflow.Item) workflow.PortValue {
	if len(items) == 0 {
		return workflow.NoOutput()
	}
	return workflow.Output(items)
}

// evaluateConditions applies every condition in the resolved parameters and
// combines them with "all" (default) or "any".
func evaluateConditions(params map[string]interface{}) (bool, error) {
	conditions := sliceParam(params, "conditions")
	if len(conditions) == 0 {
		// A single flat condition is accepted as a convenience.
		if _, ok := params["operation"]; ok {
			return evaluateCondition(params)
		}
		return true, nil
	}

	combine := stringParam(params, "combineOperation", "all")
	for _, raw := range conditions {
		condition, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		matched, err := evaluateCondition(condition)
		if err != nil {
			return false, err
		}
		if combine == "any" && matched {
			return true, nil
		}
		if combine != "any" && !matched {
			return false, nil
		}
	}
	return combine != "any", nil
}

func evaluateCondition(condition map[string]interface{}) (bool, error) {
	operator := stringParam(condition, "operation", "equals")
	return EvaluateOperator(operator, condition["value1"], condition["value2"])
}
