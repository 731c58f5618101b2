package nodes

import (
	"fmt"
	"math"

	"github.com/lyzr/flow/common/expr"
	"github.com/lyzr/flow/common/registry"
	"github.com/lyzr/flow/common/workflow"
)

// switchExecutor routes items across output0..outputN. Rules mode compares
// value1 against each rule in order and the first match wins; expression
// mode evaluates the output parameter to an index. Items that match nothing
// go to the fallback output, or are dropped when none is configured.
type switchExecutor struct{}

func (e *switchExecutor) Type() string { return TypeSwitch }

func (e *switchExecutor) Execute(rc registry.RunContext, node *workflow.Node, items []workflow.Item) (*registry.Result, error) {
	buckets := map[int][]workflow.Item{}
	portCount := 0

	for i := range items {
		params := rc.ResolveForItem(node.Name, items, i)
		fallback := intParam(params, "fallbackOutput", -1)
		mode := stringParam(params, "mode", "rules")

		var target int
		switch mode {
		case "expression":
			target = expressionTarget(params, fallback)
		default:
			matched, err := ruleTarget(params)
			if err != nil {
				return nil, err
			}
			target = fallback
			if matched >= 0 {
				target = matched
			}
		}
		if count := declaredOutputs(params, fallback); count > portCount {
			portCount = count
		}
		if target >= 0 {
			buckets[target] = append(buckets[target], items[i])
		}
	}

	if portCount == 0 {
		// No items reached the loop above; derive ports from raw parameters
		// so connected-but-empty outputs still see the no-output marker.
		if raw := rc.RawNode(node.Name); raw != nil {
			portCount = declaredOutputs(raw.Parameters, intParam(raw.Parameters, "fallbackOutput", -1))
		}
	}

	outputs := make(map[string]workflow.PortValue, portCount)
	for port := 0; port < portCount; port++ {
		outputs[OutputPort(port)] = portFor(buckets[port])
	}
	return &registry.Result{Outputs: outputs}, nil
}

// OutputPort names the Nth router output.
func OutputPort(index int) string {
	return fmt.Sprintf("output%d", index)
}

// ruleTarget returns the output index of the first matching rule, or -1.
func ruleTarget(params map[string]interface{}) (int, error) {
	value := params["value1"]
	for _, raw := range sliceParam(params, "rules") {
		rule, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		operator := stringParam(rule, "operation", "equals")
		matched, err := EvaluateOperator(operator, value, rule["value2"])
		if err != nil {
			return -1, err
		}
		if matched {
			return intParam(rule, "output", 0), nil
		}
	}
	return -1, nil
}

// expressionTarget coerces the resolved output parameter to an index,
// falling back when the value is not a finite in-range integer.
func expressionTarget(params map[string]interface{}, fallback int) int {
	n := expr.ToNumber(params["output"])
	if math.IsNaN(n) || math.IsInf(n, 0) || n != math.Trunc(n) {
		return fallback
	}
	target := int(n)
	if target < 0 || target >= declaredOutputs(params, fallback) {
		return fallback
	}
	return target
}

// declaredOutputs computes how many output ports this switch exposes: the
// explicit outputs parameter when present, otherwise enough to cover every
// rule target and the fallback.
func declaredOutputs(params map[string]interface{}, fallback int) int {
	if explicit := intParam(params, "outputs", 0); explicit > 0 {
		return explicit
	}
	count := 0
	for _, raw := range sliceParam(params, "rules") {
		rule, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		if out := intParam(rule, "output", 0); out+1 > count {
			count = out + 1
		}
	}
	if fallback+1 > count {
		count = fallback + 1
	}
	return count
}
