package nodes

import (
	"time"

	"github.com/lyzr/flow/common/registry"
	"github.com/lyzr/flow/common/workflow"
)

// waitExecutor suspends the run for a bounded duration, then passes items
// through untouched. The clamp keeps a single workflow from parking an
// engine worker indefinitely.
type waitExecutor struct {
	maxWait time.Duration
}

func (e *waitExecutor) Type() string { return TypeWait }

func (e *waitExecutor) Execute(rc registry.RunContext, node *workflow.Node, items []workflow.Item) (*registry.Result, error) {
	amount := floatParam(node.Parameters, "amount", 1)
	unit := stringParam(node.Parameters, "unit", "seconds")

	d := durationFor(amount, unit)
	if d < 0 {
		d = 0
	}
	if e.maxWait > 0 && d > e.maxWait {
		rc.Logger().Warn("wait duration clamped",
			"node", node.Name, "requested", d.String(), "max", e.maxWait.String())
		d = e.maxWait
	}

	if d > 0 {
		select {
		case <-rc.Context().Done():
			return nil, rc.Context().Err()
		case <-time.After(d):
		}
	}
	return registry.MainOutput(items), nil
}

func durationFor(amount float64, unit string) time.Duration {
	switch unit {
	case "milliseconds", "ms":
		return time.Duration(amount * float64(time.Millisecond))
	case "minutes":
		return time.Duration(amount * float64(time.Minute))
	case "hours":
		return time.Duration(amount * float64(time.Hour))
	default:
		return time.Duration(amount * float64(time.Second))
	}
}
