package nodes

import (
	"github.com/lyzr/flow/common/registry"
	"github.com/lyzr/flow/common/workflow"
)

// Trigger nodes are entry points. The engine injects their payload as input
// items (webhook body, cron tick, error report), so at execution time they
// only forward what they were given, defaulting to a single empty item so a
// bare trigger still produces one engine cycle downstream.
type triggerExecutor struct {
	nodeType string
}

func (t *triggerExecutor) Type() string { return t.nodeType }

func (t *triggerExecutor) Execute(rc registry.RunContext, node *workflow.Node, items []workflow.Item) (*registry.Result, error) {
	if len(items) == 0 {
		items = []workflow.Item{workflow.NewItem()}
	}
	return registry.MainOutput(items), nil
}

func newTrigger(nodeType string) registry.Factory {
	return func() registry.Executor {
		return &triggerExecutor{nodeType: nodeType}
	}
}
