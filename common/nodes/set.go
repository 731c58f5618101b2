package nodes

import (
	"github.com/lyzr/flow/common/registry"
	"github.com/lyzr/flow/common/workflow"
)

// setExecutor shapes item payloads: dot-path assignments, a shallow JSON
// merge, deletions and renames. Parameters are re-resolved per item so
// assignment values can reference $json of the item being shaped.
type setExecutor struct{}

func (s *setExecutor) Type() string { return TypeSet }

func (s *setExecutor) Execute(rc registry.RunContext, node *workflow.Node, items []workflow.Item) (*registry.Result, error) {
	out := make([]workflow.Item, 0, len(items))
	for i := range items {
		params := rc.ResolveForItem(node.Name, items, i)

		item := workflow.Item{JSON: workflow.CloneJSONMap(items[i].JSON), Binary: items[i].Binary}
		if boolParam(params, "keepOnlySet", false) {
			item = workflow.NewItem()
		}

		// JSON mode: merge an object wholesale before targeted assignments.
		for key, value := range mapParam(params, "json") {
			item.JSON[key] = value
		}

		for _, raw := range sliceParam(params, "values") {
			assignment, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			name := stringParam(assignment, "name", "")
			if name == "" {
				continue
			}
			item.JSON = workflow.SetPath(item.JSON, name, assignment["value"])
		}

		for _, path := range stringSliceParam(params, "delete") {
			item.JSON = workflow.DeletePath(item.JSON, path)
		}

		for _, raw := range sliceParam(params, "rename") {
			rename, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			from := stringParam(rename, "from", "")
			to := stringParam(rename, "to", "")
			if from == "" || to == "" {
				continue
			}
			item.JSON = workflow.MovePath(item.JSON, from, to)
		}

		out = append(out, item)
	}
	return registry.MainOutput(out), nil
}
