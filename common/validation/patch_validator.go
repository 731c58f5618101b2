// Package validation pre-checks JSON Patch documents before they touch a
// workflow, turning malformed operations into field-level errors instead
// of whatever the patch library would report.
package validation

import (
	"fmt"
	"strings"

	"github.com/lyzr/flow/common/nodes"
	"github.com/lyzr/flow/common/workflow"
)

// MaxLLMNodesPerPatch caps how many LLM-backed nodes one patch may add.
const MaxLLMNodesPerPatch = 5

// PatchValidator validates JSON Patch operations against the workflow
// document shape.
type PatchValidator struct{}

// NewPatchValidator creates a new patch validator
func NewPatchValidator() *PatchValidator {
	return &PatchValidator{}
}

// ValidateOperations checks every operation's structure and caps the
// number of LLM nodes a single patch may add.
func (v *PatchValidator) ValidateOperations(operations []map[string]interface{}) error {
	llmAdds := 0

	for i, op := range operations {
		if err := v.validateOperation(op, i); err != nil {
			return err
		}

		if op["op"] == "add" {
			path, _ := op["path"].(string)
			if nodeInsertPath(path) {
				if value, ok := op["value"].(map[string]interface{}); ok {
					if nodeType, ok := value["type"].(string); ok && isLLMType(nodeType) {
						llmAdds++
					}
				}
			}
		}
	}

	if llmAdds > MaxLLMNodesPerPatch {
		return &workflow.ValidationError{
			Field: "patch",
			Reason: fmt.Sprintf("cannot add more than %d LLM nodes per patch (attempted %d)",
				MaxLLMNodesPerPatch, llmAdds),
		}
	}
	return nil
}

// validateOperation validates a single operation
func (v *PatchValidator) validateOperation(op map[string]interface{}, index int) error {
	opType, ok := op["op"].(string)
	if !ok {
		return opError(index, "missing or invalid 'op' field")
	}
	path, ok := op["path"].(string)
	if !ok {
		return opError(index, "missing or invalid 'path' field")
	}

	switch opType {
	case "add", "replace":
		if _, ok := op["value"]; !ok {
			return opError(index, fmt.Sprintf("'value' required for %s operation", opType))
		}
		if nodeInsertPath(path) {
			if err := v.validateNodeValue(op["value"], index); err != nil {
				return err
			}
		}

	case "test":
		if _, ok := op["value"]; !ok {
			return opError(index, "'value' required for test operation")
		}

	case "remove":

	case "move", "copy":
		if _, ok := op["from"].(string); !ok {
			return opError(index, fmt.Sprintf("'from' required for %s operation", opType))
		}

	default:
		return opError(index, fmt.Sprintf("unsupported operation type: %s", opType))
	}
	return nil
}

// validateNodeValue validates a whole-node value in a patch
func (v *PatchValidator) validateNodeValue(value interface{}, index int) error {
	node, ok := value.(map[string]interface{})
	if !ok {
		return opError(index, fmt.Sprintf("node value must be an object, got %T", value))
	}

	if name, ok := node["name"].(string); !ok || name == "" {
		return opError(index, "node must have a non-empty 'name' field")
	}
	if nodeType, ok := node["type"].(string); !ok || nodeType == "" {
		return opError(index, "node must have a non-empty 'type' field")
	}

	if params, exists := node["parameters"]; exists {
		if _, ok := params.(map[string]interface{}); !ok {
			return opError(index, fmt.Sprintf("node 'parameters' must be an object, got %T", params))
		}
	}
	return nil
}

// nodeInsertPath reports whether path addresses a whole node slot:
// /nodes/- (append) or /nodes/<index>. Deeper paths edit fields inside an
// existing node and carry no node shape to check.
func nodeInsertPath(path string) bool {
	rest, found := strings.CutPrefix(path, "/nodes/")
	if !found || rest == "" || strings.Contains(rest, "/") {
		return false
	}
	if rest == "-" {
		return true
	}
	for _, r := range rest {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isLLMType(nodeType string) bool {
	return nodeType == nodes.TypeLLMChat || nodeType == nodes.TypeAIAgent
}

func opError(index int, reason string) *workflow.ValidationError {
	return &workflow.ValidationError{
		Field:  "patch",
		Reason: fmt.Sprintf("operation %d: %s", index, reason),
	}
}
