package workflow

import (
	"fmt"
	"strings"
)

// ValidationError describes why a workflow was rejected at submission time
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("workflow validation failed: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("workflow validation failed: %s", e.Reason)
}

// Validate checks the structural invariants. Cycles are deliberately not
// rejected; looping through loop ports is legitimate.
func (w *Workflow) Validate() error {
	if len(w.Nodes) == 0 {
		return &ValidationError{Field: "nodes", Reason: "workflow must contain at least one node"}
	}

	seen := make(map[string]bool, len(w.Nodes))
	for i, n := range w.Nodes {
		if strings.TrimSpace(n.Name) == "" {
			return &ValidationError{
				Field:  fmt.Sprintf("nodes[%d].name", i),
				Reason: "node name must not be blank",
			}
		}
		if seen[n.Name] {
			return &ValidationError{
				Field:  fmt.Sprintf("nodes[%d].name", i),
				Reason: fmt.Sprintf("duplicate node name %q", n.Name),
			}
		}
		seen[n.Name] = true

		if strings.TrimSpace(n.Type) == "" {
			return &ValidationError{
				Field:  fmt.Sprintf("nodes[%d].type", i),
				Reason: fmt.Sprintf("node %q has no type", n.Name),
			}
		}
		if n.RetryOnFail < 0 || n.RetryOnFail > 10 {
			return &ValidationError{
				Field:  fmt.Sprintf("nodes[%d].retryOnFail", i),
				Reason: fmt.Sprintf("node %q: retryOnFail must be within 0..10, got %d", n.Name, n.RetryOnFail),
			}
		}
		if n.RetryDelay < 0 {
			return &ValidationError{
				Field:  fmt.Sprintf("nodes[%d].retryDelay", i),
				Reason: fmt.Sprintf("node %q: retryDelay must not be negative", n.Name),
			}
		}
	}

	for i, c := range w.Connections {
		if !seen[c.SourceNode] {
			return &ValidationError{
				Field:  fmt.Sprintf("connections[%d].sourceNode", i),
				Reason: fmt.Sprintf("unknown node %q", c.SourceNode),
			}
		}
		if !seen[c.TargetNode] {
			return &ValidationError{
				Field:  fmt.Sprintf("connections[%d].targetNode", i),
				Reason: fmt.Sprintf("unknown node %q", c.TargetNode),
			}
		}
	}

	return nil
}
