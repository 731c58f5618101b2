package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/lyzr/flow/common/workflow"
)

// InputsFromConnections marks dynamic input arity: the runner counts the
// unique edges terminating on the node instead of using a fixed number.
const InputsFromConnections = -1

// ErrUnknownNodeType is wrapped by Get when a type was never registered
var ErrUnknownNodeType = errors.New("unknown node type")

// Logger interface for logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// RunContext is the window an executor gets into the running execution.
// Executors may read recorded outputs, mutate their own internal state, and
// inspect their multi-input buffer. They must not touch other nodes' state.
type RunContext interface {
	Context() context.Context
	ExecutionID() string
	Mode() string

	// RunIndex of the currently executing job (loop iteration namespace)
	RunIndex() int

	// NodeOutput returns another node's recorded last main output
	NodeOutput(name string) ([]workflow.Item, bool)
	// NodeOutputs returns every recorded last main output, keyed by node name
	NodeOutputs() map[string][]workflow.Item

	// RawNode returns the workflow definition of a node with UNRESOLVED
	// parameters. The script sandbox needs the raw source and per-item
	// executors re-resolve from it.
	RawNode(name string) *workflow.Node
	// ResolveForItem re-resolves a node's raw parameters with $json and
	// $itemIndex bound to items[index]
	ResolveForItem(nodeName string, items []workflow.Item, index int) map[string]interface{}

	// InternalState reads the opaque per-node state slot
	InternalState(node string) interface{}
	// SetInternalState writes the opaque per-node state slot
	SetInternalState(node string, state interface{})

	// PendingBucket exposes the multi-input join buffer for (node, runIndex),
	// keyed by "<sourceNode>:<sourceOutput>"
	PendingBucket(node string, runIndex int) map[string]workflow.PortValue
	// ClearPendingBucket empties the join buffer after a fan-in fires
	ClearPendingBucket(node string, runIndex int)

	// InputEdges lists the connections into node in declaration order
	InputEdges(node string) []workflow.Connection

	Logger() Logger
}

// Result maps output port name → produced value. Ports missing from the map
// are treated as empty sequences.
type Result struct {
	Outputs map[string]workflow.PortValue
}

// MainOutput is the common single-port result
func MainOutput(items []workflow.Item) *Result {
	return &Result{Outputs: map[string]workflow.PortValue{
		workflow.PortMain: workflow.Output(items),
	}}
}

// Executor is the uniform execute contract. Parameters on the node passed to
// Execute have expressions already resolved.
type Executor interface {
	Type() string
	Execute(rc RunContext, node *workflow.Node, items []workflow.Item) (*Result, error)
}

// Factory produces a fresh executor instance
type Factory func() Executor

// Descriptor is the registry metadata for one node type. The runner consumes
// only InputCount and the port names; the rest serves the editor and
// validation surface.
type Descriptor struct {
	Type        string                 `json:"type"`
	DisplayName string                 `json:"displayName"`
	Description string                 `json:"description,omitempty"`
	InputCount  int                    `json:"inputCount"`
	Outputs     []string               `json:"outputs"`
	Defaults    map[string]interface{} `json:"defaults,omitempty"`
}

// Registry maps node type → descriptor + executor factory. Registration
// happens at startup; afterwards the registry is read-only and safe for
// concurrent use.
type Registry struct {
	descriptors map[string]Descriptor
	factories   map[string]Factory
	order       []string
}

// New creates an empty registry
func New() *Registry {
	return &Registry{
		descriptors: make(map[string]Descriptor),
		factories:   make(map[string]Factory),
	}
}

// Register adds a node type. Duplicate registration is a programming error.
func (r *Registry) Register(desc Descriptor, factory Factory) error {
	if desc.Type == "" {
		return fmt.Errorf("descriptor has no type")
	}
	if factory == nil {
		return fmt.Errorf("node type %q: factory is nil", desc.Type)
	}
	if _, exists := r.descriptors[desc.Type]; exists {
		return fmt.Errorf("node type %q already registered", desc.Type)
	}
	r.descriptors[desc.Type] = desc
	r.factories[desc.Type] = factory
	r.order = append(r.order, desc.Type)
	return nil
}

// MustRegister panics on registration failure; used for the builtin set
func (r *Registry) MustRegister(desc Descriptor, factory Factory) {
	if err := r.Register(desc, factory); err != nil {
		panic(err)
	}
}

// Get returns a fresh executor for the type
func (r *Registry) Get(nodeType string) (Executor, error) {
	factory, exists := r.factories[nodeType]
	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrUnknownNodeType, nodeType)
	}
	return factory(), nil
}

// Has reports whether the type is registered
func (r *Registry) Has(nodeType string) bool {
	_, exists := r.descriptors[nodeType]
	return exists
}

// List returns registered type names in registration order
func (r *Registry) List() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Describe returns the descriptor for one type
func (r *Registry) Describe(nodeType string) (Descriptor, error) {
	desc, exists := r.descriptors[nodeType]
	if !exists {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownNodeType, nodeType)
	}
	return desc, nil
}

// Descriptors returns all descriptors in registration order
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, t := range r.order {
		out = append(out, r.descriptors[t])
	}
	return out
}

// InputCountFor resolves the effective input arity for a node in a workflow:
// fixed counts come from the descriptor, dynamic arity counts unique edges.
func (r *Registry) InputCountFor(wf *workflow.Workflow, nodeType, nodeName string) int {
	desc, exists := r.descriptors[nodeType]
	if !exists {
		return 1
	}
	if desc.InputCount == InputsFromConnections {
		return wf.UniqueInputEdges(nodeName)
	}
	return desc.InputCount
}
