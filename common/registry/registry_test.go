package registry

import (
	"errors"
	"testing"

	"github.com/lyzr/flow/common/workflow"
)

type fakeExecutor struct {
	nodeType string
}

func (f *fakeExecutor) Type() string { return f.nodeType }

func (f *fakeExecutor) Execute(rc RunContext, node *workflow.Node, items []workflow.Item) (*Result, error) {
	return MainOutput(items), nil
}

func testDescriptor(nodeType string) Descriptor {
	return Descriptor{
		Type:        nodeType,
		DisplayName: nodeType,
		InputCount:  1,
		Outputs:     []string{workflow.PortMain},
	}
}

// TestRegistry_RegisterAndGet verifies factories produce fresh executors
func TestRegistry_RegisterAndGet(t *testing.T) {
	r := New()
	if err := r.Register(testDescriptor("set"), func() Executor { return &fakeExecutor{nodeType: "set"} }); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	first, err := r.Get("set")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	second, _ := r.Get("set")
	if first == second {
		t.Errorf("Expected fresh executor per Get")
	}
	if first.Type() != "set" {
		t.Errorf("Expected type set, got %q", first.Type())
	}
}

// TestRegistry_UnknownType verifies the sentinel wrapping
func TestRegistry_UnknownType(t *testing.T) {
	r := New()

	_, err := r.Get("ghost")
	if err == nil {
		t.Fatalf("Expected error for unknown type")
	}
	if !errors.Is(err, ErrUnknownNodeType) {
		t.Errorf("Expected ErrUnknownNodeType, got %v", err)
	}

	if _, err := r.Describe("ghost"); !errors.Is(err, ErrUnknownNodeType) {
		t.Errorf("Describe: expected ErrUnknownNodeType, got %v", err)
	}
}

// TestRegistry_DuplicateRejected verifies double registration fails
func TestRegistry_DuplicateRejected(t *testing.T) {
	r := New()
	factory := func() Executor { return &fakeExecutor{nodeType: "set"} }

	if err := r.Register(testDescriptor("set"), factory); err != nil {
		t.Fatalf("First registration failed: %v", err)
	}
	if err := r.Register(testDescriptor("set"), factory); err == nil {
		t.Errorf("Expected duplicate registration to fail")
	}
}

// TestRegistry_ListOrder verifies registration order is preserved
func TestRegistry_ListOrder(t *testing.T) {
	r := New()
	for _, name := range []string{"start", "set", "if"} {
		nodeType := name
		r.MustRegister(testDescriptor(nodeType), func() Executor { return &fakeExecutor{nodeType: nodeType} })
	}

	list := r.List()
	want := []string{"start", "set", "if"}
	if len(list) != len(want) {
		t.Fatalf("Expected %d types, got %d", len(want), len(list))
	}
	for i := range want {
		if list[i] != want[i] {
			t.Errorf("List[%d] = %q, want %q", i, list[i], want[i])
		}
	}

	descs := r.Descriptors()
	if len(descs) != 3 || descs[1].Type != "set" {
		t.Errorf("Descriptors out of order: %v", descs)
	}
}

// TestRegistry_InputCountFor resolves fixed and dynamic arity
func TestRegistry_InputCountFor(t *testing.T) {
	r := New()
	r.MustRegister(testDescriptor("set"), func() Executor { return &fakeExecutor{nodeType: "set"} })

	mergeDesc := testDescriptor("merge")
	mergeDesc.InputCount = InputsFromConnections
	r.MustRegister(mergeDesc, func() Executor { return &fakeExecutor{nodeType: "merge"} })

	wf := &workflow.Workflow{
		Nodes: []workflow.Node{
			{Name: "A", Type: "set"},
			{Name: "B", Type: "set"},
			{Name: "M", Type: "merge"},
		},
		Connections: []workflow.Connection{
			{SourceNode: "A", TargetNode: "M"},
			{SourceNode: "B", TargetNode: "M"},
		},
	}

	if got := r.InputCountFor(wf, "set", "A"); got != 1 {
		t.Errorf("Fixed arity: expected 1, got %d", got)
	}
	if got := r.InputCountFor(wf, "merge", "M"); got != 2 {
		t.Errorf("Dynamic arity: expected 2, got %d", got)
	}
}
