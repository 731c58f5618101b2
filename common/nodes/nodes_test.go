package nodes

import (
	"context"
	"testing"

	"github.com/lyzr/flow/common/expr"
	"github.com/lyzr/flow/common/registry"
	"github.com/lyzr/flow/common/workflow"
)

// fakeRunContext satisfies registry.RunContext for executor tests. Parameter
// resolution goes through a real expression engine so per-item templating is
// exercised the same way the runner does it.
type fakeRunContext struct {
	ctx      context.Context
	runIndex int
	mode     string
	outputs  map[string][]workflow.Item
	internal map[string]interface{}
	pending  map[string]workflow.PortValue
	edges    []workflow.Connection
	nodes    map[string]*workflow.Node
	engine   *expr.Engine
}

func newFakeRunContext(t *testing.T) *fakeRunContext {
	t.Helper()
	engine, err := expr.New()
	if err != nil {
		t.Fatalf("failed to build expression engine: %v", err)
	}
	return &fakeRunContext{
		ctx:      context.Background(),
		mode:     workflow.ModeManual,
		outputs:  map[string][]workflow.Item{},
		internal: map[string]interface{}{},
		pending:  map[string]workflow.PortValue{},
		nodes:    map[string]*workflow.Node{},
		engine:   engine,
	}
}

func (f *fakeRunContext) Context() context.Context { return f.ctx }
func (f *fakeRunContext) ExecutionID() string      { return "exec-test" }
func (f *fakeRunContext) Mode() string             { return f.mode }
func (f *fakeRunContext) RunIndex() int            { return f.runIndex }

func (f *fakeRunContext) NodeOutput(name string) ([]workflow.Item, bool) {
	items, ok := f.outputs[name]
	return items, ok
}

func (f *fakeRunContext) NodeOutputs() map[string][]workflow.Item { return f.outputs }

func (f *fakeRunContext) RawNode(name string) *workflow.Node { return f.nodes[name] }

func (f *fakeRunContext) ResolveForItem(nodeName string, items []workflow.Item, index int) map[string]interface{} {
	node := f.nodes[nodeName]
	if node == nil {
		return map[string]interface{}{}
	}
	scope := expr.NewScope()
	scope.Input = items
	scope.ItemIndex = index
	if index < len(items) {
		scope.JSON = items[index].JSON
	}
	for name, outputs := range f.outputs {
		scope.AddNodeOutput(name, outputs)
	}
	return f.engine.ResolveParameters(node.Parameters, scope)
}

func (f *fakeRunContext) InternalState(node string) interface{} { return f.internal[node] }

func (f *fakeRunContext) SetInternalState(node string, state interface{}) {
	if state == nil {
		delete(f.internal, node)
		return
	}
	f.internal[node] = state
}

func (f *fakeRunContext) PendingBucket(node string, runIndex int) map[string]workflow.PortValue {
	return f.pending
}

func (f *fakeRunContext) ClearPendingBucket(node string, runIndex int) {
	f.pending = map[string]workflow.PortValue{}
}

func (f *fakeRunContext) InputEdges(node string) []workflow.Connection { return f.edges }

func (f *fakeRunContext) Logger() registry.Logger { return nopLogger{} }

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Debug(string, ...interface{}) {}

// addNode registers a raw node definition with the fake so RawNode and
// ResolveForItem can see it.
func (f *fakeRunContext) addNode(name, nodeType string, params map[string]interface{}) *workflow.Node {
	node := &workflow.Node{Name: name, Type: nodeType, Parameters: params}
	f.nodes[name] = node
	return node
}

func itemWith(t *testing.T, pairs ...interface{}) workflow.Item {
	t.Helper()
	if len(pairs)%2 != 0 {
		t.Fatalf("itemWith needs key/value pairs, got %d arguments", len(pairs))
	}
	item := workflow.NewItem()
	for i := 0; i < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			t.Fatalf("itemWith key %v is not a string", pairs[i])
		}
		item.JSON[key] = pairs[i+1]
	}
	return item
}

// TestTriggerReturnsSingleEmptyItemWithoutInput verifies that a trigger with
// no injected payload still seeds the run with one empty item.
func TestTriggerReturnsSingleEmptyItemWithoutInput(t *testing.T) {
	rc := newFakeRunContext(t)
	node := rc.addNode("Start", TypeStart, nil)

	executor := newTrigger(TypeStart)()
	result, err := executor.Execute(rc, node, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	main := result.Outputs[workflow.PortMain]
	if main.IsDead() {
		t.Fatal("Expected live output, got dead marker")
	}
	if len(main.Items) != 1 {
		t.Fatalf("Expected 1 item, got %d", len(main.Items))
	}
	if len(main.Items[0].JSON) != 0 {
		t.Errorf("Expected empty payload, got %v", main.Items[0].JSON)
	}
}

// TestTriggerPassesPayloadThrough verifies injected items survive untouched.
func TestTriggerPassesPayloadThrough(t *testing.T) {
	rc := newFakeRunContext(t)
	node := rc.addNode("Hook", TypeWebhook, nil)
	in := []workflow.Item{itemWith(t, "body", "hello")}

	executor := newTrigger(TypeWebhook)()
	result, err := executor.Execute(rc, node, in)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	main := result.Outputs[workflow.PortMain]
	if len(main.Items) != 1 || main.Items[0].JSON["body"] != "hello" {
		t.Errorf("Expected payload to pass through, got %v", main.Items)
	}
}

// TestEvaluateOperator covers the full comparison table including the
// JavaScript-style coercions.
func TestEvaluateOperator(t *testing.T) {
	tests := []struct {
		name     string
		operator string
		left     interface{}
		right    interface{}
		want     bool
	}{
		{"equals numeric coercion", "equals", "5", float64(5), true},
		{"equals strings", "equals", "abc", "abc", true},
		{"equals mismatch", "equals", "abc", "abd", false},
		{"notEquals", "notEquals", float64(1), float64(2), true},
		{"contains", "contains", "hello world", "lo wo", true},
		{"contains number in string", "contains", "id-42-x", float64(42), true},
		{"notContains", "notContains", "hello", "xyz", true},
		{"startsWith", "startsWith", "workflow", "work", true},
		{"endsWith", "endsWith", "workflow", "flow", true},
		{"gt", "gt", "10", float64(9), true},
		{"gt NaN is false", "gt", "abc", float64(1), false},
		{"gte equal", "gte", float64(3), float64(3), true},
		{"lt", "lt", float64(2), float64(3), true},
		{"lte NaN is false", "lte", float64(1), "abc", false},
		{"isEmpty nil", "isEmpty", nil, nil, true},
		{"isEmpty blank string", "isEmpty", "", nil, true},
		{"isEmpty empty list", "isEmpty", []interface{}{}, nil, true},
		{"isEmpty zero is not empty", "isEmpty", float64(0), nil, false},
		{"isNotEmpty", "isNotEmpty", "x", nil, true},
		{"regex", "regex", "user-123", `^user-\d+$`, true},
		{"regex no match", "regex", "user-abc", `^user-\d+$`, false},
		{"isTrue bool", "isTrue", true, nil, true},
		{"isTrue string literal", "isTrue", "true", nil, true},
		{"isTrue one", "isTrue", float64(1), nil, true},
		{"isTrue rejects other strings", "isTrue", "yes", nil, false},
		{"isFalse bool", "isFalse", false, nil, true},
		{"isFalse zero", "isFalse", float64(0), nil, true},
		{"isFalse string literal", "isFalse", "false", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EvaluateOperator(tt.operator, tt.left, tt.right)
			if err != nil {
				t.Fatalf("EvaluateOperator failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

// TestEvaluateOperatorErrors verifies invalid patterns and unknown operators
// surface as errors instead of silently matching.
func TestEvaluateOperatorErrors(t *testing.T) {
	if _, err := EvaluateOperator("regex", "x", "("); err == nil {
		t.Error("Expected error for invalid regex pattern, got nil")
	}
	if _, err := EvaluateOperator("between", 1, 2); err == nil {
		t.Error("Expected error for unknown operator, got nil")
	}
}

// TestRegisterAllInstallsEveryType verifies the full roster lands in the
// registry with usable descriptors.
func TestRegisterAllInstallsEveryType(t *testing.T) {
	reg := registry.New()
	if err := RegisterAll(reg, Options{}); err != nil {
		t.Fatalf("RegisterAll failed: %v", err)
	}

	expected := []string{
		TypeStart, TypeWebhook, TypeCron, TypeErrorTrigger,
		TypeSet, TypeIf, TypeSwitch, TypeMerge, TypeSplitInBatches,
		TypeWait, TypeHTTPRequest, TypeCode, TypeLLMChat, TypeAIAgent,
	}
	for _, nodeType := range expected {
		if !reg.Has(nodeType) {
			t.Errorf("Expected registry to have %q", nodeType)
		}
		if _, err := reg.Get(nodeType); err != nil {
			t.Errorf("Expected Get(%q) to succeed, got %v", nodeType, err)
		}
	}

	desc, err := reg.Describe(TypeMerge)
	if err != nil {
		t.Fatalf("Describe(merge) failed: %v", err)
	}
	if desc.InputCount != registry.InputsFromConnections {
		t.Errorf("Expected merge input count %d, got %d", registry.InputsFromConnections, desc.InputCount)
	}

	desc, err = reg.Describe(TypeSplitInBatches)
	if err != nil {
		t.Fatalf("Describe(splitInBatches) failed: %v", err)
	}
	if len(desc.Outputs) != 2 || desc.Outputs[0] != workflow.PortLoop || desc.Outputs[1] != workflow.PortDone {
		t.Errorf("Expected loop/done ports, got %v", desc.Outputs)
	}
}
