package nodes

import (
	"strings"
	"testing"
	"time"

	"github.com/lyzr/flow/common/workflow"
)

func testCodeExecutor() *codeExecutor {
	return newCodeExecutor(2*time.Second, 8)
}

// TestCodeTransformsItems verifies the script sees the items global and its
// returned array becomes the output.
func TestCodeTransformsItems(t *testing.T) {
	rc := newFakeRunContext(t)
	node := rc.addNode("Script", TypeCode, map[string]interface{}{
		"code": `
			return items.map(function(item) {
				return { json: { doubled: item.json.n * 2 } };
			});
		`,
	})

	in := []workflow.Item{itemWith(t, "n", float64(2)), itemWith(t, "n", float64(5))}
	result, err := testCodeExecutor().Execute(rc, node, in)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	items := result.Outputs[workflow.PortMain].Items
	if len(items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(items))
	}
	if toFloat(items[0].JSON["doubled"]) != 4 || toFloat(items[1].JSON["doubled"]) != 10 {
		t.Errorf("Expected doubled values [4 10], got %v and %v",
			items[0].JSON["doubled"], items[1].JSON["doubled"])
	}
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	default:
		return -1
	}
}

// TestCodeOutputNormalization covers the wrapping rules for non-array
// returns, bare objects and scalars.
func TestCodeOutputNormalization(t *testing.T) {
	tests := []struct {
		name   string
		code   string
		verify func(t *testing.T, items []workflow.Item)
	}{
		{
			"bare object becomes the payload",
			`return { greeting: "hello" };`,
			func(t *testing.T, items []workflow.Item) {
				if len(items) != 1 || items[0].JSON["greeting"] != "hello" {
					t.Errorf("Expected wrapped object, got %v", items)
				}
			},
		},
		{
			"array of bare objects wraps each",
			`return [{ a: 1 }, { a: 2 }];`,
			func(t *testing.T, items []workflow.Item) {
				if len(items) != 2 {
					t.Fatalf("Expected 2 items, got %d", len(items))
				}
				if toFloat(items[0].JSON["a"]) != 1 || toFloat(items[1].JSON["a"]) != 2 {
					t.Errorf("Expected payloads [1 2], got %v", items)
				}
			},
		},
		{
			"scalar lands under value",
			`return 42;`,
			func(t *testing.T, items []workflow.Item) {
				if len(items) != 1 || toFloat(items[0].JSON["value"]) != 42 {
					t.Errorf("Expected scalar wrapped under value, got %v", items)
				}
			},
		},
		{
			"no return yields no items",
			`var unused = 1;`,
			func(t *testing.T, items []workflow.Item) {
				if len(items) != 0 {
					t.Errorf("Expected no items, got %v", items)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := newFakeRunContext(t)
			node := rc.addNode("Script", TypeCode, map[string]interface{}{"code": tt.code})
			result, err := testCodeExecutor().Execute(rc, node, []workflow.Item{itemWith(t, "n", float64(1))})
			if err != nil {
				t.Fatalf("Execute failed: %v", err)
			}
			tt.verify(t, result.Outputs[workflow.PortMain].Items)
		})
	}
}

// TestCodeSandboxGlobals verifies $json, $node, $execution and the helpers
// are visible inside the script.
func TestCodeSandboxGlobals(t *testing.T) {
	rc := newFakeRunContext(t)
	rc.outputs["Fetch Users"] = []workflow.Item{itemWith(t, "id", float64(7))}
	node := rc.addNode("Script", TypeCode, map[string]interface{}{
		"code": `
			log("processing", items.length);
			return [newItem({
				first: $json.n,
				fetched: $node["Fetch Users"].json.id,
				mode: $execution.mode,
				viaHelper: getItem(0).json.n
			})];
		`,
	})

	result, err := testCodeExecutor().Execute(rc, node, []workflow.Item{itemWith(t, "n", float64(3))})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	payload := result.Outputs[workflow.PortMain].Items[0].JSON
	if toFloat(payload["first"]) != 3 {
		t.Errorf("Expected $json.n == 3, got %v", payload["first"])
	}
	if toFloat(payload["fetched"]) != 7 {
		t.Errorf("Expected $node lookup to yield 7, got %v", payload["fetched"])
	}
	if payload["mode"] != workflow.ModeManual {
		t.Errorf("Expected execution mode, got %v", payload["mode"])
	}
	if toFloat(payload["viaHelper"]) != 3 {
		t.Errorf("Expected getItem helper to work, got %v", payload["viaHelper"])
	}
}

// TestCodeTimeout verifies a runaway script is interrupted at the wall-clock
// limit.
func TestCodeTimeout(t *testing.T) {
	rc := newFakeRunContext(t)
	node := rc.addNode("Spin", TypeCode, map[string]interface{}{
		"code": `while (true) {}`,
	})

	executor := newCodeExecutor(50*time.Millisecond, 8)
	start := time.Now()
	_, err := executor.Execute(rc, node, nil)
	if err == nil {
		t.Fatal("Expected timeout error, got nil")
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("Expected timeout message, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Expected prompt interruption, took %v", elapsed)
	}
}

// TestCodeScriptErrorSurfaces verifies runtime script errors become node
// errors.
func TestCodeScriptErrorSurfaces(t *testing.T) {
	rc := newFakeRunContext(t)
	node := rc.addNode("Broken", TypeCode, map[string]interface{}{
		"code": `throw new Error("deliberate");`,
	})

	if _, err := testCodeExecutor().Execute(rc, node, nil); err == nil {
		t.Fatal("Expected script error to surface, got nil")
	}
}

// TestCodePayloadLimit verifies oversized outputs are rejected.
func TestCodePayloadLimit(t *testing.T) {
	rc := newFakeRunContext(t)
	node := rc.addNode("Big", TypeCode, map[string]interface{}{
		"code": `
			var s = "x";
			for (var i = 0; i < 21; i++) { s = s + s; }
			return [{ json: { blob: s } }];
		`,
	})

	// 2^21 characters is ~2MB; the 1MB limit must reject it.
	executor := newCodeExecutor(5*time.Second, 1)
	_, err := executor.Execute(rc, node, nil)
	if err == nil {
		t.Fatal("Expected payload limit error, got nil")
	}
	if !strings.Contains(err.Error(), "sandbox limit") {
		t.Errorf("Expected sandbox limit message, got %v", err)
	}
}

// TestCodeEmptyScriptPassesThrough verifies a blank code parameter forwards
// the input unchanged.
func TestCodeEmptyScriptPassesThrough(t *testing.T) {
	rc := newFakeRunContext(t)
	node := rc.addNode("Noop", TypeCode, map[string]interface{}{})

	in := []workflow.Item{itemWith(t, "v", "keep")}
	result, err := testCodeExecutor().Execute(rc, node, in)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	items := result.Outputs[workflow.PortMain].Items
	if len(items) != 1 || items[0].JSON["v"] != "keep" {
		t.Errorf("Expected passthrough, got %v", items)
	}
}
