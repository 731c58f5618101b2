package nodes

import (
	"testing"

	"github.com/lyzr/flow/common/workflow"
)

// TestSetAssignsNestedPaths verifies manual-mode assignments create nested
// objects and can reference the current item through $json.
func TestSetAssignsNestedPaths(t *testing.T) {
	rc := newFakeRunContext(t)
	node := rc.addNode("Shape", TypeSet, map[string]interface{}{
		"values": []interface{}{
			map[string]interface{}{"name": "user.city", "value": "Berlin"},
			map[string]interface{}{"name": "greeting", "value": "hi {{ $json.name }}"},
		},
	})

	in := []workflow.Item{itemWith(t, "name", "ada"), itemWith(t, "name", "grace")}
	result, err := (&setExecutor{}).Execute(rc, node, in)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	items := result.Outputs[workflow.PortMain].Items
	if len(items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(items))
	}

	city, ok := workflow.GetPath(items[0].JSON, "user.city")
	if !ok || city != "Berlin" {
		t.Errorf("Expected user.city Berlin, got %v", city)
	}
	if items[0].JSON["greeting"] != "hi ada" {
		t.Errorf("Expected per-item greeting 'hi ada', got %v", items[0].JSON["greeting"])
	}
	if items[1].JSON["greeting"] != "hi grace" {
		t.Errorf("Expected per-item greeting 'hi grace', got %v", items[1].JSON["greeting"])
	}

	// Input items must not be mutated by the executor.
	if _, exists := in[0].JSON["greeting"]; exists {
		t.Error("Expected input item to remain untouched")
	}
}

// TestSetKeepOnlySet verifies keepOnlySet starts each item from an empty
// payload.
func TestSetKeepOnlySet(t *testing.T) {
	rc := newFakeRunContext(t)
	node := rc.addNode("Strip", TypeSet, map[string]interface{}{
		"keepOnlySet": true,
		"values": []interface{}{
			map[string]interface{}{"name": "kept", "value": "{{ $json.secret }}"},
		},
	})

	result, err := (&setExecutor{}).Execute(rc, node, []workflow.Item{itemWith(t, "secret", "s3", "noise", "x")})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	payload := result.Outputs[workflow.PortMain].Items[0].JSON
	if len(payload) != 1 || payload["kept"] != "s3" {
		t.Errorf("Expected only the kept field, got %v", payload)
	}
}

// TestSetJSONMerge verifies JSON mode shallow-merges a literal object before
// the targeted assignments run.
func TestSetJSONMerge(t *testing.T) {
	rc := newFakeRunContext(t)
	node := rc.addNode("Merge Fields", TypeSet, map[string]interface{}{
		"json": map[string]interface{}{"a": float64(1), "b": float64(2)},
		"values": []interface{}{
			map[string]interface{}{"name": "b", "value": float64(3)},
		},
	})

	result, err := (&setExecutor{}).Execute(rc, node, []workflow.Item{itemWith(t, "c", float64(4))})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	payload := result.Outputs[workflow.PortMain].Items[0].JSON
	if payload["a"] != float64(1) {
		t.Errorf("Expected merged a=1, got %v", payload["a"])
	}
	if payload["b"] != float64(3) {
		t.Errorf("Expected assignment to win over merge, got %v", payload["b"])
	}
	if payload["c"] != float64(4) {
		t.Errorf("Expected original field preserved, got %v", payload["c"])
	}
}

// TestSetDeleteAndRename verifies dot-path deletion and renames, including
// the no-op on a missing rename source.
func TestSetDeleteAndRename(t *testing.T) {
	rc := newFakeRunContext(t)
	node := rc.addNode("Tidy", TypeSet, map[string]interface{}{
		"delete": []interface{}{"tmp"},
		"rename": []interface{}{
			map[string]interface{}{"from": "old", "to": "nested.new"},
			map[string]interface{}{"from": "missing", "to": "anywhere"},
		},
	})

	result, err := (&setExecutor{}).Execute(rc, node, []workflow.Item{itemWith(t, "tmp", "x", "old", "v")})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	payload := result.Outputs[workflow.PortMain].Items[0].JSON
	if _, exists := payload["tmp"]; exists {
		t.Error("Expected tmp to be deleted")
	}
	if _, exists := payload["old"]; exists {
		t.Error("Expected old to be moved away")
	}
	moved, ok := workflow.GetPath(payload, "nested.new")
	if !ok || moved != "v" {
		t.Errorf("Expected nested.new to hold v, got %v", moved)
	}
	if _, exists := payload["anywhere"]; exists {
		t.Error("Expected missing rename source to be a no-op")
	}
}
