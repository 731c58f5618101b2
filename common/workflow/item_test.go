package workflow

import (
	"testing"
)

// TestPortValue_DeadVsEmpty verifies the dead marker is distinct from an
// empty item sequence
func TestPortValue_DeadVsEmpty(t *testing.T) {
	dead := NoOutput()
	empty := Output([]Item{})

	if !dead.IsDead() {
		t.Errorf("NoOutput should report dead")
	}
	if dead.IsEmpty() {
		t.Errorf("Dead port must not report empty")
	}
	if empty.IsDead() {
		t.Errorf("Empty output must not report dead")
	}
	if !empty.IsEmpty() {
		t.Errorf("Empty output should report empty")
	}

	live := Output([]Item{NewItem()})
	if live.IsDead() || live.IsEmpty() {
		t.Errorf("Live output with items should be neither dead nor empty")
	}
}

// TestCloneItems_Isolation verifies downstream mutation cannot reach the
// original items
func TestCloneItems_Isolation(t *testing.T) {
	orig := []Item{
		ItemOf(map[string]interface{}{
			"user": map[string]interface{}{"name": "ada"},
			"tags": []interface{}{"a", "b"},
		}),
	}

	cloned := CloneItems(orig)
	cloned[0].JSON["user"].(map[string]interface{})["name"] = "mutated"
	cloned[0].JSON["tags"].([]interface{})[0] = "mutated"

	if orig[0].JSON["user"].(map[string]interface{})["name"] != "ada" {
		t.Errorf("Nested map mutation leaked into the original item")
	}
	if orig[0].JSON["tags"].([]interface{})[0] != "a" {
		t.Errorf("Nested slice mutation leaked into the original item")
	}
}

// TestItemOf_NilPayload verifies a nil payload becomes an empty object
func TestItemOf_NilPayload(t *testing.T) {
	item := ItemOf(nil)
	if item.JSON == nil {
		t.Fatalf("Expected non-nil JSON payload")
	}
	if len(item.JSON) != 0 {
		t.Errorf("Expected empty payload, got %v", item.JSON)
	}
}
