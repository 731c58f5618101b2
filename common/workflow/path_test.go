package workflow

import (
	"testing"
)

// TestSetPath_CreatesIntermediateObjects verifies dot-path writes create
// missing parents
func TestSetPath_CreatesIntermediateObjects(t *testing.T) {
	obj := map[string]interface{}{}

	obj = SetPath(obj, "user.address.city", "Berlin")

	got, ok := GetPath(obj, "user.address.city")
	if !ok {
		t.Fatalf("Expected path to resolve after SetPath")
	}
	if got != "Berlin" {
		t.Errorf("Expected \"Berlin\", got %v", got)
	}
}

// TestSetPath_ReplacesExisting verifies create-or-replace semantics
func TestSetPath_ReplacesExisting(t *testing.T) {
	obj := map[string]interface{}{"count": float64(1)}

	obj = SetPath(obj, "count", 2)

	got, _ := GetPath(obj, "count")
	if got != float64(2) {
		t.Errorf("Expected 2, got %v", got)
	}
}

// TestGetPath_Missing verifies missing paths report absence
func TestGetPath_Missing(t *testing.T) {
	obj := map[string]interface{}{"a": "x"}

	if _, ok := GetPath(obj, "a.b.c"); ok {
		t.Errorf("Expected missing path to report !ok")
	}
}

// TestDeletePath removes nested values and ignores missing ones
func TestDeletePath(t *testing.T) {
	obj := map[string]interface{}{
		"keep": "yes",
		"drop": map[string]interface{}{"inner": "gone"},
	}

	obj = DeletePath(obj, "drop.inner")
	if _, ok := GetPath(obj, "drop.inner"); ok {
		t.Errorf("Expected drop.inner to be deleted")
	}
	if v, _ := GetPath(obj, "keep"); v != "yes" {
		t.Errorf("Unrelated key was disturbed: %v", v)
	}

	// Missing path is a no-op
	obj = DeletePath(obj, "never.there")
	if v, _ := GetPath(obj, "keep"); v != "yes" {
		t.Errorf("Delete of missing path disturbed the tree: %v", v)
	}
}

// TestMovePath relocates a value and no-ops on a missing source
func TestMovePath(t *testing.T) {
	obj := map[string]interface{}{
		"old": map[string]interface{}{"name": "ada"},
	}

	obj = MovePath(obj, "old.name", "new.name")

	if _, ok := GetPath(obj, "old.name"); ok {
		t.Errorf("Expected source to be removed after move")
	}
	got, ok := GetPath(obj, "new.name")
	if !ok || got != "ada" {
		t.Errorf("Expected moved value \"ada\", got %v (ok=%v)", got, ok)
	}

	before := len(obj)
	obj = MovePath(obj, "absent.path", "anywhere")
	if len(obj) != before {
		t.Errorf("Move of missing source must be a no-op")
	}
}
