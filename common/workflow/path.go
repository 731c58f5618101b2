package workflow

import (
	"encoding/json"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Dot-path helpers over JSON object trees. All field reads and writes in node
// executors go through these so nested-key semantics stay in one place.
// Paths use dot notation ("user.address.city").

// GetPath reads the value at a dot path. The second return is false when the
// path does not resolve.
func GetPath(obj map[string]interface{}, path string) (interface{}, bool) {
	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, false
	}
	res := gjson.GetBytes(raw, path)
	if !res.Exists() {
		return nil, false
	}
	return res.Value(), true
}

// SetPath writes value at a dot path, creating intermediate objects as
// needed, and returns the updated tree. The input tree is not mutated.
func SetPath(obj map[string]interface{}, path string, value interface{}) map[string]interface{} {
	raw, err := json.Marshal(obj)
	if err != nil {
		return obj
	}
	updated, err := sjson.SetBytes(raw, path, value)
	if err != nil {
		return obj
	}
	return unmarshalObject(updated, obj)
}

// DeletePath removes the value at a dot path and returns the updated tree.
// Missing paths are a no-op.
func DeletePath(obj map[string]interface{}, path string) map[string]interface{} {
	raw, err := json.Marshal(obj)
	if err != nil {
		return obj
	}
	updated, err := sjson.DeleteBytes(raw, path)
	if err != nil {
		return obj
	}
	return unmarshalObject(updated, obj)
}

// MovePath relocates the value at from to to. A missing source is a no-op.
func MovePath(obj map[string]interface{}, from, to string) map[string]interface{} {
	value, ok := GetPath(obj, from)
	if !ok {
		return obj
	}
	obj = DeletePath(obj, from)
	return SetPath(obj, to, value)
}

func unmarshalObject(raw []byte, fallback map[string]interface{}) map[string]interface{} {
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fallback
	}
	return out
}
