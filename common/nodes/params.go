package nodes

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Parameter maps arrive from JSON workflow definitions, so numbers are
// float64 and nested structures are map[string]interface{} / []interface{}.
// These readers coerce leniently instead of failing on representation.

func stringParam(params map[string]interface{}, key, fallback string) string {
	v, ok := params[key]
	if !ok || v == nil {
		return fallback
	}
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case bool:
		return strconv.FormatBool(s)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fallback
		}
		return string(b)
	}
}

func intParam(params map[string]interface{}, key string, fallback int) int {
	v, ok := params[key]
	if !ok || v == nil {
		return fallback
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return fallback
		}
		return parsed
	case bool:
		if n {
			return 1
		}
		return 0
	default:
		return fallback
	}
}

func floatParam(params map[string]interface{}, key string, fallback float64) float64 {
	v, ok := params[key]
	if !ok || v == nil {
		return fallback
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return fallback
		}
		return parsed
	default:
		return fallback
	}
}

func boolParam(params map[string]interface{}, key string, fallback bool) bool {
	v, ok := params[key]
	if !ok || v == nil {
		return fallback
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no", "":
			return false
		}
		return fallback
	case float64:
		return b != 0
	case int:
		return b != 0
	default:
		return fallback
	}
}

func sliceParam(params map[string]interface{}, key string) []interface{} {
	v, ok := params[key]
	if !ok || v == nil {
		return nil
	}
	if s, ok := v.([]interface{}); ok {
		return s
	}
	return nil
}

func mapParam(params map[string]interface{}, key string) map[string]interface{} {
	v, ok := params[key]
	if !ok || v == nil {
		return nil
	}
	if m, ok := v.(map[string]interface{}); ok {
		return m
	}
	return nil
}

// stringSliceParam reads a parameter that may be a JSON array of strings
// or a single comma-separated string.
func stringSliceParam(params map[string]interface{}, key string) []string {
	v, ok := params[key]
	if !ok || v == nil {
		return nil
	}
	switch s := v.(type) {
	case []interface{}:
		out := make([]string, 0, len(s))
		for _, el := range s {
			if str, ok := el.(string); ok && str != "" {
				out = append(out, str)
			}
		}
		return out
	case string:
		if s == "" {
			return nil
		}
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out
	default:
		return nil
	}
}
