package expr

import (
	"testing"
)

// TestSanitizeName maps arbitrary node names onto flat variable keys
func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Fetch Users", "Fetch_Users"},
		{"HTTP-Request", "HTTP_Request"},
		{"plain", "plain"},
		{"a.b/c", "a_b_c"},
		{"émile", "_mile"},
	}

	for _, tt := range tests {
		if got := SanitizeName(tt.in); got != tt.want {
			t.Errorf("SanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// TestRewrite translates template variables into CEL identifiers
func TestRewrite(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"json", `$json.name`, `json.name`},
		{"input", `$input[0]`, `input[0]`},
		{"node bracket double quote", `$node["Fetch Users"].json`, `node["Fetch_Users"].json`},
		{"node bracket single quote", `$node['A-B'].data`, `node["A_B"].data`},
		{"node dot", `$node.Start.json`, `node.Start.json`},
		{"env", `$env.HOME`, `env.HOME`},
		{"execution", `$execution.id`, `execution.id`},
		{"itemIndex", `$itemIndex + 1`, `itemIndex + 1`},
		{"math call", `Math.floor($json.v)`, `math_floor(json.v)`},
		{"longer identifiers not clipped", `$jsonify`, `$jsonify`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rewrite(tt.in); got != tt.want {
				t.Errorf("rewrite(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// TestScanExpressions verifies span detection with depth and quotes
func TestScanExpressions(t *testing.T) {
	spans := scanExpressions(`a {{ x }} b {{ y }} c`)
	if len(spans) != 2 {
		t.Fatalf("Expected 2 spans, got %d", len(spans))
	}
	if spans[0].body != " x " || spans[1].body != " y " {
		t.Errorf("Unexpected bodies: %q, %q", spans[0].body, spans[1].body)
	}

	spans = scanExpressions(`{{ {"a": {"b": 1}} }}`)
	if len(spans) != 1 {
		t.Fatalf("Expected 1 span for nested literal, got %d", len(spans))
	}

	spans = scanExpressions(`no expressions here`)
	if len(spans) != 0 {
		t.Errorf("Expected no spans, got %d", len(spans))
	}

	// Unterminated expression is left as literal text
	spans = scanExpressions(`{{ never closed`)
	if len(spans) != 0 {
		t.Errorf("Expected no spans for unterminated expression, got %d", len(spans))
	}
}
