package expr

import (
	"testing"

	"github.com/lyzr/flow/common/workflow"
)

func benchScope() *Scope {
	s := NewScope()
	s.JSON = map[string]interface{}{
		"user":   map[string]interface{}{"name": "ada", "visits": float64(41)},
		"active": true,
	}
	s.Input = []workflow.Item{{JSON: s.JSON}}
	s.Execution = map[string]interface{}{"id": "bench", "mode": "manual"}
	s.AddNodeOutput("Fetch Users", []workflow.Item{{JSON: map[string]interface{}{"count": float64(3)}}})
	return s
}

// BenchmarkResolveCached measures steady-state resolution where the
// compiled program is already cached.
func BenchmarkResolveCached(b *testing.B) {
	engine, err := New()
	if err != nil {
		b.Fatalf("New() failed: %v", err)
	}
	scope := benchScope()
	value := "{{ $json.user.visits + $node[\"Fetch Users\"].json.count }}"

	// Warm the cache so compilation stays out of the measured loop.
	engine.Resolve(value, scope)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		engine.Resolve(value, scope)
	}
	b.ReportMetric(float64(b.N)/b.Elapsed().Seconds(), "ops/sec")
}

// BenchmarkResolveCold measures compile + evaluate with an empty program
// cache on every iteration.
func BenchmarkResolveCold(b *testing.B) {
	engine, err := New()
	if err != nil {
		b.Fatalf("New() failed: %v", err)
	}
	scope := benchScope()
	value := "{{ $json.user.name.toUpperCase() }}"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		engine.ClearCache()
		engine.Resolve(value, scope)
	}
}

// BenchmarkResolveInterpolation measures a string with several embedded
// expressions, the common Set-node shape.
func BenchmarkResolveInterpolation(b *testing.B) {
	engine, err := New()
	if err != nil {
		b.Fatalf("New() failed: %v", err)
	}
	scope := benchScope()
	value := "Hello {{ $json.user.name }}, visit #{{ $json.user.visits + 1 }} at {{ now() }}"

	engine.Resolve(value, scope)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		engine.Resolve(value, scope)
	}
}

// BenchmarkResolveParameters measures a realistic node parameter map with a
// mix of static values and expressions.
func BenchmarkResolveParameters(b *testing.B) {
	engine, err := New()
	if err != nil {
		b.Fatalf("New() failed: %v", err)
	}
	scope := benchScope()
	params := map[string]interface{}{
		"url":    "https://api.example.com/users/{{ $json.user.name }}",
		"method": "POST",
		"body": map[string]interface{}{
			"visits": "{{ $json.user.visits }}",
			"active": "{{ $json.active }}",
			"tags":   []interface{}{"a", "{{ $json.user.name }}"},
		},
	}

	engine.ResolveParameters(params, scope)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		engine.ResolveParameters(params, scope)
	}
}
