package expr

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
)

// Engine resolves {{ … }} templates against a run scope. Expression bodies
// compile to CEL programs exactly once; the compiled program cache is shared
// across runs and guarded for concurrent use.
//
// Safety contract: expressions can only touch the declared scope variables
// and the helper whitelist. There is no host-code evaluation surface.
type Engine struct {
	env   *cel.Env
	cache map[string]cel.Program
	mu    sync.RWMutex
}

// New creates the expression engine with the full helper environment
func New() (*Engine, error) {
	opts := []cel.EnvOption{
		cel.Variable("json", cel.DynType),
		cel.Variable("input", cel.DynType),
		cel.Variable("node", cel.DynType),
		cel.Variable("env", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("execution", cel.DynType),
		cel.Variable("itemIndex", cel.IntType),
		cel.CrossTypeNumericComparisons(true),
	}
	opts = append(opts, helperFunctions()...)

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("create expression environment: %w", err)
	}

	return &Engine{
		env:   env,
		cache: make(map[string]cel.Program),
	}, nil
}

// Resolve walks a value recursively and resolves every template found in
// string leaves. Maps and slices are rebuilt; other values pass through.
// Resolution never returns an error: failures are embedded as
// "[Expression Error: …]" literals.
func (e *Engine) Resolve(value interface{}, scope *Scope) interface{} {
	switch v := value.(type) {
	case string:
		return e.resolveString(v, scope)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, val := range v {
			out[key] = e.Resolve(val, scope)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, val := range v {
			out[i] = e.Resolve(val, scope)
		}
		return out
	default:
		return value
	}
}

// ResolveParameters resolves a node's parameter map
func (e *Engine) ResolveParameters(params map[string]interface{}, scope *Scope) map[string]interface{} {
	if params == nil {
		return map[string]interface{}{}
	}
	resolved, ok := e.Resolve(params, scope).(map[string]interface{})
	if !ok {
		return params
	}
	return resolved
}

// resolveString applies the single-expression rule: a string that is exactly
// one {{ … }} returns the evaluated value with its native type, anything
// else interpolates into a string.
func (e *Engine) resolveString(s string, scope *Scope) interface{} {
	spans := scanExpressions(s)
	if len(spans) == 0 {
		return s
	}

	if len(spans) == 1 {
		span := spans[0]
		if strings.TrimSpace(s[:span.start]) == "" && strings.TrimSpace(s[span.end:]) == "" {
			value, err := e.evaluate(span.body, scope)
			if err != nil {
				return errorMarker(err)
			}
			return value
		}
	}

	var b strings.Builder
	last := 0
	for _, span := range spans {
		b.WriteString(s[last:span.start])
		value, err := e.evaluate(span.body, scope)
		if err != nil {
			b.WriteString(errorMarker(err))
		} else {
			b.WriteString(jsString(value))
		}
		last = span.end
	}
	b.WriteString(s[last:])
	return b.String()
}

// evaluate compiles (or fetches) and runs one expression body
func (e *Engine) evaluate(body string, scope *Scope) (interface{}, error) {
	src := rewrite(body)
	if src == "" {
		return nil, nil
	}

	program, err := e.getOrCompileProgram(src)
	if err != nil {
		return nil, err
	}

	out, _, err := program.Eval(scope.activation())
	if err != nil {
		// Missing keys behave like JS undefined, not like failures
		if isUndefinedAccess(err) {
			return nil, nil
		}
		return nil, err
	}
	return nativeOf(out), nil
}

// getOrCompileProgram returns a cached program or compiles and caches one
func (e *Engine) getOrCompileProgram(src string) (cel.Program, error) {
	e.mu.RLock()
	if program, exists := e.cache[src]; exists {
		e.mu.RUnlock()
		return program, nil
	}
	e.mu.RUnlock()

	ast, issues := e.env.Compile(src)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%s", firstLine(issues.Err().Error()))
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program creation failed: %w", err)
	}

	e.mu.Lock()
	e.cache[src] = program
	e.mu.Unlock()

	return program, nil
}

// ClearCache removes all cached programs
func (e *Engine) ClearCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache = make(map[string]cel.Program)
}

// CacheSize returns the number of cached programs
func (e *Engine) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}

// exprSpan marks one {{ … }} occurrence inside a string
type exprSpan struct {
	start int // index of the opening "{{"
	end   int // index just past the closing "}}"
	body  string
}

// scanExpressions finds every template expression with brace-depth matching,
// so object literals inside an expression do not terminate it early. Quoted
// sections are skipped to keep braces inside string literals inert.
func scanExpressions(s string) []exprSpan {
	var spans []exprSpan
	i := 0
	for i < len(s)-1 {
		if s[i] == '{' && s[i+1] == '{' {
			if span, ok := scanOne(s, i); ok {
				spans = append(spans, span)
				i = span.end
				continue
			}
		}
		i++
	}
	return spans
}

func scanOne(s string, open int) (exprSpan, bool) {
	depth := 0
	quote := byte(0)
	for i := open + 2; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == '\\' {
				i++
				continue
			}
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
			} else if i+1 < len(s) && s[i+1] == '}' {
				return exprSpan{start: open, end: i + 2, body: s[open+2 : i]}, true
			}
		}
	}
	return exprSpan{}, false
}

func isUndefinedAccess(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "no such key") ||
		strings.Contains(msg, "no such attribute") ||
		strings.Contains(msg, "index out of range") ||
		strings.Contains(msg, "index out of bounds")
}

func errorMarker(err error) string {
	return fmt.Sprintf("[Expression Error: %s]", firstLine(err.Error()))
}

func firstLine(msg string) string {
	if i := strings.IndexByte(msg, '\n'); i > 0 {
		return msg[:i]
	}
	return msg
}

// Coercion helpers shared with the condition operator table

// Stringify renders a value the way template interpolation does
func Stringify(v interface{}) string { return jsString(v) }

// ToNumber applies Number() coercion; unparseable values become NaN
func ToNumber(v interface{}) float64 { return jsNumber(v) }

// Truthy applies Boolean() coercion
func Truthy(v interface{}) bool { return jsTruthy(v) }
