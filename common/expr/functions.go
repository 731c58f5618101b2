package expr

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/operators"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
)

var (
	adapter = types.DefaultTypeAdapter
	anyType = reflect.TypeOf((*interface{})(nil)).Elem()

	leadingIntPattern   = regexp.MustCompile(`^[+-]?\d+`)
	leadingFloatPattern = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)
)

// helperFunctions declares the expression helper whitelist. Everything an
// expression can call is listed here; there is no other host surface.
func helperFunctions() []cel.EnvOption {
	opts := []cel.EnvOption{
		// JS-style conversions
		unary("String", func(v interface{}) interface{} { return jsString(v) }),
		unary("Number", func(v interface{}) interface{} { return jsNumber(v) }),
		unary("Boolean", func(v interface{}) interface{} { return jsTruthy(v) }),
		unary("parseInt", fnParseInt),
		unary("parseFloat", fnParseFloat),
		unary("isNaN", func(v interface{}) interface{} {
			n := jsNumber(v)
			return math.IsNaN(n)
		}),
		unary("isFinite", func(v interface{}) interface{} {
			n := jsNumber(v)
			return !math.IsNaN(n) && !math.IsInf(n, 0)
		}),

		// JSON helpers
		unary("JSON_stringify", func(v interface{}) interface{} {
			raw, err := json.Marshal(v)
			if err != nil {
				return ""
			}
			return string(raw)
		}),
		cel.Function("JSON_parse",
			cel.Overload("JSON_parse_string", []*cel.Type{cel.StringType}, cel.DynType,
				cel.UnaryBinding(func(v ref.Val) ref.Val {
					var out interface{}
					if err := json.Unmarshal([]byte(string(v.(types.String))), &out); err != nil {
						return types.NewErr("JSON_parse: %v", err)
					}
					return adapter.NativeToValue(out)
				}))),

		// Type inspection
		unary("typeof", fnTypeof),
		unary("isArray", func(v interface{}) interface{} {
			_, ok := v.([]interface{})
			return ok
		}),
		unary("isEmpty", fnIsEmpty),
		unary("length", fnLength),

		// Dates
		cel.Function("now",
			cel.Overload("now_void", []*cel.Type{}, cel.StringType,
				cel.FunctionBinding(func(args ...ref.Val) ref.Val {
					return types.String(time.Now().Format(time.RFC3339))
				}))),
		cel.Function("Date_now",
			cel.Overload("Date_now_void", []*cel.Type{}, cel.IntType,
				cel.FunctionBinding(func(args ...ref.Val) ref.Val {
					return types.Int(time.Now().UnixMilli())
				}))),
	}

	opts = append(opts, stringMemberFunctions()...)
	opts = append(opts, listMemberFunctions()...)
	opts = append(opts, mathFunctions()...)
	opts = append(opts, mixedArithmetic()...)
	return opts
}

// unary declares a one-argument dyn→dyn helper operating on native values
func unary(name string, fn func(interface{}) interface{}) cel.EnvOption {
	return cel.Function(name,
		cel.Overload(name+"_dyn", []*cel.Type{cel.DynType}, cel.DynType,
			cel.UnaryBinding(func(v ref.Val) ref.Val {
				return adapter.NativeToValue(fn(nativeOf(v)))
			})))
}

func stringMemberFunctions() []cel.EnvOption {
	return []cel.EnvOption{
		stringMember("toUpperCase", strings.ToUpper),
		stringMember("toLowerCase", strings.ToLower),
		stringMember("trim", strings.TrimSpace),

		cel.Function("split",
			cel.MemberOverload("string_split", []*cel.Type{cel.StringType, cel.StringType}, cel.ListType(cel.StringType),
				cel.BinaryBinding(func(s, sep ref.Val) ref.Val {
					return adapter.NativeToValue(strings.Split(string(s.(types.String)), string(sep.(types.String))))
				}))),
		cel.Function("includes",
			cel.MemberOverload("string_includes", []*cel.Type{cel.StringType, cel.StringType}, cel.BoolType,
				cel.BinaryBinding(func(s, sub ref.Val) ref.Val {
					return types.Bool(strings.Contains(string(s.(types.String)), string(sub.(types.String))))
				}))),
		cel.Function("replace",
			cel.MemberOverload("string_replace", []*cel.Type{cel.StringType, cel.StringType, cel.StringType}, cel.StringType,
				cel.FunctionBinding(func(args ...ref.Val) ref.Val {
					// First occurrence only, matching the JS behavior
					return types.String(strings.Replace(
						string(args[0].(types.String)),
						string(args[1].(types.String)),
						string(args[2].(types.String)), 1))
				}))),
		cel.Function("substring",
			cel.MemberOverload("string_substring", []*cel.Type{cel.StringType, cel.IntType}, cel.StringType,
				cel.BinaryBinding(func(s, start ref.Val) ref.Val {
					str := string(s.(types.String))
					return types.String(jsSubstring(str, int(start.(types.Int)), len(str)))
				})),
			cel.MemberOverload("string_substring_end", []*cel.Type{cel.StringType, cel.IntType, cel.IntType}, cel.StringType,
				cel.FunctionBinding(func(args ...ref.Val) ref.Val {
					str := string(args[0].(types.String))
					return types.String(jsSubstring(str, int(args[1].(types.Int)), int(args[2].(types.Int))))
				}))),
	}
}

func stringMember(name string, fn func(string) string) cel.EnvOption {
	return cel.Function(name,
		cel.MemberOverload("string_"+name, []*cel.Type{cel.StringType}, cel.StringType,
			cel.UnaryBinding(func(s ref.Val) ref.Val {
				return types.String(fn(string(s.(types.String))))
			})))
}

func listMemberFunctions() []cel.EnvOption {
	listDyn := cel.ListType(cel.DynType)
	return []cel.EnvOption{
		cel.Function("join",
			cel.MemberOverload("list_join", []*cel.Type{listDyn, cel.StringType}, cel.StringType,
				cel.BinaryBinding(func(l, sep ref.Val) ref.Val {
					elems, ok := nativeOf(l).([]interface{})
					if !ok {
						return types.NewErr("join: not a list")
					}
					parts := make([]string, len(elems))
					for i, el := range elems {
						parts[i] = jsString(el)
					}
					return types.String(strings.Join(parts, string(sep.(types.String))))
				}))),
		cel.Function("first",
			cel.MemberOverload("list_first", []*cel.Type{listDyn}, cel.DynType,
				cel.UnaryBinding(func(l ref.Val) ref.Val { return listIndex(l, 0) }))),
		cel.Function("last",
			cel.MemberOverload("list_last", []*cel.Type{listDyn}, cel.DynType,
				cel.UnaryBinding(func(l ref.Val) ref.Val { return listIndex(l, -1) }))),
		cel.Function("at",
			cel.MemberOverload("list_at", []*cel.Type{listDyn, cel.IntType}, cel.DynType,
				cel.BinaryBinding(func(l, i ref.Val) ref.Val {
					return listIndex(l, int(i.(types.Int)))
				}))),
	}
}

// listIndex implements JS-style indexing: negative counts from the end,
// out of range yields null
func listIndex(l ref.Val, idx int) ref.Val {
	elems, ok := nativeOf(l).([]interface{})
	if !ok {
		return types.NewErr("not a list")
	}
	if idx < 0 {
		idx += len(elems)
	}
	if idx < 0 || idx >= len(elems) {
		return types.NullValue
	}
	return adapter.NativeToValue(elems[idx])
}

func mathFunctions() []cel.EnvOption {
	floor := func(f float64) interface{} { return int64(math.Floor(f)) }
	ceil := func(f float64) interface{} { return int64(math.Ceil(f)) }
	round := func(f float64) interface{} { return int64(math.Round(f)) }

	return []cel.EnvOption{
		mathUnary("math_abs", func(f float64) interface{} { return math.Abs(f) }),
		mathUnary("math_floor", floor),
		mathUnary("math_ceil", ceil),
		mathUnary("math_round", round),
		mathUnary("math_sqrt", func(f float64) interface{} { return math.Sqrt(f) }),
		mathBinary("math_min", math.Min),
		mathBinary("math_max", math.Max),
		mathBinary("math_pow", math.Pow),
		cel.Function("math_random",
			cel.Overload("math_random_void", []*cel.Type{}, cel.DoubleType,
				cel.FunctionBinding(func(args ...ref.Val) ref.Val {
					return types.Double(rand.Float64())
				}))),
	}
}

func mathUnary(name string, fn func(float64) interface{}) cel.EnvOption {
	return cel.Function(name,
		cel.Overload(name+"_dyn", []*cel.Type{cel.DynType}, cel.DynType,
			cel.UnaryBinding(func(v ref.Val) ref.Val {
				return adapter.NativeToValue(fn(jsNumber(nativeOf(v))))
			})))
}

func mathBinary(name string, fn func(float64, float64) float64) cel.EnvOption {
	return cel.Function(name,
		cel.Overload(name+"_dyn_dyn", []*cel.Type{cel.DynType, cel.DynType}, cel.DoubleType,
			cel.BinaryBinding(func(a, b ref.Val) ref.Val {
				return types.Double(fn(jsNumber(nativeOf(a)), jsNumber(nativeOf(b))))
			})))
}

// mixedArithmetic adds int/double operand mixes the CEL standard library
// rejects. JSON numbers arrive as doubles while literals are ints, so
// `$json.count + 1` must work.
func mixedArithmetic() []cel.EnvOption {
	type op struct {
		symbol string
		name   string
		fn     func(a, b float64) float64
	}
	ops := []op{
		{operators.Add, "add", func(a, b float64) float64 { return a + b }},
		{operators.Subtract, "subtract", func(a, b float64) float64 { return a - b }},
		{operators.Multiply, "multiply", func(a, b float64) float64 { return a * b }},
		{operators.Divide, "divide", func(a, b float64) float64 { return a / b }},
	}

	var opts []cel.EnvOption
	for _, o := range ops {
		fn := o.fn
		opts = append(opts, cel.Function(o.symbol,
			cel.Overload(o.name+"_double_int", []*cel.Type{cel.DoubleType, cel.IntType}, cel.DoubleType,
				cel.BinaryBinding(func(l, r ref.Val) ref.Val {
					return types.Double(fn(float64(l.(types.Double)), float64(r.(types.Int))))
				})),
			cel.Overload(o.name+"_int_double", []*cel.Type{cel.IntType, cel.DoubleType}, cel.DoubleType,
				cel.BinaryBinding(func(l, r ref.Val) ref.Val {
					return types.Double(fn(float64(l.(types.Int)), float64(r.(types.Double))))
				}))))
	}
	return opts
}

// nativeOf converts a CEL value back into plain Go (JSON-shaped) values
func nativeOf(v ref.Val) interface{} {
	if v == nil {
		return nil
	}
	switch tv := v.(type) {
	case types.Bool:
		return bool(tv)
	case types.Int:
		return int64(tv)
	case types.Uint:
		return uint64(tv)
	case types.Double:
		return float64(tv)
	case types.String:
		return string(tv)
	case types.Bytes:
		return []byte(tv)
	case types.Null:
		return nil
	case traits.Lister:
		var out []interface{}
		it := tv.Iterator()
		for it.HasNext() == types.True {
			out = append(out, nativeOf(it.Next()))
		}
		if out == nil {
			out = []interface{}{}
		}
		return out
	case traits.Mapper:
		out := map[string]interface{}{}
		it := tv.Iterator()
		for it.HasNext() == types.True {
			key := it.Next()
			val, found := tv.Find(key)
			if !found {
				continue
			}
			out[fmt.Sprintf("%v", nativeOf(key))] = nativeOf(val)
		}
		return out
	default:
		if native, err := v.ConvertToNative(anyType); err == nil {
			return native
		}
		return v.Value()
	}
}

// jsString renders a value the way the template interpolation does
func jsString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case []byte:
		return string(val)
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(raw)
	}
}

// jsNumber applies Number() coercion: strings parse, booleans map to 0/1,
// anything unparseable is NaN
func jsNumber(v interface{}) float64 {
	switch val := v.(type) {
	case nil:
		return 0
	case bool:
		if val {
			return 1
		}
		return 0
	case float64:
		return val
	case float32:
		return float64(val)
	case int:
		return float64(val)
	case int64:
		return float64(val)
	case uint64:
		return float64(val)
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "" {
			return 0
		}
		if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return f
		}
		return math.NaN()
	default:
		return math.NaN()
	}
}

// jsTruthy applies Boolean() coercion
func jsTruthy(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case float64:
		return val != 0 && !math.IsNaN(val)
	case int64:
		return val != 0
	case int:
		return val != 0
	case uint64:
		return val != 0
	default:
		return true
	}
}

func fnParseInt(v interface{}) interface{} {
	s := strings.TrimSpace(jsString(v))
	match := leadingIntPattern.FindString(s)
	if match == "" {
		return math.NaN()
	}
	n, err := strconv.ParseInt(match, 10, 64)
	if err != nil {
		return math.NaN()
	}
	return n
}

func fnParseFloat(v interface{}) interface{} {
	s := strings.TrimSpace(jsString(v))
	match := leadingFloatPattern.FindString(s)
	if match == "" {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

func fnTypeof(v interface{}) interface{} {
	switch v.(type) {
	case nil:
		return "object" // typeof null
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, int, int64, uint64:
		return "number"
	default:
		return "object"
	}
}

func fnIsEmpty(v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case []interface{}:
		return len(val) == 0
	case map[string]interface{}:
		return len(val) == 0
	default:
		return false
	}
}

func fnLength(v interface{}) interface{} {
	switch val := v.(type) {
	case string:
		return int64(len(val))
	case []interface{}:
		return int64(len(val))
	case map[string]interface{}:
		return int64(len(val))
	default:
		return int64(0)
	}
}

// jsSubstring clamps and swaps bounds the way String.prototype.substring does
func jsSubstring(s string, start, end int) string {
	if start < 0 {
		start = 0
	}
	if end < 0 {
		end = 0
	}
	if start > len(s) {
		start = len(s)
	}
	if end > len(s) {
		end = len(s)
	}
	if start > end {
		start, end = end, start
	}
	return s[start:end]
}
