package nodes

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/lyzr/flow/common/expr"
)

// EvaluateOperator applies one comparison operator to an already-resolved
// pair of values. String operators coerce both sides with JavaScript String
// semantics, numeric operators with Number semantics; a NaN on either side
// of a numeric comparison makes the comparison false rather than an error.
func EvaluateOperator(operator string, left, right interface{}) (bool, error) {
	switch operator {
	case "equals":
		return looseEquals(left, right), nil
	case "notEquals":
		return !looseEquals(left, right), nil
	case "contains":
		return strings.Contains(expr.Stringify(left), expr.Stringify(right)), nil
	case "notContains":
		return !strings.Contains(expr.Stringify(left), expr.Stringify(right)), nil
	case "startsWith":
		return strings.HasPrefix(expr.Stringify(left), expr.Stringify(right)), nil
	case "endsWith":
		return strings.HasSuffix(expr.Stringify(left), expr.Stringify(right)), nil
	case "gt":
		return numericCompare(left, right, func(a, b float64) bool { return a > b }), nil
	case "gte":
		return numericCompare(left, right, func(a, b float64) bool { return a >= b }), nil
	case "lt":
		return numericCompare(left, right, func(a, b float64) bool { return a < b }), nil
	case "lte":
		return numericCompare(left, right, func(a, b float64) bool { return a <= b }), nil
	case "isEmpty":
		return isEmptyValue(left), nil
	case "isNotEmpty":
		return !isEmptyValue(left), nil
	case "regex":
		pattern := expr.Stringify(right)
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false, fmt.Errorf("invalid regex pattern %q: %w", pattern, err)
		}
		return re.MatchString(expr.Stringify(left)), nil
	case "isTrue":
		return isTrueLiteral(left), nil
	case "isFalse":
		return isFalseLiteral(left), nil
	default:
		return false, fmt.Errorf("unknown operator %q", operator)
	}
}

// looseEquals compares numerically when both sides coerce to real numbers,
// otherwise by string form. "5" therefore equals 5, but "abc" != 0.
func looseEquals(left, right interface{}) bool {
	ln, rn := expr.ToNumber(left), expr.ToNumber(right)
	if !math.IsNaN(ln) && !math.IsNaN(rn) {
		return ln == rn
	}
	return expr.Stringify(left) == expr.Stringify(right)
}

func numericCompare(left, right interface{}, cmp func(a, b float64) bool) bool {
	ln, rn := expr.ToNumber(left), expr.ToNumber(right)
	if math.IsNaN(ln) || math.IsNaN(rn) {
		return false
	}
	return cmp(ln, rn)
}

func isEmptyValue(v interface{}) bool {
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

// isTrueLiteral accepts the boolean true plus its common serialized forms.
func isTrueLiteral(v interface{}) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return strings.EqualFold(strings.TrimSpace(val), "true") || strings.TrimSpace(val) == "1"
	case float64:
		return val == 1
	case int:
		return val == 1
	case int64:
		return val == 1
	default:
		return false
	}
}

func isFalseLiteral(v interface{}) bool {
	switch val := v.(type) {
	case bool:
		return !val
	case string:
		return strings.EqualFold(strings.TrimSpace(val), "false") || strings.TrimSpace(val) == "0"
	case float64:
		return val == 0
	case int:
		return val == 0
	case int64:
		return val == 0
	default:
		return false
	}
}
