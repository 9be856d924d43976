// Package assertion is the pure comparison engine behind the script-facing
// assert() capability. Operator synonyms are folded onto a fixed canonical
// set before evaluation, and evaluation itself never returns an error: bad
// operators, bad regular expressions and type mismatches all degrade to a
// recorded failure instead of aborting the script.
//
// The embedded Node wrapper and Python bootstrap carry their own copies of
// these rules; any divergence between the three is a bug.
package assertion

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
)

// Canonical comparison operators.
const (
	OpEq        = "=="
	OpStrictEq  = "==="
	OpNeq       = "!="
	OpStrictNeq = "!=="
	OpGt        = ">"
	OpGte       = ">="
	OpLt        = "<"
	OpLte       = "<="
	OpContains  = "contains"
	OpMatches   = "matches"
	OpTruthy    = "truthy"
	OpFalsy     = "falsy"
)

var synonyms = map[string]string{
	"==":          OpEq,
	"eq":          OpEq,
	"equal":       OpEq,
	"equals":      OpEq,
	"===":         OpStrictEq,
	"!=":          OpNeq,
	"neq":         OpNeq,
	"notequal":    OpNeq,
	"notequals":   OpNeq,
	"!==":         OpStrictNeq,
	">":           OpGt,
	"greater":     OpGt,
	"greaterthan": OpGt,
	">=":          OpGte,
	"gte":         OpGte,
	"<":           OpLt,
	"less":        OpLt,
	"lessthan":    OpLt,
	"<=":          OpLte,
	"lte":         OpLte,
	"contains":    OpContains,
	"includes":    OpContains,
	"matches":     OpMatches,
	"regex":       OpMatches,
	"truthy":      OpTruthy,
	"falsy":       OpFalsy,
}

// Assertion is one recorded assert() outcome. Appending one never aborts the
// running script.
type Assertion struct {
	Passed    bool        `json:"passed"`
	Message   string      `json:"message"`
	Condition string      `json:"condition"`
	Actual    interface{} `json:"actualValue"`
	Operator  string      `json:"operator"`
	Expected  interface{} `json:"expectedValue"`
	Reason    string      `json:"reason,omitempty"`
}

// NormalizeOperator maps an operator synonym onto its canonical form.
// Matching is case-insensitive and ignores surrounding whitespace.
func NormalizeOperator(op string) (string, bool) {
	canonical, ok := synonyms[strings.ToLower(strings.TrimSpace(op))]
	return canonical, ok
}

// Check evaluates one assert() call and returns the record to append.
// An unrecognized operator yields Passed:false with a Reason instead of an
// evaluation.
func Check(actual interface{}, operator string, expected interface{}, message string) Assertion {
	canonical, ok := NormalizeOperator(operator)
	if !ok {
		return Assertion{
			Passed:    false,
			Message:   message,
			Condition: condition(actual, operator, expected),
			Actual:    actual,
			Operator:  operator,
			Expected:  expected,
			Reason:    fmt.Sprintf("Unsupported operator: %s", operator),
		}
	}
	return Assertion{
		Passed:    Evaluate(actual, canonical, expected),
		Message:   message,
		Condition: condition(actual, canonical, expected),
		Actual:    actual,
		Operator:  canonical,
		Expected:  expected,
	}
}

// Evaluate applies a canonical operator. Unknown operators evaluate to false;
// the function never panics and never returns an error.
func Evaluate(actual interface{}, operator string, expected interface{}) bool {
	switch operator {
	case OpEq:
		return looseEqual(actual, expected)
	case OpStrictEq:
		return strictEqual(actual, expected)
	case OpNeq:
		return !looseEqual(actual, expected)
	case OpStrictNeq:
		return !strictEqual(actual, expected)
	case OpGt, OpGte, OpLt, OpLte:
		return ordered(actual, operator, expected)
	case OpContains:
		return contains(actual, expected)
	case OpMatches:
		return matches(actual, expected)
	case OpTruthy:
		return Truthy(actual)
	case OpFalsy:
		return !Truthy(actual)
	default:
		return false
	}
}

// Truthy follows script-side truthiness: nil, false, zero, NaN and the empty
// string are falsy; every object and array (even empty) is truthy.
func Truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	default:
		if n, ok := toNumber(v); ok {
			return n != 0 && !math.IsNaN(n)
		}
		return true
	}
}

func condition(actual interface{}, operator string, expected interface{}) string {
	switch operator {
	case OpTruthy, OpFalsy:
		return fmt.Sprintf("%s %s", stringify(actual), operator)
	default:
		return fmt.Sprintf("%s %s %s", stringify(actual), operator, stringify(expected))
	}
}

// looseEqual compares numerically when both sides coerce to numbers
// (numbers, numeric strings, booleans), otherwise by string form.
func looseEqual(a, b interface{}) bool {
	if a == nil && b == nil {
		return true
	}
	an, aok := toNumber(a)
	bn, bok := toNumber(b)
	if aok && bok {
		return an == bn
	}
	return stringify(a) == stringify(b)
}

// strictEqual additionally requires the two sides to share a type, with all
// numeric widths treated as one type.
func strictEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	an, aok := numericValue(a)
	bn, bok := numericValue(b)
	if aok || bok {
		return aok && bok && an == bn
	}
	if reflect.TypeOf(a) != reflect.TypeOf(b) {
		return false
	}
	return reflect.DeepEqual(a, b)
}

func ordered(a interface{}, operator string, b interface{}) bool {
	var cmp int
	an, aok := toNumber(a)
	bn, bok := toNumber(b)
	if aok && bok {
		switch {
		case an < bn:
			cmp = -1
		case an > bn:
			cmp = 1
		}
	} else {
		cmp = strings.Compare(stringify(a), stringify(b))
	}
	switch operator {
	case OpGt:
		return cmp > 0
	case OpGte:
		return cmp >= 0
	case OpLt:
		return cmp < 0
	case OpLte:
		return cmp <= 0
	}
	return false
}

// contains does substring search on strings and loose membership on arrays.
// Any other actual type is false, never an error.
func contains(actual, expected interface{}) bool {
	switch t := actual.(type) {
	case string:
		return strings.Contains(t, stringify(expected))
	case []interface{}:
		for _, item := range t {
			if looseEqual(item, expected) {
				return true
			}
		}
		return false
	case []string:
		for _, item := range t {
			if looseEqual(item, expected) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// matches treats expected as a regular-expression source applied to the
// stringified actual. Patterns use ECMAScript syntax so lookahead and
// backreferences behave the same as in the guest-side copies. An invalid
// pattern, or a match that exceeds the backtracking guard, yields false.
func matches(actual, expected interface{}) bool {
	re, err := regexp2.Compile(stringify(expected), regexp2.ECMAScript)
	if err != nil {
		return false
	}
	re.MatchTimeout = time.Second
	ok, err := re.MatchString(stringify(actual))
	return err == nil && ok
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	default:
		if n, ok := numericValue(v); ok {
			return strconv.FormatFloat(n, 'f', -1, 64)
		}
		return fmt.Sprintf("%v", v)
	}
}

// toNumber coerces numbers, booleans and numeric strings; everything else
// reports false.
func toNumber(v interface{}) (float64, bool) {
	if n, ok := numericValue(v); ok {
		return n, true
	}
	switch t := v.(type) {
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

func numericValue(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	default:
		return 0, false
	}
}
