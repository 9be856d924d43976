package assertion

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeOperator(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"==", "==", true},
		{"eq", "==", true},
		{"EQUAL", "==", true},
		{" equals ", "==", true},
		{"neq", "!=", true},
		{"notequal", "!=", true},
		{"===", "===", true},
		{"!==", "!==", true},
		{"greater", ">", true},
		{"greaterthan", ">", true},
		{"gte", ">=", true},
		{"less", "<", true},
		{"lessthan", "<", true},
		{"lte", "<=", true},
		{"includes", "contains", true},
		{"regex", "matches", true},
		{"truthy", "truthy", true},
		{"falsy", "falsy", true},
		{"bogus", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := NormalizeOperator(tt.in)
			if ok != tt.ok {
				t.Fatalf("NormalizeOperator(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("NormalizeOperator(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeOperator_Idempotent(t *testing.T) {
	for _, canonical := range []string{"==", "===", "!=", "!==", ">", ">=", "<", "<=", "contains", "matches", "truthy", "falsy"} {
		got, ok := NormalizeOperator(canonical)
		if !ok || got != canonical {
			t.Errorf("canonical %q did not normalize to itself (got %q, ok=%v)", canonical, got, ok)
		}
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name     string
		actual   interface{}
		operator string
		expected interface{}
		want     bool
	}{
		{"loose numeric equality", float64(5), "==", float64(5), true},
		{"loose string-number equality", "5", "==", float64(5), true},
		{"loose inequality", float64(5), "!=", float64(6), true},
		{"strict equal same type", "a", "===", "a", true},
		{"strict equal rejects coercion", "5", "===", float64(5), false},
		{"strict not equal", "5", "!==", float64(5), true},
		{"greater", float64(10), ">", float64(3), true},
		{"greater on numeric strings", "10", ">", "9", true},
		{"gte equal", float64(3), ">=", float64(3), true},
		{"less", float64(1), "<", float64(2), true},
		{"lte", float64(2), "<=", float64(2), true},
		{"string ordering", "b", ">", "a", true},
		{"contains substring", "hello world", "contains", "world", true},
		{"contains missing substring", "hello", "contains", "bye", false},
		{"contains array membership", []interface{}{float64(1), "x"}, "contains", "x", true},
		{"contains array loose membership", []interface{}{float64(1)}, "contains", "1", true},
		{"contains wrong type", float64(42), "contains", "4", false},
		{"matches", "abc123", "matches", `\d+`, true},
		{"matches stringified number", float64(404), "matches", "^4", true},
		{"matches invalid pattern", "abc", "matches", "(", false},
		{"matches lookahead", "abc", "matches", "a(?=b)", true},
		{"matches lookahead miss", "acb", "matches", "a(?=b)", false},
		{"matches negative lookahead", "acb", "matches", "a(?!b)", true},
		{"matches backreference", "abab", "matches", `(ab)\1`, true},
		{"truthy string", "x", "truthy", nil, true},
		{"truthy empty string", "", "truthy", nil, false},
		{"truthy zero", float64(0), "truthy", nil, false},
		{"truthy empty array", []interface{}{}, "truthy", nil, true},
		{"falsy nil", nil, "falsy", nil, true},
		{"unknown operator", float64(1), "~~", float64(1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Evaluate(tt.actual, tt.operator, tt.expected); got != tt.want {
				t.Errorf("Evaluate(%v, %q, %v) = %v, want %v", tt.actual, tt.operator, tt.expected, got, tt.want)
			}
		})
	}
}

func TestCheck_SynonymRecordsCanonicalOperator(t *testing.T) {
	a := Check(float64(5), "equal", float64(5), "")
	assert.True(t, a.Passed)
	assert.Equal(t, "==", a.Operator)
	assert.Empty(t, a.Reason)
}

func TestCheck_UnsupportedOperator(t *testing.T) {
	a := Check(float64(5), "bogus", float64(5), "should not pass")
	assert.False(t, a.Passed)
	assert.Equal(t, "bogus", a.Operator)
	if !strings.HasPrefix(a.Reason, "Unsupported operator") {
		t.Errorf("Reason = %q, want prefix %q", a.Reason, "Unsupported operator")
	}
}

func TestCheck_RecordsCondition(t *testing.T) {
	a := Check("ready", "truthy", nil, "")
	assert.Equal(t, "ready truthy", a.Condition)

	b := Check(float64(1), "==", float64(2), "")
	assert.Equal(t, "1 == 2", b.Condition)
	assert.False(t, b.Passed)
}
