package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// ============================================================================
// PARSER TESTS
// ============================================================================

func TestParse_SimpleCondition(t *testing.T) {
	node := Parse("function=WRITE/SEND")
	cond, ok := node.(Condition)
	if assert.True(t, ok, "expected a Condition node") {
		assert.Equal(t, "function", cond.Field)
		assert.Equal(t, OpEquals, cond.Operator)
		assert.Equal(t, "WRITE/SEND", cond.Value)
	}
}

func TestParse_AndBindsTighterThanOr(t *testing.T) {
	// a=1 | b=2 & c=3  ==  a=1 | (b=2 & c=3)
	node := Parse("a=1|b=2&c=3")
	or, ok := node.(Or)
	if !assert.True(t, ok, "top level should be Or") {
		return
	}
	left, ok := or.Left.(Condition)
	assert.True(t, ok)
	assert.Equal(t, "a", left.Field)

	right, ok := or.Right.(And)
	if assert.True(t, ok, "right side should be And") {
		b := right.Left.(Condition)
		c := right.Right.(Condition)
		assert.Equal(t, "b", b.Field)
		assert.Equal(t, "c", c.Field)
	}
}

func TestParse_Parentheses(t *testing.T) {
	node := Parse("(a=1|b=2)&c=3")
	and, ok := node.(And)
	if !assert.True(t, ok, "top level should be And") {
		return
	}
	_, ok = and.Left.(Or)
	assert.True(t, ok, "left side should be a grouped Or")
	c := and.Right.(Condition)
	assert.Equal(t, "c", c.Field)
}

func TestParse_Operators(t *testing.T) {
	cases := map[string]Operator{
		"a=1":  OpEquals,
		"a!=1": OpNotEquals,
		"a>1":  OpGreaterThan,
		"a<1":  OpLessThan,
		"a>=1": OpGreaterEqual,
		"a<=1": OpLessEqual,
		"a~1":  OpContains,
	}
	for expr, want := range cases {
		cond := Parse(expr).(Condition)
		assert.Equal(t, want, cond.Operator, expr)
	}
}

func TestParse_EscapeSequences(t *testing.T) {
	cond := Parse(`msg=line1\nline2\ttabbed\\backslash`).(Condition)
	assert.Equal(t, "line1\nline2\ttabbed\\backslash", cond.Value)
}

func TestParse_UnknownEscapePassesThrough(t *testing.T) {
	cond := Parse(`msg=a\qb`).(Condition)
	assert.Equal(t, `a\qb`, cond.Value)
}

func TestParse_MalformedUnmatchedParenIsEmpty(t *testing.T) {
	node := Parse("(a=1")
	_, ok := node.(Empty)
	assert.True(t, ok, "unmatched paren should yield Empty, never an error")
}

func TestParse_BlankExpressionIsEmpty(t *testing.T) {
	node := Parse("")
	_, ok := node.(Empty)
	assert.True(t, ok)
}

func TestParse_TrailingGarbageIsEmpty(t *testing.T) {
	node := Parse("a=1)")
	_, ok := node.(Empty)
	assert.True(t, ok, "trailing unparsed input should yield Empty")
}

func TestParse_ValueStopsAtUnescapedDelimiter(t *testing.T) {
	node := Parse("a=1&b=2")
	and := node.(And)
	left := and.Left.(Condition)
	assert.Equal(t, "1", left.Value)
}
