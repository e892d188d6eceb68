package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// ============================================================================
// EVALUATION TESTS
// ============================================================================

func staticLookup(values map[string]string) FieldLookup {
	return func(field string) (string, bool) {
		v, ok := values[field]
		return v, ok
	}
}

func TestEvaluate_NumericComparison(t *testing.T) {
	lookup := staticLookup(map[string]string{"len": "150"})
	assert.True(t, Evaluate(Parse("len>100"), lookup))
	assert.False(t, Evaluate(Parse("len<100"), lookup))
	assert.True(t, Evaluate(Parse("len>=150"), lookup))
	assert.True(t, Evaluate(Parse("len<=150"), lookup))
}

func TestEvaluate_OrderingNeverFallsBackToLexicographic(t *testing.T) {
	lookup := staticLookup(map[string]string{"status": "error"})
	assert.False(t, Evaluate(Parse("status>1"), lookup), "non-numeric operand must not match an ordering operator")
}

func TestEvaluate_BooleanTypedEquality(t *testing.T) {
	lookup := staticLookup(map[string]string{"is_handshake": "true"})
	assert.True(t, Evaluate(Parse("is_handshake=TRUE"), lookup), "boolean comparison should be case-insensitive")
}

func TestEvaluate_StringEquality(t *testing.T) {
	lookup := staticLookup(map[string]string{"function": "WRITE/SEND"})
	assert.True(t, Evaluate(Parse("function=WRITE/SEND"), lookup))
	assert.False(t, Evaluate(Parse("function=READ/RECV"), lookup))
}

func TestEvaluate_Contains(t *testing.T) {
	lookup := staticLookup(map[string]string{"data": "hello world"})
	assert.True(t, Evaluate(Parse("data~world"), lookup))
	assert.False(t, Evaluate(Parse("data~missing"), lookup))
}

func TestEvaluate_MissingFieldNeverMatchesNonEmptyValue(t *testing.T) {
	lookup := staticLookup(map[string]string{})
	assert.False(t, Evaluate(Parse("function=WRITE/SEND"), lookup))
}

func TestEvaluate_EmptyValueMatchesMissingOrEmptyField(t *testing.T) {
	present := staticLookup(map[string]string{"comm": ""})
	missing := staticLookup(map[string]string{})
	nonEmpty := staticLookup(map[string]string{"comm": "curl"})

	assert.True(t, Evaluate(Parse("comm="), present))
	assert.True(t, Evaluate(Parse("comm="), missing))
	assert.False(t, Evaluate(Parse("comm="), nonEmpty))

	assert.False(t, Evaluate(Parse("comm!="), present), "!= against empty value requires a present, non-empty field")
	assert.True(t, Evaluate(Parse("comm!="), nonEmpty))
}

func TestEvaluate_AndOr(t *testing.T) {
	lookup := staticLookup(map[string]string{"a": "1", "b": "2", "c": "3"})
	assert.True(t, Evaluate(Parse("a=1&b=2"), lookup))
	assert.False(t, Evaluate(Parse("a=1&b=9"), lookup))
	assert.True(t, Evaluate(Parse("a=9|b=2"), lookup))
	assert.True(t, Evaluate(Parse("a=1|b=2&c=3"), lookup))
}

func TestEvaluate_EmptyNodeNeverMatches(t *testing.T) {
	assert.False(t, Evaluate(Empty{}, staticLookup(nil)))
}

func TestJSONLookup_DottedPath(t *testing.T) {
	lookup := JSONLookup([]byte(`{"request":{"path":"/v1/health/live"},"status_code":404}`))
	v, ok := lookup("request.path")
	assert.True(t, ok)
	assert.Equal(t, "/v1/health/live", v)

	v, ok = lookup("status_code")
	assert.True(t, ok)
	assert.Equal(t, "404", v)

	_, ok = lookup("request.missing")
	assert.False(t, ok)
}

func TestJSONLookup_MalformedDataNeverMatches(t *testing.T) {
	lookup := JSONLookup([]byte(`not json`))
	_, ok := lookup("anything")
	assert.False(t, ok)
}
