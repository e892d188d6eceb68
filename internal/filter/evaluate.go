package filter

import (
	"strconv"
	"strings"
)

// FieldLookup resolves a dotted field path (e.g. "request.path", "len") to
// its string representation. Returns ok=false when the field is missing —
// filter evaluation treats a missing field as "no match", never an error.
type FieldLookup func(field string) (value string, ok bool)

// Evaluate is deterministic: for a fixed (ast, lookup) pair it always
// returns the same boolean, regardless of where in a chain it is called
// from (spec invariant 4). It never panics on malformed input — an
// Empty node, or a Condition whose field is missing, simply evaluates to
// false (except for the empty-right-hand-side rule below).
func Evaluate(node Node, lookup FieldLookup) bool {
	switch n := node.(type) {
	case Empty:
		return false
	case And:
		return Evaluate(n.Left, lookup) && Evaluate(n.Right, lookup)
	case Or:
		return Evaluate(n.Left, lookup) || Evaluate(n.Right, lookup)
	case Condition:
		return evaluateCondition(n, lookup)
	default:
		return false
	}
}

func evaluateCondition(c Condition, lookup FieldLookup) bool {
	actual, found := lookup(c.Field)

	// An empty right-hand side matches an empty or missing field.
	if c.Value == "" {
		if c.Operator == OpNotEquals {
			return found && actual != ""
		}
		return !found || actual == ""
	}

	if !found {
		return false
	}

	switch c.Operator {
	case OpContains:
		return strings.Contains(actual, c.Value)
	case OpEquals, OpNotEquals:
		eq := compareEquality(actual, c.Value)
		if c.Operator == OpEquals {
			return eq
		}
		return !eq
	case OpGreaterThan, OpLessThan, OpGreaterEqual, OpLessEqual:
		lf, lok := parseFloat(actual)
		rf, rok := parseFloat(c.Value)
		if !lok || !rok {
			// Numeric comparators only fall back to lexicographic for =/!=;
			// for ordering operators a non-numeric operand never matches.
			return false
		}
		switch c.Operator {
		case OpGreaterThan:
			return lf > rf
		case OpLessThan:
			return lf < rf
		case OpGreaterEqual:
			return lf >= rf
		case OpLessEqual:
			return lf <= rf
		}
	}
	return false
}

// compareEquality implements the typed-value rule: numeric comparison
// when both sides parse as numbers, boolean comparison (case-insensitive)
// when both sides parse as booleans, otherwise plain string equality.
func compareEquality(actual, value string) bool {
	if lf, lok := parseFloat(actual); lok {
		if rf, rok := parseFloat(value); rok {
			return lf == rf
		}
	}
	if lb, lok := parseBool(actual); lok {
		if rb, rok := parseBool(value); rok {
			return lb == rb
		}
	}
	return actual == value
}

func parseFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "true":
		return true, true
	case "false":
		return false, true
	default:
		return false, false
	}
}
