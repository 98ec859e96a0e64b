package engine

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nodewarden/warden/internal/models"
)

// EvaluateConditions reports whether every condition holds against the firing
// context. Evaluation fails closed: a missing field or an operator that does
// not apply makes that condition false, never an error. A rule with no
// conditions always passes.
func EvaluateConditions(conditions models.ConditionList, fctx map[string]any) bool {
	for _, cond := range conditions {
		if !evaluateCondition(cond, fctx) {
			return false
		}
	}
	return true
}

func evaluateCondition(cond models.Condition, fctx map[string]any) bool {
	actual, ok := fctx[cond.Field]
	if !ok || actual == nil {
		return false
	}
	return Compare(cond.Operator, actual, cond.Value)
}

// Compare applies op to an actual and an expected value. When both sides
// parse as numbers they are compared numerically, so "70" equals 70.0.
// Otherwise equality falls back to string comparison, ordering operators are
// false, and the substring operators always compare strings.
func Compare(op models.ComparisonOp, actual, expected any) bool {
	a, aNum := toFloat(actual)
	b, bNum := toFloat(expected)
	bothNum := aNum && bNum

	switch op {
	case models.OpGreater:
		return bothNum && a > b
	case models.OpGreaterOrEqual:
		return bothNum && a >= b
	case models.OpLess:
		return bothNum && a < b
	case models.OpLessOrEqual:
		return bothNum && a <= b
	case models.OpEqual:
		if bothNum {
			return a == b
		}
		return toString(actual) == toString(expected)
	case models.OpNotEqual:
		if bothNum {
			return a != b
		}
		return toString(actual) != toString(expected)
	case models.OpContains:
		return strings.Contains(toString(actual), toString(expected))
	case models.OpNotContains:
		return !strings.Contains(toString(actual), toString(expected))
	default:
		return false
	}
}

// toFloat coerces the scalar types JSON decoding and metric sampling produce.
func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprintf("%v", x)
	}
}
