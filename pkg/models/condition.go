package models

import (
	"fmt"
	"strings"
)

// ConditionOperator names the comparison applied between an activity attribute
// and the condition value.
type ConditionOperator string

const (
	ConditionOpEq       ConditionOperator = "eq"
	ConditionOpNe       ConditionOperator = "ne"
	ConditionOpGt       ConditionOperator = "gt"
	ConditionOpGte      ConditionOperator = "gte"
	ConditionOpLt       ConditionOperator = "lt"
	ConditionOpLte      ConditionOperator = "lte"
	ConditionOpIn       ConditionOperator = "in"
	ConditionOpContains ConditionOperator = "contains"
)

// StepCondition is a pure predicate over the activity attribute bag. It is
// evaluated exactly once, when the request snapshot is built; later attribute
// changes never re-trigger it.
type StepCondition struct {
	Attribute string            `json:"attribute"`
	Operator  ConditionOperator `json:"operator"`
	Value     any               `json:"value"`
}

// Evaluate applies the condition against the attributes. A nil condition
// applies the step unconditionally. A missing attribute satisfies only the ne
// operator, since an absent value is trivially not equal.
func (c *StepCondition) Evaluate(attributes map[string]any) (bool, error) {
	if c == nil {
		return true, nil
	}

	actual, present := attributes[c.Attribute]
	if !present {
		return c.Operator == ConditionOpNe, nil
	}

	switch c.Operator {
	case ConditionOpEq:
		return equalValues(actual, c.Value), nil

	case ConditionOpNe:
		return !equalValues(actual, c.Value), nil

	case ConditionOpGt, ConditionOpGte, ConditionOpLt, ConditionOpLte:
		cmp, err := compareNumeric(actual, c.Value)
		if err != nil {
			return false, fmt.Errorf("attribute %q: %w", c.Attribute, err)
		}

		switch c.Operator {
		case ConditionOpGt:
			return cmp > 0, nil
		case ConditionOpGte:
			return cmp >= 0, nil
		case ConditionOpLt:
			return cmp < 0, nil
		default:
			return cmp <= 0, nil
		}

	case ConditionOpIn:
		options, ok := c.Value.([]any)
		if !ok {
			return false, fmt.Errorf("attribute %q: in operator requires a list value", c.Attribute)
		}

		for _, option := range options {
			if equalValues(actual, option) {
				return true, nil
			}
		}

		return false, nil

	case ConditionOpContains:
		haystack, ok := actual.(string)
		if !ok {
			return false, fmt.Errorf("attribute %q: contains operator requires a string attribute", c.Attribute)
		}

		needle, ok := c.Value.(string)
		if !ok {
			return false, fmt.Errorf("attribute %q: contains operator requires a string value", c.Attribute)
		}

		return strings.Contains(haystack, needle), nil

	default:
		return false, fmt.Errorf("attribute %q: unknown operator %q", c.Attribute, c.Operator)
	}
}

// equalValues compares with numeric coercion so that JSON-decoded float64
// attributes match integer condition values.
func equalValues(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)

	if aok && bok {
		return af == bf
	}

	return a == b
}

func compareNumeric(a, b any) (int, error) {
	af, ok := toFloat(a)
	if !ok {
		return 0, fmt.Errorf("value %v is not numeric", a)
	}

	bf, ok := toFloat(b)
	if !ok {
		return 0, fmt.Errorf("value %v is not numeric", b)
	}

	switch {
	case af > bf:
		return 1, nil
	case af < bf:
		return -1, nil
	default:
		return 0, nil
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
