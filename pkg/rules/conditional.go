package rules

import (
	"fmt"
	"strconv"
)

// Truthy converts an attribute value to a boolean. Missing values and empty
// strings are true so that an unset flag does not block a default branch.
func Truthy(value any) (bool, error) {
	if value == nil {
		return true, nil
	}

	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		if v == "" {
			return true, nil
		}

		result, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("cannot convert string %q to boolean: %w", v, err)
		}

		return result, nil
	case int:
		return v != 0, nil
	case int64:
		return v != 0, nil
	case float64:
		return v != 0, nil
	default:
		return false, fmt.Errorf("cannot convert %T to boolean", value)
	}
}

// Operator compares an attribute against a constant.
type Operator string

const (
	OpEqual          Operator = "eq"
	OpNotEqual       Operator = "ne"
	OpGreater        Operator = "gt"
	OpGreaterOrEqual Operator = "gte"
	OpLess           Operator = "lt"
	OpLessOrEqual    Operator = "lte"
)

// Compare applies op to value and operand. Numbers are compared numerically,
// everything else by its string form and only for equality.
func Compare(op Operator, value, operand any) (bool, error) {
	left, leftNumeric := number(value)
	right, rightNumeric := number(operand)

	if leftNumeric && rightNumeric {
		switch op {
		case OpEqual:
			return left == right, nil
		case OpNotEqual:
			return left != right, nil
		case OpGreater:
			return left > right, nil
		case OpGreaterOrEqual:
			return left >= right, nil
		case OpLess:
			return left < right, nil
		case OpLessOrEqual:
			return left <= right, nil
		}

		return false, fmt.Errorf("unknown operator %q", op)
	}

	switch op {
	case OpEqual:
		return fmt.Sprint(value) == fmt.Sprint(operand), nil
	case OpNotEqual:
		return fmt.Sprint(value) != fmt.Sprint(operand), nil
	case OpGreater, OpGreaterOrEqual, OpLess, OpLessOrEqual:
		return false, fmt.Errorf("operator %q needs numeric operands, got %T and %T", op, value, operand)
	}

	return false, fmt.Errorf("unknown operator %q", op)
}

func number(value any) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(v, 64)

		return f, err == nil
	default:
		return 0, false
	}
}
