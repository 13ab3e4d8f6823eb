package routing

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Condition operators. Conditions are stored as declarative JSON and evaluated
// by a pure interpreter, never as executable expressions.
const (
	OpEq     = "eq"
	OpNe     = "ne"
	OpGt     = "gt"
	OpGte    = "gte"
	OpLt     = "lt"
	OpLte    = "lte"
	OpIn     = "in"
	OpExists = "exists"
	OpNot    = "not"
	OpAnd    = "and"
	OpOr     = "or"
)

// ErrUnknownOperator is returned when a condition uses an operator outside the set above.
var ErrUnknownOperator = errors.New("unknown routing condition operator")

// ErrBadCondition is returned when a condition is structurally invalid for its operator.
var ErrBadCondition = errors.New("malformed routing condition")

// Condition is one node of the predicate tree evaluated against a record document.
type Condition struct {
	Op         string      `json:"op"`
	Path       string      `json:"path,omitempty"`
	Value      any         `json:"value,omitempty"`
	Values     []any       `json:"values,omitempty"`
	Condition  *Condition  `json:"condition,omitempty"`
	Conditions []Condition `json:"conditions,omitempty"`
}

// Validate checks the condition tree structure without evaluating it.
func (c *Condition) Validate() error {
	switch c.Op {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte:
		if c.Path == "" {
			return fmt.Errorf("%w: %q requires a path", ErrBadCondition, c.Op)
		}
	case OpIn:
		if c.Path == "" || len(c.Values) == 0 {
			return fmt.Errorf("%w: %q requires a path and values", ErrBadCondition, c.Op)
		}
	case OpExists:
		if c.Path == "" {
			return fmt.Errorf("%w: %q requires a path", ErrBadCondition, c.Op)
		}
	case OpNot:
		if c.Condition == nil {
			return fmt.Errorf("%w: %q requires a nested condition", ErrBadCondition, c.Op)
		}

		return c.Condition.Validate()
	case OpAnd, OpOr:
		if len(c.Conditions) == 0 {
			return fmt.Errorf("%w: %q requires nested conditions", ErrBadCondition, c.Op)
		}
		for i := range c.Conditions {
			if err := c.Conditions[i].Validate(); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOperator, c.Op)
	}

	return nil
}

// Eval interprets the condition against doc, a map with "payload" and
// "metadata" roots addressable by dotted paths.
func (c *Condition) Eval(doc map[string]any) (bool, error) {
	switch c.Op {
	case OpEq:
		val, ok := lookup(doc, c.Path)

		return ok && looseEqual(val, c.Value), nil
	case OpNe:
		val, ok := lookup(doc, c.Path)

		return !ok || !looseEqual(val, c.Value), nil
	case OpGt, OpGte, OpLt, OpLte:
		val, ok := lookup(doc, c.Path)
		if !ok {
			return false, nil
		}
		left, leftOK := toFloat(val)
		right, rightOK := toFloat(c.Value)
		if !leftOK || !rightOK {
			return false, nil
		}

		return compare(c.Op, left, right), nil
	case OpIn:
		val, ok := lookup(doc, c.Path)
		if !ok {
			return false, nil
		}
		for _, candidate := range c.Values {
			if looseEqual(val, candidate) {
				return true, nil
			}
		}

		return false, nil
	case OpExists:
		_, ok := lookup(doc, c.Path)

		return ok, nil
	case OpNot:
		inner, err := c.Condition.Eval(doc)
		if err != nil {
			return false, err
		}

		return !inner, nil
	case OpAnd:
		for i := range c.Conditions {
			ok, err := c.Conditions[i].Eval(doc)
			if err != nil || !ok {
				return false, err
			}
		}

		return true, nil
	case OpOr:
		for i := range c.Conditions {
			ok, err := c.Conditions[i].Eval(doc)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}

		return false, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownOperator, c.Op)
	}
}

// lookup resolves a dotted path such as "payload.customer.id" inside doc.
func lookup(doc map[string]any, path string) (any, bool) {
	var current any = doc
	for _, part := range strings.Split(path, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = node[part]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

// looseEqual compares values the way JSON documents do: numbers compare by
// value regardless of Go type, everything else by deep string/bool identity.
func looseEqual(a, b any) bool {
	if af, ok := toFloat(a); ok {
		bf, bok := toFloat(b)

		return bok && af == bf
	}

	switch av := a.(type) {
	case string:
		bv, ok := b.(string)

		return ok && av == bv
	case bool:
		bv, ok := b.(bool)

		return ok && av == bv
	case nil:
		return b == nil
	default:
		aj, aerr := json.Marshal(a)
		bj, berr := json.Marshal(b)

		return aerr == nil && berr == nil && string(aj) == string(bj)
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
	case json.Number:
		f, err := n.Float64()

		return f, err == nil
	default:
		return 0, false
	}
}

func compare(op string, left, right float64) bool {
	switch op {
	case OpGt:
		return left > right
	case OpGte:
		return left >= right
	case OpLt:
		return left < right
	case OpLte:
		return left <= right
	default:
		return false
	}
}
