package formschema

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	"github.com/tidwall/gjson"
)

// Condition operators.
const (
	OpEq       = "eq"
	OpNe       = "ne"
	OpGt       = "gt"
	OpGte      = "gte"
	OpLt       = "lt"
	OpLte      = "lte"
	OpIn       = "in"
	OpNotIn    = "notIn"
	OpEmpty    = "empty"
	OpNotEmpty = "notEmpty"
	OpContains = "contains"
)

var knownOperators = map[string]bool{
	OpEq: true, OpNe: true, OpGt: true, OpGte: true, OpLt: true, OpLte: true,
	OpIn: true, OpNotIn: true, OpEmpty: true, OpNotEmpty: true, OpContains: true,
}

// dataView answers field lookups for condition evaluation. Dotted paths go
// through gjson over the encoded data; paths starting with $ are JSONPath.
type dataView struct {
	data map[string]any
	raw  []byte
}

func (v dataView) lookup(field string) any {
	if strings.HasPrefix(field, "$") {
		val, err := jsonpath.Get(field, v.data)
		if err != nil {
			return nil
		}
		return val
	}
	res := gjson.GetBytes(v.raw, field)
	if !res.Exists() {
		return nil
	}
	return res.Value()
}

// eval reports whether the condition holds for the data.
func (c *Condition) eval(v dataView) bool {
	if c == nil {
		return true
	}
	if len(c.All) > 0 {
		for i := range c.All {
			if !c.All[i].eval(v) {
				return false
			}
		}
		return true
	}
	if len(c.Any) > 0 {
		for i := range c.Any {
			if c.Any[i].eval(v) {
				return true
			}
		}
		return false
	}

	actual := v.lookup(c.Field)
	switch c.Operator {
	case OpEq, "":
		return looseEqual(actual, c.Value)
	case OpNe:
		return !looseEqual(actual, c.Value)
	case OpGt, OpGte, OpLt, OpLte:
		a, okA := toFloat(actual)
		b, okB := toFloat(c.Value)
		if !okA || !okB {
			return false
		}
		switch c.Operator {
		case OpGt:
			return a > b
		case OpGte:
			return a >= b
		case OpLt:
			return a < b
		default:
			return a <= b
		}
	case OpIn:
		return inList(actual, c.Value)
	case OpNotIn:
		return !inList(actual, c.Value)
	case OpEmpty:
		return isEmpty(actual)
	case OpNotEmpty:
		return !isEmpty(actual)
	case OpContains:
		switch a := actual.(type) {
		case []any:
			for _, item := range a {
				if looseEqual(item, c.Value) {
					return true
				}
			}
			return false
		case string:
			return strings.Contains(a, fmt.Sprint(c.Value))
		}
		return false
	}
	return false
}

// fields lists every field referenced by the condition tree.
func (c *Condition) fields() []string {
	if c == nil {
		return nil
	}
	var out []string
	if c.Field != "" {
		out = append(out, c.Field)
	}
	for i := range c.All {
		out = append(out, c.All[i].fields()...)
	}
	for i := range c.Any {
		out = append(out, c.Any[i].fields()...)
	}
	return out
}

func (c *Condition) operators() []string {
	if c == nil {
		return nil
	}
	var out []string
	if len(c.All) == 0 && len(c.Any) == 0 {
		out = append(out, c.Operator)
	}
	for i := range c.All {
		out = append(out, c.All[i].operators()...)
	}
	for i := range c.Any {
		out = append(out, c.Any[i].operators()...)
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func looseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			return fa == fb
		}
	}
	if ba, ok := a.(bool); ok {
		bb, ok := b.(bool)
		return ok && ba == bb
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func inList(actual, list any) bool {
	items, ok := list.([]any)
	if !ok {
		return looseEqual(actual, list)
	}
	if many, ok := actual.([]any); ok {
		for _, a := range many {
			if inList(a, items) {
				return true
			}
		}
		return false
	}
	for _, item := range items {
		if looseEqual(actual, item) {
			return true
		}
	}
	return false
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []any:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	}
	return false
}
