// Package diff computes field-level changes between two JSON documents,
// used to record submission history.
package diff

import (
	"encoding/json"
	"reflect"
	"sort"
	"strconv"
)

// Change is one leaf whose value differs. Before is nil when the path was
// added and After is nil when it was removed.
type Change struct {
	Path   string `json:"path"`
	Before any    `json:"before"`
	After  any    `json:"after"`
}

// Flatten maps every leaf of v to a dotted path. Array elements use
// path[i]. Empty objects and arrays are kept as leaves so that clearing a
// list is still recorded.
func Flatten(v any) map[string]any {
	out := map[string]any{}
	flatten("", normalize(v), out)
	return out
}

func flatten(prefix string, v any, out map[string]any) {
	switch x := v.(type) {
	case map[string]any:
		if len(x) == 0 && prefix != "" {
			out[prefix] = x
			return
		}
		for k, child := range x {
			p := k
			if prefix != "" {
				p = prefix + "." + k
			}
			flatten(p, child, out)
		}
	case []any:
		if len(x) == 0 {
			if prefix != "" {
				out[prefix] = x
			}
			return
		}
		for i, child := range x {
			flatten(prefix+"["+strconv.Itoa(i)+"]", child, out)
		}
	default:
		if prefix != "" {
			out[prefix] = x
		}
	}
}

// Compare returns the changes from before to after sorted by path. Both
// sides go through a JSON round trip first so 1 and 1.0 compare equal.
func Compare(before, after any) []Change {
	b := Flatten(before)
	a := Flatten(after)

	paths := make([]string, 0, len(b)+len(a))
	for p := range b {
		paths = append(paths, p)
	}
	for p := range a {
		if _, ok := b[p]; !ok {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)

	var changes []Change
	for _, p := range paths {
		bv, inB := b[p]
		av, inA := a[p]
		if inB && inA && reflect.DeepEqual(bv, av) {
			continue
		}
		changes = append(changes, Change{Path: p, Before: bv, After: av})
	}
	return changes
}

func normalize(v any) any {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}
