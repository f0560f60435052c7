package formschema

import "strings"

// node is a field reached by walking the schema, with its data path and
// the visibility conditions inherited from its containers.
type node struct {
	field      *Field
	path       string
	conditions []*Condition
	depth      int
}

type visitFunc func(n node) error

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

func walk(fields []Field, prefix string, conds []*Condition, depth int, visit visitFunc) error {
	for i := range fields {
		f := &fields[i]
		own := conds
		if f.VisibleWhen != nil {
			own = append(conds[:len(conds):len(conds)], f.VisibleWhen)
		}

		n := node{field: f, conditions: own, depth: depth}
		if f.Type != TypeTabs {
			n.path = joinPath(prefix, f.Key)
		}
		if err := visit(n); err != nil {
			return err
		}

		switch f.Type {
		case TypeGroup:
			if err := walk(f.Fields, n.path, own, depth+1, visit); err != nil {
				return err
			}
		case TypeTabs:
			for _, tab := range f.Tabs {
				if err := walk(tab.Fields, prefix, own, depth+1, visit); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// Paths lists the data paths of every value-bearing field in schema order.
func (s Schema) Paths() []string {
	var out []string
	_ = walk(s.Fields, "", nil, 1, func(n node) error {
		if !n.field.Type.IsContainer() {
			out = append(out, n.path)
		}
		return nil
	})
	return out
}

func getPath(data map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = data
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func setPath(data map[string]any, path string, v any) {
	parts := strings.Split(path, ".")
	cur := data
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[p] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = v
}

func deletePath(data map[string]any, path string) {
	parts := strings.Split(path, ".")
	cur := data
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			return
		}
		cur = next
	}
	delete(cur, parts[len(parts)-1])
}
