package formschema

import (
	"regexp"
	"strings"
)

var keyPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

type conditionRef struct {
	owner string
	cond  *Condition
}

// Validate checks the structure of the schema: known types, unique keys,
// options for choice fields, non-empty containers, parsable formulas and
// patterns, and conditions pointing at fields that exist.
func (s Schema) Validate() error {
	var errs ValidationErrors
	if len(s.Fields) == 0 {
		errs.Add("fields", "schema must contain at least one field")
		return errs
	}

	keys := map[string]bool{}
	paths := map[string]bool{}
	var refs []conditionRef

	_ = walk(s.Fields, "", nil, 1, func(n node) error {
		f := n.field
		name := n.path
		if name == "" {
			name = f.Key
		}
		if name == "" {
			name = "(unnamed " + string(f.Type) + ")"
		}

		if !keyPattern.MatchString(f.Key) {
			errs.Add(name, "key must match %s", keyPattern.String())
		} else if keys[f.Key] {
			errs.Add(name, "duplicate key %q", f.Key)
		}
		keys[f.Key] = true
		if n.path != "" {
			paths[n.path] = true
		}

		if !f.Type.Known() {
			errs.Add(name, "unknown field type %q", f.Type)
		}
		if n.depth > MaxDepth {
			errs.Add(name, "nesting deeper than %d", MaxDepth)
		}

		switch {
		case f.Type.IsChoice():
			if len(f.Options) == 0 {
				errs.Add(name, "choice field needs options")
			}
			seen := map[string]bool{}
			for _, o := range f.Options {
				if o.Value == "" {
					errs.Add(name, "option value cannot be empty")
					continue
				}
				if seen[o.Value] {
					errs.Add(name, "duplicate option %q", o.Value)
				}
				seen[o.Value] = true
			}
		case f.Type == TypeGroup:
			if len(f.Fields) == 0 {
				errs.Add(name, "group needs at least one field")
			}
		case f.Type == TypeTabs:
			if len(f.Tabs) == 0 {
				errs.Add(name, "tabs need at least one tab")
			}
			for _, tab := range f.Tabs {
				if !keyPattern.MatchString(tab.Key) {
					errs.Add(name, "tab key %q is invalid", tab.Key)
				} else if keys[tab.Key] {
					errs.Add(name, "duplicate key %q", tab.Key)
				}
				keys[tab.Key] = true
				if len(tab.Fields) == 0 {
					errs.Add(name+"."+tab.Key, "tab needs at least one field")
				}
			}
		case f.Type == TypeFormula:
			if strings.TrimSpace(f.Formula) == "" {
				errs.Add(name, "formula field needs an expression")
			} else if _, err := compileFormula(f.Formula); err != nil {
				errs.Add(name, "%v", err)
			}
		}

		if v := f.Validation; v != nil {
			if v.Pattern != "" {
				if _, err := regexp.Compile(v.Pattern); err != nil {
					errs.Add(name, "invalid pattern: %v", err)
				}
			}
			if v.Min != nil && v.Max != nil && *v.Min > *v.Max {
				errs.Add(name, "min greater than max")
			}
			if v.MinLength != nil && v.MaxLength != nil && *v.MinLength > *v.MaxLength {
				errs.Add(name, "minLength greater than maxLength")
			}
		}

		if f.VisibleWhen != nil {
			refs = append(refs, conditionRef{owner: name, cond: f.VisibleWhen})
		}
		return nil
	})

	for _, ref := range refs {
		for _, op := range ref.cond.operators() {
			if op != "" && !knownOperators[op] {
				errs.Add(ref.owner, "unknown operator %q", op)
			}
		}
		for _, field := range ref.cond.fields() {
			if strings.HasPrefix(field, "$") {
				continue
			}
			if !paths[field] {
				errs.Add(ref.owner, "condition references unknown field %q", field)
			}
		}
	}
	return errs.OrNil()
}
