package formschema

import (
	"context"
	"encoding/json"
	"net/mail"
	"regexp"
	"time"
	"unicode/utf8"
)

// Result is the outcome of running a schema over submitted data.
type Result struct {
	// Data holds only visible, known fields plus formula values.
	Data     map[string]any
	Computed map[string]any
	Hidden   map[string]bool
}

// Evaluate computes formulas, resolves visibility and strips hidden or
// unknown keys. Formulas run in schema order so later formulas can use
// earlier results. Conditions are evaluated once, against the data with
// formulas applied and before anything is stripped.
func (s Schema) Evaluate(ctx context.Context, data map[string]any) Result {
	work := canonical(data)
	computed := map[string]any{}

	_ = walk(s.Fields, "", nil, 1, func(n node) error {
		if n.field.Type != TypeFormula {
			return nil
		}
		val, err := EvalFormula(ctx, n.field.Formula, work)
		if err != nil {
			deletePath(work, n.path)
			return nil
		}
		setPath(work, n.path, val)
		computed[n.path] = val
		return nil
	})

	raw, _ := json.Marshal(work)
	view := dataView{data: work, raw: raw}

	hidden := map[string]bool{}
	out := map[string]any{}
	_ = walk(s.Fields, "", nil, 1, func(n node) error {
		visible := true
		for _, c := range n.conditions {
			if !c.eval(view) {
				visible = false
				break
			}
		}
		if !visible {
			if n.path != "" {
				hidden[n.path] = true
			}
			return nil
		}
		if n.field.Type.IsContainer() {
			return nil
		}
		if v, ok := getPath(work, n.path); ok {
			setPath(out, n.path, v)
		}
		return nil
	})

	for path := range computed {
		if hidden[path] {
			delete(computed, path)
		}
	}
	return Result{Data: out, Computed: computed, Hidden: hidden}
}

// ValidateData checks the values of visible fields. With requireAll set,
// visible required fields must carry a value.
func (s Schema) ValidateData(res Result, requireAll bool) error {
	var errs ValidationErrors
	_ = walk(s.Fields, "", nil, 1, func(n node) error {
		f := n.field
		if f.Type.IsContainer() || f.Type == TypeFormula || res.Hidden[n.path] || hiddenAncestor(res.Hidden, n.path) {
			return nil
		}
		v, ok := getPath(res.Data, n.path)
		if !ok || isEmpty(v) {
			if requireAll && f.Required {
				errs.Add(n.path, "is required")
			}
			return nil
		}
		checkValue(&errs, n.path, f, v)
		return nil
	})
	return errs.OrNil()
}

func hiddenAncestor(hidden map[string]bool, path string) bool {
	for i := len(path) - 1; i > 0; i-- {
		if path[i] == '.' && hidden[path[:i]] {
			return true
		}
	}
	return false
}

func checkValue(errs *ValidationErrors, path string, f *Field, v any) {
	switch f.Type {
	case TypeText, TypeTextarea, TypeSignature:
		s, ok := v.(string)
		if !ok {
			errs.Add(path, "must be a string")
			return
		}
		checkString(errs, path, f.Validation, s)
	case TypeEmail:
		s, ok := v.(string)
		if !ok {
			errs.Add(path, "must be a string")
			return
		}
		if addr, err := mail.ParseAddress(s); err != nil || addr.Address != s {
			errs.Add(path, "must be a valid email address")
		}
	case TypeNumber:
		n, ok := v.(float64)
		if !ok {
			errs.Add(path, "must be a number")
			return
		}
		if val := f.Validation; val != nil {
			if val.Min != nil && n < *val.Min {
				errs.Add(path, "must be at least %v", *val.Min)
			}
			if val.Max != nil && n > *val.Max {
				errs.Add(path, "must be at most %v", *val.Max)
			}
		}
	case TypeDate:
		s, ok := v.(string)
		if !ok || !validDate(s) {
			errs.Add(path, "must be a date (YYYY-MM-DD or RFC 3339)")
		}
	case TypeSelect, TypeRadio:
		s, ok := v.(string)
		if !ok || !hasOption(f.Options, s) {
			errs.Add(path, "must be one of the field options")
		}
	case TypeMultiSelect:
		items, ok := v.([]any)
		if !ok {
			errs.Add(path, "must be a list")
			return
		}
		for _, item := range items {
			s, ok := item.(string)
			if !ok || !hasOption(f.Options, s) {
				errs.Add(path, "contains a value outside the field options")
				return
			}
		}
		if val := f.Validation; val != nil {
			if val.MinLength != nil && len(items) < *val.MinLength {
				errs.Add(path, "needs at least %d selections", *val.MinLength)
			}
			if val.MaxLength != nil && len(items) > *val.MaxLength {
				errs.Add(path, "allows at most %d selections", *val.MaxLength)
			}
		}
	case TypeCheckbox:
		if _, ok := v.(bool); !ok {
			errs.Add(path, "must be true or false")
		}
	case TypeFile:
		switch x := v.(type) {
		case string:
		case []any:
			for _, item := range x {
				if _, ok := item.(string); !ok {
					errs.Add(path, "must reference files by id")
					return
				}
			}
		default:
			errs.Add(path, "must reference files by id")
		}
	}
}

func checkString(errs *ValidationErrors, path string, val *Validation, s string) {
	if val == nil {
		return
	}
	n := utf8.RuneCountInString(s)
	if val.MinLength != nil && n < *val.MinLength {
		errs.Add(path, "must have at least %d characters", *val.MinLength)
	}
	if val.MaxLength != nil && n > *val.MaxLength {
		errs.Add(path, "must have at most %d characters", *val.MaxLength)
	}
	if val.Pattern != "" {
		re, err := regexp.Compile(val.Pattern)
		if err == nil && !re.MatchString(s) {
			errs.Add(path, "does not match the expected format")
		}
	}
}

func validDate(s string) bool {
	if _, err := time.Parse("2006-01-02", s); err == nil {
		return true
	}
	_, err := time.Parse(time.RFC3339, s)
	return err == nil
}

func hasOption(opts []Option, v string) bool {
	for _, o := range opts {
		if o.Value == v {
			return true
		}
	}
	return false
}

// canonical deep-copies data through JSON so numbers are float64 and
// nested objects are map[string]any.
func canonical(data map[string]any) map[string]any {
	out := map[string]any{}
	if len(data) == 0 {
		return out
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return out
	}
	_ = json.Unmarshal(raw, &out)
	return out
}
