package formschema

// Render returns a copy of the schema with every label resolved for lang,
// falling back to fallback and then to the base label.
func (s Schema) Render(lang, fallback string) Schema {
	return Schema{Fields: renderFields(s.Fields, lang, fallback)}
}

func renderFields(fields []Field, lang, fallback string) []Field {
	out := make([]Field, len(fields))
	for i, f := range fields {
		f.Label = pickLabel(f.Label, f.Labels, lang, fallback)
		f.Labels = nil
		if len(f.Options) > 0 {
			opts := make([]Option, len(f.Options))
			for j, o := range f.Options {
				o.Label = pickLabel(o.Label, o.Labels, lang, fallback)
				o.Labels = nil
				opts[j] = o
			}
			f.Options = opts
		}
		if len(f.Fields) > 0 {
			f.Fields = renderFields(f.Fields, lang, fallback)
		}
		if len(f.Tabs) > 0 {
			tabs := make([]Tab, len(f.Tabs))
			for j, t := range f.Tabs {
				t.Label = pickLabel(t.Label, t.Labels, lang, fallback)
				t.Labels = nil
				t.Fields = renderFields(t.Fields, lang, fallback)
				tabs[j] = t
			}
			f.Tabs = tabs
		}
		out[i] = f
	}
	return out
}

func pickLabel(base string, labels map[string]string, lang, fallback string) string {
	if l, ok := labels[lang]; ok && l != "" {
		return l
	}
	if l, ok := labels[fallback]; ok && l != "" {
		return l
	}
	return base
}
