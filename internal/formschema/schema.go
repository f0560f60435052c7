// Package formschema implements the dynamic form engine: recursive field
// schemas with groups, tabs, conditional visibility, formulas and scoring,
// plus validation of submitted data against a schema.
package formschema

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

type FieldType string

const (
	TypeText        FieldType = "text"
	TypeTextarea    FieldType = "textarea"
	TypeNumber      FieldType = "number"
	TypeEmail       FieldType = "email"
	TypeDate        FieldType = "date"
	TypeSelect      FieldType = "select"
	TypeMultiSelect FieldType = "multiselect"
	TypeRadio       FieldType = "radio"
	TypeCheckbox    FieldType = "checkbox"
	TypeFile        FieldType = "file"
	TypeSignature   FieldType = "signature"
	TypeFormula     FieldType = "formula"
	TypeGroup       FieldType = "group"
	TypeTabs        FieldType = "tabs"
)

// MaxDepth bounds container nesting.
const MaxDepth = 8

func (t FieldType) Known() bool {
	switch t {
	case TypeText, TypeTextarea, TypeNumber, TypeEmail, TypeDate, TypeSelect,
		TypeMultiSelect, TypeRadio, TypeCheckbox, TypeFile, TypeSignature,
		TypeFormula, TypeGroup, TypeTabs:
		return true
	}
	return false
}

func (t FieldType) IsChoice() bool {
	return t == TypeSelect || t == TypeMultiSelect || t == TypeRadio
}

func (t FieldType) IsContainer() bool {
	return t == TypeGroup || t == TypeTabs
}

type Option struct {
	Value  string            `json:"value"`
	Label  string            `json:"label"`
	Labels map[string]string `json:"labels,omitempty"`
	Score  *float64          `json:"score,omitempty"`
}

type Validation struct {
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
	MinLength *int     `json:"minLength,omitempty"`
	MaxLength *int     `json:"maxLength,omitempty"`
	Pattern   string   `json:"pattern,omitempty"`
}

// Condition is either a leaf comparison (Field, Operator, Value) or a
// combination of nested conditions through All or Any.
type Condition struct {
	Field    string      `json:"field,omitempty"`
	Operator string      `json:"operator,omitempty"`
	Value    any         `json:"value,omitempty"`
	All      []Condition `json:"all,omitempty"`
	Any      []Condition `json:"any,omitempty"`
}

type Tab struct {
	Key    string            `json:"key"`
	Label  string            `json:"label"`
	Labels map[string]string `json:"labels,omitempty"`
	Fields []Field           `json:"fields"`
}

// Field is a node of the schema tree. Groups nest their values under
// their own key; tabs only organise layout and keep values at the parent
// level.
type Field struct {
	Key         string            `json:"key"`
	Type        FieldType         `json:"type"`
	Label       string            `json:"label,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
	Required    bool              `json:"required,omitempty"`
	Placeholder string            `json:"placeholder,omitempty"`
	Help        string            `json:"help,omitempty"`
	Options     []Option          `json:"options,omitempty"`
	Validation  *Validation       `json:"validation,omitempty"`
	VisibleWhen *Condition        `json:"visibleWhen,omitempty"`
	Formula     string            `json:"formula,omitempty"`
	Weight      float64           `json:"weight,omitempty"`
	Fields      []Field           `json:"fields,omitempty"`
	Tabs        []Tab             `json:"tabs,omitempty"`
}

type Schema struct {
	Fields []Field `json:"fields"`
}

func (s Schema) Value() (driver.Value, error) {
	if s.Fields == nil {
		s.Fields = []Field{}
	}
	return json.Marshal(s)
}

func (s *Schema) Scan(src any) error {
	return scanJSON(src, s)
}

type ScoringSettings struct {
	Enabled   bool    `json:"enabled"`
	MaxScore  float64 `json:"maxScore,omitempty"`
	PassScore float64 `json:"passScore,omitempty"`
}

type AutosaveSettings struct {
	Enabled         bool `json:"enabled"`
	IntervalSeconds int  `json:"intervalSeconds,omitempty"`
}

type Settings struct {
	Scoring         ScoringSettings  `json:"scoring"`
	Languages       []string         `json:"languages,omitempty"`
	DefaultLanguage string           `json:"defaultLanguage,omitempty"`
	Autosave        AutosaveSettings `json:"autosave"`
	AllowPartial    bool             `json:"allowPartial,omitempty"`
}

func (s Settings) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *Settings) Scan(src any) error {
	return scanJSON(src, s)
}

// Validate checks the settings block on its own.
func (s Settings) Validate() error {
	var errs ValidationErrors
	if s.DefaultLanguage != "" && len(s.Languages) > 0 {
		found := false
		for _, l := range s.Languages {
			if l == s.DefaultLanguage {
				found = true
				break
			}
		}
		if !found {
			errs.Add("settings.defaultLanguage", "must be one of settings.languages")
		}
	}
	if s.Scoring.MaxScore < 0 || s.Scoring.PassScore < 0 {
		errs.Add("settings.scoring", "scores cannot be negative")
	}
	if s.Scoring.MaxScore > 0 && s.Scoring.PassScore > s.Scoring.MaxScore {
		errs.Add("settings.scoring.passScore", "cannot exceed maxScore")
	}
	if s.Autosave.Enabled && s.Autosave.IntervalSeconds != 0 && s.Autosave.IntervalSeconds < 5 {
		errs.Add("settings.autosave.intervalSeconds", "must be at least 5")
	}
	return errs.OrNil()
}

func scanJSON(src any, dst any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dst)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("formschema: unsupported scan type %T", src)
	}
}
