package models

import (
	"time"

	"github.com/larscolombia/kapa/internal/formschema"
)

// FormTemplate is a versioned form definition. Version is bumped whenever
// the schema or settings change; every version is kept in
// FormTemplateVersion.
type FormTemplate struct {
	ID          string              `db:"id" json:"id"`
	Name        string              `db:"name" json:"name"`
	Slug        string              `db:"slug" json:"slug"`
	Description string              `db:"description" json:"description,omitempty"`
	Tipo        string              `db:"tipo" json:"tipo,omitempty"`
	Version     int                 `db:"version" json:"version"`
	Schema      formschema.Schema   `db:"schema" json:"schema"`
	Settings    formschema.Settings `db:"settings" json:"settings"`
	Active      bool                `db:"active" json:"active"`
	CreatedBy   string              `db:"created_by" json:"createdBy"`
	CreatedAt   time.Time           `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time           `db:"updated_at" json:"updatedAt"`
}

type FormTemplateVersion struct {
	TemplateID string              `db:"template_id" json:"templateId"`
	Version    int                 `db:"version" json:"version"`
	Schema     formschema.Schema   `db:"schema" json:"schema"`
	Settings   formschema.Settings `db:"settings" json:"settings"`
	CreatedBy  string              `db:"created_by" json:"createdBy"`
	CreatedAt  time.Time           `db:"created_at" json:"createdAt"`
}
