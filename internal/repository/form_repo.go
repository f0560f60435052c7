package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/larscolombia/kapa/internal/models"
)

type FormRepo struct {
	db *sqlx.DB
}

func NewFormRepo(db *sqlx.DB) *FormRepo {
	return &FormRepo{db: db}
}

// Create inserts the template and its version 1 snapshot.
func (r *FormRepo) Create(ctx context.Context, t *models.FormTemplate) error {
	t.ID = newID()
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	if t.Version == 0 {
		t.Version = 1
	}
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO form_templates (id, name, slug, description, tipo, version, schema, settings, active, created_by, created_at, updated_at)
			VALUES (:id, :name, :slug, :description, :tipo, :version, :schema, :settings, :active, :created_by, :created_at, :updated_at)`, t)
		if err != nil {
			return mapErr(err)
		}
		return insertVersion(ctx, tx, t)
	})
}

func insertVersion(ctx context.Context, tx *sqlx.Tx, t *models.FormTemplate) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO form_template_versions (template_id, version, schema, settings, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`, t.ID, t.Version, t.Schema, t.Settings, t.CreatedBy, t.UpdatedAt)
	return mapErr(err)
}

func (r *FormRepo) Get(ctx context.Context, id string) (*models.FormTemplate, error) {
	var t models.FormTemplate
	if err := r.db.GetContext(ctx, &t, `SELECT * FROM form_templates WHERE id = $1`, id); err != nil {
		return nil, mapErr(err)
	}
	return &t, nil
}

func (r *FormRepo) GetBySlug(ctx context.Context, slug string) (*models.FormTemplate, error) {
	var t models.FormTemplate
	if err := r.db.GetContext(ctx, &t, `SELECT * FROM form_templates WHERE slug = $1`, slug); err != nil {
		return nil, mapErr(err)
	}
	return &t, nil
}

type FormFilter struct {
	Tipo       string
	ActiveOnly bool
}

func (r *FormRepo) List(ctx context.Context, f FormFilter) ([]models.FormTemplate, error) {
	w := &where{}
	if f.Tipo != "" {
		w.add("tipo = ?", f.Tipo)
	}
	if f.ActiveOnly {
		w.add("active")
	}
	out := []models.FormTemplate{}
	err := r.db.SelectContext(ctx, &out, `SELECT * FROM form_templates`+w.String()+` ORDER BY name`, w.args...)
	return out, err
}

// Update saves the template. When snapshot is set the current version is
// also recorded in form_template_versions.
func (r *FormRepo) Update(ctx context.Context, t *models.FormTemplate, snapshot bool) error {
	t.UpdatedAt = time.Now().UTC()
	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		res, err := tx.NamedExecContext(ctx, `
			UPDATE form_templates SET name = :name, slug = :slug, description = :description, tipo = :tipo,
				version = :version, schema = :schema, settings = :settings, active = :active, updated_at = :updated_at
			WHERE id = :id`, t)
		if err := expectOne(res, err); err != nil {
			return err
		}
		if !snapshot {
			return nil
		}
		return insertVersion(ctx, tx, t)
	})
}

func (r *FormRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM form_templates WHERE id = $1`, id)
	return expectOne(res, err)
}

func (r *FormRepo) Versions(ctx context.Context, id string) ([]models.FormTemplateVersion, error) {
	out := []models.FormTemplateVersion{}
	err := r.db.SelectContext(ctx, &out, `SELECT * FROM form_template_versions WHERE template_id = $1 ORDER BY version DESC`, id)
	return out, err
}

func (r *FormRepo) Version(ctx context.Context, id string, version int) (*models.FormTemplateVersion, error) {
	var v models.FormTemplateVersion
	if err := r.db.GetContext(ctx, &v, `SELECT * FROM form_template_versions WHERE template_id = $1 AND version = $2`, id, version); err != nil {
		return nil, mapErr(err)
	}
	return &v, nil
}
