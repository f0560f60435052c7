package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/larscolombia/kapa/internal/models"
)

type MaestroRepo struct {
	db *sqlx.DB
}

func NewMaestroRepo(db *sqlx.DB) *MaestroRepo {
	return &MaestroRepo{db: db}
}

func (r *MaestroRepo) Create(ctx context.Context, m *models.Maestro) error {
	m.ID = newID()
	now := time.Now().UTC()
	m.CreatedAt, m.UpdatedAt = now, now
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO maestros (id, category, code, label, sort_order, active, created_at, updated_at)
		VALUES (:id, :category, :code, :label, :sort_order, :active, :created_at, :updated_at)`, m)
	return mapErr(err)
}

// Upsert inserts or relabels a maestro keyed by (category, code).
func (r *MaestroRepo) Upsert(ctx context.Context, m *models.Maestro) error {
	if m.ID == "" {
		m.ID = newID()
	}
	return r.db.GetContext(ctx, &m.ID, `
		INSERT INTO maestros (id, category, code, label, sort_order, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (category, code) DO UPDATE SET label = EXCLUDED.label, sort_order = EXCLUDED.sort_order,
			active = EXCLUDED.active, updated_at = now()
		RETURNING id`, m.ID, m.Category, m.Code, m.Label, m.SortOrder, m.Active)
}

func (r *MaestroRepo) Get(ctx context.Context, id string) (*models.Maestro, error) {
	var m models.Maestro
	if err := r.db.GetContext(ctx, &m, `SELECT * FROM maestros WHERE id = $1`, id); err != nil {
		return nil, mapErr(err)
	}
	return &m, nil
}

func (r *MaestroRepo) List(ctx context.Context, category string, activeOnly bool) ([]models.Maestro, error) {
	w := &where{}
	if category != "" {
		w.add("category = ?", category)
	}
	if activeOnly {
		w.add("active")
	}
	out := []models.Maestro{}
	err := r.db.SelectContext(ctx, &out, `SELECT * FROM maestros`+w.String()+` ORDER BY category, sort_order, label`, w.args...)
	return out, err
}

func (r *MaestroRepo) Categories(ctx context.Context) ([]string, error) {
	out := []string{}
	err := r.db.SelectContext(ctx, &out, `SELECT DISTINCT category FROM maestros ORDER BY category`)
	return out, err
}

// ActiveCode reports whether code is an active maestro of category.
func (r *MaestroRepo) ActiveCode(ctx context.Context, category, code string) (bool, error) {
	var ok bool
	err := r.db.GetContext(ctx, &ok, `SELECT EXISTS (SELECT 1 FROM maestros WHERE category = $1 AND code = $2 AND active)`, category, code)
	return ok, err
}

func (r *MaestroRepo) Update(ctx context.Context, m *models.Maestro) error {
	m.UpdatedAt = time.Now().UTC()
	res, err := r.db.NamedExecContext(ctx, `
		UPDATE maestros SET code = :code, label = :label, sort_order = :sort_order, active = :active, updated_at = :updated_at
		WHERE id = :id`, m)
	return expectOne(res, err)
}
