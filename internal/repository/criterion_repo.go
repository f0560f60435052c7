package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/larscolombia/kapa/internal/models"
)

type CriterionRepo struct {
	db *sqlx.DB
}

func NewCriterionRepo(db *sqlx.DB) *CriterionRepo {
	return &CriterionRepo{db: db}
}

func (r *CriterionRepo) Create(ctx context.Context, c *models.Criterion) error {
	c.ID = newID()
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO criteria (id, name, description, sort_order, created_at, updated_at)
		VALUES (:id, :name, :description, :sort_order, :created_at, :updated_at)`, c)
	return mapErr(err)
}

func (r *CriterionRepo) List(ctx context.Context) ([]models.Criterion, error) {
	out := []models.Criterion{}
	err := r.db.SelectContext(ctx, &out, `SELECT * FROM criteria ORDER BY sort_order, name`)
	return out, err
}

func (r *CriterionRepo) Get(ctx context.Context, id string) (*models.Criterion, error) {
	var c models.Criterion
	if err := r.db.GetContext(ctx, &c, `SELECT * FROM criteria WHERE id = $1`, id); err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

func (r *CriterionRepo) Update(ctx context.Context, c *models.Criterion) error {
	c.UpdatedAt = time.Now().UTC()
	res, err := r.db.NamedExecContext(ctx, `
		UPDATE criteria SET name = :name, description = :description, sort_order = :sort_order, updated_at = :updated_at
		WHERE id = :id`, c)
	return expectOne(res, err)
}

func (r *CriterionRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM criteria WHERE id = $1`, id)
	return expectOne(res, err)
}

func (r *CriterionRepo) CreateSub(ctx context.Context, s *models.Subcriterion) error {
	s.ID = newID()
	now := time.Now().UTC()
	s.CreatedAt, s.UpdatedAt = now, now
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO subcriteria (id, criterion_id, name, scope, requires_validity, sort_order, created_at, updated_at)
		VALUES (:id, :criterion_id, :name, :scope, :requires_validity, :sort_order, :created_at, :updated_at)`, s)
	return mapErr(err)
}

func (r *CriterionRepo) GetSub(ctx context.Context, id string) (*models.Subcriterion, error) {
	var s models.Subcriterion
	if err := r.db.GetContext(ctx, &s, `SELECT * FROM subcriteria WHERE id = $1`, id); err != nil {
		return nil, mapErr(err)
	}
	return &s, nil
}

// ListSubs filters by criterion and scope when given.
func (r *CriterionRepo) ListSubs(ctx context.Context, criterionID string, scope models.SubcriterionScope) ([]models.Subcriterion, error) {
	w := &where{}
	if criterionID != "" {
		w.add("criterion_id = ?", criterionID)
	}
	if scope != "" {
		w.add("scope = ?", scope)
	}
	out := []models.Subcriterion{}
	err := r.db.SelectContext(ctx, &out, `SELECT * FROM subcriteria`+w.String()+` ORDER BY sort_order, name`, w.args...)
	return out, err
}

func (r *CriterionRepo) UpdateSub(ctx context.Context, s *models.Subcriterion) error {
	s.UpdatedAt = time.Now().UTC()
	res, err := r.db.NamedExecContext(ctx, `
		UPDATE subcriteria SET name = :name, scope = :scope, requires_validity = :requires_validity,
			sort_order = :sort_order, updated_at = :updated_at
		WHERE id = :id`, s)
	return expectOne(res, err)
}

func (r *CriterionRepo) DeleteSub(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM subcriteria WHERE id = $1`, id)
	return expectOne(res, err)
}
