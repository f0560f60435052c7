package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/larscolombia/kapa/internal/models"
)

type EmployeeRepo struct {
	db *sqlx.DB
}

func NewEmployeeRepo(db *sqlx.DB) *EmployeeRepo {
	return &EmployeeRepo{db: db}
}

func (r *EmployeeRepo) Create(ctx context.Context, e *models.Employee) error {
	e.ID = newID()
	now := time.Now().UTC()
	e.CreatedAt, e.UpdatedAt = now, now
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO employees (id, contractor_id, full_name, document_number, position, active, created_at, updated_at)
		VALUES (:id, :contractor_id, :full_name, :document_number, :position, :active, :created_at, :updated_at)`, e)
	return mapErr(err)
}

func (r *EmployeeRepo) Get(ctx context.Context, id string) (*models.Employee, error) {
	var e models.Employee
	if err := r.db.GetContext(ctx, &e, `SELECT * FROM employees WHERE id = $1`, id); err != nil {
		return nil, mapErr(err)
	}
	return &e, nil
}

func (r *EmployeeRepo) ListByContractor(ctx context.Context, contractorID string, activeOnly bool) ([]models.Employee, error) {
	w := &where{}
	w.add("contractor_id = ?", contractorID)
	if activeOnly {
		w.add("active")
	}
	out := []models.Employee{}
	err := r.db.SelectContext(ctx, &out, `SELECT * FROM employees`+w.String()+` ORDER BY full_name`, w.args...)
	return out, err
}

func (r *EmployeeRepo) Update(ctx context.Context, e *models.Employee) error {
	e.UpdatedAt = time.Now().UTC()
	res, err := r.db.NamedExecContext(ctx, `
		UPDATE employees SET full_name = :full_name, document_number = :document_number,
			position = :position, active = :active, updated_at = :updated_at
		WHERE id = :id`, e)
	return expectOne(res, err)
}

func (r *EmployeeRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM employees WHERE id = $1`, id)
	return expectOne(res, err)
}
