package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/larscolombia/kapa/internal/models"
)

type ProjectRepo struct {
	db *sqlx.DB
}

func NewProjectRepo(db *sqlx.DB) *ProjectRepo {
	return &ProjectRepo{db: db}
}

func (r *ProjectRepo) Create(ctx context.Context, p *models.Project) error {
	p.ID = newID()
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	if p.Status == "" {
		p.Status = models.ProjectActive
	}
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO projects (id, client_id, name, code, location, start_date, end_date, status, created_at, updated_at)
		VALUES (:id, :client_id, :name, :code, :location, :start_date, :end_date, :status, :created_at, :updated_at)`, p)
	return mapErr(err)
}

func (r *ProjectRepo) Get(ctx context.Context, id string) (*models.Project, error) {
	var p models.Project
	if err := r.db.GetContext(ctx, &p, `SELECT * FROM projects WHERE id = $1`, id); err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}

// Visible reports whether the scope may see the project.
func (r *ProjectRepo) Visible(ctx context.Context, id string, scope models.Scope) (bool, error) {
	w := &where{}
	w.add("p.id = ?", id)
	scopeProjects(w, "p", scope)
	var ok bool
	err := r.db.GetContext(ctx, &ok, `SELECT EXISTS (SELECT 1 FROM projects p`+w.String()+`)`, w.args...)
	return ok, err
}

func (r *ProjectRepo) List(ctx context.Context, scope models.Scope, clientID string) ([]models.Project, error) {
	w := &where{}
	scopeProjects(w, "p", scope)
	if clientID != "" {
		w.add("p.client_id = ?", clientID)
	}
	out := []models.Project{}
	err := r.db.SelectContext(ctx, &out, `SELECT p.* FROM projects p`+w.String()+` ORDER BY p.name`, w.args...)
	return out, err
}

func (r *ProjectRepo) Update(ctx context.Context, p *models.Project) error {
	p.UpdatedAt = time.Now().UTC()
	res, err := r.db.NamedExecContext(ctx, `
		UPDATE projects SET name = :name, code = :code, location = :location, start_date = :start_date,
			end_date = :end_date, status = :status, updated_at = :updated_at
		WHERE id = :id`, p)
	return expectOne(res, err)
}

func (r *ProjectRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	return expectOne(res, err)
}
