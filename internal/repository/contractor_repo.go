package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/larscolombia/kapa/internal/models"
)

type ContractorRepo struct {
	db *sqlx.DB
}

func NewContractorRepo(db *sqlx.DB) *ContractorRepo {
	return &ContractorRepo{db: db}
}

func (r *ContractorRepo) Create(ctx context.Context, c *models.Contractor) error {
	c.ID = newID()
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO contractors (id, name, tax_id, contact_email, phone, created_at, updated_at)
		VALUES (:id, :name, :tax_id, :contact_email, :phone, :created_at, :updated_at)`, c)
	return mapErr(err)
}

func (r *ContractorRepo) Get(ctx context.Context, id string) (*models.Contractor, error) {
	var c models.Contractor
	if err := r.db.GetContext(ctx, &c, `SELECT * FROM contractors WHERE id = $1`, id); err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

func (r *ContractorRepo) List(ctx context.Context, scope models.Scope) ([]models.Contractor, error) {
	w := &where{}
	switch scope.Role {
	case models.RoleAdmin:
	case models.RoleClient:
		w.add(`id IN (SELECT pc.contractor_id FROM project_contractors pc
			JOIN projects p ON p.id = pc.project_id WHERE p.client_id = ?)`, scope.ClientID)
	case models.RoleContractor:
		w.add("id = ?", scope.ContractorID)
	default:
		w.add("FALSE")
	}
	out := []models.Contractor{}
	err := r.db.SelectContext(ctx, &out, `SELECT * FROM contractors`+w.String()+` ORDER BY name`, w.args...)
	return out, err
}

func (r *ContractorRepo) Update(ctx context.Context, c *models.Contractor) error {
	c.UpdatedAt = time.Now().UTC()
	res, err := r.db.NamedExecContext(ctx, `
		UPDATE contractors SET name = :name, tax_id = :tax_id, contact_email = :contact_email,
			phone = :phone, updated_at = :updated_at
		WHERE id = :id`, c)
	return expectOne(res, err)
}

func (r *ContractorRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM contractors WHERE id = $1`, id)
	return expectOne(res, err)
}

const pcColumns = `pc.id, pc.project_id, pc.contractor_id, pc.completion, pc.created_at, pc.updated_at,
	c.name AS contractor_name, p.name AS project_name`

const pcFrom = ` FROM project_contractors pc
	JOIN contractors c ON c.id = pc.contractor_id
	JOIN projects p ON p.id = pc.project_id`

// Assign links a contractor to a project.
func (r *ContractorRepo) Assign(ctx context.Context, projectID, contractorID string) (*models.ProjectContractor, error) {
	id := newID()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO project_contractors (id, project_id, contractor_id) VALUES ($1, $2, $3)`,
		id, projectID, contractorID)
	if err != nil {
		return nil, mapErr(err)
	}
	return r.Assignment(ctx, id)
}

func (r *ContractorRepo) Unassign(ctx context.Context, projectID, contractorID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM project_contractors WHERE project_id = $1 AND contractor_id = $2`, projectID, contractorID)
	return expectOne(res, err)
}

func (r *ContractorRepo) Assignment(ctx context.Context, id string) (*models.ProjectContractor, error) {
	var pc models.ProjectContractor
	if err := r.db.GetContext(ctx, &pc, `SELECT `+pcColumns+pcFrom+` WHERE pc.id = $1`, id); err != nil {
		return nil, mapErr(err)
	}
	return &pc, nil
}

func (r *ContractorRepo) ListByProject(ctx context.Context, projectID string) ([]models.ProjectContractor, error) {
	out := []models.ProjectContractor{}
	err := r.db.SelectContext(ctx, &out, `SELECT `+pcColumns+pcFrom+` WHERE pc.project_id = $1 ORDER BY c.name`, projectID)
	return out, err
}

func (r *ContractorRepo) ListByContractor(ctx context.Context, contractorID string, scope models.Scope) ([]models.ProjectContractor, error) {
	w := &where{}
	w.add("pc.contractor_id = ?", contractorID)
	scopeProjects(w, "p", scope)
	out := []models.ProjectContractor{}
	err := r.db.SelectContext(ctx, &out, `SELECT `+pcColumns+pcFrom+w.String()+` ORDER BY p.name`, w.args...)
	return out, err
}

// Assignments lists every project link of a contractor, unscoped.
func (r *ContractorRepo) Assignments(ctx context.Context, contractorID string) ([]models.ProjectContractor, error) {
	out := []models.ProjectContractor{}
	err := r.db.SelectContext(ctx, &out, `SELECT `+pcColumns+pcFrom+` WHERE pc.contractor_id = $1`, contractorID)
	return out, err
}

func (r *ContractorRepo) SetCompletion(ctx context.Context, id string, completion float64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE project_contractors SET completion = $2, updated_at = now() WHERE id = $1`, id, completion)
	return expectOne(res, err)
}
