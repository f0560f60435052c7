package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/larscolombia/kapa/internal/models"
)

type ClientRepo struct {
	db *sqlx.DB
}

func NewClientRepo(db *sqlx.DB) *ClientRepo {
	return &ClientRepo{db: db}
}

func (r *ClientRepo) Create(ctx context.Context, c *models.Client) error {
	c.ID = newID()
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO clients (id, name, tax_id, contact_email, active, created_at, updated_at)
		VALUES (:id, :name, :tax_id, :contact_email, :active, :created_at, :updated_at)`, c)
	return mapErr(err)
}

func (r *ClientRepo) Get(ctx context.Context, id string) (*models.Client, error) {
	var c models.Client
	if err := r.db.GetContext(ctx, &c, `SELECT * FROM clients WHERE id = $1`, id); err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

// List returns every client for admins and only the caller's own client
// otherwise.
func (r *ClientRepo) List(ctx context.Context, scope models.Scope) ([]models.Client, error) {
	w := &where{}
	switch scope.Role {
	case models.RoleAdmin:
	case models.RoleClient:
		w.add("id = ?", scope.ClientID)
	case models.RoleContractor:
		w.add(`id IN (SELECT p.client_id FROM projects p
			JOIN project_contractors pc ON pc.project_id = p.id WHERE pc.contractor_id = ?)`, scope.ContractorID)
	default:
		w.add("FALSE")
	}
	out := []models.Client{}
	err := r.db.SelectContext(ctx, &out, `SELECT * FROM clients`+w.String()+` ORDER BY name`, w.args...)
	return out, err
}

func (r *ClientRepo) Update(ctx context.Context, c *models.Client) error {
	c.UpdatedAt = time.Now().UTC()
	res, err := r.db.NamedExecContext(ctx, `
		UPDATE clients SET name = :name, tax_id = :tax_id, contact_email = :contact_email,
			active = :active, updated_at = :updated_at
		WHERE id = :id`, c)
	return expectOne(res, err)
}

func (r *ClientRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM clients WHERE id = $1`, id)
	return expectOne(res, err)
}
