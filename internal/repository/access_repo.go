package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/larscolombia/kapa/internal/models"
)

type AccessRepo struct {
	db *sqlx.DB
}

func NewAccessRepo(db *sqlx.DB) *AccessRepo {
	return &AccessRepo{db: db}
}

func (r *AccessRepo) EnsureRole(ctx context.Context, role models.RoleInfo) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO roles (name, description) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description`, role.Name, role.Description)
	return err
}

func (r *AccessRepo) ListRoles(ctx context.Context) ([]models.RoleInfo, error) {
	roles := []models.RoleInfo{}
	err := r.db.SelectContext(ctx, &roles, `SELECT name, description FROM roles ORDER BY name`)
	return roles, err
}

func (r *AccessRepo) RoleExists(ctx context.Context, role models.Role) (bool, error) {
	var ok bool
	err := r.db.GetContext(ctx, &ok, `SELECT EXISTS (SELECT 1 FROM roles WHERE name = $1)`, role)
	return ok, err
}

func (r *AccessRepo) Permissions(ctx context.Context, role models.Role) ([]string, error) {
	perms := []string{}
	err := r.db.SelectContext(ctx, &perms, `SELECT permission FROM access WHERE role = $1 ORDER BY permission`, role)
	return perms, err
}

func (r *AccessRepo) HasPermission(ctx context.Context, role models.Role, perm string) (bool, error) {
	var ok bool
	err := r.db.GetContext(ctx, &ok, `SELECT EXISTS (SELECT 1 FROM access WHERE role = $1 AND permission = $2)`, role, perm)
	return ok, err
}

// Grant is idempotent.
func (r *AccessRepo) Grant(ctx context.Context, role models.Role, perm string) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO access (role, permission) VALUES ($1, $2) ON CONFLICT DO NOTHING`, role, perm)
	return mapErr(err)
}

func (r *AccessRepo) Revoke(ctx context.Context, role models.Role, perm string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM access WHERE role = $1 AND permission = $2`, role, perm)
	return expectOne(res, err)
}
