package repository

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/larscolombia/kapa/internal/models"
)

type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

const userColumns = `id, email, password_hash, name, role, client_id, contractor_id, active, created_at, updated_at`

func (r *UserRepo) Create(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = newID()
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (:id, :email, :password_hash, :name, :role, :client_id, :contractor_id, :active, :created_at, :updated_at)`, u)
	return mapErr(err)
}

func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := r.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

func (r *UserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := r.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE id = $1`, id); err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

func (r *UserRepo) List(ctx context.Context, role models.Role, page Page) ([]models.User, int, error) {
	page = page.normalize()
	w := &where{}
	if role != "" {
		w.add("role = ?", role)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT count(*) FROM users`+w.String(), w.args...); err != nil {
		return nil, 0, err
	}
	q := `SELECT ` + userColumns + ` FROM users` + w.String() + ` ORDER BY email LIMIT ` + w.next(page.Limit) + ` OFFSET ` + w.next(page.Offset)
	users := []models.User{}
	if err := r.db.SelectContext(ctx, &users, q, w.args...); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (r *UserRepo) Update(ctx context.Context, u *models.User) error {
	u.UpdatedAt = time.Now().UTC()
	res, err := r.db.NamedExecContext(ctx, `
		UPDATE users SET name = :name, role = :role, client_id = :client_id,
			contractor_id = :contractor_id, active = :active, updated_at = :updated_at
		WHERE id = :id`, u)
	return expectOne(res, err)
}

func (r *UserRepo) SetPassword(ctx context.Context, id, hash string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`, id, hash)
	return expectOne(res, err)
}
