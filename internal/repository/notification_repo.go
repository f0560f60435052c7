package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/larscolombia/kapa/internal/models"
)

type NotificationRepo struct {
	db *sqlx.DB
}

func NewNotificationRepo(db *sqlx.DB) *NotificationRepo {
	return &NotificationRepo{db: db}
}

func (r *NotificationRepo) Create(ctx context.Context, n *models.Notification) error {
	n.ID = newID()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO notifications (id, channel, recipient, subject, body, status, error, entity_type, entity_id, created_at)
		VALUES (:id, :channel, :recipient, :subject, :body, :status, :error, :entity_type, :entity_id, :created_at)`, n)
	return err
}

type NotificationFilter struct {
	EntityType string
	EntityID   string
	Status     models.NotificationStatus
}

func (r *NotificationRepo) List(ctx context.Context, f NotificationFilter, page Page) ([]models.Notification, int, error) {
	page = page.normalize()
	w := &where{}
	if f.EntityType != "" {
		w.add("entity_type = ?", f.EntityType)
	}
	if f.EntityID != "" {
		w.add("entity_id = ?", f.EntityID)
	}
	if f.Status != "" {
		w.add("status = ?", f.Status)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT count(*) FROM notifications`+w.String(), w.args...); err != nil {
		return nil, 0, err
	}
	q := `SELECT * FROM notifications` + w.String() + ` ORDER BY created_at DESC LIMIT ` + w.next(page.Limit) + ` OFFSET ` + w.next(page.Offset)
	out := []models.Notification{}
	if err := r.db.SelectContext(ctx, &out, q, w.args...); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
