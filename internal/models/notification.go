package models

import "time"

type NotificationStatus string

const (
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
	NotificationSkipped NotificationStatus = "skipped"
)

type Notification struct {
	ID         string             `db:"id" json:"id"`
	Channel    string             `db:"channel" json:"channel"`
	Recipient  string             `db:"recipient" json:"recipient"`
	Subject    string             `db:"subject" json:"subject"`
	Body       string             `db:"body" json:"body"`
	Status     NotificationStatus `db:"status" json:"status"`
	Error      string             `db:"error" json:"error,omitempty"`
	EntityType string             `db:"entity_type" json:"entityType"`
	EntityID   string             `db:"entity_id" json:"entityId"`
	CreatedAt  time.Time          `db:"created_at" json:"createdAt"`
}
