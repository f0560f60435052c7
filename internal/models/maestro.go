package models

import "time"

// Maestro is a master-data row used to populate dropdowns.
type Maestro struct {
	ID        string    `db:"id" json:"id"`
	Category  string    `db:"category" json:"category"`
	Code      string    `db:"code" json:"code"`
	Label     string    `db:"label" json:"label"`
	SortOrder int       `db:"sort_order" json:"sortOrder"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

const MaestroSeverity = "severity"
