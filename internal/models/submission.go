package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/larscolombia/kapa/internal/diff"
)

type SubmissionStatus string

const (
	StatusCompleted SubmissionStatus = "completed"
	StatusDraft     SubmissionStatus = "draft"
	StatusPartial   SubmissionStatus = "partial"
)

func (s SubmissionStatus) Valid() bool {
	return s == StatusCompleted || s == StatusDraft || s == StatusPartial
}

// FormSubmission is the single answer set of a template for one ILV report.
type FormSubmission struct {
	ID              string           `db:"id" json:"id"`
	TemplateID      string           `db:"template_id" json:"templateId"`
	TemplateVersion int              `db:"template_version" json:"templateVersion"`
	ReportID        string           `db:"report_id" json:"reportId"`
	Data            JSONMap          `db:"data" json:"data"`
	Computed        JSONMap          `db:"computed" json:"computed,omitempty"`
	Score           *float64         `db:"score" json:"score,omitempty"`
	MaxScore        *float64         `db:"max_score" json:"maxScore,omitempty"`
	Passed          *bool            `db:"passed" json:"passed,omitempty"`
	Status          SubmissionStatus `db:"status" json:"status"`
	Version         int              `db:"version" json:"version"`
	SubmittedBy     string           `db:"submitted_by" json:"submittedBy"`
	SubmittedAt     time.Time        `db:"submitted_at" json:"submittedAt"`
	CreatedAt       time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time        `db:"updated_at" json:"updatedAt"`
}

// Changes is the jsonb list of path-level edits of a history row.
type Changes []diff.Change

func (c Changes) Value() (driver.Value, error) {
	if c == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c)
}

func (c *Changes) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*c = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("changes: unsupported type %T", src)
	}
	return json.Unmarshal(raw, c)
}

type FormSubmissionHistory struct {
	ID           string           `db:"id" json:"id"`
	SubmissionID string           `db:"submission_id" json:"submissionId"`
	Version      int              `db:"version" json:"version"`
	Status       SubmissionStatus `db:"status" json:"status"`
	Changes      Changes          `db:"changes" json:"changes"`
	Before       JSONMap          `db:"before" json:"before"`
	After        JSONMap          `db:"after" json:"after"`
	ChangedBy    string           `db:"changed_by" json:"changedBy"`
	ChangedAt    time.Time        `db:"changed_at" json:"changedAt"`
}

// DefaultDraftTTL is how long an autosaved draft lives without being touched.
const DefaultDraftTTL = 7 * 24 * time.Hour

type FormDraft struct {
	ID         string    `db:"id" json:"id"`
	TemplateID string    `db:"template_id" json:"templateId"`
	ReportID   string    `db:"report_id" json:"reportId"`
	UserID     string    `db:"user_id" json:"userId"`
	Data       JSONMap   `db:"data" json:"data"`
	SavedAt    time.Time `db:"saved_at" json:"savedAt"`
	ExpiresAt  time.Time `db:"expires_at" json:"expiresAt"`
}

func (d *FormDraft) Expired(now time.Time) bool { return !d.ExpiresAt.After(now) }
