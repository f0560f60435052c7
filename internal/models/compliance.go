package models

import "time"

type Criterion struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	SortOrder   int       `db:"sort_order" json:"sortOrder"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

type SubcriterionScope string

const (
	ScopeContractor SubcriterionScope = "contractor"
	ScopeEmployee   SubcriterionScope = "employee"
)

type Subcriterion struct {
	ID               string            `db:"id" json:"id"`
	CriterionID      string            `db:"criterion_id" json:"criterionId"`
	Name             string            `db:"name" json:"name"`
	Scope            SubcriterionScope `db:"scope" json:"scope"`
	RequiresValidity bool              `db:"requires_validity" json:"requiresValidity"`
	SortOrder        int               `db:"sort_order" json:"sortOrder"`
	CreatedAt        time.Time         `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time         `db:"updated_at" json:"updatedAt"`
}

type DocumentState string

const (
	DocNotSubmitted  DocumentState = "not_submitted"
	DocSubmitted     DocumentState = "submitted"
	DocApproved      DocumentState = "approved"
	DocRejected      DocumentState = "rejected"
	DocNotApplicable DocumentState = "not_applicable"
	DocForAdjustment DocumentState = "for_adjustment"
)

var DocumentStates = []DocumentState{
	DocNotSubmitted, DocSubmitted, DocApproved, DocRejected, DocNotApplicable, DocForAdjustment,
}

func (s DocumentState) Valid() bool {
	switch s {
	case DocNotSubmitted, DocSubmitted, DocApproved, DocRejected, DocNotApplicable, DocForAdjustment:
		return true
	}
	return false
}

// AcceptsUpload reports whether a new file may be attached in this state.
func (s DocumentState) AcceptsUpload() bool {
	return s == DocNotSubmitted || s == DocRejected || s == DocForAdjustment
}

// ReviewOutcome reports whether target is a valid result of reviewing a
// submitted document.
func ReviewOutcome(target DocumentState) bool {
	return target == DocApproved || target == DocRejected || target == DocForAdjustment
}

// Counts toward ProjectContractor completion.
func (s DocumentState) Complete() bool {
	return s == DocApproved || s == DocNotApplicable
}

// Document is one checklist item of a project contractor, optionally for
// a specific employee.
type Document struct {
	ID                  string        `db:"id" json:"id"`
	ProjectContractorID string        `db:"project_contractor_id" json:"projectContractorId"`
	SubcriterionID      string        `db:"subcriterion_id" json:"subcriterionId"`
	EmployeeID          *string       `db:"employee_id" json:"employeeId,omitempty"`
	State               DocumentState `db:"state" json:"state"`
	BlobKey             string        `db:"blob_key" json:"-"`
	FileName            string        `db:"file_name" json:"fileName,omitempty"`
	ContentType         string        `db:"content_type" json:"contentType,omitempty"`
	Size                int64         `db:"size" json:"size,omitempty"`
	ValidFrom           *time.Time    `db:"valid_from" json:"validFrom,omitempty"`
	ValidUntil          *time.Time    `db:"valid_until" json:"validUntil,omitempty"`
	ReviewComment       string        `db:"review_comment" json:"reviewComment,omitempty"`
	ReviewedBy          *string       `db:"reviewed_by" json:"reviewedBy,omitempty"`
	ReviewedAt          *time.Time    `db:"reviewed_at" json:"reviewedAt,omitempty"`
	CreatedAt           time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt           time.Time     `db:"updated_at" json:"updatedAt"`

	SubcriterionName string `db:"subcriterion_name" json:"subcriterionName,omitempty"`
	Expired          bool   `db:"-" json:"expired"`
}

func (d *Document) MarkExpired(now time.Time) {
	d.Expired = d.ValidUntil != nil && d.ValidUntil.Before(now)
}
