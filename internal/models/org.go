package models

import "time"

type Client struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	TaxID        string    `db:"tax_id" json:"taxId"`
	ContactEmail string    `db:"contact_email" json:"contactEmail"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

type ProjectStatus string

const (
	ProjectActive ProjectStatus = "active"
	ProjectClosed ProjectStatus = "closed"
)

type Project struct {
	ID        string        `db:"id" json:"id"`
	ClientID  string        `db:"client_id" json:"clientId"`
	Name      string        `db:"name" json:"name"`
	Code      string        `db:"code" json:"code"`
	Location  string        `db:"location" json:"location"`
	StartDate *time.Time    `db:"start_date" json:"startDate,omitempty"`
	EndDate   *time.Time    `db:"end_date" json:"endDate,omitempty"`
	Status    ProjectStatus `db:"status" json:"status"`
	CreatedAt time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time     `db:"updated_at" json:"updatedAt"`
}

type Contractor struct {
	ID           string    `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	TaxID        string    `db:"tax_id" json:"taxId"`
	ContactEmail string    `db:"contact_email" json:"contactEmail"`
	Phone        string    `db:"phone" json:"phone"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

// ProjectContractor links a contractor to a project. Completion is the
// share of its checklist documents that are approved or not applicable.
type ProjectContractor struct {
	ID           string    `db:"id" json:"id"`
	ProjectID    string    `db:"project_id" json:"projectId"`
	ContractorID string    `db:"contractor_id" json:"contractorId"`
	Completion   float64   `db:"completion" json:"completion"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`

	ContractorName string `db:"contractor_name" json:"contractorName,omitempty"`
	ProjectName    string `db:"project_name" json:"projectName,omitempty"`
}

type Employee struct {
	ID             string    `db:"id" json:"id"`
	ContractorID   string    `db:"contractor_id" json:"contractorId"`
	FullName       string    `db:"full_name" json:"fullName"`
	DocumentNumber string    `db:"document_number" json:"documentNumber"`
	Position       string    `db:"position" json:"position"`
	Active         bool      `db:"active" json:"active"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time `db:"updated_at" json:"updatedAt"`
}
