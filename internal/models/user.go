package models

import "time"

type Role string

const (
	RoleAdmin      Role = "admin"
	RoleClient     Role = "client"
	RoleContractor Role = "contractor"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleClient, RoleContractor:
		return true
	}
	return false
}

type User struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Name         string    `db:"name" json:"name"`
	Role         Role      `db:"role" json:"role"`
	ClientID     *string   `db:"client_id" json:"clientId,omitempty"`
	ContractorID *string   `db:"contractor_id" json:"contractorId,omitempty"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time `db:"updated_at" json:"updatedAt"`
}

type UserResponse struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         Role      `json:"role"`
	ClientID     string    `json:"clientId,omitempty"`
	ContractorID string    `json:"contractorId,omitempty"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		Role:         u.Role,
		ClientID:     deref(u.ClientID),
		ContractorID: deref(u.ContractorID),
		Active:       u.Active,
		CreatedAt:    u.CreatedAt,
	}
}

// Scope is the tenant view of the caller. Repositories use it to narrow
// queries to the client or contractor the user belongs to.
type Scope struct {
	UserID       string
	Email        string
	Role         Role
	ClientID     string
	ContractorID string
}

func (s Scope) IsAdmin() bool { return s.Role == RoleAdmin }

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// StrPtr returns nil for the empty string.
func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
