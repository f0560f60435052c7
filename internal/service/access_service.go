package service

import (
	"context"
	"net/mail"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/larscolombia/kapa/internal/auth"
	"github.com/larscolombia/kapa/internal/models"
	"github.com/larscolombia/kapa/internal/repository"
)

const minPasswordLen = 8

// AccessService manages users and the role permission table.
type AccessService struct {
	users  UserStore
	access AccessStore
}

func NewAccessService(users UserStore, access AccessStore) *AccessService {
	return &AccessService{users: users, access: access}
}

type UserInput struct {
	Email        string      `json:"email" validate:"required,email"`
	Password     string      `json:"password" validate:"required,min=8"`
	Name         string      `json:"name" validate:"required"`
	Role         models.Role `json:"role" validate:"required,oneof=admin client contractor"`
	ClientID     string      `json:"clientId"`
	ContractorID string      `json:"contractorId"`
}

// UserUpdate leaves nil fields untouched.
type UserUpdate struct {
	Name         *string      `json:"name"`
	Role         *models.Role `json:"role"`
	ClientID     *string      `json:"clientId"`
	ContractorID *string      `json:"contractorId"`
	Active       *bool        `json:"active"`
}

// checkTenant enforces that client and contractor users carry their
// tenant link.
func checkTenant(u *models.User) error {
	if !u.Role.Valid() {
		return invalid("unknown role %q", u.Role)
	}
	switch u.Role {
	case models.RoleClient:
		if u.ClientID == nil {
			return invalid("client users require clientId")
		}
	case models.RoleContractor:
		if u.ContractorID == nil {
			return invalid("contractor users require contractorId")
		}
	}
	return nil
}

func (s *AccessService) CreateUser(ctx context.Context, in UserInput) (*models.UserResponse, error) {
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return nil, invalid("invalid email")
	}
	if len(in.Password) < minPasswordLen {
		return nil, invalid("password must have at least %d characters", minPasswordLen)
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, invalid("name is required")
	}
	user := &models.User{
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		Name:         strings.TrimSpace(in.Name),
		Role:         in.Role,
		ClientID:     models.StrPtr(in.ClientID),
		ContractorID: models.StrPtr(in.ContractorID),
		Active:       true,
	}
	if err := checkTenant(user); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	user.PasswordHash = hash
	if err := s.users.Create(ctx, user); err != nil {
		return nil, storeErr(err, "user")
	}
	logrus.WithFields(logrus.Fields{"user_id": user.ID, "role": user.Role}).Info("user created")
	resp := user.ToResponse()
	return &resp, nil
}

func (s *AccessService) ListUsers(ctx context.Context, role models.Role, page repository.Page) ([]models.UserResponse, int, error) {
	users, total, err := s.users.List(ctx, role, page)
	if err != nil {
		return nil, 0, err
	}
	out := make([]models.UserResponse, 0, len(users))
	for i := range users {
		out = append(out, users[i].ToResponse())
	}
	return out, total, nil
}

func (s *AccessService) GetUser(ctx context.Context, id string) (*models.UserResponse, error) {
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, storeErr(err, "user")
	}
	resp := u.ToResponse()
	return &resp, nil
}

func (s *AccessService) UpdateUser(ctx context.Context, id string, in UserUpdate) (*models.UserResponse, error) {
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, storeErr(err, "user")
	}
	if in.Name != nil {
		if strings.TrimSpace(*in.Name) == "" {
			return nil, invalid("name is required")
		}
		u.Name = strings.TrimSpace(*in.Name)
	}
	if in.Role != nil {
		u.Role = *in.Role
	}
	if in.ClientID != nil {
		u.ClientID = models.StrPtr(*in.ClientID)
	}
	if in.ContractorID != nil {
		u.ContractorID = models.StrPtr(*in.ContractorID)
	}
	if in.Active != nil {
		u.Active = *in.Active
	}
	if err := checkTenant(u); err != nil {
		return nil, err
	}
	if err := s.users.Update(ctx, u); err != nil {
		return nil, storeErr(err, "user")
	}
	resp := u.ToResponse()
	return &resp, nil
}

func (s *AccessService) Deactivate(ctx context.Context, id string) error {
	inactive := false
	_, err := s.UpdateUser(ctx, id, UserUpdate{Active: &inactive})
	return err
}

func (s *AccessService) ResetPassword(ctx context.Context, id, password string) error {
	if len(password) < minPasswordLen {
		return invalid("password must have at least %d characters", minPasswordLen)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	return storeErr(s.users.SetPassword(ctx, id, hash), "user")
}

func (s *AccessService) Roles(ctx context.Context) ([]models.RoleInfo, error) {
	return s.access.ListRoles(ctx)
}

// Permissions lists what a role holds. Admin holds every known permission.
func (s *AccessService) Permissions(ctx context.Context, role models.Role) ([]string, error) {
	if role == models.RoleAdmin {
		return models.AllPermissions, nil
	}
	if err := s.ensureRole(ctx, role); err != nil {
		return nil, err
	}
	return s.access.Permissions(ctx, role)
}

func (s *AccessService) HasPermission(ctx context.Context, role models.Role, perm string) (bool, error) {
	if role == models.RoleAdmin {
		return true, nil
	}
	return s.access.HasPermission(ctx, role, perm)
}

func (s *AccessService) Grant(ctx context.Context, role models.Role, perm string) error {
	if err := s.checkGrant(ctx, role, perm); err != nil {
		return err
	}
	if err := s.access.Grant(ctx, role, perm); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"role": role, "permission": perm}).Info("permission granted")
	return nil
}

func (s *AccessService) Revoke(ctx context.Context, role models.Role, perm string) error {
	if err := s.checkGrant(ctx, role, perm); err != nil {
		return err
	}
	if err := s.access.Revoke(ctx, role, perm); err != nil {
		return storeErr(err, "permission")
	}
	logrus.WithFields(logrus.Fields{"role": role, "permission": perm}).Info("permission revoked")
	return nil
}

func (s *AccessService) checkGrant(ctx context.Context, role models.Role, perm string) error {
	if role == models.RoleAdmin {
		return invalid("admin permissions are implicit")
	}
	if !models.KnownPermission(perm) {
		return invalid("unknown permission %q", perm)
	}
	return s.ensureRole(ctx, role)
}

func (s *AccessService) ensureRole(ctx context.Context, role models.Role) error {
	ok, err := s.access.RoleExists(ctx, role)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}
