package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/larscolombia/kapa/internal/auth"
	"github.com/larscolombia/kapa/internal/models"
)

type AuthService struct {
	users     UserStore
	jwtSecret string
	ttl       time.Duration
}

func NewAuthService(users UserStore, jwtSecret string, ttl time.Duration) *AuthService {
	return &AuthService{users: users, jwtSecret: jwtSecret, ttl: ttl}
}

type AuthResult struct {
	Token string              `json:"token"`
	User  models.UserResponse `json:"user"`
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.users.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(storeErr(err, "user"), ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !auth.CheckPassword(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	if !user.Active {
		return nil, ErrInactiveUser
	}
	token, err := auth.GenerateToken(s.jwtSecret, s.ttl, user)
	if err != nil {
		return nil, err
	}
	logrus.WithField("user_id", user.ID).Info("user logged in")
	return &AuthResult{Token: token, User: user.ToResponse()}, nil
}

func (s *AuthService) Me(ctx context.Context, userID string) (*models.UserResponse, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, storeErr(err, "user")
	}
	resp := user.ToResponse()
	return &resp, nil
}

// SeedAdmin creates the bootstrap administrator unless the email is taken.
func (s *AuthService) SeedAdmin(ctx context.Context, email, password string) error {
	_, err := s.users.FindByEmail(ctx, strings.ToLower(email))
	if err == nil {
		return nil
	}
	if !errors.Is(storeErr(err, "user"), ErrNotFound) {
		return err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	user := &models.User{
		Email:        email,
		PasswordHash: hash,
		Name:         "Admin",
		Role:         models.RoleAdmin,
		Active:       true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return storeErr(err, "admin")
	}
	logrus.WithField("email", user.Email).Info("admin user seeded")
	return nil
}
