package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/larscolombia/kapa/internal/models"
)

type Claims struct {
	UserID       string      `json:"userId"`
	Email        string      `json:"email"`
	Role         models.Role `json:"role"`
	ClientID     string      `json:"clientId,omitempty"`
	ContractorID string      `json:"contractorId,omitempty"`
	jwt.RegisteredClaims
}

// Scope is the tenant view carried by the token.
func (c *Claims) Scope() models.Scope {
	return models.Scope{
		UserID:       c.UserID,
		Email:        c.Email,
		Role:         c.Role,
		ClientID:     c.ClientID,
		ContractorID: c.ContractorID,
	}
}

func GenerateToken(secret string, ttl time.Duration, u *models.User) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:       u.ID,
		Email:        u.Email,
		Role:         u.Role,
		ClientID:     derefStr(u.ClientID),
		ContractorID: derefStr(u.ContractorID),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ValidateToken(secret, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrSignatureInvalid
	}
	return claims, nil
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
