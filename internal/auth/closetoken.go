package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const closeAudience = "ilv-close"

var (
	ErrCloseTokenExpired = errors.New("close token expired")
	ErrCloseTokenInvalid = errors.New("close token invalid")
)

// CloseClaims is the payload of a public report close link. The JWT ID
// matches the stored token row.
type CloseClaims struct {
	ReportID string `json:"report_id"`
	jwt.RegisteredClaims
}

// CloseSigner signs and verifies close links with a secret of its own so
// a session token can never be replayed as a close token or vice versa.
type CloseSigner struct {
	secret []byte
}

func NewCloseSigner(secret string) *CloseSigner {
	return &CloseSigner{secret: []byte(secret)}
}

func (s *CloseSigner) Sign(jti, reportID string, issuedAt, expiresAt time.Time) (string, error) {
	claims := CloseClaims{
		ReportID: reportID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Audience:  jwt.ClaimStrings{closeAudience},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify checks signature, audience and expiry as of now.
func (s *CloseSigner) Verify(tokenStr string, now time.Time) (*CloseClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &CloseClaims{}, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(closeAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrCloseTokenExpired
		}
		return nil, ErrCloseTokenInvalid
	}
	claims, ok := token.Claims.(*CloseClaims)
	if !ok || !token.Valid || claims.ID == "" || claims.ReportID == "" {
		return nil, ErrCloseTokenInvalid
	}
	return claims, nil
}
